package drisc

import (
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

// Config is an opaque, validated key/value set (SPEC_FULL.md §6.4),
// built via NewConfig/Set and read by Boot. Nothing freezes it: Set
// stays callable after Boot. Mirrors the teacher's closed DeviceParams
// struct: unrecognized options are rejected rather than silently
// ignored.
type Config struct {
	values map[string]string
	// InitRegs holds parsed "R<idx>=<value>" boot-time register
	// initializers, in declaration order.
	InitRegs []RegInit
}

// RegInit is one parsed InitRegs entry.
type RegInit struct {
	Index uint32
	Value uint64
}

// recognizedOptions is the closed option table from SPEC_FULL.md §6.4.
// The value is a validator invoked with the raw string at Set time.
var recognizedOptions = map[string]func(string) error{
	"CacheLineSize":           validatePow2AtLeast(8),
	"DcCacheAssoc":            validatePow2AtLeast(1),
	"DcCacheSets":             validatePow2AtLeast(1),
	"IcCacheAssoc":            validatePow2AtLeast(1),
	"IcCacheSets":             validatePow2AtLeast(1),
	"NumIntRegisters":         validatePositiveInt,
	"NumFltRegisters":         validatePositiveInt,
	"IntRegistersBlockSize":   validatePositiveInt,
	"FltRegistersBlockSize":   validatePositiveInt,
	"ControlBlockSize":        validatePow2AtLeast(1),
	"NumFamilies":             validatePositiveInt,
	"NumThreads":              validatePositiveInt,
	"NumAncillaryRegisters":   validatePositiveInt,
	"OutgoingBufferSize":      validatePositiveInt,
	"ReadResponsesBufferSize": validatePositiveInt,
	"ExclusiveContextSlots":   validateNonNegativeInt,
	"PlaceSize":               validatePow2AtLeast(1),
	"NumCores":                validatePositiveInt,
	"InitRegs":                func(string) error { return nil }, // parsed separately
}

func validatePositiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	if n <= 0 {
		return fmt.Errorf("must be positive, got %d", n)
	}
	return nil
}

func validateNonNegativeInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("not an integer: %q", s)
	}
	if n < 0 {
		return fmt.Errorf("must be non-negative, got %d", n)
	}
	return nil
}

func validatePow2AtLeast(min int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("not an integer: %q", s)
		}
		if n < min {
			return fmt.Errorf("must be >= %d, got %d", min, n)
		}
		if bits.OnesCount(uint(n)) != 1 {
			return fmt.Errorf("must be a power of two, got %d", n)
		}
		return nil
	}
}

// NewConfig creates an empty, validated Config.
func NewConfig() *Config {
	return &Config{values: make(map[string]string)}
}

// Set validates and stores a configuration option. Unrecognized keys are
// rejected, matching spec.md §6.4 ("unrecognized options are rejected at
// startup").
func (c *Config) Set(key, value string) error {
	validate, ok := recognizedOptions[key]
	if !ok {
		return NewError("Config", "Set", InvalidArgument, fmt.Sprintf("unrecognized option %q", key))
	}
	if err := validate(value); err != nil {
		return NewError("Config", "Set", InvalidArgument, fmt.Sprintf("option %q: %v", key, err))
	}
	if key == "InitRegs" {
		regs, err := parseInitRegs(value)
		if err != nil {
			return NewError("Config", "Set", InvalidArgument, fmt.Sprintf("InitRegs: %v", err))
		}
		c.InitRegs = append(c.InitRegs, regs...)
		return nil
	}
	c.values[key] = value
	return nil
}

// parseInitRegs parses a space-separated list of "R<idx>=<value>" tokens.
func parseInitRegs(s string) ([]RegInit, error) {
	var regs []RegInit
	for _, tok := range strings.Fields(s) {
		if !strings.HasPrefix(tok, "R") {
			return nil, fmt.Errorf("malformed register initializer %q", tok)
		}
		eq := strings.IndexByte(tok, '=')
		if eq < 0 {
			return nil, fmt.Errorf("malformed register initializer %q", tok)
		}
		idx, err := strconv.ParseUint(tok[1:eq], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed register index in %q: %v", tok, err)
		}
		val, err := strconv.ParseUint(tok[eq+1:], 0, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed register value in %q: %v", tok, err)
		}
		regs = append(regs, RegInit{Index: uint32(idx), Value: val})
	}
	return regs, nil
}

// Int reads a recognized integer option, falling back to def if unset.
func (c *Config) Int(key string, def int) int {
	v, ok := c.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// String reads a recognized string option, falling back to def if unset.
func (c *Config) String(key, def string) string {
	if v, ok := c.values[key]; ok {
		return v
	}
	return def
}
