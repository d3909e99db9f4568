// Command drisc-sim boots a DRISC simulation from a raw instruction
// image, runs it to completion (or a cycle cap), and reports the final
// perfcounters.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/behrlich/drisc"
	"github.com/behrlich/drisc/internal/logx"
	"golang.org/x/term"
)

func main() {
	var (
		program  = flag.String("program", "", "path to a raw instruction image loaded at the -run-at address")
		cycles   = flag.Uint64("cycles", 500000, "maximum cycles to run (0 = unbounded)")
		runAt    = flag.Uint64("run-at", 0, "address of the boot thread's first instruction")
		legacy   = flag.Bool("legacy", true, "boot thread uses legacy (non-skipping) PC addressing")
		regs     = flag.String("regs", "", "boot register initializers, e.g. \"R1=0x10 R2=7\"")
		numCores = flag.Int("cores", 1, "number of cores")
		verbose  = flag.Bool("v", false, "verbose logging")
		debug    = flag.Bool("debug", false, "run an interactive single-step inspector instead of a free run")
	)
	flag.Parse()

	logConfig := logx.DefaultConfig()
	if *verbose {
		logConfig.Level = logx.LevelDebug
	}
	logger := logx.New(logConfig)
	logx.SetDefault(logger)

	if *program == "" {
		logger.Error("missing required -program flag")
		os.Exit(2)
	}
	image, err := os.ReadFile(*program)
	if err != nil {
		logger.Error("failed to read program image", "error", err)
		os.Exit(1)
	}

	cfg := drisc.NewConfig()
	if err := cfg.Set("NumCores", fmt.Sprintf("%d", *numCores)); err != nil {
		logger.Error("invalid -cores", "error", err)
		os.Exit(2)
	}
	if *regs != "" {
		if err := cfg.Set("InitRegs", *regs); err != nil {
			logger.Error("invalid -regs", "error", err)
			os.Exit(2)
		}
	}

	sim, err := drisc.Boot(cfg, *runAt, *legacy)
	if err != nil {
		logger.Error("boot failed", "error", err)
		os.Exit(1)
	}
	if err := sim.Memory.Poke(*runAt, image); err != nil {
		logger.Error("failed to load program image", "error", err)
		os.Exit(1)
	}
	logger.Info("booted simulation", "cores", len(sim.Cores), "image_bytes", len(image))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal, halting")
		sim.Kernel.Halt(drisc.NewError("drisc-sim", "main", drisc.ProgramTermination, "interrupted"))
	}()

	if *debug {
		err = runDebugger(sim, *cycles, logger)
	} else {
		err = sim.Kernel.Run(*cycles)
	}

	snap := sim.Metrics.Snapshot()
	fmt.Printf("cycles=%d instructions=%d ipc=%.3f cache_hit_rate=%.3f evictions=%d\n",
		snap.CyclesRun, snap.InstructionsIssued, snap.IPC, snap.HitRate, snap.CacheEvictions)

	if err != nil {
		if drisc.IsKind(err, drisc.ProgramTermination) {
			logger.Info("program terminated", "detail", err.Error())
			os.Exit(exitCodeOf(sim))
		}
		logger.Error("run ended with error", "error", err)
		os.Exit(1)
	}
}

func exitCodeOf(sim *drisc.Simulation) int {
	for _, c := range sim.Cores {
		if c.Action.Terminated {
			return int(c.Action.ExitCode)
		}
	}
	return 0
}

// runDebugger runs the simulation one cycle at a time, printing each
// core's cycle number and waiting for a keypress between cycles: 'n'
// or space steps, 'q' quits early, anything else is ignored. Grounded
// on the cmd's signal-driven control loop, swapping the channel source
// for a raw-mode terminal reader so a human can single-step cycles.
func runDebugger(sim *drisc.Simulation, maxCycles uint64, logger *logx.Logger) error {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		logger.Warn("stdin is not a terminal, falling back to a free run")
		return sim.Kernel.Run(maxCycles)
	}
	oldState, err := term.MakeRaw(fd)
	if err != nil {
		return err
	}
	defer term.Restore(fd, oldState)

	fmt.Print("drisc-sim debugger: [n]ext cycle, [q]uit\r\n")
	buf := make([]byte, 1)
	clock0 := sim.Cores[0].Clock
	for {
		if maxCycles > 0 && clock0.CycleNo() >= maxCycles {
			return nil
		}
		if _, err := os.Stdin.Read(buf); err != nil {
			return err
		}
		switch buf[0] {
		case 'q', 'Q', 3: // 3 == Ctrl-C
			return nil
		case 'n', 'N', ' ':
			target := clock0.CycleNo() + 1
			if err := sim.Kernel.Run(target); err != nil {
				return err
			}
			printCoreState(sim)
		}
	}
}

func printCoreState(sim *drisc.Simulation) {
	var b strings.Builder
	for _, c := range sim.Cores {
		fmt.Fprintf(&b, "%s: cycle=%d\r\n", c.ID, c.Clock.CycleNo())
	}
	fmt.Print(b.String())
}
