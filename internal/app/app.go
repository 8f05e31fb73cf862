// Package app provides the composition root of the mrscf binary. It wires
// configuration, the model system, the solver, the observers, and the
// optional metrics endpoint into one run.
package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/qmsolve/mrscf/internal/cli"
	"github.com/qmsolve/mrscf/internal/comm"
	"github.com/qmsolve/mrscf/internal/config"
	apperrors "github.com/qmsolve/mrscf/internal/errors"
	"github.com/qmsolve/mrscf/internal/logging"
	"github.com/qmsolve/mrscf/internal/orbital"
	"github.com/qmsolve/mrscf/internal/report"
	"github.com/qmsolve/mrscf/internal/scf"
	"github.com/qmsolve/mrscf/internal/server"
	"github.com/qmsolve/mrscf/internal/ui"
)

// Application is one configured run of the solver.
type Application struct {
	// Config holds the parsed runtime configuration.
	Config config.AppConfig
	// Deck is the parsed input deck describing the system.
	Deck *config.Deck
	// ErrWriter is the writer for error output (typically os.Stderr).
	ErrWriter io.Writer
}

// New creates an Application by parsing command-line arguments and loading
// the input deck.
//
// Parameters:
//   - args: The command-line arguments (typically os.Args).
//   - errWriter: The writer for error output.
//
// Returns:
//   - *Application: A new application instance.
//   - error: An error if configuration parsing or validation fails.
func New(args []string, errWriter io.Writer) (*Application, error) {
	programName := "mrscf"
	var cmdArgs []string
	if len(args) > 0 {
		programName = args[0]
		cmdArgs = args[1:]
	}

	cfg, deck, err := config.ParseConfig(programName, cmdArgs, errWriter)
	if err != nil {
		return nil, err
	}
	return &Application{Config: cfg, Deck: deck, ErrWriter: errWriter}, nil
}

// IsHelpError checks if the error came from the -h/--help flag, in which
// case the usage text was already printed and the exit is a success.
func IsHelpError(err error) bool {
	return errors.Is(err, flag.ErrHelp)
}

// Run executes the optimization and reports the result.
//
// Parameters:
//   - ctx: The context for cancellation; a timeout and signal handling are
//     layered on top.
//   - out: The writer for standard output.
//
// Returns:
//   - int: An exit code (0 converged, 2 not converged, 3 solver error,
//     4 configuration error, 130 canceled).
func (a *Application) Run(ctx context.Context, out io.Writer) int {
	ui.Init(a.Config.NoColor)
	log := logging.NewConsoleLogger(a.ErrWriter, a.Config.Verbose)

	ctx, cancels := SetupLifecycle(ctx, a.Config.Timeout)
	defer cancels.Cleanup()

	sys, err := buildSystem(a.Deck, a.Config, log)
	if err != nil {
		return apperrors.HandleRunError(err, 0, a.ErrWriter, uiColors{})
	}

	if !a.Config.Quiet {
		cli.PrintRunHeader(out, a.Config)
	}

	// The channel observer feeds both the history collector and the live
	// progress display; the buffer absorbs bursts so iterations never block.
	updates := make(chan scf.IterationUpdate, a.Config.MaxIter+4)
	var iterations atomic.Int64

	reg := prometheus.NewRegistry()
	observers := []scf.Observer{
		scf.NewChannelObserver(updates),
		scf.NewLoggingObserver(log),
		scf.NewPrometheusObserver(reg),
	}

	solver := scf.New(a.Config.SolverOptions(), comm.Serial{}, log, observers...)
	if err := a.setupSolver(solver, sys); err != nil {
		return apperrors.HandleRunError(err, 0, a.ErrWriter, uiColors{})
	}
	defer solver.Clear()

	// Optional metrics endpoint for long runs.
	serverDone := a.startMetricsServer(ctx, reg, log, solver, &iterations)

	history, collectorDone := a.startCollectors(out, updates, &iterations)

	start := time.Now()
	res, err := solver.Optimize(ctx)
	close(updates)
	<-collectorDone

	elapsed := time.Since(start)
	if err != nil {
		return apperrors.HandleRunError(err, elapsed, a.ErrWriter, uiColors{})
	}

	if !a.Config.Quiet {
		cli.PrintEnergyTable(out, *history)
		cli.PrintSummary(out, res, elapsed)
	} else {
		fmt.Fprintf(out, "%.10f\n", res.Final().Total)
	}

	if code := a.writeArtifacts(sys.phi, *history); code != apperrors.ExitSuccess {
		return code
	}
	if serverDone != nil {
		cancels.Cleanup()
		<-serverDone
	}

	if !res.Converged {
		return apperrors.ExitNotConverged
	}
	return apperrors.ExitSuccess
}

// setupSolver binds the solver in the configured mode. Energy mode needs
// the next-generation operator binding for the incremental matrix update.
func (a *Application) setupSolver(solver *scf.Solver, sys *system) error {
	if a.Config.Mode == "energy" {
		fockNp1, phiNp1 := sys.nextGeneration()
		return solver.SetupEnergy(sys.fock, sys.fmat, sys.phi, fockNp1, phiNp1)
	}
	return solver.Setup(sys.fock, sys.fmat, sys.phi)
}

// startCollectors drains the update channel into the history slice and,
// unless quiet, into the live progress display. The returned channel closes
// when the update channel is drained.
func (a *Application) startCollectors(out io.Writer, updates <-chan scf.IterationUpdate, iterations *atomic.Int64) (*[]scf.IterationUpdate, <-chan struct{}) {
	history := &[]scf.IterationUpdate{}
	done := make(chan struct{})

	var progressCh chan scf.IterationUpdate
	var wg sync.WaitGroup
	if !a.Config.Quiet {
		progressCh = make(chan scf.IterationUpdate, cap(updates))
		wg.Add(1)
		go cli.DisplayProgress(&wg, progressCh, out)
	}

	go func() {
		defer close(done)
		for u := range updates {
			*history = append(*history, u)
			iterations.Store(int64(u.Iter))
			if progressCh != nil {
				progressCh <- u
			}
		}
		if progressCh != nil {
			close(progressCh)
			wg.Wait()
		}
	}()
	return history, done
}

// startMetricsServer serves /metrics and /healthz when an address is
// configured. Returns nil when disabled.
func (a *Application) startMetricsServer(ctx context.Context, reg *prometheus.Registry, log logging.Logger, solver *scf.Solver, iterations *atomic.Int64) <-chan struct{} {
	if a.Config.MetricsAddr == "" {
		return nil
	}
	srv := server.New(a.Config.MetricsAddr, reg,
		server.WithLogger(log),
		server.WithHealth(func() server.HealthStatus {
			return server.HealthStatus{
				Status:     "ok",
				State:      solver.State().String(),
				Iterations: int(iterations.Load()),
			}
		}))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := srv.Serve(ctx); err != nil {
			log.Error("metrics endpoint failed", err)
		}
	}()
	return done
}

// writeArtifacts saves the converged orbitals and the convergence plot when
// configured.
func (a *Application) writeArtifacts(phi *orbital.Set, history []scf.IterationUpdate) int {
	if a.Config.Checkpoint != "" {
		if err := orbital.SaveSet(a.Config.Checkpoint, phi); err != nil {
			fmt.Fprintf(a.ErrWriter, "Error saving orbitals: %v\n", err)
			return apperrors.ExitErrorGeneric
		}
	}
	if a.Config.Plot != "" && len(history) > 0 {
		if err := report.WriteConvergencePlot(a.Config.Plot, history); err != nil {
			fmt.Fprintf(a.ErrWriter, "Error writing convergence plot: %v\n", err)
			return apperrors.ExitErrorGeneric
		}
	}
	return apperrors.ExitSuccess
}

// uiColors feeds the active theme into the error reporter.
type uiColors struct{}

func (uiColors) Yellow() string { return ui.Warn() }
func (uiColors) Reset() string  { return ui.Reset() }
