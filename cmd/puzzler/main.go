package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/lk16/puzzler/internal/cli"
	"github.com/lk16/puzzler/internal/config"
	"github.com/lk16/puzzler/internal/puzzle"
	"github.com/lk16/puzzler/internal/repository"
	"github.com/lk16/puzzler/internal/rules"
	"github.com/lk16/puzzler/internal/services"
	"github.com/lk16/puzzler/internal/uci"
)

func main() {
	config.SetLogLevel()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cli.Execute(ctx, newCommand())
}

func newCommand() *cobra.Command {
	v := config.NewViper()
	config.SetPuzzlerDefaults(v)
	defaults := puzzle.DefaultSettings()

	cmd := &cobra.Command{
		Use:   "puzzler [file.epd...]",
		Short: "Extract puzzles from EPD positions using a UCI engine",
		Long: "Reads EPD lines from the given files or standard input, analyses every position with a UCI engine " +
			"and writes the positions that have a single good move as EPD lines with puzzle annotations.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cli.BindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.LoadPuzzlerConfig(v)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg, args)
		},
	}

	cli.AddEngineFlags(cmd)

	flags := cmd.Flags()
	flags.StringP("variant", "v", "", "variant of positions without a variant annotation")
	flags.IntP("depth", "d", defaults.Depth, "search depth of every analysis")
	flags.IntP("multipv", "m", defaults.MultiPV, "number of lines the engine reports")
	flags.IntP("win-threshold", "w", defaults.WinThreshold, "centipawn evaluation that counts as winning")
	flags.IntP("unclear-threshold", "u", defaults.UnclearThreshold, "centipawn evaluation that counts as unclear")
	flags.Float64("mate-ratio", defaults.MateDistanceRatio, "mate distance ratio above which a slower mate is fine")
	flags.Duration("timeout", 0, "maximum duration of a single analysis, zero disables the limit")
	flags.IntP("jobs", "j", 1, "number of engines running in parallel")
	flags.String("failures", "", "file that receives lines whose analysis timed out")
	flags.String("redis-url", "", "Redis URL that receives lines whose analysis timed out")
	flags.String("postgres-url", "", "PostgreSQL URL that receives the puzzles")
	flags.StringP("output", "O", "", "output file, standard output if empty")

	return cmd
}

// outputs holds where puzzles and failures go and how to release them.
type outputs struct {
	sink     puzzle.Sink
	failures puzzle.FailureSink
	closers  []func() error
}

func (o *outputs) close() error {
	var errs []error
	for _, closer := range o.closers {
		errs = append(errs, closer())
	}
	return errors.Join(errs...)
}

func openOutputs(ctx context.Context, cfg *config.PuzzlerConfig, runID uuid.UUID) (*outputs, error) {
	o := &outputs{}

	writer, closeWriter, err := cli.OpenOutput(cfg.Output)
	if err != nil {
		return nil, err
	}
	o.closers = append(o.closers, closeWriter)

	sinks := puzzle.MultiSink{puzzle.NewWriterSink(writer)}
	var failures puzzle.MultiFailureSink

	if cfg.PostgresURL != "" {
		db, err := services.InitPostgres(cfg.PostgresURL)
		if err != nil {
			_ = o.close()
			return nil, err
		}
		o.closers = append(o.closers, db.Close)

		puzzles := repository.NewPuzzleRepository(db, runID)
		if err := puzzles.EnsureSchema(ctx); err != nil {
			_ = o.close()
			return nil, err
		}
		sinks = append(sinks, puzzles)
	}

	if cfg.Failures != "" {
		failureWriter, closeFailures, err := cli.OpenOutput(cfg.Failures)
		if err != nil {
			_ = o.close()
			return nil, err
		}
		o.closers = append(o.closers, closeFailures)
		failures = append(failures, puzzle.NewWriterFailureSink(failureWriter))
	}

	if cfg.RedisURL != "" {
		client, err := services.InitRedis(cfg.RedisURL)
		if err != nil {
			_ = o.close()
			return nil, err
		}
		o.closers = append(o.closers, client.Close)
		failures = append(failures, repository.NewFailureRepository(client))
	}

	o.sink = sinks
	if len(failures) > 0 {
		o.failures = failures
	}

	return o, nil
}

// worker is one running engine with its watchdog.
type worker struct {
	session *uci.Session
	monitor *uci.Monitor
}

func startEngines(ctx context.Context, cfg *config.PuzzlerConfig) ([]worker, error) {
	uciConfig, err := cfg.UCIConfig()
	if err != nil {
		return nil, err
	}

	engines := make([]worker, 0, cfg.Jobs)
	for range cfg.Jobs {
		session, err := uci.Start(ctx, uciConfig)
		if err != nil {
			closeEngines(engines)
			return nil, err
		}

		engines = append(engines, worker{
			session: session,
			monitor: uci.NewMonitor(session, cfg.Timeout),
		})
	}

	return engines, nil
}

func closeEngines(engines []worker) {
	for _, engine := range engines {
		if err := engine.session.Close(); err != nil {
			slog.Warn("Failed to close engine", "error", err)
		}
	}
}

func run(ctx context.Context, cfg *config.PuzzlerConfig, paths []string) error {
	runID := uuid.New()
	logger := slog.With("run_id", runID)

	input, closeInput, err := cli.OpenInput(paths)
	if err != nil {
		return err
	}
	defer closeInput() //nolint:errcheck

	out, err := openOutputs(ctx, cfg, runID)
	if err != nil {
		return err
	}
	defer func() {
		if err := out.close(); err != nil {
			logger.Warn("Failed to close outputs", "error", err)
		}
	}()

	engines, err := startEngines(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeEngines(engines)

	cache := uci.NewCache()
	extractors := make([]*puzzle.Extractor, 0, len(engines))
	for _, engine := range engines {
		extractor, err := puzzle.NewExtractor(engine.session, engine.monitor, rules.Chess{}, cache, cfg.Settings())
		if err != nil {
			return err
		}
		extractors = append(extractors, extractor)
	}

	logger.Info("Starting extraction", "engine", cfg.Engine, "jobs", cfg.Jobs, "depth", cfg.Depth)

	monitorCtx, stopMonitors := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(ctx)

	for _, engine := range engines {
		group.Go(func() error {
			// A monitor that fails to stop a search leaves the engine to the session, which reports the crash.
			if err := engine.monitor.Run(monitorCtx); err != nil {
				logger.Warn("Watchdog stopped", "error", err)
			}
			return nil
		})
	}

	var stats puzzle.Stats
	group.Go(func() error {
		defer stopMonitors()

		var err error
		stats, err = puzzle.RunParallel(groupCtx, extractors, input, out.sink, out.failures)
		return err
	})

	err = group.Wait()

	logger.Info(
		"Extraction finished",
		"lines", stats.Lines,
		"puzzles", stats.Puzzles,
		"malformed", stats.Malformed,
		"timed_out", stats.TimedOut,
		"cached", cache.Len(),
	)

	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}
	return nil
}
