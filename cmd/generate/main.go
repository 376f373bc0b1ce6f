package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lk16/puzzler/internal/cli"
	"github.com/lk16/puzzler/internal/config"
	"github.com/lk16/puzzler/internal/epd"
	"github.com/lk16/puzzler/internal/generator"
	"github.com/lk16/puzzler/internal/rules"
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
	config.SetGeneratorDefaults(v)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate candidate positions from engine self-play",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cli.BindFlags(cmd, v); err != nil {
				return err
			}

			cfg, err := config.LoadGeneratorConfig(v)
			if err != nil {
				return err
			}

			return run(cmd.Context(), cfg)
		},
	}

	cli.AddEngineFlags(cmd)

	flags := cmd.Flags()
	flags.StringP("variant", "v", "chess", "variant the engine plays")
	flags.IntP("count", "c", generator.DefaultCount, "number of positions to generate")
	flags.Int("min-depth", generator.DefaultMinDepth, "minimum search depth of a move")
	flags.Int("max-depth", generator.DefaultMaxDepth, "maximum search depth of a move")
	flags.Int("skill-level", 12, "engine skill level") //nolint:mnd
	flags.Bool("add-move", false, "emit the position before each move with the move as setup move")
	flags.Uint64("seed", 0, "seed for the search depths, zero picks a random seed")
	flags.StringP("output", "O", "", "output file, standard output if empty")

	return cmd
}

func run(ctx context.Context, cfg *config.GeneratorConfig) error {
	uciConfig, err := cfg.UCIConfig()
	if err != nil {
		return err
	}

	output, closeOutput, err := cli.OpenOutput(cfg.Output)
	if err != nil {
		return err
	}
	defer closeOutput() //nolint:errcheck

	session, err := uci.Start(ctx, uciConfig)
	if err != nil {
		return err
	}
	defer session.Close() //nolint:errcheck

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64() //nolint:gosec
	}

	gen, err := generator.New(session, rules.Chess{}, cfg.Settings(), rand.NewPCG(seed, seed))
	if err != nil {
		return err
	}

	slog.Info("Generating positions", "engine", cfg.Engine, "variant", cfg.Variant, "count", cfg.Count, "seed", seed)

	generated := 0
	err = gen.Generate(ctx, func(record epd.Record) error {
		generated++
		_, err := fmt.Fprintln(output, record.String())
		return err
	})

	slog.Info("Generation finished", "positions", generated)
	return err
}
