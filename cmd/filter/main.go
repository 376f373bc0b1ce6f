package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/lk16/puzzler/internal/cli"
	"github.com/lk16/puzzler/internal/config"
	"github.com/lk16/puzzler/internal/epd"
)

func main() {
	config.SetLogLevel()

	var (
		minimums []string
		maximums []string
		values   []string
		output   string
	)

	cmd := &cobra.Command{
		Use:   "filter [file.epd...]",
		Short: "Select puzzles by their annotations",
		Example: "  filter --min quality=0.5 --max difficulty=3 --values type=mate,winning puzzles.epd\n" +
			"  filter --values variant=chess < puzzles.epd",
		RunE: func(_ *cobra.Command, args []string) error {
			filter, err := epd.NewFilter(minimums, maximums, values)
			if err != nil {
				return err
			}

			input, closeInput, err := cli.OpenInput(args)
			if err != nil {
				return err
			}
			defer closeInput() //nolint:errcheck

			writer, closeOutput, err := cli.OpenOutput(output)
			if err != nil {
				return err
			}

			stats, err := filter.Copy(input, writer)
			if closeErr := closeOutput(); err == nil {
				err = closeErr
			}

			slog.Debug("Filter finished", "kept", stats.Kept, "dropped", stats.Dropped, "malformed", stats.Malformed)
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringArrayVar(&minimums, "min", nil, "minimum of a numeric annotation as key=value")
	flags.StringArrayVar(&maximums, "max", nil, "maximum of a numeric annotation as key=value")
	flags.StringArrayVar(&values, "values", nil, "allowed values of an annotation as key=value1,value2")
	flags.StringVarP(&output, "output", "O", "", "output file, standard output if empty")

	cmd.SilenceUsage = true
	cmd.SilenceErrors = true
	if err := cmd.Execute(); err != nil {
		slog.Error("Filter failed", "error", err)
		os.Exit(1)
	}
}
