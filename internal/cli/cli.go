// Package cli contains helpers shared by the command line tools.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/lk16/puzzler/internal/config"
)

// OpenInput concatenates the given files. No files or "-" means standard input.
func OpenInput(paths []string) (io.Reader, func() error, error) {
	if len(paths) == 0 {
		return os.Stdin, func() error { return nil }, nil
	}

	var readers []io.Reader
	var files []*os.File

	closeAll := func() error {
		var errs []error
		for _, file := range files {
			errs = append(errs, file.Close())
		}
		return errors.Join(errs...)
	}

	for _, path := range paths {
		if path == "-" {
			readers = append(readers, os.Stdin)
			continue
		}

		file, err := os.Open(path)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("error opening input: %w", err)
		}

		files = append(files, file)
		readers = append(readers, file)
	}

	return io.MultiReader(readers...), closeAll, nil
}

// OpenOutput creates the output file. An empty path or "-" means standard output.
func OpenOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return os.Stdout, func() error { return nil }, nil
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating output: %w", err)
	}

	return file, file.Close, nil
}

// BindFlags makes viper read the flags of cmd and the config file given with --config.
func BindFlags(cmd *cobra.Command, v *viper.Viper) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	configFile, err := cmd.Flags().GetString("config")
	if err != nil {
		return err
	}

	return config.ReadConfigFile(v, configFile)
}

// AddEngineFlags adds the flags every engine driving tool has.
func AddEngineFlags(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.String("config", "", "config file, e.g. puzzler.yaml")
	flags.StringP("engine", "e", "", "path to the UCI engine executable")
	flags.StringArrayP("option", "o", nil, "UCI option as name=value pair, repeat to add more options")
	flags.Duration("start-timeout", 0, "maximum wait for the engine handshake")
}

// Execute runs the command and exits with status 1 on failure.
func Execute(ctx context.Context, cmd *cobra.Command) {
	cmd.SilenceUsage = true
	cmd.SilenceErrors = true

	if err := cmd.ExecuteContext(ctx); err != nil {
		slog.Error("Command failed", "command", cmd.Name(), "error", err)
		os.Exit(1)
	}
}
