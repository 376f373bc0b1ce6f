package cli

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk16/puzzler/internal/config"
)

func TestOpenInput(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.epd")
	second := filepath.Join(dir, "second.epd")
	require.NoError(t, os.WriteFile(first, []byte("a\n"), 0o600))
	require.NoError(t, os.WriteFile(second, []byte("b\n"), 0o600))

	reader, closeInput, err := OpenInput([]string{first, second})
	require.NoError(t, err)

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\n", string(content))
	assert.NoError(t, closeInput())

	_, _, err = OpenInput([]string{first, filepath.Join(dir, "missing.epd")})
	assert.ErrorContains(t, err, "error opening input")

	reader, closeInput, err = OpenInput(nil)
	require.NoError(t, err)
	assert.Equal(t, os.Stdin, reader)
	assert.NoError(t, closeInput())
}

func TestOpenOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.epd")

	writer, closeOutput, err := OpenOutput(path)
	require.NoError(t, err)

	_, err = io.WriteString(writer, "puzzle\n")
	require.NoError(t, err)
	require.NoError(t, closeOutput())

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "puzzle\n", string(content))

	writer, _, err = OpenOutput("")
	require.NoError(t, err)
	assert.Equal(t, os.Stdout, writer)
}

func TestBindFlags(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "puzzler.yaml")
	require.NoError(t, os.WriteFile(configFile, []byte("engine: from-file\ndepth: 10\n"), 0o600))

	cmd := &cobra.Command{Use: "test", RunE: func(*cobra.Command, []string) error { return nil }}
	AddEngineFlags(cmd)
	cmd.Flags().Int("depth", 8, "")
	cmd.Flags().Duration("timeout", 0, "")

	require.NoError(t, cmd.ParseFlags([]string{
		"--config", configFile, "-e", "from-flag", "-o", "Threads=2", "-o", "Hash=64", "--timeout", "2s",
	}))

	v := config.NewViper()
	config.SetPuzzlerDefaults(v)
	require.NoError(t, BindFlags(cmd, v))

	cfg, err := config.LoadPuzzlerConfig(v)
	require.NoError(t, err)

	// Flags beat the config file, the config file beats defaults.
	assert.Equal(t, "from-flag", cfg.Engine)
	assert.Equal(t, 10, cfg.Depth)
	assert.Equal(t, []string{"Threads=2", "Hash=64"}, cfg.Options)
	assert.Equal(t, 2*time.Second, cfg.Timeout)
}
