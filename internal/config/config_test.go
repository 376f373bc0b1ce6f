package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk16/puzzler/internal/uci"
)

func TestLoadPuzzlerConfigDefaults(t *testing.T) {
	v := NewViper()
	SetPuzzlerDefaults(v)
	v.Set("engine", "/usr/bin/stockfish")

	cfg, err := LoadPuzzlerConfig(v)
	require.NoError(t, err)

	settings := cfg.Settings()
	assert.Equal(t, 8, settings.Depth)
	assert.Equal(t, 2, settings.MultiPV)
	assert.Equal(t, 400, settings.WinThreshold)
	assert.Equal(t, 100, settings.UnclearThreshold)
	assert.InDelta(t, 2.0, settings.MateDistanceRatio, 1e-9)
	assert.Empty(t, settings.DefaultVariant)

	assert.Equal(t, time.Duration(0), cfg.Timeout)
	assert.Equal(t, 1, cfg.Jobs)
	assert.Equal(t, uci.DefaultStartTimeout, cfg.StartTimeout)
}

func TestLoadPuzzlerConfigEnv(t *testing.T) {
	t.Setenv("PUZZLER_ENGINE", "fairy-stockfish")
	t.Setenv("PUZZLER_WIN_THRESHOLD", "500")
	t.Setenv("PUZZLER_TIMEOUT", "1m30s")
	t.Setenv("PUZZLER_VARIANT", "crazyhouse")

	v := NewViper()
	SetPuzzlerDefaults(v)

	cfg, err := LoadPuzzlerConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "fairy-stockfish", cfg.Engine)
	assert.Equal(t, 500, cfg.WinThreshold)
	assert.Equal(t, 90*time.Second, cfg.Timeout)
	assert.Equal(t, "crazyhouse", cfg.Settings().DefaultVariant)
}

func TestLoadPuzzlerConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "puzzler.yaml")
	content := "engine: stockfish\ndepth: 12\noption:\n  - Threads=4\n  - VariantPath=variants.ini\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := NewViper()
	SetPuzzlerDefaults(v)
	require.NoError(t, ReadConfigFile(v, path))

	cfg, err := LoadPuzzlerConfig(v)
	require.NoError(t, err)
	assert.Equal(t, 12, cfg.Depth)

	uciConfig, err := cfg.UCIConfig()
	require.NoError(t, err)
	assert.Equal(t, "stockfish", uciConfig.Path)
	assert.Equal(t, []uci.Option{
		{Name: "Threads", Value: "4"},
		{Name: "VariantPath", Value: "variants.ini"},
	}, uciConfig.Options)
}

func TestLoadPuzzlerConfigInvalid(t *testing.T) {
	tests := []struct {
		name string
		set  map[string]any
	}{
		{name: "NoEngine", set: map[string]any{}},
		{name: "BrokenOption", set: map[string]any{"engine": "sf", "option": []string{"Threads"}}},
		{name: "ZeroDepth", set: map[string]any{"engine": "sf", "depth": 0}},
		{name: "SingleLine", set: map[string]any{"engine": "sf", "multipv": 1}},
		{name: "NoJobs", set: map[string]any{"engine": "sf", "jobs": 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewViper()
			SetPuzzlerDefaults(v)
			for key, value := range tt.set {
				v.Set(key, value)
			}

			_, err := LoadPuzzlerConfig(v)
			assert.Error(t, err)
		})
	}
}

func TestReadConfigFileMissing(t *testing.T) {
	v := NewViper()
	assert.NoError(t, ReadConfigFile(v, ""))
	assert.Error(t, ReadConfigFile(v, filepath.Join(t.TempDir(), "missing.yaml")))
}

func TestLoadGeneratorConfig(t *testing.T) {
	v := NewViper()
	SetGeneratorDefaults(v)
	v.Set("engine", "stockfish")
	v.Set("option", []string{"Skill Level=3"})

	cfg, err := LoadGeneratorConfig(v)
	require.NoError(t, err)

	settings := cfg.Settings()
	assert.Equal(t, "chess", settings.Variant)
	assert.Equal(t, 500, settings.Count)
	assert.Equal(t, 1, settings.MinDepth)
	assert.Equal(t, 6, settings.MaxDepth)
	assert.False(t, settings.AddMove)

	uciConfig, err := cfg.UCIConfig()
	require.NoError(t, err)

	// The explicit option is sent last, so it wins.
	assert.Equal(t, []uci.Option{
		{Name: "Skill Level", Value: "12"},
		{Name: "Skill Level", Value: "3"},
	}, uciConfig.Options)

	v.Set("max-depth", 0)
	_, err = LoadGeneratorConfig(v)
	assert.Error(t, err)
}
