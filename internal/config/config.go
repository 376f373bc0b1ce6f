package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/lk16/puzzler/internal/generator"
	"github.com/lk16/puzzler/internal/puzzle"
	"github.com/lk16/puzzler/internal/uci"
)

// EnvPrefix prefixes all environment variables, e.g. PUZZLER_WIN_THRESHOLD for "win-threshold".
const EnvPrefix = "PUZZLER"

// ServerConfig holds all configuration values loaded from environment variables.
type ServerConfig struct {
	ServerHost        string
	ServerPort        string
	RedisURL          string
	PostgresURL       string
	BasicAuthUsername string
	BasicAuthPassword string
	Token             string
	Prefork           bool
}

// LoadServerConfig loads configuration from environment variables.
func LoadServerConfig() *ServerConfig {
	return &ServerConfig{
		ServerHost:        getEnvMust("PUZZLER_SERVER_HOST"),
		ServerPort:        getEnvMust("PUZZLER_SERVER_PORT"),
		RedisURL:          getEnvMust("PUZZLER_REDIS_URL"),
		PostgresURL:       getEnvMust("PUZZLER_POSTGRES_URL"),
		BasicAuthUsername: getEnvMust("PUZZLER_SERVER_BASIC_AUTH_USER"),
		BasicAuthPassword: getEnvMust("PUZZLER_SERVER_BASIC_AUTH_PASS"),
		Token:             getEnvMust("PUZZLER_SERVER_TOKEN"),
		Prefork:           getEnvMustBool("PUZZLER_SERVER_PREFORK"),
	}
}

// EngineConfig is shared by all tools that start an engine.
type EngineConfig struct {
	Engine       string        `mapstructure:"engine"`
	Options      []string      `mapstructure:"option"`
	StartTimeout time.Duration `mapstructure:"start-timeout"`
}

// UCIConfig converts the engine settings. Options are given as "name=value".
func (c EngineConfig) UCIConfig() (uci.Config, error) {
	if c.Engine == "" {
		return uci.Config{}, errors.New("engine path is required")
	}

	options := make([]uci.Option, 0, len(c.Options))
	for _, option := range c.Options {
		name, value, ok := strings.Cut(option, "=")
		if !ok || name == "" {
			return uci.Config{}, fmt.Errorf("engine option %q is not a name=value pair", option)
		}
		options = append(options, uci.Option{Name: name, Value: value})
	}

	return uci.Config{
		Path:         c.Engine,
		Options:      options,
		StartTimeout: c.StartTimeout,
	}, nil
}

// PuzzlerConfig configures the puzzle extraction tool.
type PuzzlerConfig struct {
	EngineConfig `mapstructure:",squash"`

	Variant          string        `mapstructure:"variant"`
	Depth            int           `mapstructure:"depth"`
	MultiPV          int           `mapstructure:"multipv"`
	WinThreshold     int           `mapstructure:"win-threshold"`
	UnclearThreshold int           `mapstructure:"unclear-threshold"`
	MateRatio        float64       `mapstructure:"mate-ratio"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Jobs             int           `mapstructure:"jobs"`
	Failures         string        `mapstructure:"failures"`
	RedisURL         string        `mapstructure:"redis-url"`
	PostgresURL      string        `mapstructure:"postgres-url"`
	Output           string        `mapstructure:"output"`
}

// Settings returns the extractor settings.
func (c *PuzzlerConfig) Settings() puzzle.Settings {
	return puzzle.Settings{
		Depth:             c.Depth,
		MultiPV:           c.MultiPV,
		WinThreshold:      c.WinThreshold,
		UnclearThreshold:  c.UnclearThreshold,
		MateDistanceRatio: c.MateRatio,
		DefaultVariant:    c.Variant,
	}
}

// GeneratorConfig configures the position generator tool.
type GeneratorConfig struct {
	EngineConfig `mapstructure:",squash"`

	Variant    string `mapstructure:"variant"`
	Count      int    `mapstructure:"count"`
	MinDepth   int    `mapstructure:"min-depth"`
	MaxDepth   int    `mapstructure:"max-depth"`
	SkillLevel int    `mapstructure:"skill-level"`
	AddMove    bool   `mapstructure:"add-move"`
	Seed       uint64 `mapstructure:"seed"`
	Output     string `mapstructure:"output"`
}

// Settings returns the generator settings.
func (c *GeneratorConfig) Settings() generator.Settings {
	return generator.Settings{
		Variant:  c.Variant,
		Count:    c.Count,
		MinDepth: c.MinDepth,
		MaxDepth: c.MaxDepth,
		AddMove:  c.AddMove,
	}
}

// UCIConfig adds the skill level to the engine options. Options given explicitly take precedence.
func (c *GeneratorConfig) UCIConfig() (uci.Config, error) {
	cfg, err := c.EngineConfig.UCIConfig()
	if err != nil {
		return uci.Config{}, err
	}

	skill := uci.Option{Name: "Skill Level", Value: fmt.Sprint(c.SkillLevel)}
	cfg.Options = append([]uci.Option{skill}, cfg.Options...)
	return cfg, nil
}

// NewViper creates a viper instance that reads PUZZLER_ prefixed environment variables.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// ReadConfigFile reads an optional config file. Its format follows from the extension.
func ReadConfigFile(v *viper.Viper, path string) error {
	if path == "" {
		return nil
	}

	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

func setEngineDefaults(v *viper.Viper) {
	v.SetDefault("engine", "")
	v.SetDefault("option", []string{})
	v.SetDefault("start-timeout", uci.DefaultStartTimeout)
}

// SetPuzzlerDefaults registers default values with viper.
func SetPuzzlerDefaults(v *viper.Viper) {
	setEngineDefaults(v)

	defaults := puzzle.DefaultSettings()
	v.SetDefault("variant", "")
	v.SetDefault("depth", defaults.Depth)
	v.SetDefault("multipv", defaults.MultiPV)
	v.SetDefault("win-threshold", defaults.WinThreshold)
	v.SetDefault("unclear-threshold", defaults.UnclearThreshold)
	v.SetDefault("mate-ratio", defaults.MateDistanceRatio)
	v.SetDefault("timeout", time.Duration(0))
	v.SetDefault("jobs", 1)
	v.SetDefault("failures", "")
	v.SetDefault("redis-url", "")
	v.SetDefault("postgres-url", "")
	v.SetDefault("output", "")
}

// SetGeneratorDefaults registers default values with viper.
func SetGeneratorDefaults(v *viper.Viper) {
	setEngineDefaults(v)

	v.SetDefault("variant", "chess")
	v.SetDefault("count", generator.DefaultCount)
	v.SetDefault("min-depth", generator.DefaultMinDepth)
	v.SetDefault("max-depth", generator.DefaultMaxDepth)
	v.SetDefault("skill-level", 12) //nolint:mnd
	v.SetDefault("add-move", false)
	v.SetDefault("seed", uint64(0))
	v.SetDefault("output", "")
}

// LoadPuzzlerConfig reads the configuration from viper and validates it.
func LoadPuzzlerConfig(v *viper.Viper) (*PuzzlerConfig, error) {
	var cfg PuzzlerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if _, err := cfg.UCIConfig(); err != nil {
		return nil, err
	}

	if err := cfg.Settings().Validate(); err != nil {
		return nil, err
	}

	if cfg.Jobs <= 0 {
		return nil, fmt.Errorf("jobs must be positive, got %d", cfg.Jobs)
	}

	return &cfg, nil
}

// LoadGeneratorConfig reads the configuration from viper and validates it.
func LoadGeneratorConfig(v *viper.Viper) (*GeneratorConfig, error) {
	var cfg GeneratorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if _, err := cfg.UCIConfig(); err != nil {
		return nil, err
	}

	if err := cfg.Settings().Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// getEnvMust either returns the environment variable or logs a fatal error if it is not set.
func getEnvMust(key string) string {
	value := os.Getenv(key)
	if value == "" {
		slog.Error("Environment variable is not set", "key", key)
		os.Exit(1)
	}
	return value
}

func getEnvMustBool(key string) bool {
	value := getEnvMust(key)

	if value != "true" && value != "false" {
		slog.Error("Cannot load environment variable, it must be \"true\" or \"false\"", "key", key, "value", value)
		os.Exit(1)
	}

	return value == "true"
}
