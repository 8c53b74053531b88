package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/mgpai22/fasttester"
)

// EngineMemory selects the in-memory engine instead of a WASM module.
const EngineMemory = "memory"

// Config holds the settings shared by the benchmark commands.
type Config struct {
	LogLevel string      `toml:"log_level" mapstructure:"log_level"`
	Bench    BenchConfig `toml:"bench" mapstructure:"bench"`
	RPC      RPCConfig   `toml:"rpc" mapstructure:"rpc"`
}

// BenchConfig describes the transfer workload.
type BenchConfig struct {
	Engine     string `toml:"engine" mapstructure:"engine"` // "memory" or a path to the engine WASM module
	Iterations int    `toml:"iterations" mapstructure:"iterations"`
	Lamports   uint64 `toml:"lamports" mapstructure:"lamports"` // amount moved per transfer
	Funding    uint64 `toml:"funding" mapstructure:"funding"`   // initial balance of the sender
}

// RPCConfig describes the validator used by validator-bench.
type RPCConfig struct {
	URL           string        `toml:"url" mapstructure:"url"`
	Commitment    string        `toml:"commitment" mapstructure:"commitment"`
	PollInterval  time.Duration `toml:"poll_interval" mapstructure:"poll_interval"`
	HealthTimeout time.Duration `toml:"health_timeout" mapstructure:"health_timeout"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("bench.engine", EngineMemory)
	v.SetDefault("bench.iterations", 1000)
	v.SetDefault("bench.lamports", 1)
	v.SetDefault("bench.funding", 10*fasttester.LamportsPerSOL)

	v.SetDefault("rpc.url", "http://127.0.0.1:8899")
	v.SetDefault("rpc.commitment", "confirmed")
	v.SetDefault("rpc.poll_interval", 100*time.Millisecond)
	v.SetDefault("rpc.health_timeout", 30*time.Second)
}

// LoadConfig loads configuration in priority order:
// 1. Default values
// 2. Configuration file, when path is not empty
// 3. Environment variables (FASTTESTER_ prefix)
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return nil, fmt.Errorf("config file does not exist: %s", path)
		}
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("FASTTESTER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &config, nil
}

func validateConfig(c *Config) error {
	if c.Bench.Engine == "" {
		return fmt.Errorf("bench.engine must be %q or a WASM path", EngineMemory)
	}
	if c.Bench.Iterations <= 0 {
		return fmt.Errorf("bench.iterations must be positive, got %d", c.Bench.Iterations)
	}
	if c.Bench.Lamports == 0 {
		return fmt.Errorf("bench.lamports must be positive")
	}
	switch c.RPC.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return fmt.Errorf("rpc.commitment must be processed, confirmed or finalized, got %q", c.RPC.Commitment)
	}
	if _, err := zap.ParseAtomicLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// newLogger builds a console logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zc := zap.NewDevelopmentConfig()
	zc.Level = lvl
	zc.DisableStacktrace = true
	return zc.Build()
}
