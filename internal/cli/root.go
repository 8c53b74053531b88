package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgpai22/fasttester"
)

var (
	// Global flags
	configFile string
	logLevel   string

	cfg    *Config
	logger = zap.NewNop()
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fasttester",
	Short: "fasttester - in-process transaction test harness",
	Long: `fasttester runs Solana transactions against an embedded engine without a
validator. The subcommands benchmark the harness and compare it with a
live validator reached over JSON-RPC.`,
	Version:           "0.1.0-dev",
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "configuration file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
}

// initConfig loads the configuration and installs the logger before any subcommand runs.
func initConfig(cmd *cobra.Command, args []string) error {
	loaded, err := LoadConfig(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		loaded.LogLevel = logLevel
	}

	l, err := newLogger(loaded.LogLevel)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	cfg = loaded
	logger = l
	fasttester.SetLogger(l)
	return nil
}
