package main

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile  string
	logLevel string
	quiet    bool
)

// rootCmd is the application entry point.
var rootCmd = &cobra.Command{
	Use:   "lion",
	Short: "Capability-secure plugin runtime",
	Long: `Lion loads untrusted compute modules, mediates every side-effecting
operation they attempt through a capability system, coordinates them through
a typed event orchestrator, and executes declarative workflows as concurrent
directed-acyclic graphs.`,
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		setupLogging()
	},
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.lion/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress all log output, including errors")

	viper.SetDefault("workers", 4)
	viper.SetDefault("checkpoint_dir", ".lion/checkpoints")
	viper.SetDefault("schema_version", "v1")
}

// initConfig loads configuration from the config file and environment.
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			slog.Error("failed to read specified config file", "file", cfgFile, "error", err)
			os.Exit(1)
		}
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
		return
	}

	home, err := os.UserHomeDir()
	if err != nil {
		slog.Error("failed to find home directory", "error", err)
		os.Exit(1)
	}

	viper.AddConfigPath(home + "/.lion")
	viper.SetConfigType("yaml")
	viper.SetConfigName("config")
	viper.SetEnvPrefix("lion")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		slog.Debug("using config file", "file", viper.ConfigFileUsed())
	}
	// Silently continue if default config doesn't exist.
}

func setupLogging() {
	level := parseLogLevel(logLevel)
	if quiet {
		level = slog.LevelError + 1
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
}

func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
