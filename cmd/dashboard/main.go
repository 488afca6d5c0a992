package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/traffix-ai/traffix-dashboard/internal/config"
	"github.com/traffix-ai/traffix-dashboard/internal/logger"
)

var (
	cfgFile string
	v       = config.NewViper()
)

// flagKeys maps command-line flags onto config keys.
var flagKeys = map[string]string{
	"api-url":               "api_base_url",
	"request-timeout":       "request_timeout",
	"log-level":             "log_level",
	"log-color":             "log_color",
	"log-json":              "log_json",
	"http":                  "http_addr",
	"metrics":               "metrics_addr",
	"poll-interval":         "poll_interval",
	"refresh-after-analyze": "refresh_after_analyze",
	"camera":                "camera.source",
	"camera-url":            "camera.url",
	"archive":               "archive.enabled",
	"archive-backend":       "archive.backend",
	"archive-dir":           "archive.dir",
	"archive-bucket":        "archive.bucket",
}

var rootCmd = &cobra.Command{
	Use:   "traffix-dashboard",
	Short: "Operator dashboard for the Traffix AI traffic and toll service",
	Long: `traffix-dashboard polls a remote traffic-analysis API, shows live traffic and
toll status, uploads images, videos and camera frames for vehicle counting,
and records toll entries and exits by plate.`,
	SilenceUsage:      true,
	PersistentPreRunE: bindFlags,
	RunE:              runServe,
}

func init() {
	d := config.DefaultConfig()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml)")
	flags.String("api-url", d.APIBaseURL, "Traffic API base URL")
	flags.Duration("request-timeout", d.RequestTimeout, "Per-request timeout for API calls (0 leaves requests unbounded)")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error, silent)")
	flags.Bool("log-color", d.LogColor, "Enable colored log output")
	flags.Bool("log-json", d.LogJSON, "Emit JSON log lines")

	addServeFlags(rootCmd)
	addServeFlags(serveCmd)

	rootCmd.AddCommand(serveCmd, statusCmd, historyCmd)
}

// bindFlags binds the flags of the executing command so that only flags the
// user set override file and environment values.
func bindFlags(cmd *cobra.Command, args []string) error {
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads configuration and initializes the global logger.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return config.Config{}, err
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return config.Config{}, err
	}
	logger.Init(logger.Options{
		Level:    level,
		Output:   os.Stderr,
		UseColor: cfg.LogColor,
		JSON:     cfg.LogJSON,
	})
	if used := v.ConfigFileUsed(); used != "" {
		logger.Info("Main", "Using config file: %s", used)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
