package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/suzxlabs/ytserver/pkg/config"
	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/worker"
)

var (
	cfgFile      string
	outputFormat string

	// v collects flag bindings before the config is loaded
	v = viper.New()
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ytserver",
	Short: "Browser-facing media download server built on yt-dlp",
	Long: `ytserver accepts download requests from a web page, runs yt-dlp for each
one and streams progress back to the requesting browser tab over a WebSocket.
Finished files are served for a limited time and then deleted.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.ytserver/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "output format: table or json")
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config, component string) (*logging.Logger, error) {
	level := logging.ParseLevel(cfg.LogLevel)
	if !cfg.LogFile {
		return logging.NewLogger(level, cfg.LogJSON), nil
	}
	logger, err := logging.NewFileLogger(component, level, cfg.LogJSON)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logger, nil
}

func workerOptions(cfg *config.Config) worker.Options {
	return worker.Options{
		Executable:         cfg.YtDlpPath,
		FFmpegLocation:     cfg.FFmpegLocation,
		CookiesFromBrowser: cfg.CookiesFromBrowser,
		UserAgent:          cfg.UserAgent,
		NoCheckCertificate: cfg.NoCheckCertificate,
	}
}

// IsJSONOutput returns true if JSON output is requested
func IsJSONOutput() bool {
	return outputFormat == "json"
}
