package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/always-cache/ui-site/config"
)

var (
	cfgFile string

	// this is set by goreleaser
	version string
)

var rootCmd = &cobra.Command{
	Use:   "ui-site",
	Short: "Serve a secondary domain from a cached, metatag-enriched HTML shell",
	Long: `ui-site sits in front of the origin application. Requests on the primary
domain are proxied unchanged; requests on any other host get the HTML shell
with the head markup stored for their path, cached until invalidated.`,
	SilenceUsage: true,
}

func init() {
	if version == "" {
		version = "DEV"
	}
	rootCmd.Version = version
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (can also use UISITE_CONFIG_FILE env var)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-file", "", "log file to use (in addition to stdout)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the configuration and sets up the global logger.
// The returned closer releases the log file, if any.
func loadConfig(cmd *cobra.Command) (*config.Config, io.Closer, error) {
	path := cfgFile
	if path == "" {
		path = os.Getenv("UISITE_CONFIG_FILE")
	}
	c, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, nil, err
	}
	closer, err := setupLogging(c.LogLevel, c.LogFile)
	if err != nil {
		return nil, nil, err
	}
	if path != "" {
		log.Debug().Str("file", path).Msg("Using config file")
	}
	return c, closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func setupLogging(level, file string) (io.Closer, error) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	// set up log output to stdout
	// also output to logfile if specified
	logOutputs := []io.Writer{zerolog.ConsoleWriter{Out: os.Stdout}}
	var closer io.Closer = nopCloser{}
	if file != "" {
		logFileOutput, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
		closer = logFileOutput
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Timestamp().Str("version", version).Logger()
	return closer, nil
}
