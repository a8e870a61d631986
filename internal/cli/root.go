// Package cli holds the meet command tree.
package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/jayramgit94/Zoom/internal/logging"
	"github.com/jayramgit94/Zoom/internal/ui"
	"github.com/jayramgit94/Zoom/internal/version"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagToken    string
	flagName     string
	flagLogFile  string
	flagLogLevel string
)

var rootCmd = &cobra.Command{
	Use:   "meet",
	Short: "Join mesh video calls from the terminal",
	Long: `meet joins peer-to-peer video calls through a small signaling relay.

Every participant connects directly to every other participant using WebRTC;
the relay only introduces peers and forwards their negotiation messages.`,
	Version: version.Version,
}

// Execute runs the command tree. It is called once by main.
func Execute() {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		ui.PrintError(err.Error())
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagServer, "server", "", "Relay server (host:port or URL, env MEET_SERVER)")
	pf.StringVar(&flagToken, "token", "", "History API token (env MEET_TOKEN)")
	pf.StringVarP(&flagName, "name", "n", "", "Display name shown in chat (env MEET_NAME)")
	pf.StringVar(&flagLogFile, "log-file", "", "Write logs to this file")
	pf.StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error (env LOG_LEVEL)")
}

// setupLogging sends logs to --log-file so the call UI owns the terminal.
// Without a log file nothing is logged.
func setupLogging() (zerolog.Logger, func(), error) {
	level := logging.ParseLevel(firstNonEmpty(flagLogLevel, os.Getenv("LOG_LEVEL")), zerolog.ErrorLevel)
	if flagLogFile == "" {
		return logging.Init(io.Discard, zerolog.Disabled), func() {}, nil
	}

	f, err := os.OpenFile(flagLogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return logging.Init(f, level), func() { f.Close() }, nil
}

func loadConfig(opts config.Options) (*config.Config, error) {
	opts.Server = flagServer
	opts.Token = flagToken
	opts.DisplayName = flagName
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
