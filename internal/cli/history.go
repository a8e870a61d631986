package cli

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/jayramgit94/Zoom/internal/config"
	"github.com/jayramgit94/Zoom/internal/history"
	"github.com/jayramgit94/Zoom/internal/ui"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Aliases: []string{"h"},
	Short:   "List the calls you have joined",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.Options{})
		if err != nil {
			return err
		}
		if cfg.Token == "" {
			return errors.New("history needs a token: pass --token or set MEET_TOKEN")
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		stop := ui.RunSpinner("Fetching history...")
		meetings, err := history.NewClient(cfg.APIURL("/api/v1/meetings"), cfg.Token).List(ctx)
		stop()
		if err != nil {
			return err
		}

		ui.RenderHistory(os.Stdout, meetings, time.Now())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
}
