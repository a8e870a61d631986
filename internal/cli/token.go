package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jayramgit94/Zoom/internal/auth"
	"github.com/spf13/cobra"
)

var (
	flagSecret string
	flagTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a history API token (relay operators)",
	Long: `Sign a bearer token for the relay's history API. The secret must match the
relay's JWT_SECRET.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		secret := firstNonEmpty(flagSecret, os.Getenv("JWT_SECRET"))
		if secret == "" {
			return errors.New("no secret: pass --secret or set JWT_SECRET")
		}
		token, err := auth.IssueToken(secret, args[0], flagTTL)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().StringVar(&flagSecret, "secret", "", "Signing secret (env JWT_SECRET)")
	tokenCmd.Flags().DurationVar(&flagTTL, "ttl", 30*24*time.Hour, "Token lifetime")
}
