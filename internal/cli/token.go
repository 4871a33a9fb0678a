package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/estately/priceuq/internal/middleware"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an operator token for the API",
	Long: `Sign an operator bearer token with the configured JWT secret
(JWT_SECRET). Write routes of the API require one.

Example:
  curl -H "Authorization: Bearer $(priceuq token --subject ops)" ...`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		token, err := middleware.NewAuthMiddleware(cfg.JWT).IssueToken(tokenSubject, tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
		return err
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "", "Operator name recorded in the token")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "Token lifetime")
	_ = tokenCmd.MarkFlagRequired("subject")
}
