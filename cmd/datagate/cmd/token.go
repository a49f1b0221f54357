package cmd

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datagate-io/datagate/internal/gatewaysrv/auth"
	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
)

var (
	tokenAgent string
	tokenRole  string
	tokenTTL   time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an agent bearer token",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configFile); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		secret := []byte(config.Config().Security.JWTSigningSecret)
		token, err := auth.IssueToken(secret, tokenAgent, tokenRole, tokenTTL)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}
		color.Yellow("agent: %s  role: %s  ttl: %s", tokenAgent, tokenRole, tokenTTL)
		fmt.Println(token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().StringVar(&tokenAgent, "agent", "", "agent id (token subject)")
	tokenCmd.Flags().StringVar(&tokenRole, "role", "analyst", "role claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.MarkFlagRequired("agent")
	rootCmd.AddCommand(tokenCmd)
}
