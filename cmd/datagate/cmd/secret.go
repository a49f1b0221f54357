package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datagate-io/datagate/internal/gatewaysrv/gwcommon"
)

var secretCmd = &cobra.Command{
	Use:   "hash-secret <secret>",
	Short: "Hash a workflow provisioning secret",
	Long: "Hash a workflow provisioning secret with argon2id. The output goes " +
		"into the workflow descriptor's secret_hash field; the gateway never " +
		"stores the plaintext.",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := gwcommon.HashSecret(args[0])
		if err != nil {
			return fmt.Errorf("hashing secret: %w", err)
		}
		color.Yellow("add to the workflow descriptor as secret_hash:")
		fmt.Println(hash)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(secretCmd)
}
