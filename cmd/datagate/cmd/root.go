// Package cmd implements the datagate command line.
package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/datagate-io/datagate/internal/gatewaysrv"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:           "datagate",
	Short:         "Governed data-access gateway for autonomous agents",
	Version:       gatewaysrv.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		color.Red("error: %v", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "path to the config file")
}
