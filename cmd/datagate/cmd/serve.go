package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/datagate-io/datagate/internal/gatewaysrv/config"
	"github.com/datagate-io/datagate/internal/gatewaysrv/server"
)

var bootstrap bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the gateway server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.LoadConfig(configFile); err != nil {
			return fmt.Errorf("loading config: %w", err)
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv, serr := server.New(ctx)
		if serr != nil {
			return fmt.Errorf("creating server: %w", serr)
		}

		if bootstrap {
			if err := bootstrapRegistry(ctx, srv); err != nil {
				return err
			}
		}

		color.Green("datagate %s listening on %s:%s",
			rootCmd.Version, config.Config().ServerHostName, config.Config().ServerPort)
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	},
}

// bootstrapRegistry runs scan, rebuild, and promote so a fresh deployment
// serves a populated registry without manual admin calls.
func bootstrapRegistry(ctx context.Context, srv *server.Server) error {
	refresh := srv.Svc.RefreshCatalog(ctx)
	if !refresh.Ok {
		return fmt.Errorf("bootstrap scan failed: %s", refresh.Error)
	}
	log.Info().Int("objects", refresh.ObjectCount).
		Int("descriptor_errors", refresh.DescriptorErrors).Msg("catalog scanned")

	rebuild := srv.Svc.RebuildRegistry(ctx)
	if !rebuild.Ok {
		return fmt.Errorf("bootstrap rebuild failed: %s", rebuild.Error)
	}

	promote := srv.Svc.PromoteRegistry(ctx, true)
	if !promote.Ok {
		return fmt.Errorf("bootstrap promote failed: %s", promote.Error)
	}
	color.Cyan("registry bootstrapped: %d subjects, %d views, %d workflows (active: %s)",
		rebuild.Subjects, rebuild.Views, rebuild.Workflows, promote.Active)
	return nil
}

func init() {
	serveCmd.Flags().BoolVar(&bootstrap, "bootstrap", false, "scan, rebuild, and promote the registry on startup")
	rootCmd.AddCommand(serveCmd)
}
