package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"AltPull/internal/di"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API, the Kafka run request consumer and the scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := di.InitializeApp(getConfig())
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return app.Run(ctx)
	},
}
