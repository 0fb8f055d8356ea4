package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils"
)

var runFirst bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve health, metrics, results and quotes over HTTP",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := utils.GetLogger()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		b, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		if runFirst {
			if _, err := b.Run(ctx); err != nil {
				log.Warn("Configured requests did not all settle", zap.Error(err))
			}
		}

		return b.Serve(ctx)
	},
}

func init() {
	serveCmd.Flags().BoolVar(&runFirst, "run", false, "execute the configured requests before serving")
	rootCmd.AddCommand(serveCmd)
}
