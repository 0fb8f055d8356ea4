package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/cmd/bot"
	"github.com/michaelpento.lv/flasharb/utils"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the configured arbitrage requests",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := utils.GetLogger()

		b, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		results, runErr := b.Run(cmd.Context())
		log.Info("Run finished",
			zap.Int("requests", len(cfg.Requests)),
			zap.Int("settled", len(results)),
			zap.String("profit", arbmath.FormatUnits(bot.Profit(results), arbmath.Decimals)))
		return runErr
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
