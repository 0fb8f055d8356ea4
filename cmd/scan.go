package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/utils"
	arbmath "github.com/michaelpento.lv/flasharb/utils/math"
)

var (
	scanAmount       string
	scanMinProfitBps uint64
	scanExecute      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Quote every token pair across every pair of configured DEXes",
	RunE: func(cmd *cobra.Command, _ []string) error {
		log := utils.GetLogger()

		b, err := newBot(cmd)
		if err != nil {
			return err
		}
		defer b.Close()

		routes, err := b.Scan(cmd.Context(), scanAmount, scanMinProfitBps)
		if err != nil {
			return err
		}
		for _, r := range routes {
			log.Info("Profitable route",
				zap.String("token_a", r.Request.TokenA.Hex()),
				zap.String("token_b", r.Request.TokenB.Hex()),
				zap.String("dex_buy", r.Request.DexBuy.Hex()),
				zap.String("dex_sell", r.Request.DexSell.Hex()),
				zap.String("profit", arbmath.FormatUnits(r.Profit(), arbmath.Decimals)),
				zap.Int64("profit_bps", r.Quote.ProfitBps))
		}

		if !scanExecute || len(routes) == 0 {
			return nil
		}
		res, err := b.Execute(cmd.Context(), routes[0].Request)
		if err != nil {
			return err
		}
		log.Info("Best route settled",
			zap.String("id", res.ID),
			zap.String("profit", arbmath.FormatUnits(res.Profit, arbmath.Decimals)))
		return nil
	},
}

func init() {
	scanCmd.Flags().StringVar(&scanAmount, "amount", "1", "loan size in whole tokens")
	scanCmd.Flags().Uint64Var(&scanMinProfitBps, "min-profit-bps", 0, "minimum profit in basis points")
	scanCmd.Flags().BoolVar(&scanExecute, "execute", false, "execute the most profitable route")
	rootCmd.AddCommand(scanCmd)
}
