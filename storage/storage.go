package storage

import (
	"context"

	"go.uber.org/zap"

	"github.com/michaelpento.lv/flasharb/types"
)

// Sink receives settled arbitrage results
type Sink interface {
	Record(ctx context.Context, res *types.ArbitrageResult) error
	Close() error
}

// LogSink writes each result as a structured log line
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger.Named("results")}
}

func (s *LogSink) Record(_ context.Context, res *types.ArbitrageResult) error {
	s.logger.Info("arbitrage-result",
		zap.String("id", res.ID),
		zap.String("caller", res.Caller.Hex()),
		zap.String("token_a", res.TokenA.Hex()),
		zap.String("token_b", res.TokenB.Hex()),
		zap.String("dex_buy", res.DexBuy.Hex()),
		zap.String("dex_sell", res.DexSell.Hex()),
		zap.String("amount_in", res.AmountIn.String()),
		zap.String("premium", res.Premium.String()),
		zap.String("profit", res.Profit.String()),
		zap.Bool("forwarded", res.Forwarded),
		zap.Time("timestamp", res.Timestamp))
	return nil
}

func (s *LogSink) Close() error {
	return nil
}
