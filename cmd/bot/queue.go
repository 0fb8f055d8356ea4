package bot

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/michaelpento.lv/flasharb/engine"
	"github.com/michaelpento.lv/flasharb/types"
)

// queue lines callers up in front of the engine. The engine rejects any
// entry while an execution is in flight, so waiting happens here.
type queue struct {
	slot chan struct{}
}

func newQueue() *queue {
	return &queue{slot: make(chan struct{}, 1)}
}

func (q *queue) acquire(ctx context.Context) error {
	select {
	case q.slot <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to wait for engine: %w", ctx.Err())
	}
}

func (q *queue) release() {
	<-q.slot
}

// queuedRunner is the simulator's view of the engine
type queuedRunner struct {
	engine *engine.Engine
	queue  *queue
}

func (r *queuedRunner) Simulate(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if err := r.queue.acquire(ctx); err != nil {
		return nil, err
	}
	defer r.queue.release()
	return r.engine.Simulate(ctx, caller, req)
}

func (r *queuedRunner) CalculateProfit(ctx context.Context, req *types.ArbitrageRequest) (*engine.Quote, error) {
	return r.engine.CalculateProfit(ctx, req)
}

func (b *Bot) execute(ctx context.Context, caller common.Address, req *types.ArbitrageRequest) (*types.ArbitrageResult, error) {
	if err := b.queue.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.queue.release()
	return b.engine.ExecuteArbitrage(ctx, caller, req)
}
