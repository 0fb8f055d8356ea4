package engine

import (
	"context"
	"time"

	"github.com/michaelpento.lv/flasharb/types"
	"github.com/michaelpento.lv/flasharb/utils/metrics"
)

// ResultSink receives every settled result after commit. Sink errors are
// logged and never undo a settlement.
type ResultSink interface {
	Record(ctx context.Context, res *types.ArbitrageResult) error
}

type Option func(*Engine)

// WithClock replaces time.Now for deadline checks and result timestamps
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithMetrics(m *metrics.EngineMetrics) Option {
	return func(e *Engine) { e.metrics = m }
}

func WithSinks(sinks ...ResultSink) Option {
	return func(e *Engine) { e.sinks = append(e.sinks, sinks...) }
}

// WithStateObserver is called on every state transition, from the
// executing goroutine
func WithStateObserver(fn func(State)) Option {
	return func(e *Engine) { e.observer = fn }
}
