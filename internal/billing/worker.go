package billing

import (
	"context"
	"time"

	"github.com/broadbill/broadbill/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Worker drives the renewal engine on a fixed interval. It runs one
// pass at startup so a restarted server never skips a billing day.
type Worker struct {
	engine   *Engine
	log      *zap.Logger
	interval time.Duration
	enabled  bool

	cancel context.CancelFunc
	done   chan struct{}
}

type WorkerParams struct {
	fx.In

	Engine *Engine
	Log    *zap.Logger
	Config config.Config
}

func NewWorker(p WorkerParams) *Worker {
	return &Worker{
		engine:   p.Engine,
		log:      p.Log.Named("billing.worker"),
		interval: p.Config.Renewal.Interval,
		enabled:  p.Config.Renewal.Enabled,
		done:     make(chan struct{}),
	}
}

// Start launches the background loop under the fx lifecycle.
func (w *Worker) Start(lc fx.Lifecycle) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			if !w.enabled {
				w.log.Info("renewal worker disabled")
				close(w.done)
				return nil
			}
			ctx, cancel := context.WithCancel(context.Background())
			w.cancel = cancel
			go w.run(ctx)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if w.cancel != nil {
				w.cancel()
			}
			select {
			case <-w.done:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	})
}

func (w *Worker) run(ctx context.Context) {
	defer close(w.done)

	w.RunOnce(ctx)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce executes a single renewal pass, logging but not propagating
// failures so the loop keeps its schedule.
func (w *Worker) RunOnce(ctx context.Context) {
	if _, err := w.engine.GenerateRenewalInvoices(ctx); err != nil {
		w.log.Error("renewal pass failed", zap.Error(err))
	}
}

// RegisterWorker wires the worker into the application lifecycle.
func RegisterWorker(lc fx.Lifecycle, w *Worker) {
	w.Start(lc)
}
