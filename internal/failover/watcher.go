package failover

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Pinger reports durable store connectivity. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Watcher probes the durable store while the Store runs from memory and
// triggers a resync once it answers again.
type Watcher struct {
	store    *Store
	pinger   Pinger
	interval time.Duration
	log      *zap.Logger
}

func NewWatcher(store *Store, pinger Pinger, interval time.Duration, log *zap.Logger) *Watcher {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Watcher{store: store, pinger: pinger, interval: interval, log: log}
}

func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.log.Info("storage watcher started", zap.Duration("interval", w.interval))
	for {
		select {
		case <-ctx.Done():
			w.log.Info("storage watcher stopped")
			return nil
		case <-ticker.C:
			w.probe(ctx)
		}
	}
}

func (w *Watcher) probe(ctx context.Context) {
	if w.store.Mode() != ModeMemory {
		return
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	err := w.pinger.Ping(pingCtx)
	cancel()
	if err != nil {
		w.log.Debug("durable store still unreachable", zap.Error(err))
		return
	}

	w.log.Info("durable store reachable again, resyncing")
	res, err := w.store.Resync(ctx)
	if err != nil {
		w.log.Warn("resync did not complete", zap.Error(err),
			zap.Int("pushed", res.Pushed), zap.Int("failed", res.Failed))
	}
}
