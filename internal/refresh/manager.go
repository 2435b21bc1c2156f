// Package refresh keeps the global dataset caches warm: a periodic check
// refetches any dataset whose full-collection cache has expired, so
// interactive nearby queries stay on the cache path.
package refresh

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Refresher is the loader-side surface the warmer needs.
type Refresher interface {
	RefreshGlobal(ctx context.Context) error
	GlobalFresh() bool
}

type Config struct {
	Interval    time.Duration
	WorkerCount int
	BufferSize  int
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 30 * time.Minute
	}
	if c.WorkerCount <= 0 {
		c.WorkerCount = 2
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 16
	}
}

type Manager struct {
	cfg     Config
	targets map[string]Refresher
	pool    *pool
	wg      sync.WaitGroup
}

func NewManager(cfg Config, targets map[string]Refresher) *Manager {
	cfg.applyDefaults()
	return &Manager{
		cfg:     cfg,
		targets: targets,
	}
}

func (m *Manager) Start(ctx context.Context) {
	processor := func(ctx context.Context, job Job) error {
		if job.Target.GlobalFresh() {
			return nil
		}
		if err := job.Target.RefreshGlobal(ctx); err != nil {
			slog.Error("dataset refresh failed", "dataset", job.DatasetID, "error", err)
			return err
		}
		slog.Info("dataset refreshed", "dataset", job.DatasetID)
		return nil
	}

	m.pool = newPool(m.cfg.WorkerCount, m.cfg.BufferSize, processor)
	m.pool.start(ctx)

	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()
	slog.Info("starting cache warmer", "datasets", len(m.targets), "interval", m.cfg.Interval)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// Initial warm-up
	m.sweep()

	for {
		select {
		case <-ctx.Done():
			slog.Info("cache warmer shutting down")
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep queues one refresh job per stale dataset.
func (m *Manager) sweep() {
	for id, target := range m.targets {
		if target.GlobalFresh() {
			continue
		}
		m.pool.submit(Job{DatasetID: id, Target: target})
	}
}

func (m *Manager) Stop() {
	m.wg.Wait()
	m.pool.stop()
	slog.Info("cache warmer stopped")
}
