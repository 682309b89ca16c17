package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultSyncInterval is how often the poller runs a sync cycle.
const DefaultSyncInterval = 5 * time.Minute

// PollerConfig holds poller configuration.
type PollerConfig struct {
	Interval time.Duration
	Logger   *slog.Logger
	// OnCycle, when set, receives every completed cycle.
	OnCycle func(*CycleResult)
}

// Poller runs sync cycles on an interval, independent of worker activity.
type Poller struct {
	engine   *Engine
	interval time.Duration
	logger   *slog.Logger
	onCycle  func(*CycleResult)

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewPoller creates a poller for the engine.
func NewPoller(engine *Engine, cfg PollerConfig) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSyncInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		engine:   engine,
		interval: cfg.Interval,
		logger:   logger,
		onCycle:  cfg.OnCycle,
		stopCh:   make(chan struct{}),
	}
}

// Start begins polling in the background.
func (p *Poller) Start(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx)
	}()
	p.logger.Info("sync poller started", "interval", p.interval)
}

// Stop stops polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.stopOnce.Do(func() {
		close(p.stopCh)
	})
	p.wg.Wait()
	p.logger.Info("sync poller stopped")
}

// Run polls until ctx is cancelled or Stop is called.
func (p *Poller) Run(ctx context.Context) error {
	p.run(ctx)
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	if blocked, until := p.engine.Limiter().Blocked(); blocked {
		p.logger.Info("sync skipped: rate limited", "retry_after", until)
		return
	}
	res, err := p.engine.SyncAll(ctx)
	if err != nil {
		p.logger.Error("sync cycle failed", "error", err)
		return
	}
	p.logger.Info(res.Explain())
	if p.onCycle != nil {
		p.onCycle(res)
	}
}
