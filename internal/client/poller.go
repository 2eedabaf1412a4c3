package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// UpdateChecker polls for a newer server version
type UpdateChecker interface {
	CheckServerUpdate(ctx context.Context) (bool, error)
}

// PollerConfig holds poll timing
type PollerConfig struct {
	Interval time.Duration
	// OnUpdate runs after a poll that found a newer server version
	OnUpdate func()
}

// Poller checks for server updates on a fixed interval and whenever
// Trigger is called, e.g. when the app returns to the foreground.
type Poller struct {
	checker UpdateChecker
	config  PollerConfig
	logger  *zap.Logger
	trigger chan struct{}

	mu        sync.Mutex
	isRunning bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewPoller creates a poller; a zero interval means one minute
func NewPoller(checker UpdateChecker, config PollerConfig, logger *zap.Logger) *Poller {
	if config.Interval <= 0 {
		config.Interval = time.Minute
	}
	return &Poller{
		checker: checker,
		config:  config,
		logger:  logger,
		trigger: make(chan struct{}, 1),
	}
}

// Start launches the poll loop
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.isRunning {
		return fmt.Errorf("update poller is already running")
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	p.isRunning = true

	p.logger.Info("UpdatePoller started", zap.Duration("interval", p.config.Interval))
	go p.loop(loopCtx, p.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight poll
func (p *Poller) Stop() error {
	p.mu.Lock()
	if !p.isRunning {
		p.mu.Unlock()
		return nil
	}
	p.isRunning = false
	p.cancel()
	done := p.done
	p.mu.Unlock()

	<-done
	p.logger.Info("UpdatePoller stopped")
	return nil
}

// Name returns the worker name for identification
func (p *Poller) Name() string {
	return "UpdatePoller"
}

// Trigger requests an immediate poll; extra triggers coalesce
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.poll(ctx)
		case <-p.trigger:
			p.poll(ctx)
		}
	}
}

func (p *Poller) poll(ctx context.Context) {
	updated, err := p.checker.CheckServerUpdate(ctx)
	if err != nil {
		p.logger.Debug("Update check failed", zap.Error(err))
		return
	}
	if updated && p.config.OnUpdate != nil {
		p.config.OnUpdate()
	}
}
