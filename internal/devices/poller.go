package devices

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Poller refreshes the mapped channels of a switch on a fixed interval so that
// change events fire for inputs nobody is reading.
type Poller struct {
	device   *Switch
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
	wg       sync.WaitGroup
	running  bool
	mu       sync.Mutex
}

func NewPoller(device *Switch, interval time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		device:   device,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start starts the polling loop. Calling Start on a running poller is a no-op.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}

	p.running = true
	p.wg.Add(1)

	go p.pollLoop()

	p.logger.Info("Poller started",
		zap.String("device", p.device.Info().Name),
		zap.Duration("interval", p.interval))

	return nil
}

// Stop stops the polling loop and waits for an in-flight refresh.
func (p *Poller) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	close(p.stopChan)
	p.wg.Wait()

	p.logger.Info("Poller stopped", zap.String("device", p.device.Info().Name))
}

func (p *Poller) pollLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), p.interval/2)
	defer cancel()

	if err := p.device.Refresh(ctx); err != nil {
		p.logger.Error("Poll failed",
			zap.String("device", p.device.Info().Name),
			zap.Error(err))
	}
}

// IsRunning reports whether the loop is active.
func (p *Poller) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
