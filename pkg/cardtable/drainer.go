package cardtable

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rzpsarthak13/cardtable/internal/core"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// OrderWriter persists one display position.
type OrderWriter interface {
	SetProductOrder(ctx context.Context, cardID, productID string, position int) error
}

// OrderGuard reports whether a queued write was replaced by a later reorder
// of its card and must be discarded instead of replayed.
type OrderGuard interface {
	Supersedes(w *core.OrderWrite) bool
}

// OrderGuardFunc adapts a function to OrderGuard.
type OrderGuardFunc func(w *core.OrderWrite) bool

// Supersedes calls f(w).
func (f OrderGuardFunc) Supersedes(w *core.OrderWrite) bool { return f(w) }

// DrainerOption configures a Drainer.
type DrainerOption func(*Drainer)

// WithOrderGuard makes the drainer skip writes the guard reports superseded.
func WithOrderGuard(guard OrderGuard) DrainerOption {
	return func(d *Drainer) { d.guard = guard }
}

// DrainerConfig contains configuration for the drainer.
type DrainerConfig struct {
	// Rate is the maximum number of order writes retried per second.
	Rate int

	// BatchSize is how many writes to dequeue at once.
	BatchSize int

	// Interval is how often an empty queue is polled.
	Interval time.Duration

	// MaxRetries is how many times a write is retried before it is dropped.
	MaxRetries int
}

// DefaultDrainerConfig returns the drainer defaults.
func DefaultDrainerConfig() DrainerConfig {
	return DrainerConfig{
		Rate:       50,
		BatchSize:  20,
		Interval:   time.Second,
		MaxRetries: 5,
	}
}

// Drainer retries order writes from the retry queue at a bounded rate.
// A write that fails again goes back to the queue with its retry count
// raised, until MaxRetries is reached. Each pass attempts a write at most
// once; a requeued write waits for the next pass.
type Drainer struct {
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	queue  core.WriteBackQueue
	writer OrderWriter
	guard  OrderGuard
	config DrainerConfig
	logger *zap.Logger

	statsMu sync.Mutex
	stats   DrainerStats
}

// DrainerStats counts what the drainer has done since it was created.
type DrainerStats struct {
	Written    int `json:"written"`
	Requeued   int `json:"requeued"`
	Dropped    int `json:"dropped"`
	Superseded int `json:"superseded"`
}

// NewDrainer creates a drainer. Zero config fields take their defaults.
func NewDrainer(queue core.WriteBackQueue, writer OrderWriter, config DrainerConfig, logger *zap.Logger, opts ...DrainerOption) *Drainer {
	defaults := DefaultDrainerConfig()
	if config.Rate <= 0 {
		config.Rate = defaults.Rate
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Drainer{
		queue:  queue,
		writer: writer,
		config: config,
		logger: logger.Named("drainer"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Start runs the drainer in its own goroutine. It is a no-op when running.
func (d *Drainer) Start(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.running {
		return
	}
	d.running = true
	d.stopCh = make(chan struct{})
	d.doneCh = make(chan struct{})

	go d.run(ctx, d.stopCh, d.doneCh)
	d.logger.Info("drainer started", zap.Int("rate", d.config.Rate), zap.Int("max_retries", d.config.MaxRetries))
}

// Stop stops the drainer and waits for the current write to finish.
func (d *Drainer) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	stopCh, doneCh := d.stopCh, d.doneCh
	d.mu.Unlock()

	close(stopCh)
	<-doneCh
	d.logger.Info("drainer stopped")
}

// IsRunning reports whether the drainer goroutine is running.
func (d *Drainer) IsRunning() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// QueueSize returns the number of writes waiting.
func (d *Drainer) QueueSize() int {
	return d.queue.Size()
}

// Stats returns a snapshot of the counters.
func (d *Drainer) Stats() DrainerStats {
	d.statsMu.Lock()
	defer d.statsMu.Unlock()
	return d.stats
}

func (d *Drainer) run(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	limiter := rate.NewLimiter(rate.Limit(d.config.Rate), 1)
	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		if err := d.drain(ctx, limiter); err != nil {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// drain retries the writes queued when the pass starts. Writes requeued
// during the pass are left for the next one. It returns an error only when
// ctx is done.
func (d *Drainer) drain(ctx context.Context, limiter *rate.Limiter) error {
	remaining := d.queue.Size()
	for remaining > 0 {
		writes, err := d.queue.Dequeue(ctx, min(d.config.BatchSize, remaining))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("dequeue failed", zap.Error(err))
			return nil
		}
		if len(writes) == 0 {
			return nil
		}
		remaining -= len(writes)

		for i, w := range writes {
			if w == nil {
				continue
			}
			if err := limiter.Wait(ctx); err != nil {
				d.requeue(writes[i:])
				return err
			}
			d.retry(ctx, w)
		}
	}
	return nil
}

// Drain runs one pass over the writes queued now and returns when each was
// attempted once or ctx is done. It does not require Start.
func (d *Drainer) Drain(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Limit(d.config.Rate), 1)
	return d.drain(ctx, limiter)
}

func (d *Drainer) retry(ctx context.Context, w *core.OrderWrite) {
	log := d.logger.With(
		zap.String("card_id", w.CardID),
		zap.String("product_id", w.ProductID),
		zap.Int("position", w.Position),
		zap.Int("retry_count", w.RetryCount),
	)

	if d.guard != nil && d.guard.Supersedes(w) {
		d.count(func(s *DrainerStats) { s.Superseded++ })
		log.Debug("order write superseded by a later reorder")
		return
	}

	err := d.writer.SetProductOrder(ctx, w.CardID, w.ProductID, w.Position)
	if err == nil {
		d.count(func(s *DrainerStats) { s.Written++ })
		log.Debug("order write retried")
		return
	}

	w.RetryCount++
	w.LastError = err.Error()
	if w.RetryCount > d.config.MaxRetries {
		d.count(func(s *DrainerStats) { s.Dropped++ })
		log.Error("order write dropped after max retries", zap.Error(err))
		return
	}
	if qerr := d.queue.Enqueue(context.WithoutCancel(ctx), w); qerr != nil {
		d.count(func(s *DrainerStats) { s.Dropped++ })
		log.Error("order write could not be requeued", zap.Error(errors.Join(err, qerr)))
		return
	}
	d.count(func(s *DrainerStats) { s.Requeued++ })
	log.Warn("order write failed again, requeued", zap.Error(err))
}

// requeue puts back writes that were dequeued but not attempted.
func (d *Drainer) requeue(writes []*core.OrderWrite) {
	for _, w := range writes {
		if w == nil {
			continue
		}
		if err := d.queue.Enqueue(context.Background(), w); err != nil {
			d.logger.Error("order write lost on shutdown", zap.String("product_id", w.ProductID), zap.Error(err))
		}
	}
}

func (d *Drainer) count(fn func(*DrainerStats)) {
	d.statsMu.Lock()
	fn(&d.stats)
	d.statsMu.Unlock()
}
