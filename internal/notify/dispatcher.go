// Package notify delivers pipeline events to per-session Discord-style
// webhooks. Delivery is best effort: events are queued without blocking the
// caller, retried with exponential backoff and dropped after the last
// attempt. Failures never reach the pipeline.
package notify

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"frameforge/internal/domain"
	"frameforge/internal/events"
)

const (
	DefaultWorkers     = 2
	DefaultQueueSize   = 256
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = time.Second
	DefaultMaxDelay    = 8 * time.Second
	DefaultTimeout     = 10 * time.Second
)

type Options struct {
	Workers     int
	QueueSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Timeout     time.Duration
	Transport   Transport
	Registerer  prometheus.Registerer
	Logger      *zap.Logger
}

func (o *Options) applyDefaults() {
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.MaxDelay <= 0 {
		o.MaxDelay = DefaultMaxDelay
	}
	if o.MaxDelay < o.BaseDelay {
		o.MaxDelay = o.BaseDelay
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Transport == nil {
		o.Transport = HTTPTransport{Client: &http.Client{}}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
}

type delivery struct {
	evt events.Event
	url string
}

type Dispatcher struct {
	opts    Options
	log     *zap.Logger
	queue   chan delivery
	stats   *counters
	wg      sync.WaitGroup
	mu      sync.RWMutex
	closed  bool
	ctx     context.Context
	cancel  context.CancelFunc
	closeMu sync.Once
}

// New starts the worker pool. Call Close to stop it.
func New(opts Options) *Dispatcher {
	opts.applyDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		opts:   opts,
		log:    opts.Logger.Named("notify"),
		queue:  make(chan delivery, opts.QueueSize),
		ctx:    ctx,
		cancel: cancel,
	}
	d.stats = newCounters(opts.Registerer, func() float64 { return float64(len(d.queue)) })
	for i := 0; i < opts.Workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch queues evt for delivery when cfg wants it and reports whether it
// was queued. It never blocks: a full queue drops the event.
func (d *Dispatcher) Dispatch(evt events.Event, cfg domain.WebhookConfig) bool {
	if !cfg.Wants(string(evt.Type)) {
		d.stats.skipped.inc()
		return false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.stats.dropped.inc()
		d.log.Warn("dispatcher closed, dropping event",
			zap.String("event_id", evt.ID), zap.String("event_type", string(evt.Type)))
		return false
	}
	select {
	case d.queue <- delivery{evt: evt, url: cfg.URL}:
		d.stats.queued.inc()
		return true
	default:
		d.stats.dropped.inc()
		d.log.Warn("delivery queue full, dropping event",
			zap.String("event_id", evt.ID),
			zap.String("event_type", string(evt.Type)),
			zap.String("session_id", evt.SessionID))
		return false
	}
}

func (d *Dispatcher) Stats() Stats { return d.stats.snapshot() }

// Close stops intake and waits for queued deliveries to finish. When ctx
// expires first, pending retries are abandoned and ctx.Err is returned.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()
	})
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for item := range d.queue {
		d.deliver(item)
	}
}

func (d *Dispatcher) policy() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = d.opts.BaseDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = d.opts.MaxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(d.opts.MaxAttempts-1)), d.ctx)
}

func (d *Dispatcher) deliver(item delivery) {
	log := d.log.With(
		zap.String("event_id", item.evt.ID),
		zap.String("event_type", string(item.evt.Type)),
		zap.String("session_id", item.evt.SessionID),
	)
	body, err := encodeEmbed(item.evt)
	if err != nil {
		d.stats.dropped.inc()
		log.Error("encode webhook body", zap.Error(err))
		return
	}
	header := http.Header{}
	header.Set("X-FrameForge-Event", string(item.evt.Type))
	header.Set("X-FrameForge-Delivery", item.evt.ID)
	header.Set("X-FrameForge-Session", item.evt.SessionID)

	attempt := 0
	op := func() error {
		attempt++
		d.stats.attempts.inc()
		ctx, cancel := context.WithTimeout(d.ctx, d.opts.Timeout)
		defer cancel()
		if err := d.opts.Transport.Post(ctx, item.url, body, header); err != nil {
			d.stats.failed.inc()
			return err
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		log.Warn("webhook attempt failed, retrying",
			zap.Int("attempt", attempt), zap.Duration("retry_in", wait), zap.Error(err))
	}
	if err := backoff.RetryNotify(op, d.policy(), notify); err != nil {
		d.stats.dropped.inc()
		if errors.Is(err, context.Canceled) {
			log.Warn("webhook delivery abandoned on shutdown", zap.Int("attempts", attempt))
			return
		}
		log.Error("webhook delivery failed, dropping event", zap.Int("attempts", attempt), zap.Error(err))
		return
	}
	d.stats.delivered.inc()
	log.Debug("webhook delivered", zap.Int("attempts", attempt))
}
