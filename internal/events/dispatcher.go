package events

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	bookingDomain "github.com/atlascaucasus/service-booking/internal/domain/booking"
	"go.uber.org/zap"
)

// DispatcherConfig bounds the dispatcher's memory and delivery effort.
type DispatcherConfig struct {
	QueueSize        int
	ResendBufferSize int
	PublishTimeout   time.Duration
	ResendInterval   time.Duration
	MaxAttempts      int
}

func (c DispatcherConfig) withDefaults() DispatcherConfig {
	if c.QueueSize <= 0 {
		c.QueueSize = 1024
	}
	if c.ResendBufferSize <= 0 {
		c.ResendBufferSize = 4096
	}
	if c.PublishTimeout <= 0 {
		c.PublishTimeout = 5 * time.Second
	}
	if c.ResendInterval <= 0 {
		c.ResendInterval = 30 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	return c
}

// Stats is a point-in-time view of dispatcher counters.
type Stats struct {
	Delivered int64
	Dropped   int64
	Pending   int
}

type envelope struct {
	event    bookingDomain.Event
	attempts int
}

// Dispatcher hands booking events to a Sink off the request path. Publish never blocks:
// events go into a bounded queue, overflow and failed deliveries are parked in a resend
// buffer retried on a ticker, and events that exhaust their attempts are dropped and logged.
type Dispatcher struct {
	sink   Sink
	cfg    DispatcherConfig
	logger *zap.Logger

	queue chan envelope

	closeMu sync.RWMutex
	closed  bool

	pendingMu sync.Mutex
	pending   []envelope

	delivered atomic.Int64
	dropped   atomic.Int64

	startOnce sync.Once
	done      chan struct{}
}

// NewDispatcher creates a Dispatcher. Call Start before publishing.
func NewDispatcher(sink Sink, cfg DispatcherConfig, logger *zap.Logger) *Dispatcher {
	cfg = cfg.withDefaults()
	return &Dispatcher{
		sink:   sink,
		cfg:    cfg,
		logger: logger,
		queue:  make(chan envelope, cfg.QueueSize),
		done:   make(chan struct{}),
	}
}

// Start launches the delivery worker.
func (d *Dispatcher) Start() {
	d.startOnce.Do(func() {
		go d.run()
	})
}

// Publish enqueues evt for delivery without waiting for it.
func (d *Dispatcher) Publish(evt bookingDomain.Event) {
	d.closeMu.RLock()
	defer d.closeMu.RUnlock()

	if d.closed {
		d.drop(envelope{event: evt}, "dispatcher closed")
		return
	}

	select {
	case d.queue <- envelope{event: evt}:
	default:
		d.park(envelope{event: evt}, "queue full")
	}
}

// Close stops accepting events, drains the queue, makes one last resend pass and waits for
// the worker until ctx expires.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.closeMu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.closeMu.Unlock()

	d.Start()
	select {
	case <-d.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (d *Dispatcher) Stats() Stats {
	d.pendingMu.Lock()
	pending := len(d.pending)
	d.pendingMu.Unlock()

	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Pending:   pending,
	}
}

func (d *Dispatcher) run() {
	defer close(d.done)

	ticker := time.NewTicker(d.cfg.ResendInterval)
	defer ticker.Stop()

	for {
		select {
		case env, ok := <-d.queue:
			if !ok {
				d.resend()
				return
			}
			d.deliver(env)
		case <-ticker.C:
			d.resend()
		}
	}
}

func (d *Dispatcher) deliver(env envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), d.cfg.PublishTimeout)
	defer cancel()

	env.attempts++
	if err := d.sink.Deliver(ctx, env.event); err != nil {
		d.logger.Warn("booking event delivery failed",
			zap.String("event_id", env.event.ID.String()),
			zap.String("type", env.event.Type),
			zap.String("booking_id", env.event.BookingID.String()),
			zap.Int("attempt", env.attempts),
			zap.Error(err),
		)
		if env.attempts >= d.cfg.MaxAttempts {
			d.drop(env, "max attempts reached")
			return
		}
		d.park(env, "delivery failed")
		return
	}
	d.delivered.Add(1)
}

func (d *Dispatcher) resend() {
	d.pendingMu.Lock()
	batch := d.pending
	d.pending = nil
	d.pendingMu.Unlock()

	for _, env := range batch {
		d.deliver(env)
	}
}

func (d *Dispatcher) park(env envelope, reason string) {
	d.pendingMu.Lock()
	if len(d.pending) >= d.cfg.ResendBufferSize {
		d.pendingMu.Unlock()
		d.drop(env, reason+"; resend buffer full")
		return
	}
	d.pending = append(d.pending, env)
	d.pendingMu.Unlock()
}

func (d *Dispatcher) drop(env envelope, reason string) {
	d.dropped.Add(1)
	d.logger.Error("booking event dropped",
		zap.String("event_id", env.event.ID.String()),
		zap.String("type", env.event.Type),
		zap.String("booking_id", env.event.BookingID.String()),
		zap.Int("attempts", env.attempts),
		zap.String("reason", reason),
	)
}
