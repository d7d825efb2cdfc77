// Package notify delivers ledger notifications off the request path.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/MarkoPoloResearchLab/pointsledger/pkg/ledger"
	"go.uber.org/zap"
)

var (
	// ErrQueueFull is returned when a notification cannot be enqueued without blocking.
	ErrQueueFull = errors.New("notification queue full")
	// ErrDispatcherClosed is returned for notifications arriving after Close.
	ErrDispatcherClosed = errors.New("notification dispatcher closed")
)

// Sink receives notifications from the dispatcher workers.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, notification ledger.Notification) error
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithQueueDepthObserver reports the queue length whenever it changes.
func WithQueueDepthObserver(observe func(depth int)) Option {
	return func(dispatcher *Dispatcher) {
		if observe != nil {
			dispatcher.observeDepth = observe
		}
	}
}

// Dispatcher implements ledger.Notifier with a bounded queue drained by worker goroutines.
type Dispatcher struct {
	cfg          Config
	logger       *zap.Logger
	sinks        []Sink
	queue        chan ledger.Notification
	observeDepth func(depth int)

	mu      sync.RWMutex
	closed  bool
	workers sync.WaitGroup
}

// NewDispatcher validates cfg and starts the workers.
func NewDispatcher(cfg Config, logger *zap.Logger, sinks []Sink, options ...Option) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		return nil, fmt.Errorf("notify: logger is required")
	}
	if len(sinks) == 0 {
		return nil, fmt.Errorf("notify: at least one sink is required")
	}
	dispatcher := &Dispatcher{
		cfg:          cfg,
		logger:       logger,
		sinks:        sinks,
		queue:        make(chan ledger.Notification, cfg.QueueSize),
		observeDepth: func(int) {},
	}
	for _, option := range options {
		option(dispatcher)
	}
	dispatcher.workers.Add(cfg.Workers)
	for worker := 0; worker < cfg.Workers; worker++ {
		go dispatcher.run()
	}
	return dispatcher, nil
}

// Notify enqueues notification without blocking the caller.
func (dispatcher *Dispatcher) Notify(ctx context.Context, notification ledger.Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dispatcher.mu.RLock()
	defer dispatcher.mu.RUnlock()
	if dispatcher.closed {
		return ErrDispatcherClosed
	}
	select {
	case dispatcher.queue <- notification:
		dispatcher.observeDepth(len(dispatcher.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting notifications and waits for queued ones to be delivered.
func (dispatcher *Dispatcher) Close(ctx context.Context) error {
	dispatcher.mu.Lock()
	if !dispatcher.closed {
		dispatcher.closed = true
		close(dispatcher.queue)
	}
	dispatcher.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		dispatcher.workers.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (dispatcher *Dispatcher) run() {
	defer dispatcher.workers.Done()
	for notification := range dispatcher.queue {
		dispatcher.observeDepth(len(dispatcher.queue))
		dispatcher.deliver(notification)
	}
}

func (dispatcher *Dispatcher) deliver(notification ledger.Notification) {
	for _, sink := range dispatcher.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), dispatcher.cfg.DeliveryTimeout)
		err := sink.Deliver(ctx, notification)
		cancel()
		if err != nil {
			dispatcher.logger.Warn("notification delivery failed",
				zap.String("sink", sink.Name()),
				zap.String("user_id", notification.UserID.String()),
				zap.String("title", notification.Title),
				zap.Error(err),
			)
		}
	}
}
