// Package worker provides an asynchronous worker pool that persists completed
// assistant replies using the provided storage.Driver and announces them on
// the provided eventstream.Publisher.
//
// The pool keeps storage writes off the streaming path so a client sees the
// complete event as soon as the last fragment is decoded.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/papercomputeco/streamchat/pkg/eventstream"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/metrics"
	"github.com/papercomputeco/streamchat/pkg/storage"
)

var (
	defaultNumWorkers   uint = 3
	defaultJobQueueSize uint = 256
)

// Job is a unit of work for the worker pool to execute against.
type Job struct {
	// Message is the assistant message to persist.
	Message *storage.Message

	// UserID owns the message's session.
	UserID string

	Provider string
	Model    string

	StartedAt   time.Time
	CompletedAt time.Time
	Fragments   int
	EndReason   string
}

// Config is the configuration options for the worker pool.
type Config struct {
	// Driver is the storage backend for persisting messages.
	Driver storage.Driver

	// Publisher is the optional event stream for persisted messages.
	Publisher eventstream.Publisher

	// NumWorkers is the number of background workers in the pool.
	NumWorkers uint

	// QueueSize is the capacity of the buffered job channel (defaults to 256).
	QueueSize uint

	Logger *slog.Logger
}

// Pool processes storage jobs asynchronously via a worker pool.
type Pool struct {
	config *Config
	queue  chan Job
	wg     sync.WaitGroup
	logger *slog.Logger

	// mu guards closed. Enqueue holds it for reading so Close cannot close
	// the queue under a pending send.
	mu     sync.RWMutex
	closed bool
}

// NewPool creates a new Pool and starts its worker goroutines.
func NewPool(c *Config) (*Pool, error) {
	if c.Driver == nil {
		return nil, errors.New("worker pool requires a storage driver")
	}

	if c.NumWorkers == 0 {
		c.NumWorkers = defaultNumWorkers
	}

	if c.QueueSize == 0 {
		c.QueueSize = defaultJobQueueSize
	}

	if c.NumWorkers > uint(math.MaxInt) {
		return nil, fmt.Errorf("NumWorkers %d exceeds max int", c.NumWorkers)
	}

	if c.Logger == nil {
		c.Logger = logger.Nop()
	}

	wp := &Pool{
		config: c,
		queue:  make(chan Job, c.QueueSize),
		logger: c.Logger,
	}

	wp.wg.Add(int(c.NumWorkers))
	for i := range c.NumWorkers {
		go wp.worker(i)
	}

	return wp, nil
}

// Enqueue submits a job for processing by the worker pool.
// Returns true if enqueued, false if the queue is full or the pool is closed,
// resulting in the job being dropped
func (p *Pool) Enqueue(job Job) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		p.logger.Warn("job not queued, pool closed, job dropped",
			"session_id", job.Message.SessionID,
			"message_id", job.Message.ID,
		)
		return false
	}

	select {
	case p.queue <- job:
		p.logger.Debug("job queued",
			"session_id", job.Message.SessionID,
			"message_id", job.Message.ID,
		)
		return true
	default:
		p.logger.Error("job not queued, queue full, job dropped",
			"session_id", job.Message.SessionID,
			"message_id", job.Message.ID,
		)
		return false
	}
}

// Close signals workers to stop and waits for in-flight jobs to drain.
// Call this during graceful shutdown after the API server has stopped.
// Calling Close more than once is a no-op after the first call.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	close(p.queue)
	p.mu.Unlock()

	p.wg.Wait()
}

// worker is the inner worker thread that continuously pulls jobs off the jobs queue
func (p *Pool) worker(id uint) {
	defer p.wg.Done()
	p.logger.Debug("worker started", "worker_id", id)

	for job := range p.queue {
		p.processJob(job)
	}

	p.logger.Debug("storage worker stopped", "worker_id", id)
}

// processJob stores the message, then publishes it. A publish failure leaves
// the stored message in place.
func (p *Pool) processJob(job Job) {
	ctx := context.Background()

	err := p.config.Driver.AddMessage(ctx, job.Message)
	metrics.ObservePersist(err)
	if err != nil {
		p.logger.Error("async message storage failed",
			"session_id", job.Message.SessionID,
			"error", err,
		)
		return
	}

	p.logger.Info("message stored",
		"session_id", job.Message.SessionID,
		"message_id", job.Message.ID,
	)

	if p.config.Publisher == nil {
		return
	}

	event := eventstream.NewMessagePersistedEvent(
		eventstream.EventSource{Provider: job.Provider, Model: job.Model},
		eventstream.SessionMeta{ID: job.Message.SessionID, UserID: job.UserID},
		eventstream.MessageMeta{ID: job.Message.ID, Role: job.Message.Role, Content: job.Message.Content},
		eventstream.StreamMeta{
			StartedAt:   job.StartedAt,
			CompletedAt: job.CompletedAt,
			Fragments:   job.Fragments,
			EndReason:   job.EndReason,
		},
	)
	if err := p.config.Publisher.PublishMessage(ctx, event); err != nil {
		p.logger.Warn("failed to publish message event",
			"message_id", job.Message.ID,
			"error", err,
		)
	}
}
