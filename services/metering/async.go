package metering

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/upb/rag-query-service/models"
	"github.com/upb/rag-query-service/services/providers"
	"go.uber.org/zap"
)

// AsyncConfig holds configuration for the AsyncTracker
type AsyncConfig struct {
	BufferSize   int           // Size of the event buffer channel
	WorkerCount  int           // Number of concurrent workers
	WriteTimeout time.Duration // Timeout of each store call
}

// DefaultAsyncConfig returns the default configuration
func DefaultAsyncConfig() AsyncConfig {
	return AsyncConfig{
		BufferSize:   256,
		WorkerCount:  2,
		WriteTimeout: defaultWriteTimeout,
	}
}

// AsyncTracker persists usage events on background workers.
// Track never blocks; a full buffer drops the event.
type AsyncTracker struct {
	recorder     *Recorder
	logger       *zap.Logger
	eventChan    chan *models.UsageEvent
	workerCount  int
	bufferSize   int
	writeTimeout time.Duration
	wg           sync.WaitGroup
	started      bool
	stopped      bool
	mu           sync.RWMutex
}

// NewAsyncTracker creates a new AsyncTracker instance
func NewAsyncTracker(recorder *Recorder, logger *zap.Logger, config AsyncConfig) *AsyncTracker {
	defaults := DefaultAsyncConfig()
	if config.BufferSize <= 0 {
		config.BufferSize = defaults.BufferSize
	}
	if config.WorkerCount <= 0 {
		config.WorkerCount = defaults.WorkerCount
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &AsyncTracker{
		recorder:     recorder,
		logger:       logger,
		eventChan:    make(chan *models.UsageEvent, config.BufferSize),
		workerCount:  config.WorkerCount,
		bufferSize:   config.BufferSize,
		writeTimeout: config.WriteTimeout,
	}
}

// Start starts the background workers
func (t *AsyncTracker) Start() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.started {
		return fmt.Errorf("usage tracker already started")
	}

	for i := 0; i < t.workerCount; i++ {
		t.wg.Add(1)
		go t.worker(i)
	}

	t.started = true
	t.logger.Info("started usage tracker",
		zap.Int("worker_count", t.workerCount),
		zap.Int("buffer_size", t.bufferSize))

	return nil
}

// Stop stops accepting events and waits for queued events to be written
func (t *AsyncTracker) Stop(timeout time.Duration) error {
	t.mu.Lock()
	if !t.started || t.stopped {
		t.mu.Unlock()
		return fmt.Errorf("usage tracker not running")
	}
	t.stopped = true
	close(t.eventChan)
	t.mu.Unlock()

	t.logger.Info("stopping usage tracker", zap.Int("pending_events", len(t.eventChan)))

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("usage tracker stopped gracefully")
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("usage tracker stop timeout after %v", timeout)
	}
}

// Track prices the call now and queues the event for persistence.
// The request context is not carried into the write.
func (t *AsyncTracker) Track(ctx context.Context, tenantID, modelID string, modelType models.ModelType, usage *providers.Usage) {
	event := t.recorder.Build(tenantID, modelID, modelType, usage)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if !t.started || t.stopped {
		t.logger.Warn("usage tracker not running, dropping event",
			zap.String("tenant_id", tenantID),
			zap.String("model_id", modelID))
		t.recorder.metrics.recordDropped(ctx)
		return
	}

	select {
	case t.eventChan <- event:
	default:
		t.logger.Warn("usage event channel full, dropping event",
			zap.String("tenant_id", tenantID),
			zap.String("model_id", modelID))
		t.recorder.metrics.recordDropped(ctx)
	}
}

// worker processes events from the channel
func (t *AsyncTracker) worker(id int) {
	defer t.wg.Done()

	t.logger.Debug("usage worker started", zap.Int("worker_id", id))

	for event := range t.eventChan {
		t.processEvent(event)
	}

	t.logger.Debug("usage worker stopped", zap.Int("worker_id", id))
}

// processEvent writes a single event under its own timeout
func (t *AsyncTracker) processEvent(event *models.UsageEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), t.writeTimeout)
	defer cancel()

	t.recorder.Store(ctx, event)
}

// GetStats returns statistics about the tracker
func (t *AsyncTracker) GetStats() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return Stats{
		BufferSize:    t.bufferSize,
		PendingEvents: len(t.eventChan),
		WorkerCount:   t.workerCount,
		Started:       t.started && !t.stopped,
	}
}

// Stats represents usage tracker statistics
type Stats struct {
	BufferSize    int
	PendingEvents int
	WorkerCount   int
	Started       bool
}
