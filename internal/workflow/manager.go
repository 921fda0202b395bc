package workflow

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"vidpress/internal/config"
	"vidpress/internal/logging"
	"vidpress/internal/notifications"
	"vidpress/internal/queue"
	"vidpress/internal/stage"
)

// Manager drives queued publish jobs through the ordered steps. A single
// processing lane runs at a time; a later step never begins before its
// predecessor's done status is persisted.
type Manager struct {
	cfg          *config.Config
	store        *queue.Store
	logger       *slog.Logger
	notifier     notifications.Service
	pollInterval time.Duration

	heartbeat *HeartbeatMonitor

	stages     map[queue.Status]pipelineStage
	stageOrder []queue.Step

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	lastErr error
	lastJob *queue.Job

	queueActive bool
	queueStart  time.Time
	processed   int
	failed      int
}

type pipelineStage struct {
	step    queue.Step
	handler stage.Handler
}

// NewManager constructs a workflow manager with default dependencies.
func NewManager(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Manager {
	return NewManagerWithNotifier(cfg, store, logger, notifications.NewService(cfg))
}

// NewManagerWithNotifier constructs a workflow manager with a custom
// notifier (used in tests).
func NewManagerWithNotifier(cfg *config.Config, store *queue.Store, logger *slog.Logger, notifier notifications.Service) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Manager{
		cfg:          cfg,
		store:        store,
		logger:       logger.With(logging.String(logging.FieldComponent, "workflow-manager")),
		notifier:     notifier,
		pollInterval: cfg.QueuePollInterval(),
		heartbeat:    NewHeartbeatMonitor(store, logger, cfg.HeartbeatInterval(), cfg.HeartbeatTimeout()),
		stages:       make(map[queue.Status]pipelineStage),
	}
}

// RegisterStage binds a handler to a publish step. Jobs sitting at the
// step's entry status are dispatched to the handler.
func (m *Manager) RegisterStage(step queue.Step, handler stage.Handler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.stages[step.EntryStatus()]; !exists {
		m.stageOrder = append(m.stageOrder, step)
	}
	m.stages[step.EntryStatus()] = pipelineStage{step: step, handler: handler}
}

// Start begins background queue processing.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return errors.New("workflow already running")
	}
	if len(m.stages) == 0 {
		m.mu.Unlock()
		return errors.New("workflow stages not configured")
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.wg.Add(1)
	m.mu.Unlock()

	go m.run(runCtx)
	return nil
}

// Stop terminates background processing and waits for completion.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.cancel = nil
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) run(ctx context.Context) {
	defer m.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := m.heartbeat.ReclaimStaleJobs(ctx, m.logger); err != nil {
			m.logger.Warn("reclaim stale processing failed; stuck jobs may remain",
				logging.Error(err),
				logging.String(logging.FieldEventType, "heartbeat_reclaim_failed"),
				logging.String(logging.FieldErrorHint, "check queue database access"),
			)
		}

		job, err := m.store.NextForStatuses(ctx, m.entryStatuses()...)
		if err != nil {
			m.handleFetchError(ctx, err)
			continue
		}
		if job == nil {
			m.checkQueueCompletion(ctx)
			m.waitForJobOrShutdown(ctx)
			continue
		}

		if err := m.processJob(ctx, job); err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
		}
	}
}

func (m *Manager) entryStatuses() []queue.Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	statuses := make([]queue.Status, 0, len(m.stageOrder))
	for _, step := range m.stageOrder {
		statuses = append(statuses, step.EntryStatus())
	}
	return statuses
}

func (m *Manager) stageFor(status queue.Status) (pipelineStage, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ps, ok := m.stages[status]
	return ps, ok
}

func (m *Manager) handleFetchError(ctx context.Context, err error) {
	m.setLastError(err)
	m.logger.Error("failed to fetch next queue job",
		logging.Error(err),
		logging.String(logging.FieldEventType, "queue_fetch_failed"),
		logging.String(logging.FieldErrorHint, "check queue database access"),
	)
	select {
	case <-ctx.Done():
	case <-time.After(m.cfg.ErrorRetryInterval()):
	}
}

func (m *Manager) waitForJobOrShutdown(ctx context.Context) {
	select {
	case <-ctx.Done():
	case <-time.After(m.pollInterval):
	}
}

func (m *Manager) setLastError(err error) {
	m.mu.Lock()
	m.lastErr = err
	m.mu.Unlock()
}

// LastError returns the most recent processing error, if any.
func (m *Manager) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

func (m *Manager) setLastJob(job *queue.Job) {
	copied := *job
	m.mu.Lock()
	m.lastJob = &copied
	m.mu.Unlock()
}

// LastJob returns a copy of the most recently touched job, if any.
func (m *Manager) LastJob() *queue.Job {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.lastJob == nil {
		return nil
	}
	copied := *m.lastJob
	return &copied
}
