package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

// EventReplayer re-dispatches stored provider events that never completed.
type EventReplayer interface {
	ReplayPending(ctx context.Context) (int, error)
}

// Manager runs the job queue and the periodic background tasks
type Manager struct {
	queue          *Queue
	replayer       EventReplayer
	replayInterval time.Duration
	replayTicker   *time.Ticker
	stopCh         chan struct{}
	wg             sync.WaitGroup
	mu             sync.Mutex
	running        bool
}

// NewManager creates a manager. replayer may be nil to disable the sweep.
func NewManager(queue *Queue, replayer EventReplayer, replayInterval time.Duration) *Manager {
	if replayInterval <= 0 {
		replayInterval = 5 * time.Minute
	}
	return &Manager{
		queue:          queue,
		replayer:       replayer,
		replayInterval: replayInterval,
		stopCh:         make(chan struct{}),
	}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}

	// Recreate stop channel for each start cycle so manager can be restarted safely.
	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	if m.replayer != nil {
		m.replayTicker = time.NewTicker(m.replayInterval)
		m.wg.Add(1)
		go m.replayWorker(m.stopCh)
	}

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")

	if m.replayTicker != nil {
		m.replayTicker.Stop()
	}

	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()

	log.Info("[JobQueue Manager] Stopped successfully")
}

// replayWorker periodically re-dispatches events left unprocessed by crashed or failed deliveries
func (m *Manager) replayWorker(stopCh chan struct{}) {
	defer m.wg.Done()
	log.Infof("[JobQueue Manager] Started replay worker (interval: %s)", m.replayInterval)

	for {
		select {
		case <-stopCh:
			log.Info("[JobQueue Manager] Replay worker stopping")
			return
		case <-m.replayTicker.C:
			if _, err := m.RunReplayOnce(context.Background()); err != nil {
				log.Errorf("[JobQueue Manager] Replay error: %v", err)
			}
		}
	}
}

// RunReplayOnce runs a single replay sweep.
func (m *Manager) RunReplayOnce(ctx context.Context) (int, error) {
	if m.replayer == nil {
		return 0, nil
	}
	n, err := m.replayer.ReplayPending(ctx)
	if n > 0 {
		log.Infof("[JobQueue Manager] Replayed %d pending events", n)
	}
	return n, err
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
