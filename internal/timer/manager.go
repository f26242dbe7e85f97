package timer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/model"
	"warnet/backend/internal/repository"
)

var ErrNotRunning = errors.New("no countdown running for session")

const (
	DefaultTick         = time.Second
	DefaultSyncInterval = 15 * time.Second
)

// Syncer persists a countdown value. value is called while the session is
// locked against other writers.
type Syncer interface {
	SyncRemaining(ctx context.Context, id string, value func() (int, bool)) error
}

// Watcher delivers changes to a single session document.
type Watcher interface {
	Subscribe(collection, id string, fn repository.ChangeFunc) (unsubscribe func())
}

type Config struct {
	Tick         time.Duration
	SyncInterval time.Duration
	// OnExpire runs on the countdown goroutine once a session runs out.
	OnExpire func(sessionID string)
}

type Manager struct {
	syncer  Syncer
	watcher Watcher
	log     *slog.Logger
	cfg     Config
	now     func() time.Time

	mu     sync.Mutex
	timers map[string]*running
	wg     sync.WaitGroup
}

type running struct {
	countdown   *Countdown
	cancel      context.CancelFunc
	unsubscribe func()
}

func NewManager(syncer Syncer, watcher Watcher, log *slog.Logger, cfg Config) *Manager {
	if cfg.Tick <= 0 {
		cfg.Tick = DefaultTick
	}
	if cfg.SyncInterval <= 0 {
		cfg.SyncInterval = DefaultSyncInterval
	}
	return &Manager{
		syncer:  syncer,
		watcher: watcher,
		log:     log,
		cfg:     cfg,
		now:     time.Now,
		timers:  make(map[string]*running),
	}
}

// Start begins counting down an active session. Starting a session that
// already has a countdown is a no-op; completed sessions are ignored.
func (m *Manager) Start(ctx context.Context, session model.Session) {
	if session.Completed() {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[session.ID]; ok {
		return
	}

	remaining := model.RemainingSeconds(session.EndTime, m.now())
	countdown := NewCountdown(session.ID, remaining, m.expire)
	runCtx, cancel := context.WithCancel(ctx)
	r := &running{countdown: countdown, cancel: cancel}
	r.unsubscribe = m.watcher.Subscribe(model.CollectionSessions, session.ID, func(doc repository.Document, exists bool) {
		m.onChange(session.ID, countdown, doc, exists)
	})
	m.timers[session.ID] = r

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.run(runCtx, session.ID, countdown)
	}()
}

// Stop cancels the session's countdown without waiting for an in-flight
// sync to finish.
func (m *Manager) Stop(sessionID string) {
	m.mu.Lock()
	r, ok := m.timers[sessionID]
	delete(m.timers, sessionID)
	m.mu.Unlock()

	if !ok {
		return
	}
	r.cancel()
	r.unsubscribe()
}

// StopAll stops every countdown and waits for their goroutines to exit.
func (m *Manager) StopAll() {
	m.mu.Lock()
	ids := make([]string, 0, len(m.timers))
	for id := range m.timers {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.Stop(id)
	}
	m.wg.Wait()
}

func (m *Manager) Pause(sessionID string) (State, error) {
	countdown, ok := m.countdown(sessionID)
	if !ok {
		return State{}, ErrNotRunning
	}
	countdown.Pause()
	return countdown.State(), nil
}

func (m *Manager) Resume(sessionID string) (State, error) {
	countdown, ok := m.countdown(sessionID)
	if !ok {
		return State{}, ErrNotRunning
	}
	countdown.Resume()
	return countdown.State(), nil
}

func (m *Manager) Snapshot(sessionID string) (State, bool) {
	countdown, ok := m.countdown(sessionID)
	if !ok {
		return State{}, false
	}
	return countdown.State(), true
}

func (m *Manager) Running() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.timers)
}

func (m *Manager) countdown(sessionID string) (*Countdown, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.timers[sessionID]
	if !ok {
		return nil, false
	}
	return r.countdown, true
}

func (m *Manager) run(ctx context.Context, sessionID string, countdown *Countdown) {
	const op = "timer.run"
	log := m.log.With(slog.String("op", op), slog.String("session_id", sessionID))

	ticker := time.NewTicker(m.cfg.Tick)
	defer ticker.Stop()
	syncTicker := time.NewTicker(m.cfg.SyncInterval)
	defer syncTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !countdown.Tick() {
				continue
			}
			if err := m.syncer.SyncRemaining(ctx, sessionID, func() (int, bool) { return 0, true }); err != nil && ctx.Err() == nil {
				log.Warn("final sync failed", sl.Err(err))
			}
		case <-syncTicker.C:
			if err := m.syncer.SyncRemaining(ctx, sessionID, countdown.syncValue); err != nil && ctx.Err() == nil {
				log.Warn("periodic sync failed", sl.Err(err))
			}
		}
	}
}

// onChange follows the stored session. Only a drift of more than a second
// resets the countdown, so the manager's own syncs do not.
func (m *Manager) onChange(sessionID string, countdown *Countdown, doc repository.Document, exists bool) {
	if !exists {
		m.Stop(sessionID)
		return
	}

	session, err := model.SessionFromFields(doc.ID, doc.Fields)
	if err != nil {
		m.log.Warn("undecodable session change", slog.String("session_id", sessionID), sl.Err(err))
		return
	}
	if session.Completed() {
		m.Stop(sessionID)
		return
	}

	remaining := model.RemainingSeconds(session.EndTime, m.now())
	diff := remaining - countdown.Remaining()
	if diff > 1 || diff < -1 {
		countdown.Reset(remaining)
	}
}

func (m *Manager) expire(sessionID string) {
	m.log.Info("session time is up", slog.String("session_id", sessionID))
	if m.cfg.OnExpire != nil {
		m.cfg.OnExpire(sessionID)
	}
}
