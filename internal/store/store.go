// Package store keeps the local view of active sessions and payment history
// and mediates every read and write against the document store.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/lifecycle"
	"warnet/backend/internal/model"
	"warnet/backend/internal/repository"
)

var (
	ErrFetch    = errors.New("failed to fetch data")
	ErrCreate   = errors.New("failed to create record")
	ErrDelete   = errors.New("failed to delete record")
	ErrNotFound = errors.New("session not found")
	ErrUpdate   = errors.New("failed to update session")
	ErrFinalize = errors.New("failed to finalize transaction")
)

// HistoryCache holds the merged payment history between reads.
type HistoryCache interface {
	Get(ctx context.Context) ([]model.HistoryEntry, bool, error)
	Set(ctx context.Context, entries []model.HistoryEntry) error
	Invalidate(ctx context.Context) error
}

type Option func(*Store)

func WithHistoryCache(cache HistoryCache) Option {
	return func(s *Store) {
		if cache != nil {
			s.cache = cache
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

type Store struct {
	docs  repository.DocumentStore
	cache HistoryCache
	log   *slog.Logger
	now   func() time.Time
	locks *keyedMutex

	mu       sync.RWMutex
	sessions []model.Session
	history  []model.HistoryEntry
	busy     int
	settled  bool
	lastErr  string
}

func New(docs repository.DocumentStore, log *slog.Logger, opts ...Option) *Store {
	s := &Store{
		docs:  docs,
		cache: noopCache{},
		log:   log,
		now:   time.Now,
		locks: newKeyedMutex(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Sessions() []model.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.Session, len(s.sessions))
	copy(out, s.sessions)
	return out
}

func (s *Store) Session(id string) (model.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions {
		if session.ID == id {
			return session, true
		}
	}
	return model.Session{}, false
}

func (s *Store) History() []model.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// FetchSessions replaces the local sessions with the remote snapshot. On
// failure the previous snapshot is kept.
func (s *Store) FetchSessions(ctx context.Context) (_ []model.Session, err error) {
	const op = "store.FetchSessions"
	s.begin()
	defer func() { s.finish(err) }()

	docs, err := s.docs.List(ctx, model.CollectionSessions)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, err)
	}

	sessions := make([]model.Session, 0, len(docs))
	for _, doc := range docs {
		session, decodeErr := model.SessionFromFields(doc.ID, doc.Fields)
		if decodeErr != nil {
			s.log.Warn("skipping malformed session", slog.String("op", op), slog.String("id", doc.ID), sl.Err(decodeErr))
			continue
		}
		sessions = append(sessions, session)
	}

	s.mu.Lock()
	s.sessions = sessions
	s.mu.Unlock()

	return s.Sessions(), nil
}

func (s *Store) AddSession(ctx context.Context, name string, pkg model.Package) (_ model.Session, err error) {
	s.begin()
	defer func() { s.finish(err) }()

	if _, err := lifecycle.Next(lifecycle.None, lifecycle.Add); err != nil {
		return model.Session{}, err
	}

	session := model.NewSession(name, pkg, s.now())
	id, err := s.docs.Create(ctx, model.CollectionSessions, session.Fields())
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	session.ID = id

	s.mu.Lock()
	s.sessions = append(s.sessions, session)
	s.mu.Unlock()

	return session, nil
}

// RemoveSession deletes the session remotely and then locally. The local
// entry is kept when the remote delete fails.
func (s *Store) RemoveSession(ctx context.Context, id string) (err error) {
	s.begin()
	defer func() { s.finish(err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.readSession(ctx, id, ErrDelete)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.dropSession(id)
		}
		return err
	}
	if _, err := lifecycle.Next(lifecycle.Of(session), lifecycle.Remove); err != nil {
		return err
	}

	if err := s.docs.Delete(ctx, model.CollectionSessions, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			s.dropSession(id)
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	s.dropSession(id)
	return nil
}

// ExtendSession adds pkg to the session. The new deadline counts from the
// later of the current deadline and now.
func (s *Store) ExtendSession(ctx context.Context, id string, pkg model.Package) (_ model.Session, err error) {
	s.begin()
	defer func() { s.finish(err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.readSession(ctx, id, ErrUpdate)
	if err != nil {
		return model.Session{}, err
	}
	if _, err := lifecycle.Next(lifecycle.Of(session), lifecycle.Extend); err != nil {
		return model.Session{}, err
	}

	extended := session.Extended(pkg, s.now())
	if err := s.writeSession(ctx, extended, map[string]any{
		"endTime":       model.FormatTimestamp(extended.EndTime),
		"time":          extended.Time,
		"price":         extended.Price,
		"packageName":   extended.PackageName,
		"remainingTime": extended.RemainingTime,
	}); err != nil {
		return model.Session{}, err
	}

	return extended, nil
}

// RecordPayment stores a payment made against the session. The session
// itself is left untouched.
func (s *Store) RecordPayment(ctx context.Context, sessionID string, amount int, method string) (_ model.Payment, err error) {
	s.begin()
	defer func() { s.finish(err) }()

	unlock := s.locks.Lock(sessionID)
	defer unlock()

	session, err := s.readSession(ctx, sessionID, ErrCreate)
	if err != nil {
		return model.Payment{}, err
	}
	if _, err := lifecycle.Next(lifecycle.Of(session), lifecycle.RecordPayment); err != nil {
		return model.Payment{}, err
	}

	payment := model.NewPayment(session, amount, method, s.now())
	id, err := s.docs.Create(ctx, model.CollectionPayments, payment.Fields())
	if err != nil {
		return model.Payment{}, fmt.Errorf("%w: %w", ErrCreate, err)
	}
	payment.ID = id

	s.mu.Lock()
	s.history = append([]model.HistoryEntry{model.PaymentEntry(payment)}, s.history...)
	s.mu.Unlock()
	s.invalidateHistory(ctx)

	return payment, nil
}

func (s *Store) MarkSessionCompleted(ctx context.Context, id string) (_ model.Session, err error) {
	s.begin()
	defer func() { s.finish(err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.readSession(ctx, id, ErrUpdate)
	if err != nil {
		return model.Session{}, err
	}
	if _, err := lifecycle.Next(lifecycle.Of(session), lifecycle.Complete); err != nil {
		return model.Session{}, err
	}

	completed := session.MarkedCompleted(s.now())
	if err := s.writeSession(ctx, completed, map[string]any{
		"status":        completed.Status,
		"paymentStatus": completed.PaymentStatus,
		"endTime":       model.FormatTimestamp(completed.EndTime),
	}); err != nil {
		return model.Session{}, err
	}

	return completed, nil
}

// FinalizeTransaction archives a completed session as a transaction and
// deletes the session. The transaction is keyed by the session id, so a
// retry after a failed delete reuses it instead of writing a second one.
func (s *Store) FinalizeTransaction(ctx context.Context, id string) (_ model.Transaction, err error) {
	const op = "store.FinalizeTransaction"
	s.begin()
	defer func() { s.finish(err) }()

	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.readSession(ctx, id, ErrFinalize)
	if err != nil {
		return model.Transaction{}, err
	}
	if _, err := lifecycle.Next(lifecycle.Of(session), lifecycle.Finalize); err != nil {
		return model.Transaction{}, err
	}

	txn, existed, err := s.ensureTransaction(ctx, session)
	if err != nil {
		return model.Transaction{}, fmt.Errorf("%w: %w", ErrFinalize, err)
	}
	if existed {
		s.log.Info("reusing transaction from earlier finalize", slog.String("op", op), slog.String("id", id))
	}

	if err := s.docs.Delete(ctx, model.CollectionSessions, id); err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.invalidateHistory(ctx)
		return model.Transaction{}, fmt.Errorf("%w: delete session: %w", ErrFinalize, err)
	}

	s.mu.Lock()
	s.removeSessionLocked(id)
	if !s.hasHistoryLocked(model.HistoryTransaction, txn.ID) {
		s.history = append([]model.HistoryEntry{model.TransactionEntry(txn)}, s.history...)
	}
	s.mu.Unlock()
	s.invalidateHistory(ctx)

	return txn, nil
}

func (s *Store) ensureTransaction(ctx context.Context, session model.Session) (model.Transaction, bool, error) {
	doc, err := s.docs.Read(ctx, model.CollectionTransactions, session.ID)
	if err == nil {
		txn, decodeErr := model.TransactionFromFields(doc.ID, doc.Fields)
		return txn, true, decodeErr
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return model.Transaction{}, false, err
	}

	txn := model.NewTransaction(session, s.now())
	if err := s.docs.CreateWithID(ctx, model.CollectionTransactions, txn.ID, txn.Fields()); err != nil {
		if errors.Is(err, repository.ErrAlreadyExists) {
			return s.ensureTransaction(ctx, session)
		}
		return model.Transaction{}, false, err
	}
	return txn, false, nil
}

// FetchTransactionHistory merges payments and transactions, newest first.
func (s *Store) FetchTransactionHistory(ctx context.Context) (_ []model.HistoryEntry, err error) {
	const op = "store.FetchTransactionHistory"
	s.begin()
	defer func() { s.finish(err) }()

	if cached, ok, cacheErr := s.cache.Get(ctx); cacheErr != nil {
		s.log.Warn("history cache read failed", slog.String("op", op), sl.Err(cacheErr))
	} else if ok {
		s.setHistory(cached)
		return s.History(), nil
	}

	entries := make([]model.HistoryEntry, 0)
	for _, kind := range []model.HistoryKind{model.HistoryPayment, model.HistoryTransaction} {
		collection, _ := model.CollectionForKind(kind)
		docs, err := s.docs.List(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrFetch, err)
		}
		for _, doc := range docs {
			entry, decodeErr := model.HistoryEntryFromFields(kind, doc.ID, doc.Fields)
			if decodeErr != nil {
				s.log.Warn("skipping malformed history record", slog.String("op", op), slog.String("id", doc.ID), sl.Err(decodeErr))
				continue
			}
			entries = append(entries, entry)
		}
	}
	model.SortHistory(entries)

	if cacheErr := s.cache.Set(ctx, entries); cacheErr != nil {
		s.log.Warn("history cache write failed", slog.String("op", op), sl.Err(cacheErr))
	}
	s.setHistory(entries)
	return s.History(), nil
}

func (s *Store) DeleteHistoryEntry(ctx context.Context, kind model.HistoryKind, id string) (err error) {
	s.begin()
	defer func() { s.finish(err) }()

	collection, ok := model.CollectionForKind(kind)
	if !ok {
		return fmt.Errorf("%w: unknown history kind %q", ErrDelete, kind)
	}

	if err := s.docs.Delete(ctx, collection, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
		}
		return fmt.Errorf("%w: %w", ErrDelete, err)
	}

	s.mu.Lock()
	kept := s.history[:0:0]
	for _, entry := range s.history {
		if entry.Kind == kind && entry.ID == id {
			continue
		}
		kept = append(kept, entry)
	}
	s.history = kept
	s.mu.Unlock()
	s.invalidateHistory(ctx)

	return nil
}

// SyncRemaining persists a countdown value for an active session. value is
// read while the session lock is held and reports false when nothing should
// be written. Syncs do not touch the shared status slot.
func (s *Store) SyncRemaining(ctx context.Context, id string, value func() (int, bool)) error {
	unlock := s.locks.Lock(id)
	defer unlock()

	session, err := s.readSession(ctx, id, ErrUpdate)
	if err != nil {
		return err
	}
	if session.Completed() {
		return nil
	}

	remaining, ok := value()
	if !ok {
		return nil
	}
	if remaining < 0 {
		remaining = 0
	}

	now := s.now().UTC()
	session.RemainingTime = remaining
	session.EndTime = now.Add(time.Duration(remaining) * time.Second)
	return s.writeSession(ctx, session, map[string]any{
		"remainingTime": session.RemainingTime,
		"endTime":       model.FormatTimestamp(session.EndTime),
	})
}

// readSession loads the remote session. Missing documents map to
// ErrNotFound, other failures to failErr.
func (s *Store) readSession(ctx context.Context, id string, failErr error) (model.Session, error) {
	doc, err := s.docs.Read(ctx, model.CollectionSessions, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return model.Session{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return model.Session{}, fmt.Errorf("%w: %w", failErr, err)
	}
	session, err := model.SessionFromFields(doc.ID, doc.Fields)
	if err != nil {
		return model.Session{}, fmt.Errorf("%w: %w", failErr, err)
	}
	return session, nil
}

func (s *Store) writeSession(ctx context.Context, session model.Session, partial map[string]any) error {
	if _, err := s.docs.Update(ctx, model.CollectionSessions, session.ID, partial); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrNotFound, session.ID)
		}
		return fmt.Errorf("%w: %w", ErrUpdate, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.sessions {
		if s.sessions[i].ID == session.ID {
			s.sessions[i] = session
			return nil
		}
	}
	s.sessions = append(s.sessions, session)
	return nil
}

func (s *Store) dropSession(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.removeSessionLocked(id)
}

func (s *Store) removeSessionLocked(id string) {
	kept := make([]model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		if session.ID != id {
			kept = append(kept, session)
		}
	}
	s.sessions = kept
}

func (s *Store) hasHistoryLocked(kind model.HistoryKind, id string) bool {
	for _, entry := range s.history {
		if entry.Kind == kind && entry.ID == id {
			return true
		}
	}
	return false
}

func (s *Store) setHistory(entries []model.HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = make([]model.HistoryEntry, len(entries))
	copy(s.history, entries)
}

func (s *Store) invalidateHistory(ctx context.Context) {
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("history cache invalidate failed", slog.String("op", "store.invalidateHistory"), sl.Err(err))
	}
}

type noopCache struct{}

func (noopCache) Get(context.Context) ([]model.HistoryEntry, bool, error) { return nil, false, nil }
func (noopCache) Set(context.Context, []model.HistoryEntry) error          { return nil }
func (noopCache) Invalidate(context.Context) error                         { return nil }
