package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"warnet/backend/internal/catalog"
	apperrors "warnet/backend/internal/errors"
	"warnet/backend/internal/events"
	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/lifecycle"
	"warnet/backend/internal/metrics"
	"warnet/backend/internal/model"
	"warnet/backend/internal/receipt"
	"warnet/backend/internal/store"
	"warnet/backend/internal/timer"
)

// BillingService turns operator intents into store transitions and keeps
// timers, receipts, events and metrics in step with them.
type BillingService struct {
	store    *store.Store
	catalog  *catalog.Catalog
	timers   *timer.Manager
	receipts *receipt.Generator
	events   *events.Emitter
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time
}

func NewBillingService(
	st *store.Store,
	cat *catalog.Catalog,
	timers *timer.Manager,
	receipts *receipt.Generator,
	emitter *events.Emitter,
	m *metrics.Metrics,
	log *slog.Logger,
) *BillingService {
	return &BillingService{
		store:    st,
		catalog:  cat,
		timers:   timers,
		receipts: receipts,
		events:   emitter,
		metrics:  m,
		log:      log,
		now:      time.Now,
	}
}

// OnSessionExpired is the countdown expiry hook.
func OnSessionExpired(ctx context.Context, emitter *events.Emitter, m *metrics.Metrics) func(sessionID string) {
	ctx = context.WithoutCancel(ctx)
	return func(sessionID string) {
		m.Expirations.Inc()
		emitter.Emit(ctx, events.SessionExpired, sessionID, nil)
	}
}

type SessionView struct {
	model.Session
	PackageLabel string       `json:"packageLabel"`
	Timer        *timer.State `json:"timer,omitempty"`
}

type ExtendRequest struct {
	PackageID string `json:"packageId"`
	Minutes   int    `json:"minutes"`
}

type FinalizeResult struct {
	Transaction model.Transaction `json:"transaction"`
	ReceiptPath string            `json:"receiptPath,omitempty"`
}

type PaymentView struct {
	Session       SessionView          `json:"session"`
	Total         int                  `json:"total"`
	TotalDisplay  string               `json:"totalDisplay"`
	PaymentMethod string               `json:"paymentMethod"`
	Payments      []model.HistoryEntry `json:"payments"`
}

type Dashboard struct {
	ActiveSessions  int    `json:"activeSessions"`
	AwaitingPayment int    `json:"awaitingPayment"`
	Unpaid          int    `json:"unpaid"`
	PaidRevenue     int    `json:"paidRevenue"`
	HistoryRevenue  int    `json:"historyRevenue"`
	RunningTimers   int    `json:"runningTimers"`
	Status          string `json:"status"`
}

func (s *BillingService) Packages() []model.Package {
	return s.catalog.Packages()
}

func (s *BillingService) Status() store.Status {
	return s.store.Status()
}

// Refresh reloads sessions and payment history from the document store and
// starts countdowns for active sessions.
func (s *BillingService) Refresh(ctx context.Context) ([]SessionView, *apperrors.APIError) {
	sessions, err := s.store.FetchSessions(ctx)
	if err != nil {
		return nil, s.storeError("refresh", err)
	}
	if _, err := s.store.FetchTransactionHistory(ctx); err != nil {
		return nil, s.storeError("history", err)
	}
	for _, session := range sessions {
		s.timers.Start(context.WithoutCancel(ctx), session)
	}
	s.syncGauges()
	return s.views(sessions), nil
}

func (s *BillingService) ListSessions() []SessionView {
	return s.views(s.store.Sessions())
}

func (s *BillingService) GetSession(id string) (*SessionView, *apperrors.APIError) {
	session, ok := s.store.Session(id)
	if !ok {
		return nil, sessionNotFound()
	}
	view := s.view(session)
	return &view, nil
}

func (s *BillingService) AddSession(ctx context.Context, name, packageID string) (*SessionView, *apperrors.APIError) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperrors.BadRequest("invalid_name", "customer name is required")
	}
	pkg, ok := s.catalog.Find(packageID)
	if !ok {
		return nil, apperrors.BadRequest("invalid_package", "unknown package")
	}

	session, err := s.store.AddSession(ctx, name, pkg)
	if err != nil {
		return nil, s.storeError(string(lifecycle.Add), err)
	}

	s.timers.Start(context.WithoutCancel(ctx), session)
	s.transitioned(ctx, lifecycle.Add, events.SessionAdded, session.ID, map[string]any{
		"name":    session.Name,
		"package": pkg.ID,
	})
	view := s.view(session)
	return &view, nil
}

func (s *BillingService) ExtendSession(ctx context.Context, id string, req ExtendRequest) (*SessionView, *apperrors.APIError) {
	pkg, apiErr := s.extensionPackage(req)
	if apiErr != nil {
		return nil, apiErr
	}

	session, err := s.store.ExtendSession(ctx, id, pkg)
	if err != nil {
		return nil, s.storeError(string(lifecycle.Extend), err)
	}

	s.transitioned(ctx, lifecycle.Extend, events.SessionExtended, id, map[string]any{
		"minutes": pkg.Time,
		"price":   pkg.Price,
	})
	view := s.view(session)
	return &view, nil
}

func (s *BillingService) extensionPackage(req ExtendRequest) (model.Package, *apperrors.APIError) {
	if req.PackageID != "" {
		pkg, ok := s.catalog.Find(req.PackageID)
		if !ok {
			return model.Package{}, apperrors.BadRequest("invalid_package", "unknown package")
		}
		return pkg, nil
	}

	pkg, err := catalog.Extension(req.Minutes)
	if err != nil {
		return model.Package{}, apperrors.BadRequest("invalid_minutes", err.Error())
	}
	return pkg, nil
}

func (s *BillingService) CompleteSession(ctx context.Context, id string) (*SessionView, *apperrors.APIError) {
	session, err := s.store.MarkSessionCompleted(ctx, id)
	if err != nil {
		return nil, s.storeError(string(lifecycle.Complete), err)
	}

	s.timers.Stop(id)
	s.transitioned(ctx, lifecycle.Complete, events.SessionCompleted, id, map[string]any{
		"price": session.Price,
	})
	view := s.view(session)
	return &view, nil
}

func (s *BillingService) RecordPayment(ctx context.Context, id string, amount int, method string) (*model.Payment, *apperrors.APIError) {
	if amount <= 0 {
		return nil, apperrors.BadRequest("invalid_amount", "amount must be positive")
	}

	payment, err := s.store.RecordPayment(ctx, id, amount, strings.TrimSpace(method))
	if err != nil {
		return nil, s.storeError(string(lifecycle.RecordPayment), err)
	}

	s.transitioned(ctx, lifecycle.RecordPayment, events.PaymentRecorded, id, map[string]any{
		"paymentId": payment.ID,
		"amount":    payment.AmountPaid,
		"method":    payment.PaymentMethod,
	})
	return &payment, nil
}

// FinalizeTransaction archives the session. The receipt is saved on a best
// effort basis; a failure there is logged and does not fail the call.
func (s *BillingService) FinalizeTransaction(ctx context.Context, id string) (*FinalizeResult, *apperrors.APIError) {
	const op = "service.FinalizeTransaction"

	txn, err := s.store.FinalizeTransaction(ctx, id)
	if err != nil {
		return nil, s.storeError(string(lifecycle.Finalize), err)
	}

	s.timers.Stop(id)
	s.metrics.RevenueTotal.Add(float64(txn.Amount))
	s.transitioned(ctx, lifecycle.Finalize, events.TransactionFinalized, id, map[string]any{
		"amount": txn.Amount,
	})

	result := &FinalizeResult{Transaction: txn}
	path, err := s.receipts.Save(receipt.FromTransaction(txn))
	if err != nil {
		s.log.Error("failed to save receipt", slog.String("op", op), slog.String("session_id", id), sl.Err(err))
		return result, nil
	}
	result.ReceiptPath = path
	return result, nil
}

func (s *BillingService) RemoveSession(ctx context.Context, id string) *apperrors.APIError {
	if err := s.store.RemoveSession(ctx, id); err != nil {
		return s.storeError(string(lifecycle.Remove), err)
	}

	s.timers.Stop(id)
	s.transitioned(ctx, lifecycle.Remove, events.SessionRemoved, id, nil)
	return nil
}

func (s *BillingService) PauseTimer(id string) (*timer.State, *apperrors.APIError) {
	state, err := s.timers.Pause(id)
	if err != nil {
		return nil, s.timerError(id, err)
	}
	return &state, nil
}

func (s *BillingService) ResumeTimer(id string) (*timer.State, *apperrors.APIError) {
	state, err := s.timers.Resume(id)
	if err != nil {
		return nil, s.timerError(id, err)
	}
	return &state, nil
}

func (s *BillingService) TimerState(id string) (*timer.State, *apperrors.APIError) {
	state, ok := s.timers.Snapshot(id)
	if !ok {
		return nil, s.timerError(id, timer.ErrNotRunning)
	}
	return &state, nil
}

func (s *BillingService) timerError(id string, err error) *apperrors.APIError {
	if _, ok := s.store.Session(id); !ok {
		return sessionNotFound()
	}
	if errors.Is(err, timer.ErrNotRunning) {
		return apperrors.Conflict("timer_not_running", "session has no running timer", nil)
	}
	return apperrors.Internal("timer error")
}

// PaymentView backs the /payment/:sessionId deep link.
func (s *BillingService) PaymentView(id string) (*PaymentView, *apperrors.APIError) {
	session, ok := s.store.Session(id)
	if !ok {
		return nil, sessionNotFound()
	}

	payments := make([]model.HistoryEntry, 0)
	for _, entry := range s.store.History() {
		if entry.Kind == model.HistoryPayment && entry.SessionID == id {
			payments = append(payments, entry)
		}
	}

	return &PaymentView{
		Session:       s.view(session),
		Total:         session.Price,
		TotalDisplay:  receipt.Rupiah(session.Price),
		PaymentMethod: model.DefaultPaymentMethod,
		Payments:      payments,
	}, nil
}

// Receipt renders a PDF receipt for a session that is still present.
func (s *BillingService) Receipt(id, method string) ([]byte, string, *apperrors.APIError) {
	session, ok := s.store.Session(id)
	if !ok {
		return nil, "", sessionNotFound()
	}

	r := receipt.FromSession(session, method, s.now())
	var buf bytes.Buffer
	if err := s.receipts.Write(&buf, r); err != nil {
		s.log.Error("failed to render receipt", slog.String("session_id", id), sl.Err(err))
		return nil, "", apperrors.Internal("failed to render receipt")
	}
	return buf.Bytes(), fmt.Sprintf("receipt-%s.pdf", r.Number()), nil
}

func (s *BillingService) History(ctx context.Context) ([]model.HistoryEntry, *apperrors.APIError) {
	entries, err := s.store.FetchTransactionHistory(ctx)
	if err != nil {
		return nil, s.storeError("history", err)
	}
	return entries, nil
}

// DeleteHistoryEntry removes a payment or transaction record. kind is the
// collection name used in routes.
func (s *BillingService) DeleteHistoryEntry(ctx context.Context, kind, id string) *apperrors.APIError {
	var historyKind model.HistoryKind
	switch kind {
	case model.CollectionPayments:
		historyKind = model.HistoryPayment
	case model.CollectionTransactions:
		historyKind = model.HistoryTransaction
	default:
		return apperrors.BadRequest("invalid_kind", "kind must be payments or transactions")
	}

	if err := s.store.DeleteHistoryEntry(ctx, historyKind, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperrors.NotFound("record_not_found", "history record not found")
		}
		return s.storeError("delete_history", err)
	}

	s.events.Emit(ctx, events.HistoryDeleted, "", map[string]any{"kind": historyKind, "id": id})
	return nil
}

func (s *BillingService) Dashboard() Dashboard {
	d := Dashboard{
		RunningTimers: s.timers.Running(),
		Status:        string(s.store.Status().State),
	}
	for _, session := range s.store.Sessions() {
		d.ActiveSessions++
		if session.Completed() {
			d.AwaitingPayment++
		}
		switch session.PaymentStatus {
		case model.PaymentStatusPaid:
			d.PaidRevenue += session.Price
		case model.PaymentStatusNotPaid:
			d.Unpaid++
		}
	}
	for _, entry := range s.store.History() {
		if entry.Kind == model.HistoryTransaction {
			d.HistoryRevenue += entry.Amount
		}
	}
	return d
}

func (s *BillingService) transitioned(ctx context.Context, action lifecycle.Action, eventType events.Type, sessionID string, data any) {
	s.metrics.Transitions.WithLabelValues(string(action)).Inc()
	s.syncGauges()
	s.events.Emit(ctx, eventType, sessionID, data)
}

func (s *BillingService) syncGauges() {
	s.metrics.ActiveSessions.Set(float64(len(s.store.Sessions())))
	s.metrics.RunningTimers.Set(float64(s.timers.Running()))
}

func (s *BillingService) views(sessions []model.Session) []SessionView {
	out := make([]SessionView, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, s.view(session))
	}
	return out
}

func (s *BillingService) view(session model.Session) SessionView {
	view := SessionView{
		Session:      session,
		PackageLabel: model.ShortPackageName(session.PackageName),
	}
	if state, ok := s.timers.Snapshot(session.ID); ok {
		view.Timer = &state
	}
	return view
}

// storeError maps a store failure onto an API error. The message is the
// same text the store records in its status slot.
func (s *BillingService) storeError(action string, err error) *apperrors.APIError {
	s.metrics.StoreErrors.WithLabelValues(action).Inc()

	switch {
	case errors.Is(err, store.ErrNotFound):
		return sessionNotFound()
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return apperrors.Conflict("invalid_transition", err.Error(), nil)
	}

	s.log.Error("store operation failed", slog.String("action", action), sl.Err(err))
	code := "store_error"
	switch {
	case errors.Is(err, store.ErrFetch):
		code = "fetch_failed"
	case errors.Is(err, store.ErrCreate):
		code = "create_failed"
	case errors.Is(err, store.ErrDelete):
		code = "delete_failed"
	case errors.Is(err, store.ErrUpdate):
		code = "update_failed"
	case errors.Is(err, store.ErrFinalize):
		code = "finalize_failed"
	}
	return apperrors.InternalCode(code, err.Error())
}

func sessionNotFound() *apperrors.APIError {
	return apperrors.NotFound("session_not_found", "session not found")
}
