package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"warnet/backend/internal/catalog"
	"warnet/backend/internal/db"
	"warnet/backend/internal/events"
	"warnet/backend/internal/handler"
	"warnet/backend/internal/lib/sl"
	"warnet/backend/internal/metrics"
	"warnet/backend/internal/receipt"
	"warnet/backend/internal/repository"
	"warnet/backend/internal/router"
	"warnet/backend/internal/service"
	"warnet/backend/internal/store"
	"warnet/backend/internal/timer"
)

const (
	adminEmail    = "admin@warnet.test"
	adminPassword = "secret123"
)

type loginResponse struct {
	Token string `json:"token"`
	Admin struct {
		Email string `json:"email"`
	} `json:"admin"`
}

type sessionBody struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	Time          int    `json:"time"`
	Price         int    `json:"price"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	PackageLabel  string `json:"packageLabel"`
	Timer         *struct {
		Remaining int    `json:"remaining"`
		Display   string `json:"display"`
	} `json:"timer"`
}

type sessionEnvelope struct {
	Session sessionBody `json:"session"`
}

type sessionsEnvelope struct {
	Sessions []sessionBody `json:"sessions"`
}

type paymentEnvelope struct {
	Payment struct {
		ID         string `json:"id"`
		AmountPaid int    `json:"amountPaid"`
	} `json:"payment"`
}

type finalizeEnvelope struct {
	Transaction struct {
		ID            string `json:"id"`
		Amount        int    `json:"amount"`
		PaymentStatus string `json:"paymentStatus"`
	} `json:"transaction"`
	ReceiptPath string `json:"receiptPath"`
}

type paymentViewEnvelope struct {
	Total        int    `json:"total"`
	TotalDisplay string `json:"totalDisplay"`
}

type historyEnvelope struct {
	History []struct {
		Kind   string `json:"kind"`
		ID     string `json:"id"`
		Amount int    `json:"amount"`
	} `json:"history"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestBillingFlow(t *testing.T) {
	engine := setupTestEngine(t)
	token := login(t, engine)

	status, raw := requestJSON(t, engine, http.MethodPost, "/api/sessions", token, map[string]string{
		"name":      "Alice",
		"packageId": "2h",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on add, got %d: %s", status, raw)
	}
	var added sessionEnvelope
	decode(t, raw, &added)
	session := added.Session
	if session.Price != 9000 || session.Time != 120 {
		t.Fatalf("unexpected session totals: %+v", session)
	}
	if session.PackageLabel != "2 Hours" {
		t.Fatalf("unexpected package label %q", session.PackageLabel)
	}
	if session.Timer == nil || session.Timer.Remaining <= 0 {
		t.Fatal("expected a running timer for a new session")
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+session.ID+"/extend", token, map[string]int{
		"minutes": 30,
	})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on extend, got %d: %s", status, raw)
	}
	var extended sessionEnvelope
	decode(t, raw, &extended)
	if extended.Session.Price != 14000 || extended.Session.Time != 150 {
		t.Fatalf("unexpected totals after extend: %+v", extended.Session)
	}

	// An active session cannot be finalized.
	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+session.ID+"/finalize", token, nil)
	if status != http.StatusConflict {
		t.Fatalf("expected 409 on early finalize, got %d: %s", status, raw)
	}
	if code := errorCode(t, raw); code != "invalid_transition" {
		t.Fatalf("expected invalid_transition, got %s", code)
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+session.ID+"/complete", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on complete, got %d: %s", status, raw)
	}
	var completed sessionEnvelope
	decode(t, raw, &completed)
	if completed.Session.Status != "completed" || completed.Session.PaymentStatus != "pending_payment" {
		t.Fatalf("unexpected completed session: %+v", completed.Session)
	}
	if completed.Session.Timer != nil {
		t.Fatal("expected the timer to stop once the session is completed")
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/payment/"+session.ID, token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for payment view, got %d: %s", status, raw)
	}
	var view paymentViewEnvelope
	decode(t, raw, &view)
	if view.Total != 14000 || view.TotalDisplay != "Rp 14.000" {
		t.Fatalf("unexpected payment view: %+v", view)
	}

	recorder := do(engine, http.MethodGet, "/api/payment/"+session.ID+"/receipt", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for receipt, got %d", recorder.Code)
	}
	if ct := recorder.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Fatalf("unexpected receipt content type %q", ct)
	}
	if !bytes.HasPrefix(recorder.Body.Bytes(), []byte("%PDF")) {
		t.Fatal("receipt body is not a PDF")
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+session.ID+"/payments", token, map[string]any{
		"amount":        14000,
		"paymentMethod": "QRIS",
	})
	if status != http.StatusCreated {
		t.Fatalf("expected 201 on payment, got %d: %s", status, raw)
	}
	var payment paymentEnvelope
	decode(t, raw, &payment)
	if payment.Payment.AmountPaid != 14000 {
		t.Fatalf("unexpected payment: %+v", payment.Payment)
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+session.ID+"/finalize", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 on finalize, got %d: %s", status, raw)
	}
	var finalized finalizeEnvelope
	decode(t, raw, &finalized)
	if finalized.Transaction.ID != session.ID || finalized.Transaction.Amount != 14000 {
		t.Fatalf("unexpected transaction: %+v", finalized.Transaction)
	}
	if finalized.Transaction.PaymentStatus != "Paid" {
		t.Fatalf("expected Paid transaction, got %s", finalized.Transaction.PaymentStatus)
	}
	if finalized.ReceiptPath == "" {
		t.Fatal("expected a saved receipt")
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/payment/"+session.ID, token, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for finalized session, got %d", status)
	}
	if code := errorCode(t, raw); code != "session_not_found" {
		t.Fatalf("expected session_not_found, got %s", code)
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/sessions", token, nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for sessions, got %d", status)
	}
	var sessions sessionsEnvelope
	decode(t, raw, &sessions)
	if len(sessions.Sessions) != 0 {
		t.Fatalf("expected no sessions left, got %d", len(sessions.Sessions))
	}

	history := getHistory(t, engine, token)
	if len(history.History) != 2 {
		t.Fatalf("expected payment and transaction in history, got %d", len(history.History))
	}

	status, raw = requestJSON(t, engine, http.MethodDelete, "/api/transactions/payments/"+payment.Payment.ID, token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on history delete, got %d: %s", status, raw)
	}
	history = getHistory(t, engine, token)
	if len(history.History) != 1 || history.History[0].Kind != "transaction" {
		t.Fatalf("expected only the transaction left, got %+v", history.History)
	}
}

func TestSessionErrors(t *testing.T) {
	engine := setupTestEngine(t)
	token := login(t, engine)

	cases := []struct {
		name   string
		method string
		path   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown package", http.MethodPost, "/api/sessions", map[string]string{"name": "Bob", "packageId": "9h"}, http.StatusBadRequest, "invalid_package"},
		{"blank name", http.MethodPost, "/api/sessions", map[string]string{"name": " ", "packageId": "1h"}, http.StatusBadRequest, "invalid_name"},
		{"missing session", http.MethodGet, "/api/sessions/missing", nil, http.StatusNotFound, "session_not_found"},
		{"extend missing", http.MethodPost, "/api/sessions/missing/extend", map[string]int{"minutes": 30}, http.StatusNotFound, "session_not_found"},
		{"payment view missing", http.MethodGet, "/api/payment/missing", nil, http.StatusNotFound, "session_not_found"},
		{"timer missing", http.MethodGet, "/api/sessions/missing/timer", nil, http.StatusNotFound, "session_not_found"},
		{"bad history kind", http.MethodDelete, "/api/transactions/sessions/x", nil, http.StatusBadRequest, "invalid_kind"},
		{"missing history record", http.MethodDelete, "/api/transactions/payments/missing", nil, http.StatusNotFound, "record_not_found"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, raw := requestJSON(t, engine, tc.method, tc.path, token, tc.body)
			if status != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, status, raw)
			}
			if code := errorCode(t, raw); code != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, code)
			}
		})
	}
}

func TestExtendValidation(t *testing.T) {
	engine := setupTestEngine(t)
	token := login(t, engine)
	id := addSession(t, engine, token, "Citra", "1h")

	status, raw := requestJSON(t, engine, http.MethodPost, "/api/sessions/"+id+"/extend", token, map[string]int{"minutes": 0})
	if status != http.StatusBadRequest || errorCode(t, raw) != "invalid_minutes" {
		t.Fatalf("expected invalid_minutes, got %d: %s", status, raw)
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+id+"/extend", token, map[string]string{"packageId": "1h"})
	if status != http.StatusOK {
		t.Fatalf("expected 200 on package extend, got %d: %s", status, raw)
	}
	var extended sessionEnvelope
	decode(t, raw, &extended)
	if extended.Session.Time != 120 || extended.Session.Price != 10000 {
		t.Fatalf("unexpected totals after package extend: %+v", extended.Session)
	}
}

func TestTimerPauseResume(t *testing.T) {
	engine := setupTestEngine(t)
	token := login(t, engine)
	id := addSession(t, engine, token, "Dedi", "1h")

	status, raw := requestJSON(t, engine, http.MethodPost, "/api/sessions/"+id+"/timer/pause", token, nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"paused":true`) {
		t.Fatalf("expected paused timer, got %d: %s", status, raw)
	}

	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+id+"/timer/resume", token, nil)
	if status != http.StatusOK || !strings.Contains(string(raw), `"paused":false`) {
		t.Fatalf("expected running timer, got %d: %s", status, raw)
	}

	status, _ = requestJSON(t, engine, http.MethodDelete, "/api/sessions/"+id, token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on remove, got %d", status)
	}
	status, raw = requestJSON(t, engine, http.MethodPost, "/api/sessions/"+id+"/timer/pause", token, nil)
	if status != http.StatusNotFound || errorCode(t, raw) != "session_not_found" {
		t.Fatalf("expected session_not_found after remove, got %d: %s", status, raw)
	}
}

func TestAuth(t *testing.T) {
	engine := setupTestEngine(t)

	status, raw := requestJSON(t, engine, http.MethodGet, "/api/sessions", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d: %s", status, raw)
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": "wrong-password",
	})
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", status)
	}

	token := login(t, engine)
	status, raw = requestJSON(t, engine, http.MethodGet, "/api/auth/me", token, nil)
	if status != http.StatusOK || !strings.Contains(string(raw), adminEmail) {
		t.Fatalf("expected current admin, got %d: %s", status, raw)
	}

	status, _ = requestJSON(t, engine, http.MethodPost, "/api/auth/logout", token, nil)
	if status != http.StatusNoContent {
		t.Fatalf("expected 204 on logout, got %d", status)
	}

	status, raw = requestJSON(t, engine, http.MethodGet, "/api/auth/me", token, nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("expected 401 for revoked token, got %d: %s", status, raw)
	}
}

func TestLoginRateLimited(t *testing.T) {
	engine := setupTestEngine(t)
	body := map[string]string{"email": "nobody@warnet.test", "password": "wrong-password"}

	var last int
	for i := 0; i < 4; i++ {
		last, _ = requestJSON(t, engine, http.MethodPost, "/api/auth/login", "", body)
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after burst, got %d", last)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	engine := setupTestEngine(t)

	status, _ := requestJSON(t, engine, http.MethodGet, "/health", "", nil)
	if status != http.StatusOK {
		t.Fatalf("expected 200 for health, got %d", status)
	}

	recorder := do(engine, http.MethodGet, "/metrics", "", nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("expected 200 for metrics, got %d", recorder.Code)
	}
	if !strings.Contains(recorder.Body.String(), "warnet_http_requests_total") {
		t.Fatal("expected request counter in metrics output")
	}
}

func TestCORSPreflight(t *testing.T) {
	engine := setupTestEngine(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/transactions/payments/x", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", "DELETE")
	recorder := httptest.NewRecorder()

	engine.ServeHTTP(recorder, req)

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", recorder.Code)
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected allow-origin header: %s", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
	if !strings.Contains(recorder.Header().Get("Access-Control-Allow-Methods"), http.MethodDelete) {
		t.Fatalf("expected DELETE in allowed methods: %s", recorder.Header().Get("Access-Control-Allow-Methods"))
	}
}

func setupTestEngine(t *testing.T) http.Handler {
	t.Helper()

	database, err := db.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = database.Close()
	})

	_, currentFile, _, _ := runtime.Caller(0)
	migrationsDir := filepath.Join(filepath.Dir(currentFile), "..", "..", "migrations")
	if err := db.RunMigrations(database, migrationsDir); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	log := sl.Discard()
	ctx := context.Background()
	docs := repository.NewSQLiteDocumentStore(database)
	m := metrics.New()
	emitter := events.NewEmitter(events.NewNoopPublisher(log), log, nil)
	st := store.New(docs, log)
	timers := timer.NewManager(st, docs, log, timer.Config{
		Tick:         time.Second,
		SyncInterval: time.Hour,
		OnExpire:     service.OnSessionExpired(ctx, emitter, m),
	})
	t.Cleanup(timers.StopAll)

	authService := service.NewAuthService(repository.NewAdminRepository(docs), "test-secret", 24*time.Hour, log)
	if err := authService.EnsureAdmin(ctx, adminEmail, adminPassword); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	billingService := service.NewBillingService(
		st,
		catalog.Default(),
		timers,
		receipt.NewGenerator(t.TempDir()),
		emitter,
		m,
		log,
	)

	return router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewBillingHandler(billingService),
		m,
		log,
		router.Config{
			CORSOrigins: []string{"http://localhost:5173"},
			LoginRate:   0.1,
			LoginBurst:  3,
		},
	)
}

func login(t *testing.T, server http.Handler) string {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email":    adminEmail,
		"password": adminPassword,
	})
	if status != http.StatusOK {
		t.Fatalf("login failed with status %d: %s", status, string(body))
	}
	var resp loginResponse
	decode(t, body, &resp)
	if resp.Token == "" {
		t.Fatal("empty token")
	}
	if resp.Admin.Email != adminEmail {
		t.Fatalf("unexpected admin %q", resp.Admin.Email)
	}
	return resp.Token
}

func addSession(t *testing.T, server http.Handler, token, name, packageID string) string {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodPost, "/api/sessions", token, map[string]string{
		"name":      name,
		"packageId": packageID,
	})
	if status != http.StatusCreated {
		t.Fatalf("add session failed with status %d: %s", status, string(body))
	}
	var resp sessionEnvelope
	decode(t, body, &resp)
	return resp.Session.ID
}

func getHistory(t *testing.T, server http.Handler, token string) historyEnvelope {
	t.Helper()
	status, body := requestJSON(t, server, http.MethodGet, "/api/transactions", token, nil)
	if status != http.StatusOK {
		t.Fatalf("history failed with status %d: %s", status, string(body))
	}
	var resp historyEnvelope
	decode(t, body, &resp)
	return resp
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var resp apiErrorEnvelope
	decode(t, body, &resp)
	return resp.Error.Code
}

func decode(t *testing.T, body []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(body, out); err != nil {
		t.Fatalf("unmarshal response %s: %v", string(body), err)
	}
}

func do(server http.Handler, method, path, token string, payload []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	server.ServeHTTP(recorder, req)
	return recorder
}

func requestJSON(
	t *testing.T,
	server http.Handler,
	method, path, token string,
	body interface{},
) (int, []byte) {
	t.Helper()

	var payload []byte
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request body: %v", err)
		}
		payload = raw
	}

	recorder := do(server, method, path, token, payload)
	return recorder.Code, recorder.Body.Bytes()
}
