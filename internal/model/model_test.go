package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hourPackage = Package{ID: "1h", Name: "1 Hour", Time: 60, Price: 5000}

func TestNewSession(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Alice", hourPackage, now)

	assert.Equal(t, 3600, s.RemainingTime)
	assert.Equal(t, PaymentStatusNotPaid, s.PaymentStatus)
	assert.Equal(t, SessionStatusActive, s.Status)
	assert.Equal(t, now.Add(time.Hour), s.EndTime)
	assert.Equal(t, "1 Hour", s.PackageName)
}

func TestExtendedFromFutureDeadline(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Alice", hourPackage, now)

	later := now.Add(10 * time.Minute)
	ext := s.Extended(Package{Name: "Extra 30 minutes", Time: 30, Price: 5000}, later)

	assert.Equal(t, now.Add(90*time.Minute), ext.EndTime)
	assert.Equal(t, 90, ext.Time)
	assert.Equal(t, 10000, ext.Price)
	assert.Equal(t, "1 Hour + Extra 30 minutes", ext.PackageName)
	assert.Equal(t, 80*60, ext.RemainingTime)
}

func TestExtendedFromExpiredDeadline(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Bob", hourPackage, now)

	later := now.Add(3 * time.Hour)
	ext := s.Extended(hourPackage, later)

	assert.Equal(t, later.Add(time.Hour), ext.EndTime)
	assert.Equal(t, 3600, ext.RemainingTime)
}

func TestMarkedCompleted(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Alice", hourPackage, now).MarkedCompleted(now.Add(time.Minute))

	assert.True(t, s.Completed())
	assert.Equal(t, PaymentStatusPending, s.PaymentStatus)
	assert.Equal(t, now.Add(time.Minute), s.EndTime)
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, RemainingSeconds(now.Add(-time.Second), now))
	assert.Equal(t, 0, RemainingSeconds(time.Time{}, now))
	assert.Equal(t, 1, RemainingSeconds(now.Add(1900*time.Millisecond), now))
}

func TestSessionFieldsRoundTripThroughJSON(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Alice", hourPackage, now)
	s.ID = "abc"

	raw, err := json.Marshal(s.Fields())
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))

	decoded, err := SessionFromFields("abc", fields)
	require.NoError(t, err)
	assert.Equal(t, s, decoded)
}

func TestSessionFromFieldsDefaults(t *testing.T) {
	s, err := SessionFromFields("x", map[string]any{"name": "Legacy", "time": 60.0, "price": 5000.0})
	require.NoError(t, err)
	assert.Equal(t, SessionStatusActive, s.Status)
	assert.Equal(t, PaymentStatusNotPaid, s.PaymentStatus)
	assert.Equal(t, 60, s.Time)

	_, err = SessionFromFields("x", map[string]any{"endTime": "yesterday"})
	assert.Error(t, err)
}

func TestHistoryEntryResolvesTimestamp(t *testing.T) {
	entry, err := HistoryEntryFromFields(HistoryTransaction, "t1", map[string]any{
		"customerName": "Alice",
		"amount":       10000.0,
		"paymentTime":  "2024-02-01T00:00:00Z",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), entry.Timestamp)
	assert.Equal(t, 10000, entry.Amount)

	entry, err = HistoryEntryFromFields(HistoryPayment, "p1", map[string]any{
		"date":        "2024-01-01T00:00:00Z",
		"paymentTime": "2024-05-01T00:00:00Z",
		"userData":    map[string]any{"name": "Bob", "package": "1 Hour", "duration": 60.0},
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), entry.Timestamp)
	assert.Equal(t, "Bob", entry.CustomerName)
	assert.Equal(t, 60, entry.Duration)

	_, err = HistoryEntryFromFields("refund", "r1", map[string]any{})
	assert.Error(t, err)
}

func TestSortHistory(t *testing.T) {
	payment := PaymentEntry(Payment{ID: "p", Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)})
	txn := TransactionEntry(Transaction{ID: "t", PaymentTime: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)})
	tieA := PaymentEntry(Payment{ID: "a", Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})
	tieB := PaymentEntry(Payment{ID: "b", Date: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)})

	entries := []HistoryEntry{tieA, payment, tieB, txn}
	SortHistory(entries)

	ids := []string{entries[0].ID, entries[1].ID, entries[2].ID, entries[3].ID}
	assert.Equal(t, []string{"t", "p", "a", "b"}, ids)
	assert.Equal(t, UnknownCustomer, entries[0].CustomerName)
}

func TestNewTransaction(t *testing.T) {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	s := NewSession("Alice", hourPackage, now).MarkedCompleted(now)
	s.ID = "sess-1"

	txn := NewTransaction(s, now)
	assert.Equal(t, "sess-1", txn.ID)
	assert.Equal(t, "sess-1", txn.UserID)
	assert.Equal(t, 5000, txn.Amount)
	assert.Equal(t, SessionStatusCompleted, txn.Status)
	assert.Equal(t, PaymentStatusPaid, txn.PaymentStatus)
	assert.Equal(t, DefaultPaymentMethod, txn.PaymentMethod)
}

func TestShortPackageName(t *testing.T) {
	assert.Equal(t, "1 Hour", ShortPackageName("1 Hour"))
	assert.Equal(t, "1 Hour + Extra 30 minutes", ShortPackageName("1 Hour + Extra 30 minutes"))
	assert.Equal(t, "1 Hour + 3 extensions",
		ShortPackageName("1 Hour + Extra 30 minutes + Extra 30 minutes + Extra 60 minutes"))
}
