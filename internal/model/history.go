package model

import (
	"fmt"
	"sort"
	"time"
)

type HistoryKind string

const (
	HistoryPayment     HistoryKind = "payment"
	HistoryTransaction HistoryKind = "transaction"
)

const UnknownCustomer = "Unknown customer"

// HistoryEntry is one row of the merged payment history. Timestamp is
// resolved once when the entry is built.
type HistoryEntry struct {
	Kind          HistoryKind  `json:"kind"`
	ID            string       `json:"id"`
	SessionID     string       `json:"userId"`
	CustomerName  string       `json:"customerName"`
	PackageName   string       `json:"packageName"`
	Duration      int          `json:"duration"`
	Amount        int          `json:"amount"`
	PaymentMethod string       `json:"paymentMethod"`
	Timestamp     time.Time    `json:"timestamp"`
	Payment       *Payment     `json:"payment,omitempty"`
	Transaction   *Transaction `json:"transaction,omitempty"`
}

func PaymentEntry(p Payment) HistoryEntry {
	name := p.CustomerName
	if name == "" {
		name = p.UserData.Name
	}
	if name == "" {
		name = UnknownCustomer
	}
	return HistoryEntry{
		Kind:          HistoryPayment,
		ID:            p.ID,
		SessionID:     p.UserID,
		CustomerName:  name,
		PackageName:   p.UserData.Package,
		Duration:      p.UserData.Duration,
		Amount:        p.AmountPaid,
		PaymentMethod: p.PaymentMethod,
		Timestamp:     p.Date,
		Payment:       &p,
	}
}

func TransactionEntry(t Transaction) HistoryEntry {
	name := t.CustomerName
	if name == "" {
		name = t.Name
	}
	if name == "" {
		name = UnknownCustomer
	}
	return HistoryEntry{
		Kind:          HistoryTransaction,
		ID:            t.ID,
		SessionID:     t.UserID,
		CustomerName:  name,
		PackageName:   t.PackageName,
		Duration:      t.Time,
		Amount:        t.Amount,
		PaymentMethod: t.PaymentMethod,
		Timestamp:     t.PaymentTime,
		Transaction:   &t,
	}
}

// HistoryEntryFromFields decodes a stored payment or transaction document.
// Either collection may carry "date" or "paymentTime"; "date" wins.
func HistoryEntryFromFields(kind HistoryKind, id string, fields map[string]any) (HistoryEntry, error) {
	var entry HistoryEntry
	switch kind {
	case HistoryPayment:
		p, err := PaymentFromFields(id, fields)
		if err != nil {
			return HistoryEntry{}, err
		}
		entry = PaymentEntry(p)
	case HistoryTransaction:
		t, err := TransactionFromFields(id, fields)
		if err != nil {
			return HistoryEntry{}, err
		}
		entry = TransactionEntry(t)
	default:
		return HistoryEntry{}, fmt.Errorf("unknown history kind %q", kind)
	}

	if ts, err := timeField(fields, "date"); err == nil && !ts.IsZero() {
		entry.Timestamp = ts
	} else if ts, err := timeField(fields, "paymentTime"); err == nil && !ts.IsZero() {
		entry.Timestamp = ts
	}
	return entry, nil
}

// SortHistory orders entries newest first. Equal timestamps keep their
// relative order.
func SortHistory(entries []HistoryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
}

func CollectionForKind(kind HistoryKind) (string, bool) {
	switch kind {
	case HistoryPayment:
		return CollectionPayments, true
	case HistoryTransaction:
		return CollectionTransactions, true
	default:
		return "", false
	}
}
