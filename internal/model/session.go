package model

import (
	"strconv"
	"strings"
	"time"
)

const (
	PaymentStatusNotPaid = "Not Paid"
	PaymentStatusPending = "pending_payment"
	PaymentStatusPaid    = "Paid"

	SessionStatusActive    = "active"
	SessionStatusCompleted = "completed"
)

const (
	CollectionSessions     = "users"
	CollectionPayments     = "payments"
	CollectionTransactions = "transactions"
	CollectionAdmins       = "admins"
	CollectionRevoked      = "revoked_tokens"
)

const DefaultPaymentMethod = "QRIS"

// CriticalSeconds is the remaining time under which a countdown is shown as critical.
const CriticalSeconds = 5 * 60

type Package struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Time  int    `json:"time"`
	Price int    `json:"price"`
}

type Session struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	PackageName   string    `json:"packageName"`
	Time          int       `json:"time"`
	Price         int       `json:"price"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	RemainingTime int       `json:"remainingTime"`
	PaymentStatus string    `json:"paymentStatus"`
	Status        string    `json:"status"`
}

func NewSession(name string, pkg Package, now time.Time) Session {
	now = now.UTC()
	return Session{
		Name:          name,
		PackageName:   pkg.Name,
		Time:          pkg.Time,
		Price:         pkg.Price,
		StartTime:     now,
		EndTime:       now.Add(time.Duration(pkg.Time) * time.Minute),
		RemainingTime: pkg.Time * 60,
		PaymentStatus: PaymentStatusNotPaid,
		Status:        SessionStatusActive,
	}
}

func (s Session) Completed() bool {
	return s.Status == SessionStatusCompleted
}

// Extended returns the session with pkg merged in. The new deadline counts
// from whichever is later of the current deadline and now.
func (s Session) Extended(pkg Package, now time.Time) Session {
	now = now.UTC()
	base := s.EndTime
	if base.IsZero() || base.Before(now) {
		base = now
	}
	s.EndTime = base.Add(time.Duration(pkg.Time) * time.Minute)
	s.Time += pkg.Time
	s.Price += pkg.Price
	if s.PackageName == "" {
		s.PackageName = pkg.Name
	} else {
		s.PackageName = s.PackageName + " + " + pkg.Name
	}
	s.RemainingTime = RemainingSeconds(s.EndTime, now)
	return s
}

func (s Session) MarkedCompleted(now time.Time) Session {
	s.Status = SessionStatusCompleted
	s.PaymentStatus = PaymentStatusPending
	s.EndTime = now.UTC()
	return s
}

// RemainingSeconds is floor(end - now) clamped at zero.
func RemainingSeconds(end, now time.Time) int {
	if end.IsZero() {
		return 0
	}
	diff := int(end.Sub(now) / time.Second)
	if diff < 0 {
		return 0
	}
	return diff
}

const maxPackageLabel = 48

// ShortPackageName caps the cumulative package label for display.
func ShortPackageName(name string) string {
	parts := strings.Split(name, " + ")
	if len(parts) <= 2 && len(name) <= maxPackageLabel {
		return name
	}
	label := parts[0] + " + " + strconv.Itoa(len(parts)-1) + " extensions"
	if len(label) > maxPackageLabel {
		return label[:maxPackageLabel]
	}
	return label
}
