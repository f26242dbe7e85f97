package model

import (
	"fmt"
	"time"
)

func (s Session) Fields() map[string]any {
	return map[string]any{
		"name":          s.Name,
		"packageName":   s.PackageName,
		"time":          s.Time,
		"price":         s.Price,
		"startTime":     FormatTimestamp(s.StartTime),
		"endTime":       FormatTimestamp(s.EndTime),
		"remainingTime": s.RemainingTime,
		"paymentStatus": s.PaymentStatus,
		"status":        s.Status,
	}
}

func SessionFromFields(id string, fields map[string]any) (Session, error) {
	r := fieldReader{fields: fields}
	session := Session{
		ID:            id,
		Name:          r.string("name"),
		PackageName:   r.string("packageName"),
		Time:          r.int("time"),
		Price:         r.int("price"),
		StartTime:     r.time("startTime"),
		EndTime:       r.time("endTime"),
		RemainingTime: r.int("remainingTime"),
		PaymentStatus: r.string("paymentStatus"),
		Status:        r.string("status"),
	}
	if r.err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", id, r.err)
	}
	if session.Status == "" {
		session.Status = SessionStatusActive
	}
	if session.PaymentStatus == "" {
		session.PaymentStatus = PaymentStatusNotPaid
	}
	return session, nil
}

type PaymentUserData struct {
	Name     string `json:"name"`
	Package  string `json:"package"`
	Duration int    `json:"duration"`
}

type Payment struct {
	ID            string          `json:"id"`
	UserID        string          `json:"userId"`
	CustomerName  string          `json:"customerName"`
	UserData      PaymentUserData `json:"userData"`
	AmountPaid    int             `json:"amountPaid"`
	PaymentMethod string          `json:"paymentMethod"`
	Date          time.Time       `json:"date"`
}

func NewPayment(session Session, amount int, method string, now time.Time) Payment {
	if method == "" {
		method = DefaultPaymentMethod
	}
	return Payment{
		UserID:       session.ID,
		CustomerName: session.Name,
		UserData: PaymentUserData{
			Name:     session.Name,
			Package:  session.PackageName,
			Duration: session.Time,
		},
		AmountPaid:    amount,
		PaymentMethod: method,
		Date:          now.UTC(),
	}
}

func (p Payment) Fields() map[string]any {
	return map[string]any{
		"userId":       p.UserID,
		"customerName": p.CustomerName,
		"userData": map[string]any{
			"name":     p.UserData.Name,
			"package":  p.UserData.Package,
			"duration": p.UserData.Duration,
		},
		"amountPaid":    p.AmountPaid,
		"paymentMethod": p.PaymentMethod,
		"date":          FormatTimestamp(p.Date),
	}
}

func PaymentFromFields(id string, fields map[string]any) (Payment, error) {
	r := fieldReader{fields: fields}
	userData := fieldReader{fields: mapField(fields, "userData")}
	payment := Payment{
		ID:           id,
		UserID:       r.string("userId"),
		CustomerName: r.string("customerName"),
		UserData: PaymentUserData{
			Name:     userData.string("name"),
			Package:  userData.string("package"),
			Duration: userData.int("duration"),
		},
		AmountPaid:    r.int("amountPaid"),
		PaymentMethod: r.string("paymentMethod"),
		Date:          r.time("date"),
	}
	if r.err != nil {
		return Payment{}, fmt.Errorf("decode payment %s: %w", id, r.err)
	}
	if userData.err != nil {
		return Payment{}, fmt.Errorf("decode payment %s: %w", id, userData.err)
	}
	return payment, nil
}

// Transaction is the archived record of a paid session. Its ID is the ID of
// the session it was built from.
type Transaction struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	CustomerName  string    `json:"customerName"`
	Name          string    `json:"name"`
	PackageName   string    `json:"packageName"`
	Time          int       `json:"time"`
	Price         int       `json:"price"`
	StartTime     time.Time `json:"startTime"`
	EndTime       time.Time `json:"endTime"`
	RemainingTime int       `json:"remainingTime"`
	PaymentStatus string    `json:"paymentStatus"`
	PaymentTime   time.Time `json:"paymentTime"`
	PaymentMethod string    `json:"paymentMethod"`
	Status        string    `json:"status"`
	Amount        int       `json:"amount"`
}

func NewTransaction(session Session, now time.Time) Transaction {
	return Transaction{
		ID:            session.ID,
		UserID:        session.ID,
		CustomerName:  session.Name,
		Name:          session.Name,
		PackageName:   session.PackageName,
		Time:          session.Time,
		Price:         session.Price,
		StartTime:     session.StartTime,
		EndTime:       session.EndTime,
		RemainingTime: session.RemainingTime,
		PaymentStatus: PaymentStatusPaid,
		PaymentTime:   now.UTC(),
		PaymentMethod: DefaultPaymentMethod,
		Status:        SessionStatusCompleted,
		Amount:        session.Price,
	}
}

func (t Transaction) Fields() map[string]any {
	return map[string]any{
		"userId":        t.UserID,
		"customerName":  t.CustomerName,
		"name":          t.Name,
		"packageName":   t.PackageName,
		"time":          t.Time,
		"price":         t.Price,
		"startTime":     FormatTimestamp(t.StartTime),
		"endTime":       FormatTimestamp(t.EndTime),
		"remainingTime": t.RemainingTime,
		"paymentStatus": t.PaymentStatus,
		"paymentTime":   FormatTimestamp(t.PaymentTime),
		"paymentMethod": t.PaymentMethod,
		"status":        t.Status,
		"amount":        t.Amount,
	}
}

func TransactionFromFields(id string, fields map[string]any) (Transaction, error) {
	r := fieldReader{fields: fields}
	txn := Transaction{
		ID:            id,
		UserID:        r.string("userId"),
		CustomerName:  r.string("customerName"),
		Name:          r.string("name"),
		PackageName:   r.string("packageName"),
		Time:          r.int("time"),
		Price:         r.int("price"),
		StartTime:     r.time("startTime"),
		EndTime:       r.time("endTime"),
		RemainingTime: r.int("remainingTime"),
		PaymentStatus: r.string("paymentStatus"),
		PaymentTime:   r.time("paymentTime"),
		PaymentMethod: r.string("paymentMethod"),
		Status:        r.string("status"),
		Amount:        r.int("amount"),
	}
	if r.err != nil {
		return Transaction{}, fmt.Errorf("decode transaction %s: %w", id, r.err)
	}
	return txn, nil
}
