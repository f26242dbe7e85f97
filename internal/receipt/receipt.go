// Package receipt renders PDF payment receipts for sessions.
package receipt

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"warnet/backend/internal/model"
)

type Receipt struct {
	SessionID    string
	CustomerName string
	PackageName  string
	Minutes      int
	Total        int
	Method       string
	IssuedAt     time.Time
}

func FromSession(session model.Session, method string, now time.Time) Receipt {
	if method == "" {
		method = model.DefaultPaymentMethod
	}
	return Receipt{
		SessionID:    session.ID,
		CustomerName: session.Name,
		PackageName:  session.PackageName,
		Minutes:      session.Time,
		Total:        session.Price,
		Method:       method,
		IssuedAt:     now,
	}
}

func FromTransaction(txn model.Transaction) Receipt {
	method := txn.PaymentMethod
	if method == "" {
		method = model.DefaultPaymentMethod
	}
	name := txn.CustomerName
	if name == "" {
		name = txn.Name
	}
	return Receipt{
		SessionID:    txn.UserID,
		CustomerName: name,
		PackageName:  txn.PackageName,
		Minutes:      txn.Time,
		Total:        txn.Amount,
		Method:       method,
		IssuedAt:     txn.PaymentTime,
	}
}

// Number is the short receipt number printed on the slip.
func (r Receipt) Number() string {
	if len(r.SessionID) > 8 {
		return r.SessionID[:8]
	}
	return r.SessionID
}

type Generator struct {
	dir string
}

func NewGenerator(dir string) *Generator {
	return &Generator{dir: dir}
}

var headerFill = [3]int{41, 128, 185}

func (g *Generator) Write(w io.Writer, r Receipt) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Receipt "+r.Number(), true)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "WARNET PAYMENT RECEIPT", "", 1, "C", false, 0, "")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 12)
	pdf.CellFormat(0, 8, "Receipt No: "+r.Number(), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 8, "Date: "+r.IssuedAt.Format("02 Jan 2006 15:04:05"), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	table(pdf, "Customer", [][2]string{
		{"Name", r.CustomerName},
		{"Package", model.ShortPackageName(r.PackageName)},
		{"Duration", strconv.Itoa(r.Minutes) + " minutes"},
	}, false)
	pdf.Ln(6)

	table(pdf, "Payment", [][2]string{
		{"Total", Rupiah(r.Total)},
		{"Status", "PAID"},
		{"Method", r.Method},
	}, true)
	pdf.Ln(10)

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(0, 6, "Thank you for visiting", "", 1, "C", false, 0, "")
	pdf.CellFormat(0, 6, "~ This receipt is valid proof of payment ~", "", 1, "C", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render receipt: %w", err)
	}
	return nil
}

// Save writes the receipt into the generator's directory and returns the
// file path.
func (g *Generator) Save(r Receipt) (string, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return "", fmt.Errorf("create receipts dir: %w", err)
	}

	name := fmt.Sprintf("receipt-%s-%d.pdf", slug(r.CustomerName), r.IssuedAt.UnixMilli())
	path := filepath.Join(g.dir, name)
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create receipt file: %w", err)
	}

	if err := g.Write(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close receipt file: %w", err)
	}
	return path, nil
}

func table(pdf *fpdf.Fpdf, title string, rows [][2]string, shaded bool) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.SetFillColor(headerFill[0], headerFill[1], headerFill[2])
	pdf.SetTextColor(255, 255, 255)
	pdf.CellFormat(0, 10, title, "1", 1, "L", true, 0, "")

	pdf.SetFont("Helvetica", "", 12)
	pdf.SetTextColor(0, 0, 0)
	pdf.SetFillColor(245, 245, 245)
	for _, row := range rows {
		pdf.CellFormat(60, 10, row[0], "1", 0, "L", shaded, 0, "")
		pdf.CellFormat(0, 10, row[1], "1", 1, "L", shaded, 0, "")
	}
}

// Rupiah formats an amount with dot thousands separators, e.g. "Rp 10.000".
func Rupiah(amount int) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	digits := strconv.Itoa(amount)
	var b strings.Builder
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return "Rp " + sign + b.String()
}

func slug(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	if b.Len() == 0 {
		return "customer"
	}
	return b.String()
}
