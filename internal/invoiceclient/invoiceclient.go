// Package invoiceclient abstracts the BTCPay-like invoicing backend used by
// the settlement bridge to gate task execution on payment (§4.10, grounded
// on controller/settlement_bridge.py's BtcpayClient hierarchy).
package invoiceclient

import (
	"strings"

	"github.com/go-errors/errors"
)

// Invoice is the normalized view of an invoice's current status, regardless
// of which backend produced it.
type Invoice struct {
	Status           string
	PaidAt           *int64
	Amount           float64
	Currency         string
	Metadata         map[string]string
	AdditionalStatus string
}

// paidStatuses mirrors the reference implementation's PAID_STATUSES set.
var paidStatuses = map[string]bool{
	"paid": true, "confirmed": true, "complete": true, "settled": true,
}

// Paid reports whether inv should be treated as settled for demo purposes.
func (inv Invoice) Paid() bool {
	return paidStatuses[strings.ToLower(inv.Status)] || paidStatuses[strings.ToLower(inv.AdditionalStatus)]
}

// CreatedInvoice is the result of creating a new invoice.
type CreatedInvoice struct {
	InvoiceID  string
	InvoiceURL string
	Status     string
}

// Client is the invoicing backend contract consumed by the bridge.
type Client interface {
	CreateInvoice(usdAmount float64, metadata map[string]string) (CreatedInvoice, error)
	GetInvoice(invoiceID string) (Invoice, error)
}

// ErrInvoiceMissing is returned by Fake.GetInvoice for an unknown invoice id.
var ErrInvoiceMissing = errors.New("invoiceclient: unknown invoice")
