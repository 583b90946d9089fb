package invoiceclient

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/lightningnetwork/lnd/clock"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
)

type fakeInvoice struct {
	id        string
	status    string
	amount    float64
	metadata  map[string]string
	createdAt int64
	paidAt    *int64
}

// Fake is an in-memory invoicing backend that auto-pays every invoice after
// a configurable delay, for local demos without a real BTCPay server
// (§4.10, grounded on settlement_bridge.py's FakeBtcpayClient).
type Fake struct {
	mu              sync.Mutex
	autoPayAfterSec int64
	invoices        map[string]*fakeInvoice
	clock           clock.Clock
}

// NewFake returns a Fake client that marks an invoice Paid autoPayAfterSec
// seconds after creation. A negative value disables auto-pay entirely.
func NewFake(autoPayAfterSec int64) *Fake {
	return &Fake{
		autoPayAfterSec: autoPayAfterSec,
		invoices:        map[string]*fakeInvoice{},
		clock:           clock.NewDefaultClock(),
	}
}

// CreateInvoice deterministically derives an invoice id from the amount and
// task/token metadata, matching the reference implementation's fixture id
// scheme.
func (f *Fake) CreateInvoice(usdAmount float64, metadata map[string]string) (CreatedInvoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sum := cryptoeng.SHA256([]byte(fmt.Sprintf("%.2f%s%sfake",
		usdAmount, metadata["task_id"], metadata["token_id"])))
	invoiceID := hex.EncodeToString(sum[:])[:32]

	now := f.clock.Now().Unix()
	f.invoices[invoiceID] = &fakeInvoice{
		id:        invoiceID,
		status:    "New",
		amount:    usdAmount,
		metadata:  metadata,
		createdAt: now,
	}

	return CreatedInvoice{
		InvoiceID:  invoiceID,
		InvoiceURL: "https://fake.btcpay.local/i/" + invoiceID,
		Status:     "New",
	}, nil
}

// GetInvoice transitions a New invoice to Paid once autoPayAfterSec has
// elapsed since creation.
func (f *Fake) GetInvoice(invoiceID string) (Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	inv, ok := f.invoices[invoiceID]
	if !ok {
		return Invoice{}, ErrInvoiceMissing
	}

	now := f.clock.Now().Unix()
	if inv.status == "New" && f.autoPayAfterSec >= 0 && now-inv.createdAt >= f.autoPayAfterSec {
		inv.status = "Paid"
		paidAt := now
		inv.paidAt = &paidAt
	}

	return Invoice{
		Status:   inv.status,
		PaidAt:   inv.paidAt,
		Amount:   inv.amount,
		Currency: "USD",
		Metadata: inv.metadata,
	}, nil
}
