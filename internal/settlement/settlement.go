// Package settlement tracks per-task payment state on the operator side of
// the settlement bridge (§4.9, grounded on settlement.py and
// htlcswitch/switch_control.go's ControlTower state-transition pattern).
package settlement

import (
	"encoding/hex"
	"sync"

	"github.com/go-errors/errors"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
)

// State is a settlement record's position in the Requested -> LockedAcked ->
// Claimed lifecycle (§4.9).
type State string

const (
	Requested   State = "Requested"
	LockedAcked State = "LockedAcked"
	Claimed     State = "Claimed"
)

var (
	// ErrProofBeforeLock signals a proof arrived for a record that never
	// reached LockedAcked.
	ErrProofBeforeLock = errors.New("proof_before_lock")

	// ErrProofHashMismatch signals a proof whose proof_hash doesn't match
	// the one computed at request time.
	ErrProofHashMismatch = errors.New("proof_hash_mismatch")
)

// ComputePaymentHash derives payment_hash = sha256(task_id || token_id ||
// "payment") (§4.9). The result is returned hex-encoded, matching the
// reference implementation's on-the-wire representation.
func ComputePaymentHash(taskID, tokenID string) string {
	sum := cryptoeng.SHA256([]byte(taskID + tokenID + "payment"))
	return hex.EncodeToString(sum[:])
}

// ComputeProofHash derives proof_hash = sha256(task_id || payment_hash_hex ||
// "proof") (§4.9).
func ComputeProofHash(taskID, paymentHash string) string {
	sum := cryptoeng.SHA256([]byte(taskID + paymentHash + "proof"))
	return hex.EncodeToString(sum[:])
}

// Record is the durable state of one task's settlement.
type Record struct {
	TaskID           string `json:"task_id"`
	TokenID          string `json:"token_id"`
	PaymentHash      string `json:"payment_hash"`
	ProofHash        string `json:"proof_hash"`
	BtcpayInvoiceID  string `json:"btcpay_invoice_id"`
	BtcpayInvoiceURL string `json:"btcpay_invoice_url"`
	State            State  `json:"state"`
	RequestedAt      int64  `json:"requested_at"`
	LockedAt         *int64 `json:"locked_at,omitempty"`
	ClaimedAt        *int64 `json:"claimed_at,omitempty"`
	LastError        string `json:"last_error,omitempty"`

	mu sync.Mutex
}

// MarkLocked transitions Requested -> LockedAcked. A record already past
// Requested is left untouched, mirroring the reference's idempotent guard.
func (r *Record) MarkLocked(lockedAt int64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State == Requested {
		r.State = LockedAcked
		r.LockedAt = &lockedAt
	}
}

// MarkClaimed transitions LockedAcked -> Claimed after validating that
// proofHash matches the value computed at request time (§4.9, §7).
func (r *Record) MarkClaimed(proofHash string, claimedAt int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.State != LockedAcked {
		return ErrProofBeforeLock
	}
	if proofHash != r.ProofHash {
		return ErrProofHashMismatch
	}
	r.State = Claimed
	r.ClaimedAt = &claimedAt
	return nil
}
