package settlement

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeHashesDeterministic(t *testing.T) {
	taskID, tokenID := "task-123", "token-abc"

	sum := sha256.Sum256([]byte(taskID + tokenID + "payment"))
	expectedPayment := hex.EncodeToString(sum[:])
	paymentHash := ComputePaymentHash(taskID, tokenID)
	require.Equal(t, expectedPayment, paymentHash)

	sum2 := sha256.Sum256([]byte(taskID + paymentHash + "proof"))
	expectedProof := hex.EncodeToString(sum2[:])
	require.Equal(t, expectedProof, ComputeProofHash(taskID, paymentHash))
}

func TestStateTransitions(t *testing.T) {
	paymentHash := ComputePaymentHash("task-1", "token-1")
	proofHash := ComputeProofHash("task-1", paymentHash)
	rec := &Record{
		TaskID:           "task-1",
		TokenID:          "token-1",
		PaymentHash:      paymentHash,
		ProofHash:        proofHash,
		BtcpayInvoiceID:  "inv-1",
		BtcpayInvoiceURL: "https://example.com/i/inv-1",
		State:            Requested,
		RequestedAt:      1,
	}

	rec.MarkLocked(2)
	require.Equal(t, LockedAcked, rec.State)

	require.NoError(t, rec.MarkClaimed(proofHash, 3))
	require.Equal(t, Claimed, rec.State)
	require.NotNil(t, rec.ClaimedAt)
	require.Equal(t, int64(3), *rec.ClaimedAt)
}

func TestProofBeforeLockRejected(t *testing.T) {
	paymentHash := ComputePaymentHash("task-2", "token-2")
	proofHash := ComputeProofHash("task-2", paymentHash)
	rec := &Record{
		TaskID:           "task-2",
		TokenID:          "token-2",
		PaymentHash:      paymentHash,
		ProofHash:        proofHash,
		BtcpayInvoiceID:  "inv-2",
		BtcpayInvoiceURL: "https://example.com/i/inv-2",
		State:            Requested,
		RequestedAt:      1,
	}

	err := rec.MarkClaimed(proofHash, 2)
	require.ErrorIs(t, err, ErrProofBeforeLock)
}

func TestProofHashMismatchRejected(t *testing.T) {
	paymentHash := ComputePaymentHash("task-3", "token-3")
	proofHash := ComputeProofHash("task-3", paymentHash)
	rec := &Record{
		TaskID:      "task-3",
		TokenID:     "token-3",
		PaymentHash: paymentHash,
		ProofHash:   proofHash,
		State:       Requested,
		RequestedAt: 1,
	}
	rec.MarkLocked(2)

	err := rec.MarkClaimed("not-the-right-hash", 3)
	require.ErrorIs(t, err, ErrProofHashMismatch)
}

func TestStorePersistsAndReloads(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settlement.json")

	store, err := NewStore(path)
	require.NoError(t, err)

	paymentHash := ComputePaymentHash("task-9", "token-9")
	rec := &Record{
		TaskID:          "task-9",
		TokenID:         "token-9",
		PaymentHash:     paymentHash,
		ProofHash:       ComputeProofHash("task-9", paymentHash),
		BtcpayInvoiceID: "inv-9",
		State:           Requested,
		RequestedAt:     100,
	}
	require.NoError(t, store.Upsert(rec))

	reloaded, err := NewStore(path)
	require.NoError(t, err)

	got := reloaded.Get("task-9")
	require.NotNil(t, got)
	require.Equal(t, "inv-9", got.BtcpayInvoiceID)

	byInvoice := reloaded.GetByInvoiceID("inv-9")
	require.NotNil(t, byInvoice)
	require.Equal(t, "task-9", byInvoice.TaskID)
}
