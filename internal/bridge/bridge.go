// Package bridge orchestrates the settlement-bridge demo flow: create an
// invoice, send a task_request, wait for payment, send a payment_lock, wait
// for the executor's proof, and record the settlement outcome (§4.10,
// grounded on controller/settlement_bridge.py's main()).
package bridge

import (
	"encoding/json"
	"net"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/dyson-labs/scrap/internal/invoiceclient"
	"github.com/dyson-labs/scrap/internal/settlement"
	"github.com/dyson-labs/scrap/internal/udpconn"
	"github.com/dyson-labs/scrap/internal/wireproto"
)

var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// Error is a settlement-bridge failure carrying the exit-code-bearing error
// code from §7 (e.g. invoice_timeout, proof_timeout, task_rejected).
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string { return e.Code + ": " + e.Message }

func errf(code, format string, args ...interface{}) error {
	return &Error{Code: code, Message: errors.Errorf(format, args...).Error()}
}

// TaskRequestPayload is the settlement bridge's own task_request envelope.
// It carries the bridge-specific fields from the reference's
// build_task_request (§4.10) -- payment_terms, correlation_id, and the full
// token object for operator tooling -- AND the message_type/message_name/
// capability_token_b64 fields a real executor's handleDatagram requires
// (§6), so the one datagram satisfies both sides of the wire rather than
// needing a translation layer.
type TaskRequestPayload struct {
	MessageType         wireproto.MessageType `json:"message_type"`
	MessageName         string                `json:"message_name"`
	Version             int                   `json:"version"`
	Type                string                `json:"type"`
	TaskID              string                `json:"task_id"`
	RequestedCapability string                `json:"requested_capability"`
	PaymentTerms        PaymentTerms          `json:"payment_terms"`
	CorrelationID       string                `json:"correlation_id"`
	Token               json.RawMessage       `json:"token"`
	CapabilityTokenB64  string                `json:"capability_token_b64"`
	CommanderPubkey     string                `json:"commander_pubkey"`
	CommanderSignature  string                `json:"commander_signature"`
	MaxAmountSats       int64                 `json:"max_amount_sats"`
}

// PaymentTerms bounds the amount and settlement window for a task request.
type PaymentTerms struct {
	MaxAmountSats int64 `json:"max_amount_sats"`
	TimeoutBlocks int64 `json:"timeout_blocks"`
}

// PaymentLock notifies the executor that payment has moved into an
// irrevocable lock state.
type PaymentLock struct {
	Type          string `json:"type"`
	TaskID        string `json:"task_id"`
	CorrelationID string `json:"correlation_id"`
	PaymentHash   string `json:"payment_hash"`
	AmountSats    int64  `json:"amount_sats"`
	TimeoutBlocks int64  `json:"timeout_blocks"`
	Timestamp     int64  `json:"timestamp"`
}

// inboundEnvelope sniffs the bridge-specific "type" discriminator used by
// task_accepted/proof/task_rejected/payment_claim replies (§4.10).
type inboundEnvelope struct {
	Type string `json:"type"`
}

// Config bundles everything Run needs for a single settlement-bridge
// invocation.
type Config struct {
	USDAmount           float64
	TaskID              string
	TokenID             string
	TokenJSON           json.RawMessage
	CapabilityTokenB64  string
	RequestedCapability string
	CommanderPubkey     string
	TargetAddr          string
	BindAddr            string
	MaxAmountSats       int64
	TimeoutBlocks       int64
	PollInterval        time.Duration
	InvoiceTimeout      time.Duration
	ExecTimeout         time.Duration
	Store               *settlement.Store
	InvoiceClient       invoiceclient.Client
	Clock               clock.Clock
}

// Run executes the full bridge flow and returns the final settlement
// Record, or an *Error describing which phase failed (§4.10, §7).
func Run(cfg Config) (*settlement.Record, error) {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}

	correlationID := derivedCorrelationID(cfg.TaskID, cfg.TokenID)
	paymentHash := settlement.ComputePaymentHash(cfg.TaskID, cfg.TokenID)
	proofHash := settlement.ComputeProofHash(cfg.TaskID, paymentHash)

	metadata := map[string]string{
		"task_id":      cfg.TaskID,
		"token_id":     cfg.TokenID,
		"payment_hash": paymentHash,
		"proof_hash":   proofHash,
	}

	created, err := cfg.InvoiceClient.CreateInvoice(cfg.USDAmount, metadata)
	if err != nil {
		return nil, errf("invoice_create_failed", "creating invoice: %v", err)
	}

	rec := &settlement.Record{
		TaskID:           cfg.TaskID,
		TokenID:          cfg.TokenID,
		PaymentHash:      paymentHash,
		ProofHash:        proofHash,
		BtcpayInvoiceID:  created.InvoiceID,
		BtcpayInvoiceURL: created.InvoiceURL,
		State:            settlement.Requested,
		RequestedAt:      cfg.Clock.Now().Unix(),
	}
	if err := cfg.Store.Upsert(rec); err != nil {
		return nil, errf("store_error", "persisting requested record: %v", err)
	}
	log.Infof("invoice_created task_id=%s invoice_id=%s usd_amount=%.2f", cfg.TaskID, created.InvoiceID, cfg.USDAmount)

	conn, err := udpconn.Bind(cfg.BindAddr)
	if err != nil {
		return nil, errf("bind_error", "binding UDP socket: %v", err)
	}
	defer conn.Close()

	request := TaskRequestPayload{
		MessageType:         wireproto.MsgTaskRequest,
		MessageName:         "task_request",
		Version:             1,
		Type:                "task_request",
		TaskID:              cfg.TaskID,
		RequestedCapability: cfg.RequestedCapability,
		PaymentTerms: PaymentTerms{
			MaxAmountSats: cfg.MaxAmountSats,
			TimeoutBlocks: cfg.TimeoutBlocks,
		},
		CorrelationID:      correlationID,
		Token:              cfg.TokenJSON,
		CapabilityTokenB64: cfg.CapabilityTokenB64,
		CommanderPubkey:    cfg.CommanderPubkey,
		CommanderSignature: "mock",
		MaxAmountSats:      cfg.MaxAmountSats,
	}
	if err := udpconn.Send(conn, cfg.TargetAddr, request); err != nil {
		return nil, errf("send_error", "sending task_request: %v", err)
	}
	log.Infof("task_request_sent task_id=%s target=%s", cfg.TaskID, cfg.TargetAddr)

	if err := waitForPayment(cfg, created.InvoiceID); err != nil {
		rec.LastError = err.Error()
		cfg.Store.Upsert(rec)
		return rec, err
	}
	rec.MarkLocked(cfg.Clock.Now().Unix())
	if err := cfg.Store.Upsert(rec); err != nil {
		return rec, errf("store_error", "persisting locked record: %v", err)
	}
	log.Infof("payment_locked task_id=%s", cfg.TaskID)

	lock := PaymentLock{
		Type:          "payment_lock",
		TaskID:        cfg.TaskID,
		CorrelationID: correlationID,
		PaymentHash:   paymentHash,
		AmountSats:    cfg.MaxAmountSats,
		TimeoutBlocks: cfg.TimeoutBlocks,
		Timestamp:     cfg.Clock.Now().Unix(),
	}
	if err := udpconn.Send(conn, cfg.TargetAddr, lock); err != nil {
		return rec, errf("send_error", "sending payment_lock: %v", err)
	}
	log.Infof("payment_lock_sent task_id=%s payment_hash=%s", cfg.TaskID, paymentHash)

	if err := waitForProof(cfg, conn, paymentHash, proofHash); err != nil {
		rec.LastError = err.Error()
		cfg.Store.Upsert(rec)
		return rec, err
	}

	if err := rec.MarkClaimed(proofHash, cfg.Clock.Now().Unix()); err != nil {
		wrapped := errf("settlement_error", "marking claimed: %v", err)
		rec.LastError = wrapped.Error()
		cfg.Store.Upsert(rec)
		return rec, wrapped
	}
	if err := cfg.Store.Upsert(rec); err != nil {
		return rec, errf("store_error", "persisting claimed record: %v", err)
	}

	log.Infof("demo_success task_id=%s invoice_id=%s payment_hash=%s proof_hash=%s",
		cfg.TaskID, created.InvoiceID, paymentHash, proofHash)
	return rec, nil
}

func waitForPayment(cfg Config, invoiceID string) error {
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	timeout := cfg.InvoiceTimeout
	if timeout <= 0 {
		timeout = 900 * time.Second
	}
	deadline := cfg.Clock.Now().Add(timeout)

	pollTicker := ticker.New(pollInterval)
	pollTicker.Resume()
	defer pollTicker.Stop()

	for cfg.Clock.Now().Before(deadline) {
		inv, err := cfg.InvoiceClient.GetInvoice(invoiceID)
		if err != nil {
			return errf("invoice_error", "polling invoice: %v", err)
		}
		if inv.Paid() {
			return nil
		}
		<-pollTicker.Ticks
	}
	return errf("invoice_timeout", "invoice not paid before timeout")
}

func waitForProof(cfg Config, conn *net.UDPConn, expectedPaymentHash, expectedProofHash string) error {
	timeout := cfg.ExecTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		raw, _, err := udpconn.Recv(conn)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return errf("recv_error", "reading reply: %v", err)
		}

		var env inboundEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.Type {
		case "task_accepted":
			var msg struct {
				PaymentHash string `json:"payment_hash"`
			}
			json.Unmarshal(raw, &msg)
			if msg.PaymentHash != expectedPaymentHash {
				return errf("payment_hash_mismatch", "task_accepted payment_hash mismatch")
			}
			log.Infof("task_accepted payment_hash=%s", msg.PaymentHash)
		case "proof":
			var msg struct {
				TaskID    string `json:"task_id"`
				ProofHash string `json:"proof_hash"`
			}
			json.Unmarshal(raw, &msg)
			if msg.ProofHash != expectedProofHash {
				return errf("proof_hash_mismatch", "proof hash mismatch")
			}
			log.Infof("proof_received proof_hash=%s", msg.ProofHash)
			return nil
		case "task_rejected":
			var msg struct {
				Details []string `json:"details"`
			}
			json.Unmarshal(raw, &msg)
			return errf("task_rejected", "task rejected: %v", msg.Details)
		case "payment_claim":
			var msg struct {
				PaymentHash string `json:"payment_hash"`
			}
			json.Unmarshal(raw, &msg)
			log.Infof("payment_claim_received payment_hash=%s", msg.PaymentHash)
		}
	}
	return errf("proof_timeout", "proof not received before timeout")
}
