// Package commander implements the SCRAP commander role: it builds a signed
// task_request, sends it to an executor, and waits for the resulting
// task_accept/task_reject/proof sequence (§4.1, grounded on
// node/commander.py).
package commander

import (
	"encoding/json"
	"net"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/ticker"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/udpconn"
	"github.com/dyson-labs/scrap/internal/wireproto"
)

var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// Config describes a single task request the commander should send.
type Config struct {
	TargetAddr          string
	TaskID              string
	TaskType            string
	RequestedCapability string
	MaxAmountSats       int64
	TokenB64            string
	CommanderPubkey     string
	CommanderPrivkey    string
	AllowMockSignatures bool
	Timeout             time.Duration
	Engine              cryptoeng.SchnorrEngine
	Now                 func() time.Time
}

// Outcome summarizes what the commander observed in response to its request.
type Outcome struct {
	Accepted bool
	Rejected bool
	Proved   bool
	Reject   *wireproto.TaskReject
	Accept   *wireproto.TaskAccept
	Proof    *wireproto.Proof
	TimedOut bool
}

// BuildRequest constructs and, if keys are available, signs the
// task_request for cfg (§4.1, §4.5).
func BuildRequest(cfg Config) (*wireproto.TaskRequest, error) {
	now := time.Now
	if cfg.Now != nil {
		now = cfg.Now
	}

	req := &wireproto.TaskRequest{
		MessageType:         wireproto.MsgTaskRequest,
		MessageName:         "task_request",
		TaskID:              cfg.TaskID,
		Timestamp:           now().Unix(),
		TaskType:            cfg.TaskType,
		RequestedCapability: cfg.RequestedCapability,
		MaxAmountSats:       cfg.MaxAmountSats,
		CapabilityTokenB64:  cfg.TokenB64,
		CommanderPubkey:     cfg.CommanderPubkey,
	}

	if cfg.CommanderPrivkey != "" && cfg.Engine != nil && cfg.Engine.Available() {
		msg32, err := wireproto.TaskHashForSignature(req)
		if err != nil {
			return nil, errors.Errorf("commander: hashing request: %v", err)
		}
		privBytes, err := hexDecode(cfg.CommanderPrivkey)
		if err != nil {
			return nil, errors.Errorf("commander: decoding commander_privkey: %v", err)
		}
		sig, err := cfg.Engine.Sign(msg32, privBytes)
		if err != nil {
			return nil, errors.Errorf("commander: signing request: %v", err)
		}
		req.CommanderSignature = hexEncode(sig)
	} else if cfg.AllowMockSignatures {
		req.CommanderSignature = ""
		log.Infof("commander_signature_mocked task_id=%s", cfg.TaskID)
	} else {
		return nil, errors.Errorf("commander: signature unavailable (no privkey/backend and mock signatures disallowed)")
	}

	return req, nil
}

// Send transmits req to cfg.TargetAddr over conn and polls for a response
// until task_reject, proof, or cfg.Timeout elapses (§4.1). task_accept is
// logged but does not end the wait, mirroring the reference implementation
// which keeps listening for the subsequent proof.
func Send(conn *net.UDPConn, cfg Config, req *wireproto.TaskRequest) (Outcome, error) {
	if err := udpconn.Send(conn, cfg.TargetAddr, req); err != nil {
		return Outcome{}, errors.Errorf("commander: sending task_request: %v", err)
	}
	log.Infof("task_request_sent task_id=%s target=%s", cfg.TaskID, cfg.TargetAddr)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	deadline := time.Now().Add(timeout)

	// Poll in 2-second slices so the commander notices the overall
	// deadline promptly rather than blocking on a single long read,
	// mirroring the reference implementation's settimeout(2) loop.
	pollTicker := ticker.New(2 * time.Second)
	pollTicker.Resume()
	defer pollTicker.Stop()

	var out Outcome
	for time.Now().Before(deadline) {
		<-pollTicker.Ticks
		conn.SetReadDeadline(time.Now().Add(2 * time.Second))

		raw, _, err := udpconn.Recv(conn)
		if err != nil {
			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				continue
			}
			return out, err
		}

		var env wireproto.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			continue
		}

		switch env.MessageType {
		case wireproto.MsgTaskReject:
			var reject wireproto.TaskReject
			if err := json.Unmarshal(raw, &reject); err == nil {
				out.Rejected = true
				out.Reject = &reject
				log.Infof("task_rejected task_id=%s details=%v notes=%v", cfg.TaskID, reject.Details, reject.Notes)
			}
			return out, nil
		case wireproto.MsgTaskAccept:
			var accept wireproto.TaskAccept
			if err := json.Unmarshal(raw, &accept); err == nil {
				out.Accepted = true
				out.Accept = &accept
				log.Infof("task_accepted task_id=%s payment_hash=%s", cfg.TaskID, accept.PaymentHash)
			}
		case wireproto.MsgProof:
			var proof wireproto.Proof
			if err := json.Unmarshal(raw, &proof); err == nil {
				out.Proved = true
				out.Proof = &proof
				log.Infof("proof_received task_id=%s proof_hash=%s", cfg.TaskID, proof.ProofHash)
			}
			return out, nil
		}
	}

	out.TimedOut = true
	log.Warnf("timeout_waiting_for_response task_id=%s", cfg.TaskID)
	return out, nil
}
