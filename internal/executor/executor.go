// Package executor implements the SCRAP executor node: it receives
// task_request datagrams, validates the attached capability token, and
// replies with task_accept/task_reject followed by a proof of execution
// (§4.2, grounded on node/executor.py and htlcswitch/switch.go's
// read-loop/logging idiom).
package executor

import (
	"encoding/json"
	"net"
	"time"

	"github.com/btcsuite/btclog"
	"github.com/davecgh/go-spew/spew"
	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/healthcheck"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/replay"
	"github.com/dyson-labs/scrap/internal/settlement"
	"github.com/dyson-labs/scrap/internal/token"
	"github.com/dyson-labs/scrap/internal/udpconn"
	"github.com/dyson-labs/scrap/internal/wireproto"
)

var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// Config holds everything an Executor needs that isn't carried on the wire
// (§6 policy.json, keys.json).
type Config struct {
	NodeID                string
	OperatorPubkey        []byte
	ExecutorPubkey        string
	ExecutorPrivkey       string
	AllowMockSignatures   bool
	RequireCommanderSig   bool
	RevocationListPath    string
	ReplayCache           *replay.Cache
	ExecuteDelay          time.Duration
	Engine                cryptoeng.SchnorrEngine
	Clock                 clock.Clock
	ReadRevocationList    func(path string) map[string]bool

	// LegacyProofHash switches proof_hash to the non-default tagged-hash
	// derivation (interop testing only; see cryptoeng.ProofHashTagged).
	LegacyProofHash bool
}

// Executor mediates capability-gated task requests on a single UDP socket.
type Executor struct {
	cfg  Config
	conn *net.UDPConn
}

// New returns an Executor bound to conn. conn is owned by the caller, which
// must close it when done.
func New(cfg Config, conn *net.UDPConn) *Executor {
	if cfg.Clock == nil {
		cfg.Clock = clock.NewDefaultClock()
	}
	if cfg.ReadRevocationList == nil {
		cfg.ReadRevocationList = readRevocationList
	}
	return &Executor{cfg: cfg, conn: conn}
}

// Run loops forever, handling one datagram at a time. It never returns
// except on a fatal socket error, matching the reference implementation's
// single-threaded accept loop (§5: executor is single-threaded per §5.1).
func (e *Executor) Run() error {
	log.Infof("executor started node_id=%s", e.cfg.NodeID)

	if e.cfg.ReplayCache != nil {
		monitor := healthcheck.NewMonitor(&healthcheck.Config{
			Checks: []*healthcheck.Observation{
				e.cfg.ReplayCache.WritabilityObservation(),
			},
		})
		if err := monitor.Start(); err != nil {
			log.Warnf("health monitor did not start: %v", err)
		} else {
			defer monitor.Stop()
		}
	}

	for {
		raw, addr, err := udpconn.Recv(e.conn)
		if err != nil {
			return errors.Errorf("executor: read loop: %v", err)
		}
		e.handleDatagram(raw, addr)
	}
}

func (e *Executor) handleDatagram(raw []byte, addr *net.UDPAddr) {
	var env wireproto.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("invalid_json source=%s", addr)
		return
	}
	if env.MessageType != wireproto.MsgTaskRequest {
		log.Warnf("unexpected_message source=%s message_type=%d", addr, env.MessageType)
		return
	}

	var req wireproto.TaskRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		log.Warnf("invalid_task_request source=%s: %v", addr, err)
		return
	}

	e.handleTaskRequest(&req, addr)
}

// handleTaskRequest runs the full validation pipeline (§4.3) and sends
// exactly one of task_reject or (task_accept followed by proof).
func (e *Executor) handleTaskRequest(req *wireproto.TaskRequest, addr *net.UDPAddr) {
	var issues, notes []string

	if req.TaskID == "" {
		issues = append(issues, "missing task_id")
	}
	if req.RequestedCapability == "" {
		issues = append(issues, "missing requested_capability")
	}
	if req.CommanderPubkey == "" {
		issues = append(issues, "missing commander_pubkey")
	}
	if req.CapabilityTokenB64 == "" {
		issues = append(issues, "missing capability_token_b64")
	}

	var tok *token.CapabilityToken
	if req.CapabilityTokenB64 != "" {
		raw, err := decodeBase64(req.CapabilityTokenB64)
		if err != nil {
			issues = append(issues, "token parse error: "+err.Error())
		} else {
			tok, err = token.ParseCapabilityToken(raw)
			if err != nil {
				issues = append(issues, "token parse error: "+err.Error())
			}
		}
	}

	if tok != nil {
		res := token.Verify(tok, token.VerifyParams{
			Now:                 e.cfg.Clock.Now().Unix(),
			ExpectedAudience:    e.cfg.NodeID,
			RequiredCapability:  req.RequestedCapability,
			OperatorPubkey:      e.cfg.OperatorPubkey,
			ReplayCache:         e.cfg.ReplayCache,
			AllowMockSignatures: e.cfg.AllowMockSignatures,
			Engine:              e.cfg.Engine,
		})
		issues = append(issues, res.Issues...)
		notes = append(notes, res.Notes...)

		if req.CommanderPubkey != "" && tok.Subject != req.CommanderPubkey {
			issues = append(issues, "token subject does not match commander_pubkey")
		}

		if e.cfg.RevocationListPath != "" {
			revoked := e.cfg.ReadRevocationList(e.cfg.RevocationListPath)
			if revoked[hexEncode(tok.TokenID)] {
				issues = append(issues, "token revoked")
			}
		}
	}

	if e.cfg.RequireCommanderSig {
		issues = append(issues, e.verifyCommanderSignature(req, &notes)...)
	}

	log.Debugf("task_request received: %s", spew.Sdump(req))

	if len(issues) > 0 {
		e.sendReject(req, addr, issues, notes)
		return
	}

	e.acceptAndExecute(req, tok, addr, notes)
}

func (e *Executor) verifyCommanderSignature(req *wireproto.TaskRequest, notes *[]string) []string {
	if req.CommanderSignature == "" {
		return []string{"missing commander_signature"}
	}

	msg32, err := wireproto.TaskHashForSignature(req)
	if err != nil {
		return []string{"task hash error: " + err.Error()}
	}

	sigBytes, err := decodeHex(req.CommanderSignature)
	if err != nil {
		return []string{"commander signature decode error: " + err.Error()}
	}
	pubBytes, err := decodeHex(req.CommanderPubkey)
	if err != nil {
		return []string{"commander pubkey decode error: " + err.Error()}
	}

	switch e.cfg.Engine.Verify(msg32, sigBytes, pubBytes) {
	case cryptoeng.VerifyValid:
		return nil
	case cryptoeng.VerifyInvalid:
		return []string{"commander signature invalid"}
	default:
		if e.cfg.AllowMockSignatures {
			*notes = append(*notes, "commander signature verification skipped (mock mode)")
			return nil
		}
		return []string{"commander signature verification unavailable"}
	}
}

func (e *Executor) sendReject(req *wireproto.TaskRequest, addr *net.UDPAddr, issues, notes []string) {
	reject := wireproto.TaskReject{
		MessageType: wireproto.MsgTaskReject,
		MessageName: "task_reject",
		Type:        "task_rejected",
		TaskID:      req.TaskID,
		Timestamp:   e.cfg.Clock.Now().Unix(),
		Reason:      "validation_failed",
		Details:     issues,
		Notes:       notes,
	}
	if err := udpconn.Send(e.conn, addr.String(), reject); err != nil {
		log.Errorf("sending task_reject: %v", err)
		return
	}
	log.Infof("task_rejected task_id=%s issues=%v notes=%v", req.TaskID, issues, notes)
}

func (e *Executor) acceptAndExecute(req *wireproto.TaskRequest, tok *token.CapabilityToken, addr *net.UDPAddr, notes []string) {
	now := e.cfg.Clock.Now()

	var tokenIDHex string
	if tok != nil {
		tokenIDHex = hexEncode(tok.TokenID)
	}
	paymentHashHex := settlement.ComputePaymentHash(req.TaskID, tokenIDHex)
	paymentHashBytes, err := decodeHex(paymentHashHex)
	if err != nil {
		log.Errorf("decoding payment hash: %v", err)
		return
	}
	var paymentHash [32]byte
	copy(paymentHash[:], paymentHashBytes)

	inReplyTo, err := wireproto.RequestHash(req)
	if err != nil {
		log.Errorf("computing request hash: %v", err)
		return
	}

	accept := wireproto.TaskAccept{
		MessageType:          wireproto.MsgTaskAccept,
		MessageName:          "task_accept",
		Type:                 "task_accepted",
		TaskID:               req.TaskID,
		Timestamp:            now.Unix(),
		InReplyTo:            hexEncode(inReplyTo[:]),
		EstimatedDurationSec: int64(e.cfg.ExecuteDelay / time.Second),
		PaymentHash:          paymentHashHex,
		AmountSats:           req.MaxAmountSats,
		ExecutorPubkey:       e.cfg.ExecutorPubkey,
	}

	if e.cfg.ExecutorPrivkey != "" && e.cfg.Engine.Available() {
		body, err := json.Marshal(accept)
		if err == nil {
			msg32 := cryptoeng.SHA256(body)
			privBytes, err := decodeHex(e.cfg.ExecutorPrivkey)
			if err == nil {
				sig, err := e.cfg.Engine.Sign(msg32, privBytes)
				if err == nil {
					accept.ExecutorSignature = hexEncode(sig)
				}
			}
		}
	} else {
		notes = append(notes, "executor signature mocked")
	}

	if err := udpconn.Send(e.conn, addr.String(), accept); err != nil {
		log.Errorf("sending task_accept: %v", err)
		return
	}
	log.Infof("task_accepted task_id=%s payment_hash=%s notes=%v", req.TaskID, accept.PaymentHash, notes)

	e.executeAndProve(req, tok, addr, paymentHash)
}

func (e *Executor) executeAndProve(req *wireproto.TaskRequest, tok *token.CapabilityToken, addr *net.UDPAddr, paymentHash [32]byte) {
	time.Sleep(e.cfg.ExecuteDelay)

	completedAt := e.cfg.Clock.Now()
	summary := struct {
		TaskID      string `json:"task_id"`
		Status      string `json:"status"`
		CompletedAt int64  `json:"completed_at"`
	}{TaskID: req.TaskID, Status: "completed", CompletedAt: completedAt.Unix()}

	body, err := json.Marshal(summary)
	if err != nil {
		log.Errorf("encoding output summary: %v", err)
		return
	}
	outputHash := cryptoeng.SHA256(body)
	proofTS := e.cfg.Clock.Now()
	paymentHashHex := hexEncode(paymentHash[:])

	var proofHashHex string
	if e.cfg.LegacyProofHash {
		var tokenID []byte
		if tok != nil {
			tokenID = tok.TokenID
		}
		tagged := cryptoeng.ProofHashTagged(tokenID, paymentHash, outputHash, uint32(proofTS.Unix()))
		proofHashHex = hexEncode(tagged[:])
	} else {
		proofHashHex = settlement.ComputeProofHash(req.TaskID, paymentHashHex)
	}

	proof := wireproto.Proof{
		MessageType: wireproto.MsgProof,
		MessageName: "proof_of_execution",
		Type:        "proof",
		TaskID:      req.TaskID,
		Timestamp:   proofTS.Unix(),
		Status:      "completed",
		OutputHash:  hexEncode(outputHash[:]),
		ProofHash:   proofHashHex,
		PaymentHash: paymentHashHex,
	}

	if err := udpconn.Send(e.conn, addr.String(), proof); err != nil {
		log.Errorf("sending proof: %v", err)
		return
	}
	log.Infof("proof_sent task_id=%s proof_hash=%s", req.TaskID, proof.ProofHash)
}
