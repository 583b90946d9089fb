package executor

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"net"
	"testing"
	"time"

	"github.com/lightningnetwork/lnd/clock"
	"github.com/stretchr/testify/require"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/replay"
	"github.com/dyson-labs/scrap/internal/settlement"
	"github.com/dyson-labs/scrap/internal/tlvcodec"
	"github.com/dyson-labs/scrap/internal/token"
	"github.com/dyson-labs/scrap/internal/udpconn"
	"github.com/dyson-labs/scrap/internal/wireproto"
)

func buildToken(t *testing.T, issuedAt, expiresAt uint32, audience, subject string, caps []string) []byte {
	t.Helper()
	return buildTokenWithID(t, issuedAt, expiresAt, audience, subject, caps, bytes.Repeat([]byte{0x09}, 16))
}

func buildTokenWithID(t *testing.T, issuedAt, expiresAt uint32, audience, subject string, caps []string, tokenID []byte) []byte {
	t.Helper()

	write := func(buf *bytes.Buffer, typ uint64, value []byte) {
		rec, err := tlvcodec.EncodeRecord(typ, value)
		require.NoError(t, err)
		buf.Write(rec)
	}

	var body bytes.Buffer
	write(&body, token.TypeVersion, []byte{1})
	write(&body, token.TypeIssuer, bytes.Repeat([]byte{0x02}, 33))
	write(&body, token.TypeSubject, []byte(subject))
	write(&body, token.TypeAudience, []byte(audience))

	var ia, ea [4]byte
	binary.BigEndian.PutUint32(ia[:], issuedAt)
	binary.BigEndian.PutUint32(ea[:], expiresAt)
	write(&body, token.TypeIssuedAt, ia[:])
	write(&body, token.TypeExpiresAt, ea[:])
	write(&body, token.TypeTokenID, tokenID)
	for _, c := range caps {
		write(&body, token.TypeCapability, []byte(c))
	}

	rec, err := tlvcodec.EncodeRecord(token.TypeSignature, bytes.Repeat([]byte{0}, 64))
	require.NoError(t, err)
	body.Write(rec)
	return body.Bytes()
}

func newLoopbackPair(t *testing.T) (executorConn, clientConn *net.UDPConn) {
	t.Helper()
	var err error
	executorConn, err = udpconn.Bind("127.0.0.1:0")
	require.NoError(t, err)
	clientConn, err = udpconn.Bind("127.0.0.1:0")
	require.NoError(t, err)
	return executorConn, clientConn
}

func TestHandleTaskRequestAcceptsValidToken(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	raw := buildToken(t, 1_700_000_000, 1_700_003_600, "executor-1", "commander-pk", []string{"telemetry.read"})

	execConn, clientConn := newLoopbackPair(t)
	defer execConn.Close()
	defer clientConn.Close()

	e := New(Config{
		NodeID:              "executor-1",
		OperatorPubkey:      bytes.Repeat([]byte{0x02}, 33),
		AllowMockSignatures: true,
		ReplayCache:         replay.NewCache(t.TempDir() + "/replay.json"),
		ExecuteDelay:        0,
		Engine:              cryptoeng.NewUnavailableEngine(),
		Clock:               clock.NewTestClock(now),
	}, execConn)

	req := &wireproto.TaskRequest{
		MessageType:         wireproto.MsgTaskRequest,
		MessageName:         "task_request",
		TaskID:              "task-1",
		Timestamp:           now.Unix(),
		TaskType:            "imaging",
		RequestedCapability: "telemetry.read",
		MaxAmountSats:       22000,
		CapabilityTokenB64:  base64Encode(raw),
		CommanderPubkey:     "commander-pk",
	}

	clientAddr := clientConn.LocalAddr().(*net.UDPAddr)
	e.handleTaskRequest(req, clientAddr)

	data, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)

	var env wireproto.Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	require.Equal(t, wireproto.MsgTaskAccept, env.MessageType)

	var accept wireproto.TaskAccept
	require.NoError(t, json.Unmarshal(data, &accept))
	require.Equal(t, "task-1", accept.TaskID)
}

func TestHandleTaskRequestRejectsWrongCapability(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	raw := buildToken(t, 1_700_000_000, 1_700_003_600, "executor-1", "commander-pk", []string{"telemetry.read"})

	execConn, clientConn := newLoopbackPair(t)
	defer execConn.Close()
	defer clientConn.Close()

	e := New(Config{
		NodeID:              "executor-1",
		OperatorPubkey:      bytes.Repeat([]byte{0x02}, 33),
		AllowMockSignatures: true,
		ReplayCache:         replay.NewCache(t.TempDir() + "/replay.json"),
		Engine:              cryptoeng.NewUnavailableEngine(),
		Clock:               clock.NewTestClock(now),
	}, execConn)

	req := &wireproto.TaskRequest{
		MessageType:         wireproto.MsgTaskRequest,
		TaskID:              "task-2",
		RequestedCapability: "thrust.fire",
		MaxAmountSats:       22000,
		CapabilityTokenB64:  base64Encode(raw),
		CommanderPubkey:     "commander-pk",
	}

	clientAddr := clientConn.LocalAddr().(*net.UDPAddr)
	e.handleTaskRequest(req, clientAddr)

	data, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)

	var reject wireproto.TaskReject
	require.NoError(t, json.Unmarshal(data, &reject))
	require.Equal(t, wireproto.MsgTaskReject, reject.MessageType)
	require.Contains(t, reject.Details, "capability not granted by token")
}

func TestExecuteAndProveUsesDefaultProofHashDerivation(t *testing.T) {
	now := time.Unix(1_700_000_100, 0)
	raw := buildToken(t, 1_700_000_000, 1_700_003_600, "executor-1", "commander-pk", []string{"telemetry.read"})

	execConn, clientConn := newLoopbackPair(t)
	defer execConn.Close()
	defer clientConn.Close()

	e := New(Config{
		NodeID:              "executor-1",
		OperatorPubkey:      bytes.Repeat([]byte{0x02}, 33),
		AllowMockSignatures: true,
		ReplayCache:         replay.NewCache(t.TempDir() + "/replay.json"),
		ExecuteDelay:        0,
		Engine:              cryptoeng.NewUnavailableEngine(),
		Clock:               clock.NewTestClock(now),
	}, execConn)

	req := &wireproto.TaskRequest{
		MessageType:         wireproto.MsgTaskRequest,
		MessageName:         "task_request",
		TaskID:              "task-3",
		Timestamp:           now.Unix(),
		TaskType:            "imaging",
		RequestedCapability: "telemetry.read",
		MaxAmountSats:       22000,
		CapabilityTokenB64:  base64Encode(raw),
		CommanderPubkey:     "commander-pk",
	}

	clientAddr := clientConn.LocalAddr().(*net.UDPAddr)
	e.handleTaskRequest(req, clientAddr)

	// drain task_accept
	_, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)

	data, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)

	var proof wireproto.Proof
	require.NoError(t, json.Unmarshal(data, &proof))
	require.Equal(t, settlement.ComputeProofHash(req.TaskID, proof.PaymentHash), proof.ProofHash)
}

// TestExecuteAndProveMatchesSpecScenario1Vector pins the §8 scenario 1
// happy-path literal: payment_hash = sha256("t1" || token_id_hex ||
// "payment"), proof_hash = sha256("t1" || payment_hash_hex || "proof").
// The expected values are computed directly with crypto/sha256 here,
// independent of settlement.ComputePaymentHash/ComputeProofHash, so this
// test cannot pass merely because the production and test code share a
// (possibly wrong) derivation.
func TestExecuteAndProveMatchesSpecScenario1Vector(t *testing.T) {
	tokenID := append(bytes.Repeat([]byte{0x00}, 15), 0x01)
	tokenIDHex := hex.EncodeToString(tokenID)
	require.Equal(t, "00000000000000000000000000000001", tokenIDHex)

	const taskID = "t1"

	paymentHashSum := sha256.Sum256([]byte(taskID + tokenIDHex + "payment"))
	expectedPaymentHash := hex.EncodeToString(paymentHashSum[:])

	proofHashSum := sha256.Sum256([]byte(taskID + expectedPaymentHash + "proof"))
	expectedProofHash := hex.EncodeToString(proofHashSum[:])

	now := time.Unix(1_700_000_100, 0)
	raw := buildTokenWithID(t, 1_700_000_000, 1_700_003_600, "executor-1", "commander-pk", []string{"telemetry.read"}, tokenID)

	execConn, clientConn := newLoopbackPair(t)
	defer execConn.Close()
	defer clientConn.Close()

	e := New(Config{
		NodeID:              "executor-1",
		OperatorPubkey:      bytes.Repeat([]byte{0x02}, 33),
		AllowMockSignatures: true,
		ReplayCache:         replay.NewCache(t.TempDir() + "/replay.json"),
		ExecuteDelay:        0,
		Engine:              cryptoeng.NewUnavailableEngine(),
		Clock:               clock.NewTestClock(now),
	}, execConn)

	req := &wireproto.TaskRequest{
		MessageType:         wireproto.MsgTaskRequest,
		MessageName:         "task_request",
		TaskID:              taskID,
		Timestamp:           now.Unix(),
		TaskType:            "imaging",
		RequestedCapability: "telemetry.read",
		MaxAmountSats:       22000,
		CapabilityTokenB64:  base64Encode(raw),
		CommanderPubkey:     "commander-pk",
	}

	clientAddr := clientConn.LocalAddr().(*net.UDPAddr)
	e.handleTaskRequest(req, clientAddr)

	acceptData, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)
	var accept wireproto.TaskAccept
	require.NoError(t, json.Unmarshal(acceptData, &accept))
	require.Equal(t, "task_accepted", accept.Type)
	require.Equal(t, expectedPaymentHash, accept.PaymentHash)

	proofData, _, err := udpconn.Recv(clientConn)
	require.NoError(t, err)
	var proof wireproto.Proof
	require.NoError(t, json.Unmarshal(proofData, &proof))
	require.Equal(t, "proof", proof.Type)
	require.Equal(t, expectedPaymentHash, proof.PaymentHash)
	require.Equal(t, expectedProofHash, proof.ProofHash)
}

func base64Encode(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}
