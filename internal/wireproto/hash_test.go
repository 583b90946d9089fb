package wireproto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleRequest() *TaskRequest {
	return &TaskRequest{
		MessageType:         MsgTaskRequest,
		MessageName:         "task_request",
		TaskID:              "task-1",
		Timestamp:           1_700_000_000,
		TaskType:            "imaging",
		RequestedCapability: "telemetry.read",
		MaxAmountSats:       22000,
		CapabilityTokenB64:  "YWJj",
		CommanderPubkey:     "commander-pk",
		CommanderSignature:  "deadbeef",
	}
}

func TestCanonicalExcludesSignatureAndMessageName(t *testing.T) {
	c, err := Canonical(sampleRequest())
	require.NoError(t, err)
	require.NotContains(t, string(c), "commander_signature")
	require.NotContains(t, string(c), "message_name")
	require.Contains(t, string(c), `"task_id":"task-1"`)
}

func TestCanonicalIsStableAcrossSignatureChanges(t *testing.T) {
	a := sampleRequest()
	b := sampleRequest()
	b.CommanderSignature = "00112233"

	ca, err := Canonical(a)
	require.NoError(t, err)
	cb, err := Canonical(b)
	require.NoError(t, err)
	require.Equal(t, ca, cb)
}

func TestRequestHashAndTaskHashDiffer(t *testing.T) {
	req := sampleRequest()

	rh, err := RequestHash(req)
	require.NoError(t, err)
	th, err := TaskHashForSignature(req)
	require.NoError(t, err)

	require.NotEqual(t, rh, th)
}

func TestRequestHashIsDeterministic(t *testing.T) {
	a, err := RequestHash(sampleRequest())
	require.NoError(t, err)
	b, err := RequestHash(sampleRequest())
	require.NoError(t, err)
	require.Equal(t, a, b)
}
