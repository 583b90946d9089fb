package operator

import (
	"bytes"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/stretchr/testify/require"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/token"
)

func TestIssueTokenMockSignatureParsesAndVerifies(t *testing.T) {
	operatorPubkey := bytes.Repeat([]byte{0x02}, 33)

	res, err := IssueToken(IssueParams{
		OperatorPubkey: operatorPubkey,
		Subject:        "commander-pk",
		Audience:       "executor-1",
		Capabilities:   []string{"telemetry.read"},
		IssuedAt:       1_700_000_000,
		ExpiresIn:      3600,
		AllowMockSig:   true,
	})
	require.NoError(t, err)
	require.Len(t, res.TokenID, 16)
	require.True(t, res.SignatureMocked)

	tok, err := token.ParseCapabilityToken(res.Token)
	require.NoError(t, err)
	require.Equal(t, "executor-1", tok.Audience)
	require.Equal(t, "commander-pk", tok.Subject)
	require.Equal(t, []string{"telemetry.read"}, tok.Capabilities)

	verified := token.Verify(tok, token.VerifyParams{
		Now:                 1_700_000_100,
		ExpectedAudience:    "executor-1",
		RequiredCapability:  "telemetry.read",
		OperatorPubkey:      operatorPubkey,
		AllowMockSignatures: true,
		Engine:              cryptoeng.NewUnavailableEngine(),
	})
	require.True(t, verified.OK(), "%v", verified.Issues)
}

func TestIssueTokenRejectsWithoutKeyOrMockPolicy(t *testing.T) {
	_, err := IssueToken(IssueParams{
		OperatorPubkey: bytes.Repeat([]byte{0x02}, 33),
		Subject:        "commander-pk",
		Audience:       "executor-1",
		Capabilities:   []string{"telemetry.read"},
		IssuedAt:       1_700_000_000,
		ExpiresIn:      3600,
		AllowMockSig:   false,
	})
	require.Error(t, err)
}

func TestIssueTokenSignsWithProductionEngine(t *testing.T) {
	priv, err := newTestPrivKey()
	require.NoError(t, err)

	res, err := IssueToken(IssueParams{
		OperatorPubkey:  bytes.Repeat([]byte{0x02}, 33),
		OperatorPrivkey: priv,
		Subject:         "commander-pk",
		Audience:        "executor-1",
		Capabilities:    []string{"telemetry.read"},
		IssuedAt:        1_700_000_000,
		ExpiresIn:       3600,
		Engine:          cryptoeng.NewProductionEngine(),
	})
	require.NoError(t, err)
	require.False(t, res.SignatureMocked)

	tok, err := token.ParseCapabilityToken(res.Token)
	require.NoError(t, err)
	require.Len(t, tok.Signature, 64)
}

func TestRevokeAppendsAndDeduplicates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revoked.json")

	require.NoError(t, Revoke(path, "aabb"))
	require.NoError(t, Revoke(path, "ccdd"))
	require.NoError(t, Revoke(path, "aabb"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(raw), "aabb")
	require.Contains(t, string(raw), "ccdd")
	require.Equal(t, 1, strings.Count(string(raw), "aabb"))
}

func newTestPrivKey() (string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(priv.Serialize()), nil
}
