// Package keys loads the demo keys.json bundle shared by all four SCRAP
// roles: hex-encoded operator/commander/executor Schnorr keypairs.
package keys

import (
	"encoding/hex"
	"encoding/json"
	"os"

	"github.com/go-errors/errors"
)

// Bundle mirrors keys.json (§6): hex-encoded pub/priv keys for each role.
// Private key fields are optional — a node only needs the keys for the
// role(s) it plays.
type Bundle struct {
	OperatorPubkey   string `json:"operator_pubkey"`
	OperatorPrivkey  string `json:"operator_privkey,omitempty"`
	CommanderPubkey  string `json:"commander_pubkey"`
	CommanderPrivkey string `json:"commander_privkey,omitempty"`
	ExecutorPubkey   string `json:"executor_pubkey"`
	ExecutorPrivkey  string `json:"executor_privkey,omitempty"`
}

// Load reads and parses a keys.json file at path.
func Load(path string) (*Bundle, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Errorf("reading keys file: %v", err)
	}
	var b Bundle
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, errors.Errorf("parsing keys file: %v", err)
	}
	return &b, nil
}

// HexToBytes decodes a hex string, tolerating a leading "0x".
func HexToBytes(value string) ([]byte, error) {
	if len(value) >= 2 && value[0] == '0' && (value[1] == 'x' || value[1] == 'X') {
		value = value[2:]
	}
	raw, err := hex.DecodeString(value)
	if err != nil {
		return nil, errors.Errorf("decoding hex: %v", err)
	}
	return raw, nil
}

// BytesToHex encodes data as a lowercase hex string.
func BytesToHex(data []byte) string {
	return hex.EncodeToString(data)
}
