package executor

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"os"
)

func decodeBase64(s string) ([]byte, error) {
	return base64.StdEncoding.DecodeString(s)
}

func decodeHex(s string) ([]byte, error) {
	return hex.DecodeString(s)
}

func hexEncode(b []byte) string {
	return hex.EncodeToString(b)
}

// readRevocationList reads a JSON array of hex-encoded token ids from path,
// tolerating a missing or corrupt file (§4.2, grounded on
// node/executor.py's read_revocations).
func readRevocationList(path string) map[string]bool {
	out := map[string]bool{}
	raw, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return out
	}
	for _, id := range ids {
		out[id] = true
	}
	return out
}
