package wireproto

import (
	"bytes"
	"encoding/json"
	"sort"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
)

// Canonical returns the lexicographically-key-sorted, whitespace-free JSON
// encoding of req's field set minus commander_signature and message_name
// (§4.5). Only *TaskRequest is accepted; the settlement bridge's own
// task_request payload is not canonicalized here.
func Canonical(req *TaskRequest) ([]byte, error) {
	m, err := toMap(req)
	if err != nil {
		return nil, err
	}
	delete(m, "commander_signature")
	delete(m, "message_name")
	return canonicalJSON(m)
}

// RequestHash is sha256(Canonical(req)), used to populate in_reply_to in
// TaskAccept messages (§4.5).
func RequestHash(req *TaskRequest) ([32]byte, error) {
	c, err := Canonical(req)
	if err != nil {
		return [32]byte{}, err
	}
	return cryptoeng.SHA256(c), nil
}

// TaskHashForSignature is tagged_hash("SCRAP/task/v1", Canonical(req)), the
// 32-byte message commanders sign and executors verify (§4.5).
func TaskHashForSignature(req *TaskRequest) ([32]byte, error) {
	c, err := Canonical(req)
	if err != nil {
		return [32]byte{}, err
	}
	return cryptoeng.TaggedHash(cryptoeng.TagTask, c), nil
}

func toMap(req *TaskRequest) (map[string]interface{}, error) {
	raw, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// canonicalJSON renders m as compact, key-sorted JSON with no trailing
// newline. encoding/json already sorts map[string]interface{} keys, so a
// plain Marshal already satisfies both the sort and no-whitespace
// requirements; we guard that invariant explicitly since it is load-bearing
// for hash determinism across Go versions.
func canonicalJSON(m map[string]interface{}) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		vb, err := json.Marshal(m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
