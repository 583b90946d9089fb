// Package cryptoeng implements SCRAP's cryptographic primitives: plain
// SHA-256, the domain-separated tagged hash construction, and a pluggable
// Schnorr signing/verification engine.
package cryptoeng

import "crypto/sha256"

// Domain-separation tags used by TaggedHash across the protocol.
const (
	TagToken   = "SCRAP/token/v1"
	TagBinding = "SCRAP/binding/v1"
	TagProof   = "SCRAP/proof/v1"
	TagTask    = "SCRAP/task/v1"
)

// SHA256 returns the 32-byte SHA-256 digest of data.
func SHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// TaggedHash computes sha256(sha256(tag) || sha256(tag) || msg), providing
// domain separation between the different hash uses in the protocol.
func TaggedHash(tag string, msg []byte) [32]byte {
	tagHash := sha256.Sum256([]byte(tag))

	h := sha256.New()
	h.Write(tagHash[:])
	h.Write(tagHash[:])
	h.Write(msg)

	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ProofHashTagged is the non-default tagged-hash proof derivation noted as
// a non-interoperable variant in §9 of the spec:
// tagged_hash("SCRAP/proof/v1", token_id || payment_hash || output_hash || ts_be4).
// It is kept for interop testing behind an explicit executor flag; the
// protocol-level default is the plain sha256 construction in
// internal/settlement.
func ProofHashTagged(tokenID []byte, paymentHash, outputHash [32]byte, ts uint32) [32]byte {
	msg := make([]byte, 0, len(tokenID)+32+32+4)
	msg = append(msg, tokenID...)
	msg = append(msg, paymentHash[:]...)
	msg = append(msg, outputHash[:]...)
	msg = append(msg, byte(ts>>24), byte(ts>>16), byte(ts>>8), byte(ts))
	return TaggedHash(TagProof, msg)
}
