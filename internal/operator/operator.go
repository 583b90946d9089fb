// Package operator implements the capability-issuing authority: it mints
// signed TLV capability tokens and maintains an append-only revocation list
// (§4.4, grounded on controller/operator_stub.py).
package operator

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-errors/errors"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/tlvcodec"
	"github.com/dyson-labs/scrap/internal/token"
)

// IssueParams bundles the inputs to IssueToken.
type IssueParams struct {
	OperatorPubkey   []byte
	OperatorPrivkey  string
	Subject          string
	Audience         string
	Capabilities     []string
	IssuedAt         uint32
	ExpiresIn        uint32
	TokenID          []byte
	NotBefore        uint32
	AllowMockSig     bool
	Engine           cryptoeng.SchnorrEngine
}

// IssueResult is the output of IssueToken: the encoded token bytes plus the
// metadata an operator typically wants to persist alongside it.
type IssueResult struct {
	Token            []byte
	TokenID          []byte
	IssuedAt         uint32
	ExpiresAt        uint32
	SignatureMocked  bool
}

// IssueToken builds and signs a capability token TLV stream (§3, §4.4).
func IssueToken(p IssueParams) (*IssueResult, error) {
	tokenID := p.TokenID
	if len(tokenID) == 0 {
		tokenID = make([]byte, 16)
		if _, err := rand.Read(tokenID); err != nil {
			return nil, errors.Errorf("operator: generating token_id: %v", err)
		}
	}

	expiresAt := p.IssuedAt + p.ExpiresIn

	var body bytes.Buffer
	write := func(typ uint64, value []byte) error {
		rec, err := tlvcodec.EncodeRecord(typ, value)
		if err != nil {
			return err
		}
		body.Write(rec)
		return nil
	}

	var ia, ea [4]byte
	binary.BigEndian.PutUint32(ia[:], p.IssuedAt)
	binary.BigEndian.PutUint32(ea[:], expiresAt)

	for _, w := range []struct {
		typ uint64
		val []byte
	}{
		{token.TypeVersion, []byte{1}},
		{token.TypeIssuer, p.OperatorPubkey},
		{token.TypeSubject, []byte(p.Subject)},
		{token.TypeAudience, []byte(p.Audience)},
		{token.TypeIssuedAt, ia[:]},
		{token.TypeExpiresAt, ea[:]},
		{token.TypeTokenID, tokenID},
	} {
		if err := write(w.typ, w.val); err != nil {
			return nil, errors.Errorf("operator: encoding token: %v", err)
		}
	}

	for _, capability := range p.Capabilities {
		if err := write(token.TypeCapability, []byte(capability)); err != nil {
			return nil, errors.Errorf("operator: encoding capability: %v", err)
		}
	}

	if p.NotBefore != 0 {
		var nb [4]byte
		binary.BigEndian.PutUint32(nb[:], p.NotBefore)
		if err := write(token.TypeConstraintAfter, nb[:]); err != nil {
			return nil, errors.Errorf("operator: encoding constraint_after: %v", err)
		}
	}

	rawBody := body.Bytes()

	var signature []byte
	mocked := false
	if p.OperatorPrivkey != "" && p.Engine != nil && p.Engine.Available() {
		privBytes, err := hex.DecodeString(p.OperatorPrivkey)
		if err != nil {
			return nil, errors.Errorf("operator: decoding operator_privkey: %v", err)
		}
		msg32 := cryptoeng.TaggedHash(cryptoeng.TagToken, rawBody)
		signature, err = p.Engine.Sign(msg32, privBytes)
		if err != nil {
			return nil, errors.Errorf("operator: signing token: %v", err)
		}
	}
	if signature == nil {
		if !p.AllowMockSig {
			return nil, errors.Errorf("operator: signature unavailable and mock signatures not allowed")
		}
		signature = bytes.Repeat([]byte{0}, 64)
		mocked = true
	}

	sigRec, err := tlvcodec.EncodeRecord(token.TypeSignature, signature)
	if err != nil {
		return nil, errors.Errorf("operator: encoding signature record: %v", err)
	}

	out := append(append([]byte{}, rawBody...), sigRec...)

	return &IssueResult{
		Token:           out,
		TokenID:         tokenID,
		IssuedAt:        p.IssuedAt,
		ExpiresAt:       expiresAt,
		SignatureMocked: mocked,
	}, nil
}

// Revoke appends tokenIDHex to the revocation list at path, deduplicating
// and sorting the result for a stable on-disk diff (§4.4, grounded on
// operator_stub.py's revoke_token).
func Revoke(path, tokenIDHex string) error {
	existing := map[string]bool{}

	if raw, err := os.ReadFile(path); err == nil {
		var ids []string
		if err := json.Unmarshal(raw, &ids); err == nil {
			for _, id := range ids {
				existing[id] = true
			}
		}
	} else if !os.IsNotExist(err) {
		return errors.Errorf("operator: reading revocation list %s: %v", path, err)
	}

	existing[tokenIDHex] = true

	ids := make([]string, 0, len(existing))
	for id := range existing {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Errorf("operator: creating directory: %v", err)
		}
	}

	raw, err := json.MarshalIndent(ids, "", "  ")
	if err != nil {
		return errors.Errorf("operator: encoding revocation list: %v", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return errors.Errorf("operator: writing revocation list %s: %v", path, err)
	}
	return nil
}
