// Package token implements the SCRAP capability-token wire format: an
// ascending-ordered TLV container, trailing Schnorr signature, and the
// stateless+stateful validation pipeline described in §4.3 of the spec.
package token

import (
	"encoding/binary"

	"github.com/btcsuite/btclog"
	"github.com/go-errors/errors"

	"github.com/dyson-labs/scrap/internal/tlvcodec"
)

// log is the package-level subsystem logger. It defaults to disabled and is
// wired up by UseLogger from a CLI entrypoint's scraplog backend.
var log = btclog.Disabled

// UseLogger sets the package-level logger.
func UseLogger(logger btclog.Logger) { log = logger }

// TLV type numbers (§6).
const (
	TypeVersion         = 0
	TypeIssuer          = 2
	TypeSubject         = 4
	TypeAudience        = 6
	TypeIssuedAt        = 8
	TypeExpiresAt       = 10
	TypeTokenID         = 12
	TypeConstraintGeo   = 13
	TypeCapability      = 14
	TypeConstraintRate  = 15
	TypeConstraintAmt   = 17
	TypeConstraintAfter = 19
	TypeRootIssuer      = 20
	TypeRootTokenID     = 22
	TypeParentTokenID   = 24
	TypeChainDepth      = 26
	TypeSignature       = tlvcodec.SignatureType
)

var knownEvenTypes = map[uint64]bool{
	TypeVersion: true, TypeIssuer: true, TypeSubject: true,
	TypeAudience: true, TypeIssuedAt: true, TypeExpiresAt: true,
	TypeTokenID: true, TypeCapability: true, TypeSignature: true,
	TypeConstraintRate: true, TypeConstraintAmt: true, TypeConstraintAfter: true,
	TypeRootIssuer: true, TypeRootTokenID: true, TypeParentTokenID: true,
	TypeChainDepth: true,
}

var knownOddTypes = map[uint64]bool{
	TypeConstraintGeo: true,
}

// CapabilityToken is a parsed capability token (§3).
type CapabilityToken struct {
	Version     uint8
	Issuer      []byte
	Subject     string
	Audience    string
	IssuedAt    uint32
	ExpiresAt   uint32
	TokenID     []byte
	Capabilities []string

	Signature           []byte
	RawWithoutSignature []byte

	// Constraints holds raw bytes for any present constraint_* record,
	// keyed by TLV type. Only constraint_after (TypeConstraintAfter) is
	// enforced; the rest are preserved for forward compatibility (§4.3
	// step 5, §9).
	Constraints map[uint64][]byte

	// Delegation holds raw bytes for any present delegation record. The
	// core treats non-delegated tokens (§3); these are parsed but never
	// interpreted.
	Delegation map[uint64][]byte
}

// ParseCapabilityToken decodes data into a CapabilityToken, enforcing the
// TLV ordering/signature-trailer rules and the unknown even/odd field
// semantics (§3, §4.1).
func ParseCapabilityToken(data []byte) (*CapabilityToken, error) {
	parsed, err := tlvcodec.ParseStream(data)
	if err != nil {
		return nil, errors.Errorf("token: %v", err)
	}

	var unknownEven []uint64
	for _, r := range parsed.Records {
		if r.Type%2 == 0 {
			if !knownEvenTypes[r.Type] {
				unknownEven = append(unknownEven, r.Type)
			}
			continue
		}
		if !knownOddTypes[r.Type] {
			// Unknown odd types are ignored, per the forward-compat
			// it-or-ignore rule (§3).
			continue
		}
	}
	if len(unknownEven) > 0 {
		return nil, errors.Errorf("token: unknown even TLV types: %v", unknownEven)
	}

	version := parsed.Get(TypeVersion)
	issuer := parsed.Get(TypeIssuer)
	subject := parsed.Get(TypeSubject)
	audience := parsed.Get(TypeAudience)
	issuedAt := parsed.Get(TypeIssuedAt)
	expiresAt := parsed.Get(TypeExpiresAt)
	tokenID := parsed.Get(TypeTokenID)
	caps := parsed.GetAll(TypeCapability)

	if version == nil || issuer == nil || subject == nil || audience == nil {
		return nil, errors.Errorf("token: missing required fields")
	}
	if issuedAt == nil || expiresAt == nil || tokenID == nil {
		return nil, errors.Errorf("token: missing required timing/token fields")
	}
	if len(caps) == 0 {
		return nil, errors.Errorf("token: no capabilities present")
	}
	if len(version) != 1 {
		return nil, errors.Errorf("token: malformed version field")
	}
	if len(issuedAt) != 4 || len(expiresAt) != 4 {
		return nil, errors.Errorf("token: malformed timing field")
	}

	issuedAtVal := binary.BigEndian.Uint32(issuedAt)
	expiresAtVal := binary.BigEndian.Uint32(expiresAt)
	if issuedAtVal > expiresAtVal {
		return nil, errors.Errorf("token: issued_at after expires_at")
	}

	capStrs := make([]string, len(caps))
	for i, c := range caps {
		capStrs[i] = string(c)
	}

	constraints := map[uint64][]byte{}
	for _, typ := range []uint64{TypeConstraintGeo, TypeConstraintRate, TypeConstraintAmt, TypeConstraintAfter} {
		if v := parsed.Get(typ); v != nil {
			constraints[typ] = v
		}
	}

	delegation := map[uint64][]byte{}
	for _, typ := range []uint64{TypeRootIssuer, TypeRootTokenID, TypeParentTokenID, TypeChainDepth} {
		if v := parsed.Get(typ); v != nil {
			delegation[typ] = v
		}
	}

	return &CapabilityToken{
		Version:             version[0],
		Issuer:              issuer,
		Subject:             string(subject),
		Audience:            string(audience),
		IssuedAt:            issuedAtVal,
		ExpiresAt:           expiresAtVal,
		TokenID:             tokenID,
		Capabilities:        capStrs,
		Signature:           parsed.Signature,
		RawWithoutSignature: parsed.RawWithoutSignature,
		Constraints:         constraints,
		Delegation:          delegation,
	}, nil
}
