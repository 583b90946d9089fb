package token

import (
	"encoding/binary"

	"github.com/davecgh/go-spew/spew"

	"github.com/dyson-labs/scrap/internal/cryptoeng"
	"github.com/dyson-labs/scrap/internal/replay"
)

// VerifyParams bundles the inputs to Verify that are independent of the
// token itself.
type VerifyParams struct {
	Now                 int64
	ExpectedAudience    string
	RequiredCapability  string
	OperatorPubkey      []byte
	ReplayCache         *replay.Cache
	AllowMockSignatures bool
	Engine              cryptoeng.SchnorrEngine
}

// VerifyResult is the outcome of running the §4.3 validation pipeline: a
// token is valid iff Issues is empty.
type VerifyResult struct {
	Issues []string
	Notes  []string
}

// OK reports whether the token passed every check.
func (r VerifyResult) OK() bool { return len(r.Issues) == 0 }

// Verify runs the full stateless-then-stateful validation pipeline from
// §4.3: audience, time window, capability grant, constraint_after,
// signature, and finally (only if everything else passed) the replay
// cache. This ordering is load-bearing: an invalid token must never
// consume a single-use replay slot.
func Verify(t *CapabilityToken, p VerifyParams) VerifyResult {
	var issues, notes []string

	log.Debugf("verifying token: %s", spew.Sdump(t))

	if t.Audience != p.ExpectedAudience {
		issues = append(issues, "audience mismatch (token="+t.Audience+" expected="+p.ExpectedAudience+")")
	}

	if p.Now < int64(t.IssuedAt) {
		issues = append(issues, "token not yet valid")
	}
	if p.Now > int64(t.ExpiresAt) {
		issues = append(issues, "token expired")
	}

	if p.RequiredCapability != "" && !containsCapability(t.Capabilities, p.RequiredCapability) {
		issues = append(issues, "capability not granted by token")
	}

	if raw, ok := t.Constraints[TypeConstraintAfter]; ok {
		if len(raw) != 4 {
			issues = append(issues, "malformed constraint_after")
		} else {
			notBefore := binary.BigEndian.Uint32(raw)
			if p.Now < int64(notBefore) {
				issues = append(issues, "constraint_after not satisfied")
			}
		}
	}

	for typ := range t.Constraints {
		if typ != TypeConstraintAfter {
			notes = append(notes, "constraints present but not enforced in demo")
			break
		}
	}

	if t.Signature == nil {
		issues = append(issues, "missing token signature")
	} else {
		msg32 := cryptoeng.TaggedHash(cryptoeng.TagToken, t.RawWithoutSignature)
		switch p.Engine.Verify(msg32, t.Signature, p.OperatorPubkey) {
		case cryptoeng.VerifyUndetermined:
			if p.AllowMockSignatures {
				notes = append(notes, "signature verification skipped (mock mode)")
			} else {
				issues = append(issues, "signature verification unavailable (enable a Schnorr backend or allow mock)")
			}
		case cryptoeng.VerifyInvalid:
			issues = append(issues, "token signature invalid")
		case cryptoeng.VerifyValid:
			// nothing to do
		}
	}

	// The replay cache is consulted only once every stateless check has
	// passed, so a malformed or otherwise-rejected token never consumes a
	// single-use slot (§4.3 step 7).
	if p.ReplayCache != nil && len(issues) == 0 {
		ok, err := p.ReplayCache.CheckAndAdd(t.TokenID, t.ExpiresAt, p.Now)
		if err != nil {
			issues = append(issues, "replay cache error: "+err.Error())
		} else if !ok {
			issues = append(issues, "replay detected (token_id already used)")
		}
	}

	if len(issues) > 0 {
		log.Debugf("token rejected: %v", issues)
	}

	return VerifyResult{Issues: issues, Notes: notes}
}

func containsCapability(capabilities []string, want string) bool {
	for _, c := range capabilities {
		if c == want {
			return true
		}
	}
	return false
}
