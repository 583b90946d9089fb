package cryptoeng

import (
	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/go-errors/errors"
)

// ErrEngineUnavailable is returned by Sign when the engine has no signing
// capability (the Unavailable variant).
var ErrEngineUnavailable = errors.New("schnorr engine unavailable")

// VerifyResult is the three-valued outcome of a signature check: the engine
// either determined the signature to be valid or invalid, or it could not
// determine an answer at all (no crypto backend available).
type VerifyResult int

const (
	// VerifyInvalid means the engine ran and the signature did not check
	// out.
	VerifyInvalid VerifyResult = iota

	// VerifyValid means the engine ran and the signature checked out.
	VerifyValid

	// VerifyUndetermined means the engine has no backend capable of
	// running the check at all. Callers must consult an
	// allow-mock-signatures policy for this case; it is never silently
	// treated as valid.
	VerifyUndetermined
)

// SchnorrEngine is the polymorphic signing/verification capability used
// throughout SCRAP. The Production variant is backed by BIP-340 Schnorr
// signatures over secp256k1; the Unavailable variant always returns
// VerifyUndetermined / ErrEngineUnavailable so call sites can apply mock
// policy uniformly.
type SchnorrEngine interface {
	// Name identifies the engine for logging.
	Name() string

	// Available reports whether Sign/Verify can produce determinate
	// results.
	Available() bool

	// Sign produces a 64-byte Schnorr signature over msg32 using privKey.
	Sign(msg32 [32]byte, privKey []byte) ([]byte, error)

	// Verify checks sig64 against msg32 under pubKey. pubKey may be a
	// 32-byte x-only key or a 32/33-byte compressed key; the leading
	// parity byte, if present, is stripped.
	Verify(msg32 [32]byte, sig64 []byte, pubKey []byte) VerifyResult
}

// xOnly strips the leading parity byte of a compressed public key, if
// present, so it can be used as a BIP-340 x-only key.
func xOnly(pubKey []byte) ([]byte, error) {
	switch len(pubKey) {
	case 32:
		return pubKey, nil
	case 33:
		if pubKey[0] != 0x02 && pubKey[0] != 0x03 {
			return nil, errors.Errorf("unexpected public key prefix 0x%02x", pubKey[0])
		}
		return pubKey[1:], nil
	default:
		return nil, errors.Errorf("unexpected public key length %d", len(pubKey))
	}
}

// productionEngine is the real BIP-340/secp256k1 backend.
type productionEngine struct{}

// NewProductionEngine returns the production Schnorr engine.
func NewProductionEngine() SchnorrEngine {
	return productionEngine{}
}

func (productionEngine) Name() string    { return "btcec-schnorr" }
func (productionEngine) Available() bool { return true }

func (productionEngine) Sign(msg32 [32]byte, privKey []byte) ([]byte, error) {
	priv, _ := btcec.PrivKeyFromBytes(privKey)
	sig, err := schnorr.Sign(priv, msg32[:])
	if err != nil {
		return nil, errors.Errorf("schnorr sign: %v", err)
	}
	return sig.Serialize(), nil
}

func (productionEngine) Verify(msg32 [32]byte, sig64 []byte, pubKey []byte) VerifyResult {
	xo, err := xOnly(pubKey)
	if err != nil {
		return VerifyInvalid
	}
	pub, err := schnorr.ParsePubKey(xo)
	if err != nil {
		return VerifyInvalid
	}
	sig, err := schnorr.ParseSignature(sig64)
	if err != nil {
		return VerifyInvalid
	}
	if sig.Verify(msg32[:], pub) {
		return VerifyValid
	}
	return VerifyInvalid
}

// unavailableEngine models a node without a usable crypto backend. Every
// operation reports "undetermined"; callers decide, via policy, whether to
// accept that as a mocked pass or a hard failure (§4.3, §4.2).
type unavailableEngine struct{}

// NewUnavailableEngine returns an engine whose sign/verify results are
// always undetermined.
func NewUnavailableEngine() SchnorrEngine {
	return unavailableEngine{}
}

func (unavailableEngine) Name() string    { return "unavailable" }
func (unavailableEngine) Available() bool { return false }

func (unavailableEngine) Sign([32]byte, []byte) ([]byte, error) {
	return nil, ErrEngineUnavailable
}

func (unavailableEngine) Verify([32]byte, []byte, []byte) VerifyResult {
	return VerifyUndetermined
}
