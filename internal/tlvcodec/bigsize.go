// Package tlvcodec implements the BigSize-prefixed TLV stream format used
// to encode capability tokens: a concatenation of ascending-ordered
// (type, length, value) records terminated, optionally, by a trailing
// signature record.
package tlvcodec

import (
	"bytes"
	"io"

	"github.com/go-errors/errors"
	"github.com/lightningnetwork/lnd/tlv"
)

// ReadBigSize decodes a single canonically-encoded BigSize varint from r.
// Non-canonical encodings (e.g. a value below 0xFD written with the 0xFD
// prefix) are rejected by the underlying lnd/tlv reader.
func ReadBigSize(r io.Reader) (uint64, error) {
	var buf [8]byte
	val, err := tlv.ReadVarInt(r, &buf)
	if err != nil {
		return 0, errors.Errorf("bigsize: %v", err)
	}
	return val, nil
}

// WriteBigSize encodes val as a canonical BigSize varint onto w.
func WriteBigSize(w io.Writer, val uint64) error {
	var buf [8]byte
	if err := tlv.WriteVarInt(w, val, &buf); err != nil {
		return errors.Errorf("bigsize: %v", err)
	}
	return nil
}

// EncodeBigSize returns the canonical BigSize encoding of val.
func EncodeBigSize(val uint64) ([]byte, error) {
	var b bytes.Buffer
	if err := WriteBigSize(&b, val); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
