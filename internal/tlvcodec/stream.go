package tlvcodec

import (
	"bytes"
	"io"

	"github.com/go-errors/errors"
)

// SignatureType is the TLV type number reserved for the trailing signature
// record. If present it must be the final record in the stream.
const SignatureType = 240

// Record is a single decoded (type, value) pair.
type Record struct {
	Type  uint64
	Value []byte
}

// ParseResult is the outcome of parsing a TLV stream.
type ParseResult struct {
	// Records holds every decoded record, including the signature record
	// if one was present.
	Records []Record

	// RawWithoutSignature is the byte slice of the stream up to (but not
	// including) the start of the signature record. If no signature
	// record is present it is the entire input.
	RawWithoutSignature []byte

	// Signature is the value of the type-240 record, or nil if absent.
	Signature []byte
}

// Get returns the value of the first record with the given type, or nil.
func (p *ParseResult) Get(t uint64) []byte {
	for _, r := range p.Records {
		if r.Type == t {
			return r.Value
		}
	}
	return nil
}

// GetAll returns the values of every record with the given type, in order.
func (p *ParseResult) GetAll(t uint64) [][]byte {
	var out [][]byte
	for _, r := range p.Records {
		if r.Type == t {
			out = append(out, r.Value)
		}
	}
	return out
}

// ParseStream decodes data into an ascending-ordered TLV record set.
//
// Records must appear in non-decreasing type order; a record whose type is
// less than the previous record's type is rejected, while a repeated type
// (such as several capability records) is accepted. If a type-240
// (signature) record is encountered it must be the last record in the
// stream; RawWithoutSignature is set to everything preceding it. Unknown
// even/odd type handling is the caller's responsibility (see
// internal/token), since what counts as "known" depends on the TLV
// namespace in use.
func ParseStream(data []byte) (*ParseResult, error) {
	r := bytes.NewReader(data)
	result := &ParseResult{RawWithoutSignature: data}

	lastType := int64(-1)
	for r.Len() > 0 {
		recordStart := len(data) - r.Len()

		typ, err := ReadBigSize(r)
		if err != nil {
			return nil, errors.Errorf("tlv: reading type: %v", err)
		}
		if int64(typ) < lastType {
			return nil, errors.Errorf(
				"tlv: record type %d is not in ascending order "+
					"(previous type %d)", typ, lastType)
		}
		lastType = int64(typ)

		length, err := ReadBigSize(r)
		if err != nil {
			return nil, errors.Errorf("tlv: reading length: %v", err)
		}
		if uint64(r.Len()) < length {
			return nil, errors.Errorf("tlv: record length %d exceeds remaining buffer", length)
		}

		value := make([]byte, length)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, errors.Errorf("tlv: reading value: %v", err)
		}

		if typ == SignatureType {
			if r.Len() != 0 {
				return nil, errors.Errorf("tlv: signature record is not last")
			}
			result.Signature = value
			result.RawWithoutSignature = data[:recordStart]
			result.Records = append(result.Records, Record{Type: typ, Value: value})
			break
		}

		result.Records = append(result.Records, Record{Type: typ, Value: value})
	}

	return result, nil
}

// EncodeRecord returns the TLV encoding of a single (type, value) record.
func EncodeRecord(t uint64, value []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteBigSize(&buf, t); err != nil {
		return nil, err
	}
	if err := WriteBigSize(&buf, uint64(len(value))); err != nil {
		return nil, err
	}
	buf.Write(value)
	return buf.Bytes(), nil
}
