package tlvcodec

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBigSizeRoundTrip(t *testing.T) {
	values := []uint64{
		0, 0xFC, 0xFD, 0xFFFF, 0x10000, 0xFFFFFFFF, 0x100000000,
		0xFFFFFFFFFFFFFFFF,
	}
	for _, v := range values {
		encoded, err := EncodeBigSize(v)
		require.NoError(t, err)

		decoded, err := ReadBigSize(bytes.NewReader(encoded))
		require.NoError(t, err)
		require.Equal(t, v, decoded)
	}
}

func TestBigSizeRejectsNonCanonical(t *testing.T) {
	// 0x00 encoded with the 0xFD (2-byte) prefix is non-canonical; the
	// minimal encoding is a single zero byte.
	nonCanonical := []byte{0xFD, 0x00, 0x00}
	_, err := ReadBigSize(bytes.NewReader(nonCanonical))
	require.Error(t, err)
}

func TestParseStreamRejectsDescendingTypes(t *testing.T) {
	var buf bytes.Buffer
	rec2, _ := EncodeRecord(4, []byte("b"))
	rec1, _ := EncodeRecord(2, []byte("a"))
	buf.Write(rec2)
	buf.Write(rec1)

	_, err := ParseStream(buf.Bytes())
	require.Error(t, err)
}

func TestParseStreamSignatureMustBeLast(t *testing.T) {
	var buf bytes.Buffer
	sig, _ := EncodeRecord(SignatureType, bytes.Repeat([]byte{0xAA}, 64))
	trailing, _ := EncodeRecord(241, []byte("oops"))
	buf.Write(sig)
	buf.Write(trailing)

	_, err := ParseStream(buf.Bytes())
	require.Error(t, err)
}

func TestParseStreamExposesRawWithoutSignature(t *testing.T) {
	var buf bytes.Buffer
	a, _ := EncodeRecord(2, []byte("hello"))
	sig, _ := EncodeRecord(SignatureType, bytes.Repeat([]byte{0x01}, 64))
	buf.Write(a)
	rawLen := buf.Len()
	buf.Write(sig)

	result, err := ParseStream(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, buf.Bytes()[:rawLen], result.RawWithoutSignature)
	require.Equal(t, bytes.Repeat([]byte{0x01}, 64), result.Signature)
}

func TestParseStreamAllowsAscendingGaps(t *testing.T) {
	var buf bytes.Buffer
	a, _ := EncodeRecord(2, []byte("a"))
	b, _ := EncodeRecord(14, []byte("b"))
	c, _ := EncodeRecord(14, []byte("c"))
	buf.Write(a)
	buf.Write(b)
	buf.Write(c)

	result, err := ParseStream(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, result.GetAll(14), 2)
}
