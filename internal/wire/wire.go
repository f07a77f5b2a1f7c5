// Package wire implements the byte-oriented encoders and decoders for the
// SSH binary data types defined in RFC 4251 section 5: boolean, uint32,
// string, mpint and name-list. The public-key blob is composed from these
// primitives in internal/hostkey; this package has no blob-specific codec.
//
// Encoding is total: every Append function always succeeds. Decoding is
// partial: a Parse function returns ErrMalformed when the input does not
// hold a complete, well-formed value. Parse functions never hold a cursor
// across calls — each one takes the remaining buffer and returns the
// unconsumed remainder, so callers are free to interleave calls however
// they like.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrMalformed is returned when a length field overflows the remaining
// buffer or a field is otherwise not well-formed.
var ErrMalformed = errors.New("wire: malformed input")

// AppendBool appends a one-byte boolean (0x00 or 0x01).
func AppendBool(buf []byte, v bool) []byte {
	if v {
		return append(buf, 1)
	}
	return append(buf, 0)
}

// AppendUint32 appends a big-endian uint32.
func AppendUint32(buf []byte, v uint32) []byte {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], v)
	return append(buf, tmp[:]...)
}

// AppendString appends an SSH string: a uint32 length followed by the raw
// bytes.
func AppendString(buf []byte, s []byte) []byte {
	buf = AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

// AppendStringASCII is a convenience wrapper around AppendString for Go
// strings.
func AppendStringASCII(buf []byte, s string) []byte {
	return AppendString(buf, []byte(s))
}

// AppendNameList appends a comma-separated name-list encoded as an SSH
// string.
func AppendNameList(buf []byte, names []string) []byte {
	return AppendStringASCII(buf, strings.Join(names, ","))
}

// AppendMpint appends a length-prefixed, two's-complement, big-endian
// multiple precision integer with minimal leading padding: a leading zero
// byte is added only when the high bit of the first magnitude byte would
// otherwise be mistaken for a sign bit. Every mpint this codec handles (e,
// f, k, RSA components) is non-negative; negative values are encoded by
// their magnitude, which is the documented limit of this helper.
func AppendMpint(buf []byte, n *big.Int) []byte {
	if n.Sign() == 0 {
		return AppendUint32(buf, 0)
	}
	b := n.Bytes()
	if len(b) > 0 && b[0]&0x80 != 0 {
		padded := make([]byte, len(b)+1)
		copy(padded[1:], b)
		return AppendString(buf, padded)
	}
	return AppendString(buf, b)
}

// ParseBool parses a one-byte boolean.
func ParseBool(data []byte) (bool, []byte, error) {
	if len(data) < 1 {
		return false, nil, fmt.Errorf("%w: truncated bool", ErrMalformed)
	}
	return data[0] != 0, data[1:], nil
}

// ParseUint32 parses a big-endian uint32.
func ParseUint32(data []byte) (uint32, []byte, error) {
	if len(data) < 4 {
		return 0, nil, fmt.Errorf("%w: truncated uint32", ErrMalformed)
	}
	return binary.BigEndian.Uint32(data[:4]), data[4:], nil
}

// ParseString parses an SSH string, returning its raw bytes.
func ParseString(data []byte) ([]byte, []byte, error) {
	n, rest, err := ParseUint32(data)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: string length: %v", ErrMalformed, err)
	}
	if uint64(n) > uint64(len(rest)) {
		return nil, nil, fmt.Errorf("%w: string length %d exceeds remaining %d bytes", ErrMalformed, n, len(rest))
	}
	return rest[:n], rest[n:], nil
}

// ParseNameList parses a comma-separated name-list.
func ParseNameList(data []byte) ([]string, []byte, error) {
	s, rest, err := ParseString(data)
	if err != nil {
		return nil, nil, err
	}
	if len(s) == 0 {
		return nil, rest, nil
	}
	return strings.Split(string(s), ","), rest, nil
}

// ParseMpint parses a length-prefixed two's-complement big-endian integer.
// Only non-negative values are expected on the wire for this protocol's
// use (e, f, k and RSA components), so the magnitude is read directly
// rather than interpreting the sign bit.
func ParseMpint(data []byte) (*big.Int, []byte, error) {
	s, rest, err := ParseString(data)
	if err != nil {
		return nil, nil, err
	}
	return new(big.Int).SetBytes(s), rest, nil
}
