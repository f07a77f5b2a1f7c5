package packet

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"io"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
)

// ErrNeedMore signals that buf does not yet hold a complete record. It is
// a control signal, not a protocol error.
var ErrNeedMore = errors.New("packet: need more bytes")

// ErrMalformed signals a record whose length fields cannot be satisfied
// by the bytes available, or whose padding is out of range.
var ErrMalformed = errors.New("packet: malformed record")

// ErrMacFailure signals a MAC mismatch; fatal per spec.md section 7.
var ErrMacFailure = errors.New("packet: MAC verification failed")

const (
	minPadding = 4
	maxPadding = 255
)

// DecodeResult is the output of Decode.
type DecodeResult struct {
	Payload  []byte
	Consumed int
	Next     Direction
}

// Decode attempts to parse exactly one packet from the front of buf under
// keys. It returns ErrNeedMore when buf does not yet hold a full record
// (never partially consuming it), ErrMalformed on a structurally invalid
// record, or ErrMacFailure when integrity verification fails.
func Decode(buf []byte, keys Direction) (DecodeResult, error) {
	blockSize := keys.blockSize()
	macSize := keys.macSize()

	if len(buf) < blockSize {
		return DecodeResult{}, ErrNeedMore
	}

	firstBlock, err := decryptAt(buf[:blockSize], keys, 0)
	if err != nil {
		return DecodeResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	packetLength := beUint32(firstBlock[0:4])
	if packetLength < 1 || packetLength > 1<<20 {
		return DecodeResult{}, fmt.Errorf("%w: implausible packet_length %d", ErrMalformed, packetLength)
	}
	recordLen := 4 + int(packetLength)
	total := recordLen + macSize
	if len(buf) < total {
		return DecodeResult{}, ErrNeedMore
	}
	if recordLen%blockSize != 0 {
		return DecodeResult{}, fmt.Errorf("%w: record length %d not a multiple of block size %d", ErrMalformed, recordLen, blockSize)
	}

	record := make([]byte, recordLen)
	copy(record, firstBlock)
	if recordLen > blockSize {
		rest, err := decryptAt(buf[blockSize:recordLen], keys, uint64(blockSize/cipherBlockUnit(keys)))
		if err != nil {
			return DecodeResult{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		copy(record[blockSize:], rest)
	}

	next := keys
	if !keys.IsPlaintext() {
		next.Blocks = keys.Blocks + uint64(recordLen/cipherBlockUnit(keys))
	}

	if macSize > 0 {
		wantMAC := buf[recordLen:total]
		gotMAC := cryptoprovider.MACs[keys.MAC].Tag(keys.MACKey, keys.Seq, record)
		if subtle.ConstantTimeCompare(wantMAC, gotMAC) != 1 {
			return DecodeResult{}, ErrMacFailure
		}
	}

	paddingLength := int(record[4])
	if paddingLength < minPadding || 5+paddingLength > recordLen {
		return DecodeResult{}, fmt.Errorf("%w: padding length %d out of range", ErrMalformed, paddingLength)
	}
	payload := record[5 : recordLen-paddingLength]

	next = next.withAdvancedSeq()
	return DecodeResult{Payload: payload, Consumed: total, Next: next}, nil
}

// Encode serializes payload into a framed record under keys, using rand
// for the padding bytes, and returns the bytes to send plus the updated
// Direction.
func Encode(payload []byte, keys Direction, rand io.Reader) ([]byte, Direction, error) {
	blockSize := keys.blockSize()

	padding := blockSize - (5+len(payload))%blockSize
	if padding < minPadding {
		padding += blockSize
	}
	if padding > maxPadding {
		return nil, Direction{}, fmt.Errorf("%w: computed padding %d exceeds 255", ErrMalformed, padding)
	}

	packetLength := 1 + len(payload) + padding
	record := make([]byte, 4+packetLength)
	putBE32(record[0:4], uint32(packetLength))
	record[4] = byte(padding)
	copy(record[5:], payload)
	if _, err := io.ReadFull(rand, record[5+len(payload):]); err != nil {
		return nil, Direction{}, fmt.Errorf("packet: padding bytes: %w", err)
	}

	out := make([]byte, 0, len(record)+keys.macSize())
	if keys.macSize() > 0 {
		out = append(out, cryptoprovider.MACs[keys.MAC].Tag(keys.MACKey, keys.Seq, record)...)
		// MAC is appended after the encrypted record below; stash it
		// here and move it to the tail once encryption is done.
	}
	mac := out
	out = nil

	encrypted, err := encryptAll(record, keys)
	if err != nil {
		return nil, Direction{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	result := make([]byte, 0, len(encrypted)+len(mac))
	result = append(result, encrypted...)
	result = append(result, mac...)

	next := keys
	if !keys.IsPlaintext() {
		next.Blocks = keys.Blocks + uint64(len(record)/cipherBlockUnit(keys))
	}
	next = next.withAdvancedSeq()
	return result, next, nil
}

// decryptAt decrypts chunk, which must be block-aligned, starting at the
// given AES-block offset from keys.Blocks.
func decryptAt(chunk []byte, keys Direction, blockOffset uint64) ([]byte, error) {
	if keys.IsPlaintext() {
		return append([]byte{}, chunk...), nil
	}
	spec := cryptoprovider.Ciphers[keys.Cipher]
	stream, err := spec.StreamAt(keys.Key, keys.IV, keys.Blocks+blockOffset)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(chunk))
	stream.XORKeyStream(out, chunk)
	return out, nil
}

// encryptAll encrypts an entire block-aligned record starting at
// keys.Blocks; CTR mode makes encryption and decryption the same
// operation, but this helper is named for symmetry with decryptAt.
func encryptAll(record []byte, keys Direction) ([]byte, error) {
	return decryptAt(record, keys, 0)
}

// cipherBlockUnit returns the AES block size when keys is keyed, or 1 for
// plaintext (where Blocks bookkeeping is unused).
func cipherBlockUnit(keys Direction) int {
	if keys.IsPlaintext() {
		return 1
	}
	return cryptoprovider.Ciphers[keys.Cipher].BlockSize()
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func putBE32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
