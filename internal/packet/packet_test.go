package packet

import (
	"bytes"
	"crypto/rand"
	"testing"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
)

func keyedDirections() (Direction, Direction) {
	spec := cryptoprovider.Ciphers["aes128-ctr"]
	mac := cryptoprovider.MACs["hmac-sha2-256"]
	key := bytes.Repeat([]byte{0x42}, spec.KeySize)
	iv := bytes.Repeat([]byte{0x01}, spec.IVSize)
	macKey := bytes.Repeat([]byte{0x07}, mac.KeySize)

	send := Direction{Cipher: spec.ID, Key: key, IV: iv, MAC: mac.ID, MACKey: macKey}
	recv := send
	return send, recv
}

func TestPlaintextRoundTrip(t *testing.T) {
	dir := Plaintext()
	payload := []byte("SSH-2.0-handshake-stub")

	out, next, err := Encode(payload, dir, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	result, err := Decode(out, dir)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(result.Payload, payload) {
		t.Fatalf("payload mismatch: got %q want %q", result.Payload, payload)
	}
	if result.Consumed != len(out) {
		t.Fatalf("consumed %d, want %d", result.Consumed, len(out))
	}
	if next.Seq != 1 || result.Next.Seq != 1 {
		t.Fatalf("expected seq to advance to 1, got encode=%d decode=%d", next.Seq, result.Next.Seq)
	}
}

func TestKeyedRoundTripAndSequenceAdvances(t *testing.T) {
	send, recv := keyedDirections()
	payloads := [][]byte{
		[]byte("first packet payload"),
		[]byte("second, a little longer than the first one"),
		[]byte("x"),
	}

	for i, payload := range payloads {
		out, nextSend, err := Encode(payload, send, rand.Reader)
		if err != nil {
			t.Fatalf("packet %d: encode: %v", i, err)
		}
		result, err := Decode(out, recv)
		if err != nil {
			t.Fatalf("packet %d: decode: %v", i, err)
		}
		if !bytes.Equal(result.Payload, payload) {
			t.Fatalf("packet %d: payload mismatch: got %q want %q", i, result.Payload, payload)
		}
		if result.Consumed != len(out) {
			t.Fatalf("packet %d: consumed %d, want %d", i, result.Consumed, len(out))
		}
		if nextSend.Seq != uint32(i+1) {
			t.Fatalf("packet %d: send seq = %d, want %d", i, nextSend.Seq, i+1)
		}
		if result.Next.Seq != uint32(i+1) {
			t.Fatalf("packet %d: recv seq = %d, want %d", i, result.Next.Seq, i+1)
		}
		send = nextSend
		recv = result.Next
	}
}

func TestDecodeNeedMoreOnTruncatedInput(t *testing.T) {
	send, recv := keyedDirections()
	out, _, err := Encode([]byte("enough bytes to need a second block of record"), send, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := Decode(out[:4], recv); err != ErrNeedMore {
		t.Fatalf("short first block: got %v, want ErrNeedMore", err)
	}
	if _, err := Decode(out[:len(out)-1], recv); err != ErrNeedMore {
		t.Fatalf("missing trailing byte: got %v, want ErrNeedMore", err)
	}
}

func TestDecodeDetectsMacFailure(t *testing.T) {
	send, recv := keyedDirections()
	out, _, err := Encode([]byte("tamper with me"), send, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tampered := append([]byte{}, out...)
	tampered[len(tampered)-1] ^= 0xFF

	if _, err := Decode(tampered, recv); err != ErrMacFailure {
		t.Fatalf("got %v, want ErrMacFailure", err)
	}
}

func TestEncodePaddingMeetsMinimumAndAlignment(t *testing.T) {
	send, _ := keyedDirections()
	blockSize := send.blockSize()

	for n := 0; n < 40; n++ {
		payload := bytes.Repeat([]byte{0x5A}, n)
		out, _, err := Encode(payload, send, rand.Reader)
		if err != nil {
			t.Fatalf("n=%d: %v", n, err)
		}
		macSize := send.macSize()
		recordLen := len(out) - macSize
		if recordLen%blockSize != 0 {
			t.Fatalf("n=%d: record length %d not aligned to %d", n, recordLen, blockSize)
		}
		paddingLength := int(func() []byte {
			d, err := decryptAt(out[:blockSize], send, 0)
			if err != nil {
				t.Fatal(err)
			}
			return d
		}()[4])
		if paddingLength < minPadding {
			t.Fatalf("n=%d: padding %d below minimum", n, paddingLength)
		}
	}
}
