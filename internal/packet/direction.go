// Package packet implements the SSH binary packet protocol (RFC 4253
// section 6): length-prefixed, padded records with optional encryption
// and MAC, and the per-direction sequence numbers that persist across
// rekeys.
//
// Every function here is pure: Decode and Encode take a Direction by
// value and return the updated Direction alongside their output, rather
// than mutating shared cipher state. This works because every record
// this protocol frames is padded to a whole multiple of the cipher's
// block size (see Encode), so a CTR keystream can always be reconstructed
// by block offset instead of being carried as live, mutable state.
package packet

import "github.com/kmerz/awa-ssh/internal/cryptoprovider"

// Direction holds one side's (inbound or outbound) framing state: which
// cipher and MAC are in effect, their keys, and the sequence/keystream
// counters needed to frame the next packet.
type Direction struct {
	Cipher string
	Key    []byte
	IV     []byte
	Blocks uint64 // AES blocks of keystream already consumed

	MAC    string
	MACKey []byte

	Seq uint32 // wraps modulo 2^32, per spec.md invariant 6
}

// Plaintext is the "no encryption, no MAC" sentinel used before the
// first NEWKEYS in each direction.
func Plaintext() Direction {
	return Direction{Cipher: "none", MAC: "none"}
}

// IsPlaintext reports whether d is the plaintext sentinel.
func (d Direction) IsPlaintext() bool { return d.Cipher == "none" }

// blockSize returns the block size framing must round records to:
// max(8, cipher block size), per spec.md section 4.2.
func (d Direction) blockSize() int {
	if d.IsPlaintext() {
		return 8
	}
	return cryptoprovider.Ciphers[d.Cipher].BlockSize()
}

// macSize returns the MAC's output length, or 0 before keying.
func (d Direction) macSize() int {
	if d.MAC == "none" {
		return 0
	}
	return cryptoprovider.MACs[d.MAC].Size
}

// withAdvancedSeq returns a copy of d with Seq advanced by one, wrapping modulo
// 2^32 via normal unsigned overflow.
func (d Direction) withAdvancedSeq() Direction {
	next := d
	next.Seq = d.Seq + 1
	return next
}
