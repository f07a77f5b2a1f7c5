package cryptoprovider

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// MACSpec describes one negotiable message-authentication code. Per
// spec.md section 4.2, the MAC covers seq || plaintext-record (the
// classic RFC 4253 order, not encrypt-then-mac), so only the key size and
// constructor matter here.
type MACSpec struct {
	ID      string
	KeySize int
	Size    int

	New func(key []byte) hash.Hash
}

// MACs is the set of MACs this provider negotiates.
var MACs = map[string]MACSpec{
	"hmac-sha1":     {ID: "hmac-sha1", KeySize: sha1.Size, Size: sha1.Size, New: func(key []byte) hash.Hash { return hmac.New(sha1.New, key) }},
	"hmac-sha2-256": {ID: "hmac-sha2-256", KeySize: sha256.Size, Size: sha256.Size, New: func(key []byte) hash.Hash { return hmac.New(sha256.New, key) }},
}

// MACNames returns the supported MAC ids in preference order.
func MACNames() []string { return []string{"hmac-sha2-256", "hmac-sha1"} }

// Tag computes the MAC over seq (big-endian uint32) followed by data.
func (m MACSpec) Tag(key []byte, seq uint32, data []byte) []byte {
	h := m.New(key)
	var seqBytes [4]byte
	seqBytes[0] = byte(seq >> 24)
	seqBytes[1] = byte(seq >> 16)
	seqBytes[2] = byte(seq >> 8)
	seqBytes[3] = byte(seq)
	h.Write(seqBytes[:])
	h.Write(data)
	return h.Sum(nil)
}
