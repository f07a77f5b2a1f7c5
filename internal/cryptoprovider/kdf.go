package cryptoprovider

import "hash"

// DeriveKeyMaterial fills size bytes of key material for the given
// single-character tag, following RFC 4253 section 7.2: repeated hashing
// of (K || H || tag || session_id), extended by hashing K || H followed
// by every digest produced so far when more bytes are needed than one
// digest provides. K must already be mpint-encoded; H and sessionID are used
// verbatim.
func DeriveKeyMaterial(size int, tag byte, hashFn func() hash.Hash, K, H, sessionID []byte) []byte {
	out := make([]byte, size)
	remaining := out
	var digestsSoFar []byte

	for len(remaining) > 0 {
		h := hashFn()
		h.Write(K)
		h.Write(H)
		if len(digestsSoFar) == 0 {
			h.Write([]byte{tag})
			h.Write(sessionID)
		} else {
			h.Write(digestsSoFar)
		}
		digest := h.Sum(nil)
		n := copy(remaining, digest)
		remaining = remaining[n:]
		if len(remaining) > 0 {
			digestsSoFar = append(digestsSoFar, digest...)
		}
	}
	return out
}

// Key-derivation tags from RFC 4253 section 7.2.
const (
	TagIVClientToServer  = 'A'
	TagIVServerToClient  = 'B'
	TagEncClientToServer = 'C'
	TagEncServerToClient = 'D'
	TagMACClientToServer = 'E'
	TagMACServerToClient = 'F'
)
