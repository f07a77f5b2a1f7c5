package cryptoprovider

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
	"math/big"
)

// CipherSpec describes one negotiable symmetric cipher: its key/IV sizes
// and how to build a keystream from key material. Only stream ciphers are
// modeled, matching the ones spec.md's framer needs (aes*-ctr); CTR mode
// is itself a stream built on the AES block cipher.
type CipherSpec struct {
	ID      string
	KeySize int
	IVSize  int

	newStream func(key, iv []byte) (cipher.Stream, error)
}

// BlockSize is the cipher's block size in bytes, used by the framer for
// padding and for addressing into the keystream by block offset.
func (c CipherSpec) BlockSize() int { return aes.BlockSize }

// StreamAt returns a keystream positioned blockOffset AES blocks into the
// direction's keystream, so a caller can decrypt or encrypt any
// block-aligned slice of a continuous CTR stream without holding mutable
// cipher state across packets.
func (c CipherSpec) StreamAt(key, iv []byte, blockOffset uint64) (cipher.Stream, error) {
	return c.newStream(key, addCounter(iv, blockOffset))
}

// Ciphers is the set of symmetric ciphers this provider negotiates, in no
// particular order (negotiation order comes from the KEXINIT lists).
var Ciphers = map[string]CipherSpec{
	"aes128-ctr": {ID: "aes128-ctr", KeySize: 16, IVSize: aes.BlockSize, newStream: newAESCTR},
	"aes256-ctr": {ID: "aes256-ctr", KeySize: 32, IVSize: aes.BlockSize, newStream: newAESCTR},
}

// CipherNames returns the supported cipher ids in preference order.
func CipherNames() []string { return []string{"aes256-ctr", "aes128-ctr"} }

func newAESCTR(key, iv []byte) (cipher.Stream, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("cryptoprovider: aes key: %w", err)
	}
	return cipher.NewCTR(block, iv), nil
}

// addCounter treats iv as a big-endian unsigned counter and returns iv +
// blocks, wrapping modulo 2^(8*len(iv)) (CTR mode's own wraparound
// behavior).
func addCounter(iv []byte, blocks uint64) []byte {
	mod := new(big.Int).Lsh(big.NewInt(1), uint(len(iv)*8))
	n := new(big.Int).SetBytes(iv)
	n.Add(n, new(big.Int).SetUint64(blocks))
	n.Mod(n, mod)
	out := make([]byte, len(iv))
	n.FillBytes(out)
	return out
}
