// Package cryptoprovider is the "opaque crypto provider" spec.md's
// transport and key-exchange components delegate to: Diffie-Hellman group
// parameters, symmetric ciphers, MACs and the exchange-hash functions, all
// built on the standard library's crypto/* packages. internal/kex and
// internal/packet look algorithms up directly in this package's tables
// (KexAlgorithms, Ciphers, MACs); only the random source is passed in by
// the caller. The tables are not injected, and a CipherSpec cannot be
// built outside this package because its stream constructor is unexported.
package cryptoprovider

import (
	"crypto/rand"
	"errors"
	"io"
	"math/big"
)

// oakleyGroup14 is the 2048-bit MODP group from RFC 3526 section 3,
// used by diffie-hellman-group14-sha1 and -sha256 (RFC 4253 / RFC 8268).
const oakleyGroup14Hex = "FFFFFFFFFFFFFFFFC90FDAA22168C234C4C6628B80DC1CD" +
	"129024E088A67CC74020BBEA63B139B22514A08798E3404DDEF9519B3CD3A43" +
	"1B302B0A6DF25F14374FE1356D6D51C245E485B576625E7EC6F44C42E9A637E" +
	"D6B0BFF5CB6F406B7EDEE386BFB5A899FA5AE9F24117C4B1FE649286651ECE45" +
	"B3DC2007CB8A163BF0598DA48361C55D39A69163FA8FD24CF5F83655D23DCA3A" +
	"D961C62F356208552BB9ED529077096966D670C354E4ABC9804F1746C08CA182" +
	"17C32905E462E36CE3BE39E772C180E86039B2783A2EC07A28FB5C55DF06F4C5" +
	"2C9DE2BCBF6955817183995497CEA956AE515D2261898FA051015728E5A8AACA" +
	"A68FFFFFFFFFFFFFFFF"

// DHGroup is a fixed-generator modular exponentiation group used for
// classic (non-elliptic-curve) Diffie-Hellman key exchange.
type DHGroup struct {
	G, P *big.Int
}

var group14 = mustGroup14()

func mustGroup14() DHGroup {
	p, ok := new(big.Int).SetString(oakleyGroup14Hex, 16)
	if !ok {
		panic("cryptoprovider: invalid oakley group 14 constant")
	}
	return DHGroup{G: big.NewInt(2), P: p}
}

// Group14 returns the RFC 3526 2048-bit MODP group used by
// diffie-hellman-group14-sha1 and diffie-hellman-group14-sha256.
func Group14() DHGroup { return group14 }

var errDHOutOfBounds = errors.New("cryptoprovider: DH value out of bounds")

// GenerateSecret picks a random secret exponent in (0, p-1) using r as the
// entropy source.
func (g DHGroup) GenerateSecret(r io.Reader) (*big.Int, error) {
	if r == nil {
		r = rand.Reader
	}
	pMinus1 := new(big.Int).Sub(g.P, big.NewInt(1))
	for {
		x, err := rand.Int(r, pMinus1)
		if err != nil {
			return nil, err
		}
		if x.Sign() > 0 {
			return x, nil
		}
	}
}

// Public computes g^secret mod p.
func (g DHGroup) Public(secret *big.Int) *big.Int {
	return new(big.Int).Exp(g.G, secret, g.P)
}

// Shared computes theirPublic^mySecret mod p, rejecting out-of-range
// values per RFC 4253 section 8's validation requirement.
func (g DHGroup) Shared(theirPublic, mySecret *big.Int) (*big.Int, error) {
	one := big.NewInt(1)
	pMinus1 := new(big.Int).Sub(g.P, big.NewInt(1))
	if theirPublic.Cmp(one) <= 0 || theirPublic.Cmp(pMinus1) >= 0 {
		return nil, errDHOutOfBounds
	}
	return new(big.Int).Exp(theirPublic, mySecret, g.P), nil
}
