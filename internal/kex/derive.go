package kex

import (
	"fmt"
	"math/big"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
	"github.com/kmerz/awa-ssh/internal/wire"
)

// DirectionKeys is the key material derived for one direction of travel:
// enough to build a packet.Direction once the caller supplies the
// carried-over sequence number.
type DirectionKeys struct {
	Cipher string
	Key    []byte
	IV     []byte
	MAC    string
	MACKey []byte
}

// DerivedKeys bundles both directions' freshly derived key material,
// named from the client's point of view per RFC 4253 section 7.2.
type DerivedKeys struct {
	ClientToServer DirectionKeys
	ServerToClient DirectionKeys
}

// DeriveKeys computes the six keying streams (IV, encryption key,
// integrity key, per direction) from the shared secret k, the exchange
// hash h, and the session identifier, per spec.md section 4.3.
func DeriveKeys(neg Negotiated, k *big.Int, h, sessionID []byte) (DerivedKeys, error) {
	kexSpec, ok := cryptoprovider.KexAlgorithms[neg.Kex]
	if !ok {
		return DerivedKeys{}, fmt.Errorf("kex: unknown algorithm %q", neg.Kex)
	}
	c2sCipher, ok := cryptoprovider.Ciphers[neg.CipherC2S]
	if !ok {
		return DerivedKeys{}, fmt.Errorf("kex: unknown cipher %q", neg.CipherC2S)
	}
	s2cCipher, ok := cryptoprovider.Ciphers[neg.CipherS2C]
	if !ok {
		return DerivedKeys{}, fmt.Errorf("kex: unknown cipher %q", neg.CipherS2C)
	}
	c2sMAC, ok := cryptoprovider.MACs[neg.MACC2S]
	if !ok {
		return DerivedKeys{}, fmt.Errorf("kex: unknown mac %q", neg.MACC2S)
	}
	s2cMAC, ok := cryptoprovider.MACs[neg.MACS2C]
	if !ok {
		return DerivedKeys{}, fmt.Errorf("kex: unknown mac %q", neg.MACS2C)
	}

	kMpint := wire.AppendMpint(nil, k)
	hashFn := kexSpec.Hash
	derive := func(tag byte, size int) []byte {
		return cryptoprovider.DeriveKeyMaterial(size, tag, hashFn, kMpint, h, sessionID)
	}

	return DerivedKeys{
		ClientToServer: DirectionKeys{
			Cipher: neg.CipherC2S,
			Key:    derive(cryptoprovider.TagEncClientToServer, c2sCipher.KeySize),
			IV:     derive(cryptoprovider.TagIVClientToServer, c2sCipher.IVSize),
			MAC:    neg.MACC2S,
			MACKey: derive(cryptoprovider.TagMACClientToServer, c2sMAC.KeySize),
		},
		ServerToClient: DirectionKeys{
			Cipher: neg.CipherS2C,
			Key:    derive(cryptoprovider.TagEncServerToClient, s2cCipher.KeySize),
			IV:     derive(cryptoprovider.TagIVServerToClient, s2cCipher.IVSize),
			MAC:    neg.MACS2C,
			MACKey: derive(cryptoprovider.TagMACServerToClient, s2cMAC.KeySize),
		},
	}, nil
}
