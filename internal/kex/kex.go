// Package kex implements KEXINIT construction and negotiation, the
// Diffie-Hellman group-14 exchange and exchange-hash computation, and the
// six-stream key derivation, grounded on golang.org/x/crypto/ssh's
// handshake transcript (as vendored in the pack's kex.go/transport.go
// reference files) but reduced to the pure functions this core's
// transport state machine needs.
package kex

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
	"github.com/kmerz/awa-ssh/internal/message"
	"github.com/kmerz/awa-ssh/internal/wire"
)

// ErrNoCommonAlgorithm is returned by Negotiate when a category has no
// name the client proposed that the server also supports.
var ErrNoCommonAlgorithm = errors.New("kex: no common algorithm")

// Negotiated holds the result of matching our supported algorithm lists
// against the peer's KEXINIT, one name per category.
type Negotiated struct {
	Kex            string
	HostKey        string
	CipherC2S      string
	CipherS2C      string
	MACC2S         string
	MACS2C         string
	CompressionC2S string
	CompressionS2C string
}

// BuildKexInit constructs our KEXINIT message, carrying this provider's
// supported algorithm name-lists in preference order and a fresh random
// cookie.
func BuildKexInit(randSource io.Reader) (*message.KexInit, error) {
	if randSource == nil {
		randSource = rand.Reader
	}
	m := &message.KexInit{
		KexAlgorithms:           cryptoprovider.KexNames(),
		ServerHostKeyAlgorithms: cryptoprovider.HostKeyAlgorithmNames(),
		CiphersClientToServer:   cryptoprovider.CipherNames(),
		CiphersServerToClient:   cryptoprovider.CipherNames(),
		MACsClientToServer:      cryptoprovider.MACNames(),
		MACsServerToClient:      cryptoprovider.MACNames(),
		CompressionC2S:          cryptoprovider.CompressionNames(),
		CompressionS2C:          cryptoprovider.CompressionNames(),
		LanguagesC2S:            nil,
		LanguagesS2C:            nil,
		FirstKexPacketFollows:   false,
	}
	if _, err := io.ReadFull(randSource, m.Cookie[:]); err != nil {
		return nil, fmt.Errorf("kex: cookie: %w", err)
	}
	return m, nil
}

// findCommon returns the first name in proposed that also appears in
// supported, matching spec.md section 4.3's "first client-proposed name
// the server also supports" rule.
func findCommon(proposed, supported []string) (string, bool) {
	set := make(map[string]bool, len(supported))
	for _, s := range supported {
		set[s] = true
	}
	for _, p := range proposed {
		if set[p] {
			return p, true
		}
	}
	return "", false
}

// Negotiate matches the peer's (client's) proposed algorithm lists
// against ours, returning the agreed set or ErrNoCommonAlgorithm for the
// first category with no match. It also reports whether the caller
// should set the ignore_next_packet latch: the peer guessed its first
// preference would be accepted and guessed wrong.
func Negotiate(ours, peer *message.KexInit) (Negotiated, bool, error) {
	var neg Negotiated
	var ok bool

	if neg.Kex, ok = findCommon(peer.KexAlgorithms, ours.KexAlgorithms); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: kex", ErrNoCommonAlgorithm)
	}
	if neg.HostKey, ok = findCommon(peer.ServerHostKeyAlgorithms, ours.ServerHostKeyAlgorithms); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: host key", ErrNoCommonAlgorithm)
	}
	if neg.CipherC2S, ok = findCommon(peer.CiphersClientToServer, ours.CiphersClientToServer); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: cipher client->server", ErrNoCommonAlgorithm)
	}
	if neg.CipherS2C, ok = findCommon(peer.CiphersServerToClient, ours.CiphersServerToClient); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: cipher server->client", ErrNoCommonAlgorithm)
	}
	if neg.MACC2S, ok = findCommon(peer.MACsClientToServer, ours.MACsClientToServer); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: mac client->server", ErrNoCommonAlgorithm)
	}
	if neg.MACS2C, ok = findCommon(peer.MACsServerToClient, ours.MACsServerToClient); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: mac server->client", ErrNoCommonAlgorithm)
	}
	if neg.CompressionC2S, ok = findCommon(peer.CompressionC2S, ours.CompressionC2S); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: compression client->server", ErrNoCommonAlgorithm)
	}
	if neg.CompressionS2C, ok = findCommon(peer.CompressionS2C, ours.CompressionS2C); !ok {
		return Negotiated{}, false, fmt.Errorf("%w: compression server->client", ErrNoCommonAlgorithm)
	}

	guessedWrong := peer.FirstKexPacketFollows &&
		(len(peer.KexAlgorithms) == 0 || peer.KexAlgorithms[0] != ours.KexAlgorithms[0] ||
			len(peer.ServerHostKeyAlgorithms) == 0 || peer.ServerHostKeyAlgorithms[0] != ours.ServerHostKeyAlgorithms[0])

	return neg, guessedWrong, nil
}

// ExchangeHash computes H = HASH(V_C || V_S || I_C || I_S || K_S || e || f
// || k) per spec.md section 4.3, using the hash function bound to the
// negotiated kex algorithm. iC and iS are the raw KEXINIT payload bytes
// (message id included) exactly as they traveled on the wire.
func ExchangeHash(kexAlgo string, vC, vS string, iC, iS []byte, hostKeyBlob []byte, e, f, k *big.Int) ([]byte, error) {
	spec, ok := cryptoprovider.KexAlgorithms[kexAlgo]
	if !ok {
		return nil, fmt.Errorf("kex: unknown algorithm %q", kexAlgo)
	}
	h := spec.Hash()
	var buf []byte
	buf = wire.AppendStringASCII(buf, vC)
	buf = wire.AppendStringASCII(buf, vS)
	buf = wire.AppendString(buf, iC)
	buf = wire.AppendString(buf, iS)
	buf = wire.AppendString(buf, hostKeyBlob)
	buf = wire.AppendMpint(buf, e)
	buf = wire.AppendMpint(buf, f)
	buf = wire.AppendMpint(buf, k)
	h.Write(buf)
	return h.Sum(nil), nil
}
