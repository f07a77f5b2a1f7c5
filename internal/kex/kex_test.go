package kex

import (
	"bytes"
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
	"github.com/kmerz/awa-ssh/internal/message"
)

func TestBuildKexInitCarriesSupportedAlgorithms(t *testing.T) {
	m, err := BuildKexInit(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.KexAlgorithms) == 0 || m.KexAlgorithms[0] != cryptoprovider.KexNames()[0] {
		t.Fatalf("unexpected kex algorithms: %v", m.KexAlgorithms)
	}
	var zero [16]byte
	if m.Cookie == zero {
		t.Fatal("expected a non-zero random cookie")
	}
}

func TestNegotiatePicksFirstClientProposedServerSupports(t *testing.T) {
	ours, err := BuildKexInit(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	peer := &message.KexInit{
		KexAlgorithms:           []string{"diffie-hellman-group14-sha1", "diffie-hellman-group14-sha256"},
		ServerHostKeyAlgorithms: []string{"ssh-rsa"},
		CiphersClientToServer:   []string{"aes128-ctr"},
		CiphersServerToClient:   []string{"aes128-ctr"},
		MACsClientToServer:      []string{"hmac-sha1", "hmac-sha2-256"},
		MACsServerToClient:      []string{"hmac-sha1", "hmac-sha2-256"},
		CompressionC2S:          []string{"none"},
		CompressionS2C:          []string{"none"},
	}

	neg, ignore, err := Negotiate(ours, peer)
	if err != nil {
		t.Fatal(err)
	}
	if neg.Kex != "diffie-hellman-group14-sha1" {
		t.Fatalf("Kex = %q, want diffie-hellman-group14-sha1", neg.Kex)
	}
	if neg.MACC2S != "hmac-sha1" {
		t.Fatalf("MACC2S = %q, want hmac-sha1", neg.MACC2S)
	}
	if ignore {
		t.Fatal("did not expect ignore_next_packet when first_kex_packet_follows is unset")
	}
}

func TestNegotiateFailsOnNoCommonAlgorithm(t *testing.T) {
	ours, _ := BuildKexInit(rand.Reader)
	peer := &message.KexInit{
		KexAlgorithms:           []string{"diffie-hellman-group1-sha1"},
		ServerHostKeyAlgorithms: []string{"ssh-rsa"},
		CiphersClientToServer:   []string{"aes128-ctr"},
		CiphersServerToClient:   []string{"aes128-ctr"},
		MACsClientToServer:      []string{"hmac-sha1"},
		MACsServerToClient:      []string{"hmac-sha1"},
		CompressionC2S:          []string{"none"},
		CompressionS2C:          []string{"none"},
	}
	if _, _, err := Negotiate(ours, peer); err == nil {
		t.Fatal("expected ErrNoCommonAlgorithm")
	}
}

func TestNegotiateSetsIgnoreLatchOnWrongGuess(t *testing.T) {
	ours, _ := BuildKexInit(rand.Reader)
	peer := &message.KexInit{
		KexAlgorithms:           []string{"diffie-hellman-group14-sha1", "diffie-hellman-group14-sha256"},
		ServerHostKeyAlgorithms: []string{"ssh-rsa"},
		CiphersClientToServer:   []string{"aes128-ctr"},
		CiphersServerToClient:   []string{"aes128-ctr"},
		MACsClientToServer:      []string{"hmac-sha1"},
		MACsServerToClient:      []string{"hmac-sha1"},
		CompressionC2S:          []string{"none"},
		CompressionS2C:          []string{"none"},
		FirstKexPacketFollows:   true,
	}
	_, ignore, err := Negotiate(ours, peer)
	if err != nil {
		t.Fatal(err)
	}
	if !ignore {
		t.Fatal("expected ignore_next_packet latch when peer's first preference differs from ours")
	}
}

func TestExchangeHashIsDeterministicAndSensitiveToInputs(t *testing.T) {
	e := big.NewInt(12345)
	f := big.NewInt(67890)
	k := big.NewInt(424242)
	hostKeyBlob := []byte("fake-host-key-blob")
	iC := []byte{message.IDKexInit, 1, 2, 3}
	iS := []byte{message.IDKexInit, 4, 5, 6}

	h1, err := ExchangeHash("diffie-hellman-group14-sha256", "SSH-2.0-client", "SSH-2.0-server", iC, iS, hostKeyBlob, e, f, k)
	if err != nil {
		t.Fatal(err)
	}
	h2, err := ExchangeHash("diffie-hellman-group14-sha256", "SSH-2.0-client", "SSH-2.0-server", iC, iS, hostKeyBlob, e, f, k)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(h1, h2) {
		t.Fatal("exchange hash is not deterministic")
	}

	h3, err := ExchangeHash("diffie-hellman-group14-sha256", "SSH-2.0-client", "SSH-2.0-server", iC, iS, hostKeyBlob, big.NewInt(1), f, k)
	if err != nil {
		t.Fatal(err)
	}
	if bytes.Equal(h1, h3) {
		t.Fatal("changing e did not change the exchange hash")
	}
}

func TestDeriveKeysProducesDistinctDirectionalMaterial(t *testing.T) {
	neg := Negotiated{
		Kex:       "diffie-hellman-group14-sha256",
		CipherC2S: "aes128-ctr",
		CipherS2C: "aes128-ctr",
		MACC2S:    "hmac-sha2-256",
		MACS2C:    "hmac-sha2-256",
	}
	k := big.NewInt(999999)
	h := []byte("exchange-hash-bytes")
	sessionID := []byte("session-id-bytes")

	keys, err := DeriveKeys(neg, k, h, sessionID)
	if err != nil {
		t.Fatal(err)
	}
	if len(keys.ClientToServer.Key) != 16 || len(keys.ServerToClient.Key) != 16 {
		t.Fatalf("unexpected key sizes: %d, %d", len(keys.ClientToServer.Key), len(keys.ServerToClient.Key))
	}
	if bytes.Equal(keys.ClientToServer.Key, keys.ServerToClient.Key) {
		t.Fatal("client->server and server->client keys must differ")
	}
	if bytes.Equal(keys.ClientToServer.MACKey, keys.ServerToClient.MACKey) {
		t.Fatal("client->server and server->client MAC keys must differ")
	}
}
