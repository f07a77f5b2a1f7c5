package transport

import (
	"crypto/rand"
	"math/big"
	"testing"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/message"
)


func testHostKey(t *testing.T) hostkey.Key {
	t.Helper()
	k, err := hostkey.GenerateRSA(2048)
	if err != nil {
		t.Fatal(err)
	}
	return k
}

func clientKexInit() *message.KexInit {
	return &message.KexInit{
		KexAlgorithms:           cryptoprovider.KexNames(),
		ServerHostKeyAlgorithms: cryptoprovider.HostKeyAlgorithmNames(),
		CiphersClientToServer:   cryptoprovider.CipherNames(),
		CiphersServerToClient:   cryptoprovider.CipherNames(),
		MACsClientToServer:      cryptoprovider.MACNames(),
		MACsServerToClient:      cryptoprovider.MACNames(),
		CompressionC2S:          cryptoprovider.CompressionNames(),
		CompressionS2C:          cryptoprovider.CompressionNames(),
	}
}

func TestFullHandshakeInstallsKeysAndAdvancesExpected(t *testing.T) {
	hk := testHostKey(t)
	state, _, err := NewState("SSH-2.0-awa_ssh_0.1", hk, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	state = HandleVersion(state, "OpenSSH_6.9")
	if state.Expected != message.IDKexInit {
		t.Fatalf("Expected = %d, want IDKexInit", state.Expected)
	}

	peerKexInit := clientKexInit()
	peerRaw := message.Marshal(peerKexInit)
	state, emitted, err := Handle(state, peerRaw, peerKexInit, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 0 {
		t.Fatalf("KEXINIT should emit nothing, got %d messages", len(emitted))
	}
	if state.Expected != message.IDKexDHInit {
		t.Fatalf("Expected = %d, want IDKexDHInit", state.Expected)
	}

	group := cryptoprovider.KexAlgorithms[state.Negotiated.Kex].Group
	clientSecret, err := group.GenerateSecret(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	e := group.Public(clientSecret)

	dhInit := &message.KexDHInit{E: e}
	state, emitted, err = Handle(state, message.Marshal(dhInit), dhInit, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 2 {
		t.Fatalf("KEXDH_INIT should emit KEXDH_REPLY and NEWKEYS, got %d", len(emitted))
	}
	reply, ok := emitted[0].(*message.KexDHReply)
	if !ok {
		t.Fatalf("emitted[0] is %T, want *message.KexDHReply", emitted[0])
	}
	if state.PendingInbound == nil || state.PendingOutbound == nil {
		t.Fatal("expected pending key material after KEXDH_INIT")
	}
	if state.SessionID == nil {
		t.Fatal("expected session_id to be set on first KEX")
	}
	firstSessionID := state.SessionID

	state, out, err := EncodeOutbound(state, reply, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(out) == 0 {
		t.Fatal("expected non-empty encoded KEXDH_REPLY")
	}
	if state.OutboundKeys.Seq != 1 {
		t.Fatalf("outbound seq after KEXDH_REPLY = %d, want 1", state.OutboundKeys.Seq)
	}

	state, _, err = EncodeOutbound(state, &message.NewKeys{}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if state.PendingOutbound != nil {
		t.Fatal("expected pending outbound keys to be cleared after emitting NEWKEYS")
	}
	if state.OutboundKeys.IsPlaintext() {
		t.Fatal("expected outbound keys to be installed after emitting NEWKEYS")
	}
	if state.OutboundKeys.Seq != 2 {
		t.Fatalf("outbound seq after NEWKEYS = %d, want 2 (preserved across install)", state.OutboundKeys.Seq)
	}

	newKeysMsg := &message.NewKeys{}
	state, emitted, err = Handle(state, message.Marshal(newKeysMsg), newKeysMsg, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 0 {
		t.Fatal("inbound NEWKEYS should emit nothing")
	}
	if state.PendingInbound != nil {
		t.Fatal("expected pending inbound keys to be cleared")
	}
	if state.InboundKeys.IsPlaintext() {
		t.Fatal("expected inbound keys to be installed")
	}
	if state.Expected != message.IDServiceRequest {
		t.Fatalf("Expected = %d, want IDServiceRequest after first rekey's NEWKEYS", state.Expected)
	}

	svcReq := &message.ServiceRequest{Service: "ssh-userauth"}
	state, emitted, err = Handle(state, message.Marshal(svcReq), svcReq, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected one SERVICE_ACCEPT, got %d", len(emitted))
	}
	if _, ok := emitted[0].(*message.ServiceAccept); !ok {
		t.Fatalf("emitted[0] is %T, want *message.ServiceAccept", emitted[0])
	}
	if state.Expected != message.IDUserAuthRequest {
		t.Fatalf("Expected = %d, want IDUserAuthRequest", state.Expected)
	}

	if string(state.SessionID) != string(firstSessionID) {
		t.Fatal("session_id must not change after being set")
	}
}

func TestServiceRequestRejectsUnknownService(t *testing.T) {
	hk := testHostKey(t)
	state, _, _ := NewState("SSH-2.0-awa_ssh_0.1", hk, rand.Reader)
	state.Expected = message.IDServiceRequest

	svcReq := &message.ServiceRequest{Service: "ssh-connection"}
	state, emitted, err := Handle(state, message.Marshal(svcReq), svcReq, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	disc, ok := emitted[0].(*message.Disconnect)
	if !ok {
		t.Fatalf("emitted[0] is %T, want *message.Disconnect", emitted[0])
	}
	if disc.Reason != message.ReasonServiceNotAvailable {
		t.Fatalf("Reason = %d, want ReasonServiceNotAvailable", disc.Reason)
	}
}

func TestHandleRejectsMessageNotMatchingExpected(t *testing.T) {
	hk := testHostKey(t)
	state, _, _ := NewState("SSH-2.0-awa_ssh_0.1", hk, rand.Reader)
	state = HandleVersion(state, "OpenSSH_6.9")

	dhInit := &message.KexDHInit{E: big.NewInt(7)}
	_, _, err := Handle(state, message.Marshal(dhInit), dhInit, rand.Reader)
	if err == nil {
		t.Fatal("expected ErrUnexpected for KEXDH_INIT before KEXINIT")
	}
}

func TestNegotiationFailureSurfacesError(t *testing.T) {
	hk := testHostKey(t)
	state, _, _ := NewState("SSH-2.0-awa_ssh_0.1", hk, rand.Reader)
	state = HandleVersion(state, "OpenSSH_6.9")

	peer := &message.KexInit{
		KexAlgorithms:           []string{"diffie-hellman-group1-sha1"},
		ServerHostKeyAlgorithms: []string{"ssh-ed25519"},
		CiphersClientToServer:   []string{"3des-cbc"},
		CiphersServerToClient:   []string{"3des-cbc"},
		MACsClientToServer:      []string{"hmac-md5"},
		MACsServerToClient:      []string{"hmac-md5"},
		CompressionC2S:          []string{"zlib"},
		CompressionS2C:          []string{"zlib"},
	}
	_, _, err := Handle(state, message.Marshal(peer), peer, rand.Reader)
	if err == nil {
		t.Fatal("expected ErrNegotiationFailure")
	}
}

func TestUnhandledMessageTypeSurfacesError(t *testing.T) {
	hk := testHostKey(t)
	state, _, _ := NewState("SSH-2.0-awa_ssh_0.1", hk, rand.Reader)
	pkOk := &message.UserAuthPKOk{Algorithm: "ssh-rsa"}
	_, _, err := Handle(state, message.Marshal(pkOk), pkOk, rand.Reader)
	if err == nil {
		t.Fatal("expected ErrUnhandled for a server-only message received inbound")
	}
}
