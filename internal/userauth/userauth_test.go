package userauth

import (
	"testing"

	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/message"
)

type memStore struct {
	users     map[string]User
	passwords map[string]string
}

func (m memStore) Lookup(name string) (User, bool) {
	u, ok := m.users[name]
	return u, ok
}

func (m memStore) VerifyPassword(name, candidate string) bool {
	want, ok := m.passwords[name]
	if !ok {
		return false
	}
	return ConstantTimeEquals(want, candidate)
}

func newAliceStore(t *testing.T, aliceKey hostkey.Key) memStore {
	t.Helper()
	return memStore{
		users: map[string]User{
			"alice": {Name: "alice", PublicKeys: [][]byte{aliceKey.Marshal()}},
		},
		passwords: map[string]string{"alice": "correct-password"},
	}
}

func probeRequest(user string, alg string, pubkey []byte) *message.UserAuthRequest {
	method := &message.PublickeyMethod{Algorithm: alg, PublicKey: pubkey}
	return &message.UserAuthRequest{User: user, Service: "ssh-connection", Method: "publickey", Payload: method.Marshal()}
}

func signedRequest(t *testing.T, sessionID []byte, user, service, alg string, pubkey []byte, signer hostkey.Key) *message.UserAuthRequest {
	t.Helper()
	unsigned := canonicalPublickeyBlob(sessionID, user, service, alg, pubkey)
	sig, err := signer.Sign(unsigned)
	if err != nil {
		t.Fatal(err)
	}
	method := &message.PublickeyMethod{Algorithm: alg, PublicKey: pubkey, Signature: sig}
	return &message.UserAuthRequest{User: user, Service: service, Method: "publickey", Payload: method.Marshal()}
}

func TestUserauthPublickeyProbe(t *testing.T) {
	aliceKey, err := hostkey.GenerateRSA(2048)
	if err != nil {
		t.Fatal(err)
	}
	store := newAliceStore(t, aliceKey)
	sessionID := []byte("fixed-session-id")

	req := probeRequest("alice", "ssh-rsa", aliceKey.Marshal())
	state, emitted, err := Handle(State{}, sessionID, req, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one emitted message, got %d", len(emitted))
	}
	pkOk, ok := emitted[0].(*message.UserAuthPKOk)
	if !ok {
		t.Fatalf("emitted[0] is %T, want *message.UserAuthPKOk", emitted[0])
	}
	if string(pkOk.PublicKey) != string(aliceKey.Marshal()) {
		t.Fatal("PK_OK did not echo the probed public key")
	}
	if state.Phase != PhaseInProgress || state.User != "alice" || state.Service != "ssh-connection" || state.FailedCount != 0 {
		t.Fatalf("unexpected state after probe: %+v", state)
	}
}

func TestUserauthSignedSuccessThenSubsequentRequestNoOp(t *testing.T) {
	aliceKey, err := hostkey.GenerateRSA(2048)
	if err != nil {
		t.Fatal(err)
	}
	store := newAliceStore(t, aliceKey)
	sessionID := []byte("fixed-session-id")

	probe := probeRequest("alice", "ssh-rsa", aliceKey.Marshal())
	state, _, err := Handle(State{}, sessionID, probe, store)
	if err != nil {
		t.Fatal(err)
	}

	signed := signedRequest(t, sessionID, "alice", "ssh-connection", "ssh-rsa", aliceKey.Marshal(), aliceKey)
	state, emitted, err := Handle(state, sessionID, signed, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected one emitted message, got %d", len(emitted))
	}
	if _, ok := emitted[0].(*message.UserAuthSuccess); !ok {
		t.Fatalf("emitted[0] is %T, want *message.UserAuthSuccess", emitted[0])
	}
	if state.Phase != PhaseDone {
		t.Fatalf("Phase = %v, want Done", state.Phase)
	}

	another := probeRequest("alice", "ssh-rsa", aliceKey.Marshal())
	state, emitted, err = Handle(state, sessionID, another, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 0 {
		t.Fatal("expected Done state to silently discard further requests")
	}
	if state.Phase != PhaseDone {
		t.Fatal("expected state to remain Done")
	}
}

func TestUserauthPasswordSuccess(t *testing.T) {
	aliceKey, _ := hostkey.GenerateRSA(2048)
	store := newAliceStore(t, aliceKey)
	sessionID := []byte("fixed-session-id")

	req := &message.UserAuthRequest{
		User: "alice", Service: "ssh-connection", Method: "password",
		Payload: (&message.PasswordMethod{Password: "correct-password"}).Marshal(),
	}
	state, emitted, err := Handle(State{}, sessionID, req, store)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := emitted[0].(*message.UserAuthSuccess); !ok {
		t.Fatalf("emitted[0] is %T, want *message.UserAuthSuccess", emitted[0])
	}
	if state.Phase != PhaseDone {
		t.Fatal("expected Done after correct password")
	}
}

func TestUserauthMismatchDisconnect(t *testing.T) {
	aliceKey, _ := hostkey.GenerateRSA(2048)
	store := newAliceStore(t, aliceKey)
	sessionID := []byte("fixed-session-id")

	probe := probeRequest("alice", "ssh-rsa", aliceKey.Marshal())
	state, _, err := Handle(State{}, sessionID, probe, store)
	if err != nil {
		t.Fatal(err)
	}

	bobReq := probeRequest("bob", "ssh-rsa", aliceKey.Marshal())
	state, emitted, err := Handle(state, sessionID, bobReq, store)
	if err != nil {
		t.Fatal(err)
	}
	if len(emitted) != 1 {
		t.Fatalf("expected exactly one emitted message, got %d", len(emitted))
	}
	disc, ok := emitted[0].(*message.Disconnect)
	if !ok {
		t.Fatalf("emitted[0] is %T, want *message.Disconnect", emitted[0])
	}
	if disc.Reason != message.ReasonProtocolError {
		t.Fatalf("Reason = %d, want ReasonProtocolError", disc.Reason)
	}
	if state.Phase != PhaseInProgress || state.User != "alice" {
		t.Fatal("mismatch disconnect must not otherwise mutate state")
	}
}

func TestUserauthFailureCap(t *testing.T) {
	aliceKey, _ := hostkey.GenerateRSA(2048)
	store := newAliceStore(t, aliceKey)
	sessionID := []byte("fixed-session-id")

	badReq := &message.UserAuthRequest{
		User: "alice", Service: "ssh-connection", Method: "password",
		Payload: (&message.PasswordMethod{Password: "wrong"}).Marshal(),
	}
	state := State{}
	var err error
	for i := 0; i < MaxFailedAttempts; i++ {
		state, _, err = Handle(state, sessionID, badReq, store)
		if err != nil {
			t.Fatalf("attempt %d: unexpected error %v", i, err)
		}
	}
	if state.FailedCount != MaxFailedAttempts {
		t.Fatalf("FailedCount = %d, want %d", state.FailedCount, MaxFailedAttempts)
	}

	_, emitted, err := Handle(state, sessionID, badReq, store)
	if err == nil {
		t.Fatal("expected ErrAuthExhausted on the attempt past the cap")
	}
	if len(emitted) != 1 {
		t.Fatalf("expected a DISCONNECT alongside the error, got %d messages", len(emitted))
	}
}
