// Package userauth implements the userauth sub-protocol state machine of
// spec.md section 4.6: publickey probing and signature verification,
// password checks, failure counting, and the success/disconnect
// transitions. Every exported function is pure.
package userauth

import (
	"bytes"
	"crypto/subtle"
	"errors"
	"fmt"

	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/message"
	"github.com/kmerz/awa-ssh/internal/wire"
)

// MaxFailedAttempts is the failure cap from spec.md section 4.6 and
// section 9's open question: the 11th attempt after 10 failures is
// refused outright rather than evaluated.
const MaxFailedAttempts = 10

var (
	// ErrAuthExhausted is returned once MaxFailedAttempts failures have
	// already been recorded; the caller must close the connection.
	ErrAuthExhausted = errors.New("userauth: too many authentication failures")
	// ErrPrerequisite is returned when USERAUTH_REQUEST arrives before
	// session_id has been established by a completed key exchange.
	ErrPrerequisite = errors.New("userauth: session_id not yet established")
)

// Phase is the tagged variant spec.md section 3 describes as Preauth,
// InProgress, or Done.
type Phase int

const (
	PhasePreauth Phase = iota
	PhaseInProgress
	PhaseDone
)

// State is the userauth sub-state a transport session carries. User and
// Service are meaningful only once Phase is InProgress or Done.
type State struct {
	Phase       Phase
	User        string
	Service     string
	FailedCount int
}

// User is a database entry: a name and the public keys registered for
// it. Password verification goes through Store.VerifyPassword rather
// than a plaintext field here, so every store (bcrypt-backed or
// otherwise) controls its own comparison strategy.
type User struct {
	Name       string
	PublicKeys [][]byte
}

// Store is the read-only user-database collaborator spec.md section 6
// calls out as an injected interface.
type Store interface {
	Lookup(name string) (User, bool)
	VerifyPassword(name, candidate string) bool
}

func continuationFailure() *message.UserAuthFailure {
	return &message.UserAuthFailure{Methods: []string{"publickey", "password"}, PartialSuccess: false}
}

func mismatchDisconnect() *message.Disconnect {
	return &message.Disconnect{
		Reason:  message.ReasonProtocolError,
		Message: "username or service changed during authentication",
	}
}

// Handle processes one USERAUTH_REQUEST against state, per spec.md
// section 4.6. sessionID is the session's immutable exchange-hash
// identifier; req.Service is expected to be "ssh-connection" (distinct
// from the "ssh-userauth" service name negotiated at the transport
// layer).
func Handle(state State, sessionID []byte, req *message.UserAuthRequest, store Store) (State, []any, error) {
	if state.Phase == PhaseDone {
		// Invariant 5: once Done, no userauth message mutates state or
		// emits anything.
		return state, nil, nil
	}
	if len(sessionID) == 0 {
		return state, nil, fmt.Errorf("%w", ErrPrerequisite)
	}

	switch state.Phase {
	case PhasePreauth:
		if req.Service != "ssh-connection" {
			return state, []any{mismatchDisconnect()}, nil
		}
		state.Phase = PhaseInProgress
		state.User = req.User
		state.Service = req.Service
		state.FailedCount = 0
	case PhaseInProgress:
		if state.FailedCount >= MaxFailedAttempts {
			return state, []any{authExhaustedDisconnect()}, ErrAuthExhausted
		}
		if req.User != state.User || req.Service != state.Service {
			return state, []any{mismatchDisconnect()}, nil
		}
	}

	emitted, outcome, err := evaluateMethod(state, sessionID, req, store)
	if err != nil {
		return state, nil, err
	}
	switch outcome {
	case outcomeSuccess:
		state.Phase = PhaseDone
	case outcomeFailure:
		state.FailedCount++
	case outcomeProbeOK:
		// No state change: the client still has to send a signed
		// request to actually authenticate.
	}
	return state, emitted, nil
}

func authExhaustedDisconnect() *message.Disconnect {
	return &message.Disconnect{
		Reason:  message.ReasonProtocolError,
		Message: "too many authentication failures",
	}
}

type outcome int

const (
	outcomeProbeOK outcome = iota
	outcomeSuccess
	outcomeFailure
)

func evaluateMethod(state State, sessionID []byte, req *message.UserAuthRequest, store Store) ([]any, outcome, error) {
	switch req.Method {
	case "publickey":
		return evaluatePublickey(state, sessionID, req, store)
	case "password":
		return evaluatePassword(req, store)
	default:
		// HostBased, None, and anything else this core does not
		// implement always fail per spec.md section 4.6.
		return []any{continuationFailure()}, outcomeFailure, nil
	}
}

func evaluatePublickey(state State, sessionID []byte, req *message.UserAuthRequest, store Store) ([]any, outcome, error) {
	method, err := message.ParsePublickeyMethod(req.Payload)
	if err != nil {
		return []any{continuationFailure()}, outcomeFailure, nil
	}

	key, parseErr := hostkey.Parse(method.PublicKey)
	canonicalMatches := parseErr == nil
	if canonicalMatches {
		name, err := key.CanonicalName()
		canonicalMatches = err == nil && name == method.Algorithm
	}

	if method.Signature == nil {
		// Probe: tell the client whether this key/algorithm pair would
		// be acceptable, without consulting the database yet.
		if !canonicalMatches {
			return []any{continuationFailure()}, outcomeFailure, nil
		}
		return []any{&message.UserAuthPKOk{Algorithm: method.Algorithm, PublicKey: method.PublicKey}}, outcomeProbeOK, nil
	}

	if !canonicalMatches {
		return []any{continuationFailure()}, outcomeFailure, nil
	}

	user, ok := store.Lookup(req.User)
	if !ok || !hasPublicKey(user, method.PublicKey) {
		return []any{continuationFailure()}, outcomeFailure, nil
	}

	unsigned := canonicalPublickeyBlob(sessionID, req.User, req.Service, method.Algorithm, method.PublicKey)
	if err := key.Verify(unsigned, method.Signature); err != nil {
		return []any{continuationFailure()}, outcomeFailure, nil
	}
	return []any{&message.UserAuthSuccess{}}, outcomeSuccess, nil
}

func hasPublicKey(user User, blob []byte) bool {
	for _, k := range user.PublicKeys {
		if bytes.Equal(k, blob) {
			return true
		}
	}
	return false
}

// canonicalPublickeyBlob builds the exact byte sequence a client must
// sign: string(session_id) || byte(USERAUTH_REQUEST) || string(user) ||
// string(service) || string("publickey") || bool(true) ||
// string(alg_name) || blob(pubkey).
func canonicalPublickeyBlob(sessionID []byte, user, service, algorithm string, pubkey []byte) []byte {
	var out []byte
	out = wire.AppendString(out, sessionID)
	out = append(out, message.IDUserAuthRequest)
	out = wire.AppendStringASCII(out, user)
	out = wire.AppendStringASCII(out, service)
	out = wire.AppendStringASCII(out, "publickey")
	out = wire.AppendBool(out, true)
	out = wire.AppendStringASCII(out, algorithm)
	out = wire.AppendString(out, pubkey)
	return out
}

func evaluatePassword(req *message.UserAuthRequest, store Store) ([]any, outcome, error) {
	method, err := message.ParsePasswordMethod(req.Payload)
	if err != nil {
		return []any{continuationFailure()}, outcomeFailure, nil
	}
	if method.ChangeRequest {
		// Password change requests always fail per spec.md section 4.6.
		return []any{continuationFailure()}, outcomeFailure, nil
	}
	if store.VerifyPassword(req.User, method.Password) {
		return []any{&message.UserAuthSuccess{}}, outcomeSuccess, nil
	}
	return []any{continuationFailure()}, outcomeFailure, nil
}

// ConstantTimeEquals is exposed for Store implementations that compare a
// plaintext secret directly (e.g. in tests) rather than through a hash
// function with its own constant-time comparator, matching spec.md's
// "compare password constant-time to avoid timing leaks" requirement.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
