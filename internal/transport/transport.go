// Package transport implements the transport state machine of spec.md
// section 4.5: version exchange bookkeeping, KEXINIT negotiation,
// Diffie-Hellman exchange, the NEWKEYS barrier, and service dispatch.
// Every exported function is pure: it takes a State by value and returns
// the updated State alongside whatever the caller must emit.
package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/kex"
	"github.com/kmerz/awa-ssh/internal/message"
	"github.com/kmerz/awa-ssh/internal/packet"
)

// Unconstrained is the Expected value meaning "any message id is
// admissible", used before the first VERSION and again once a session
// settles into steady state after its first rekey.
const Unconstrained byte = 0xFF

var (
	// ErrUnexpected is returned when a well-formed message arrives but
	// violates State.Expected.
	ErrUnexpected = errors.New("transport: message violates expected state")
	// ErrNegotiationFailure is returned when KEXINIT negotiation finds no
	// common algorithm in some category.
	ErrNegotiationFailure = errors.New("transport: key exchange negotiation failed")
	// ErrMissingPrerequisite is returned when a message arrives whose
	// handler requires state that has not been established yet (e.g.
	// KEXDH_INIT before a completed KEXINIT negotiation).
	ErrMissingPrerequisite = errors.New("transport: required prior state is missing")
	// ErrUnhandled is returned for a message id this core does not
	// implement at the transport layer (anything past userauth success).
	ErrUnhandled = errors.New("transport: unhandled message")
)

// State holds the whole of spec.md section 3's transport-relevant session
// state, minus the userauth sub-state (owned by package userauth) and the
// unprocessed inbound byte buffer (owned by package session).
type State struct {
	OurBanner  string
	PeerBanner string

	OurKexInitRaw  []byte
	PeerKexInitRaw []byte
	Negotiated     *kex.Negotiated

	HostKey hostkey.Key

	SessionID []byte

	InboundKeys  packet.Direction
	OutboundKeys packet.Direction

	PendingInbound  *packet.Direction
	PendingOutbound *packet.Direction

	Expected         byte
	IgnoreNextPacket bool
}

// NewState builds the initial transport state for a freshly created
// session: plaintext keys in both directions, our own KEXINIT built and
// captured (so its raw bytes are ready for the exchange hash later), and
// no constraint on the very first inbound message (it must be the
// version banner, which travels outside the binary packet protocol
// entirely and so is never checked against Expected).
func NewState(ourBanner string, hk hostkey.Key, randSource io.Reader) (State, *message.KexInit, error) {
	ourKexInit, err := kex.BuildKexInit(randSource)
	if err != nil {
		return State{}, nil, fmt.Errorf("transport: %w", err)
	}
	state := State{
		OurBanner:     ourBanner,
		HostKey:       hk,
		OurKexInitRaw: message.Marshal(ourKexInit),
		InboundKeys:   packet.Plaintext(),
		OutboundKeys:  packet.Plaintext(),
		Expected:      Unconstrained,
	}
	return state, ourKexInit, nil
}

// decodeOurKexInit re-parses our own captured KEXINIT bytes, needed to
// negotiate against the peer's proposal.
func decodeOurKexInit(state State) (*message.KexInit, error) {
	m, err := message.Decode(state.OurKexInitRaw)
	if err != nil {
		return nil, fmt.Errorf("transport: decoding our own KEXINIT: %w", err)
	}
	ours, ok := m.(*message.KexInit)
	if !ok {
		return nil, fmt.Errorf("transport: captured KEXINIT decoded to %T", m)
	}
	return ours, nil
}

// HandleVersion records the peer's banner (already stripped of CRLF by
// the session façade's banner parser) and admits KEXINIT next.
func HandleVersion(state State, peerBanner string) State {
	state.PeerBanner = peerBanner
	state.Expected = message.IDKexInit
	return state
}
