package transport

import (
	"fmt"
	"io"

	"github.com/kmerz/awa-ssh/internal/cryptoprovider"
	"github.com/kmerz/awa-ssh/internal/kex"
	"github.com/kmerz/awa-ssh/internal/message"
	"github.com/kmerz/awa-ssh/internal/packet"
)

// Handle dispatches one parsed inbound message against state, per
// spec.md section 4.5. raw is the message's undecoded payload bytes
// (including the message id), needed when msg is a *message.KexInit to
// capture I_C for the exchange hash. randSource supplies the DH secret
// exponent for KEXDH_INIT; it is never consulted for any other message.
//
// USERAUTH_REQUEST is not dispatched here: the userauth sub-state it
// needs lives outside this package, so package session checks
// State.Expected itself and delegates straight to package userauth. Every
// other message id this transport state machine recognizes is handled
// below; anything else is ErrUnhandled.
func Handle(state State, raw []byte, msg any, randSource io.Reader) (State, []any, error) {
	switch m := msg.(type) {
	case *message.Disconnect, *message.Ignore, *message.Debug:
		// Always admissible regardless of Expected; no state change,
		// nothing to emit for any of these in this core's scope.
		return state, nil, nil
	case *message.KexInit:
		return handleKexInit(state, raw, m)
	case *message.KexDHInit:
		return handleKexDHInit(state, m, randSource)
	case *message.NewKeys:
		return handleNewKeys(state)
	case *message.ServiceRequest:
		return handleServiceRequest(state, m)
	default:
		return state, nil, fmt.Errorf("%w: message type %T", ErrUnhandled, msg)
	}
}

func requireExpected(state State, want byte, name string) error {
	if state.Expected != Unconstrained && state.Expected != want {
		return fmt.Errorf("%w: %s", ErrUnexpected, name)
	}
	return nil
}

func handleKexInit(state State, raw []byte, peer *message.KexInit) (State, []any, error) {
	if err := requireExpected(state, message.IDKexInit, "KEXINIT"); err != nil {
		return state, nil, err
	}
	ours, err := decodeOurKexInit(state)
	if err != nil {
		return state, nil, err
	}
	neg, ignore, err := kex.Negotiate(ours, peer)
	if err != nil {
		return state, nil, fmt.Errorf("%w: %v", ErrNegotiationFailure, err)
	}
	state.PeerKexInitRaw = append([]byte{}, raw...)
	state.Negotiated = &neg
	state.IgnoreNextPacket = ignore
	state.Expected = message.IDKexDHInit
	return state, nil, nil
}

func handleKexDHInit(state State, m *message.KexDHInit, randSource io.Reader) (State, []any, error) {
	if err := requireExpected(state, message.IDKexDHInit, "KEXDH_INIT"); err != nil {
		return state, nil, err
	}
	if state.Negotiated == nil || state.PeerBanner == "" || state.PeerKexInitRaw == nil {
		return state, nil, fmt.Errorf("%w: KEXDH_INIT before completed KEXINIT negotiation", ErrMissingPrerequisite)
	}
	if state.PendingInbound != nil || state.PendingOutbound != nil {
		return state, nil, fmt.Errorf("%w: KEXDH_INIT with keys already pending", ErrUnexpected)
	}

	group := cryptoprovider.KexAlgorithms[state.Negotiated.Kex].Group
	y, err := group.GenerateSecret(randSource)
	if err != nil {
		return state, nil, fmt.Errorf("transport: generating DH secret: %w", err)
	}
	f := group.Public(y)
	k, err := group.Shared(m.E, y)
	if err != nil {
		return state, nil, fmt.Errorf("transport: %w", err)
	}

	hostKeyBlob := state.HostKey.Marshal()
	H, err := kex.ExchangeHash(state.Negotiated.Kex, state.PeerBanner, state.OurBanner, state.PeerKexInitRaw, state.OurKexInitRaw, hostKeyBlob, m.E, f, k)
	if err != nil {
		return state, nil, fmt.Errorf("transport: %w", err)
	}
	sig, err := state.HostKey.Sign(H)
	if err != nil {
		return state, nil, fmt.Errorf("transport: signing exchange hash: %w", err)
	}
	if state.SessionID == nil {
		state.SessionID = append([]byte{}, H...)
	}

	derived, err := kex.DeriveKeys(*state.Negotiated, k, H, state.SessionID)
	if err != nil {
		return state, nil, fmt.Errorf("transport: %w", err)
	}
	pendingIn := directionFrom(derived.ClientToServer, state.InboundKeys.Seq)
	pendingOut := directionFrom(derived.ServerToClient, state.OutboundKeys.Seq)
	state.PendingInbound = &pendingIn
	state.PendingOutbound = &pendingOut
	state.Expected = message.IDNewKeys

	reply := &message.KexDHReply{HostKey: hostKeyBlob, F: f, Signature: sig}
	return state, []any{reply, &message.NewKeys{}}, nil
}

func directionFrom(k kex.DirectionKeys, seq uint32) packet.Direction {
	return packet.Direction{
		Cipher: k.Cipher,
		Key:    k.Key,
		IV:     k.IV,
		MAC:    k.MAC,
		MACKey: k.MACKey,
		Seq:    seq,
	}
}

func handleNewKeys(state State) (State, []any, error) {
	if err := requireExpected(state, message.IDNewKeys, "NEWKEYS"); err != nil {
		return state, nil, err
	}
	if state.PendingInbound == nil {
		return state, nil, fmt.Errorf("%w: NEWKEYS with no pending inbound keys", ErrMissingPrerequisite)
	}
	wasPlaintext := state.InboundKeys.IsPlaintext()
	installed := *state.PendingInbound
	installed.Seq = state.InboundKeys.Seq
	state.InboundKeys = installed
	state.PendingInbound = nil

	if wasPlaintext {
		state.Expected = message.IDServiceRequest
	} else {
		state.Expected = Unconstrained
	}
	return state, nil, nil
}

func handleServiceRequest(state State, m *message.ServiceRequest) (State, []any, error) {
	if err := requireExpected(state, message.IDServiceRequest, "SERVICE_REQUEST"); err != nil {
		return state, nil, err
	}
	if m.Service != "ssh-userauth" {
		state.Expected = Unconstrained
		disc := &message.Disconnect{
			Reason:  message.ReasonServiceNotAvailable,
			Message: fmt.Sprintf("unsupported service %q", m.Service),
		}
		return state, []any{disc}, nil
	}
	state.Expected = message.IDUserAuthRequest
	return state, []any{&message.ServiceAccept{Service: m.Service}}, nil
}

// EncodeOutbound serializes msg under state's current outbound keys. If
// msg is NEWKEYS, the pending outbound key set is installed immediately
// afterward (preserving the sequence counter) so that every subsequently
// encoded packet is protected under the new keys, per spec.md's NEWKEYS
// barrier and invariant 4.
func EncodeOutbound(state State, msg any, randSource io.Reader) (State, []byte, error) {
	payload := message.Marshal(msg)
	out, next, err := packet.Encode(payload, state.OutboundKeys, randSource)
	if err != nil {
		return state, nil, fmt.Errorf("transport: encoding %T: %w", msg, err)
	}
	state.OutboundKeys = next

	if _, isNewKeys := msg.(*message.NewKeys); isNewKeys {
		if state.PendingOutbound == nil {
			return state, nil, fmt.Errorf("%w: NEWKEYS emitted with no pending outbound keys", ErrMissingPrerequisite)
		}
		installed := *state.PendingOutbound
		installed.Seq = state.OutboundKeys.Seq
		state.OutboundKeys = installed
		state.PendingOutbound = nil
	}
	return state, out, nil
}
