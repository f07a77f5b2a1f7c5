// Package session is the façade spec.md section 6 describes: the single
// object a host program drives with raw inbound bytes and from which it
// collects raw outbound bytes. It wires together internal/transport,
// internal/userauth, internal/packet and internal/message without
// performing any I/O itself.
package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/kmerz/awa-ssh/internal/hostkey"
	"github.com/kmerz/awa-ssh/internal/message"
	"github.com/kmerz/awa-ssh/internal/packet"
	"github.com/kmerz/awa-ssh/internal/transport"
	"github.com/kmerz/awa-ssh/internal/userauth"
)

// Session holds everything spec.md section 3 assigns to "session state"
// that is not already owned by internal/transport's own State: the
// userauth sub-state, the user database handle, the unprocessed inbound
// byte buffer, and whether the banner exchange has completed.
type Session struct {
	Transport  transport.State
	Auth       userauth.State
	Store      userauth.Store
	Buffer     []byte
	BannerDone bool
	RandSource io.Reader
}

// Parsed is one fully decoded inbound message, returned by Poll and
// consumed by Handle. Raw carries the exact payload bytes the message
// was decoded from; transport needs it verbatim to capture I_C when the
// message is a KEXINIT.
type Parsed struct {
	Raw     []byte
	Message any
}

// New creates a session bound to hk and store, and returns the bytes a
// host must send immediately: the version banner followed by our
// KEXINIT, per spec.md section 6.
func New(ourBanner string, hk hostkey.Key, store userauth.Store, randSource io.Reader) (Session, []byte, error) {
	tstate, ourKexInit, err := transport.NewState(ourBanner, hk, randSource)
	if err != nil {
		return Session{}, nil, err
	}
	s := Session{Transport: tstate, Store: store, RandSource: randSource}

	s, kexBytes, err := Encode(s, ourKexInit)
	if err != nil {
		return Session{}, nil, err
	}
	out := append([]byte(ourBanner+"\r\n"), kexBytes...)
	return s, out, nil
}

// Feed appends newly received bytes to the session's inbound buffer.
func Feed(s Session, data []byte) Session {
	s.Buffer = append(s.Buffer, data...)
	return s
}

// Poll attempts to parse one inbound message from the buffer. It returns
// a nil Parsed (and nil error) when the buffer does not yet hold a
// complete message, whether that is because more bytes are needed or
// because the only complete packet available was the one dropped by the
// ignore_next_packet latch (spec.md section 4.3's tie-break rule); the
// caller should simply poll again once more bytes arrive.
func Poll(s Session) (Session, *Parsed, error) {
	if !s.BannerDone {
		banner, consumed, err := scanBanner(s.Buffer)
		if err == ErrNeedMore {
			return s, nil, nil
		}
		if err != nil {
			return s, nil, err
		}
		s.Buffer = s.Buffer[consumed:]
		s.BannerDone = true
		return s, &Parsed{Message: &message.Version{Banner: banner}}, nil
	}

	result, err := packet.Decode(s.Buffer, s.Transport.InboundKeys)
	if err == packet.ErrNeedMore {
		return s, nil, nil
	}
	if errors.Is(err, packet.ErrMalformed) {
		return s, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if err != nil {
		return s, nil, err
	}
	s.Buffer = s.Buffer[result.Consumed:]
	s.Transport.InboundKeys = result.Next

	if s.Transport.IgnoreNextPacket {
		s.Transport.IgnoreNextPacket = false
		return s, nil, nil
	}

	msg, err := message.Decode(result.Payload)
	if err != nil {
		return s, nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return s, &Parsed{Raw: result.Payload, Message: msg}, nil
}

// Handle processes one message Poll returned, dispatching the version
// banner and USERAUTH_REQUEST here (since both need state this package
// owns) and everything else straight to internal/transport.
func Handle(s Session, parsed *Parsed) (Session, []any, error) {
	if parsed == nil {
		return s, nil, nil
	}
	switch m := parsed.Message.(type) {
	case *message.Version:
		s.Transport = transport.HandleVersion(s.Transport, m.Banner)
		return s, nil, nil
	case *message.UserAuthRequest:
		if s.Transport.Expected != transport.Unconstrained && s.Transport.Expected != message.IDUserAuthRequest {
			return s, nil, fmt.Errorf("%w: USERAUTH_REQUEST", ErrUnexpected)
		}
		auth, emitted, err := userauth.Handle(s.Auth, s.Transport.SessionID, m, s.Store)
		s.Auth = auth
		return s, emitted, err
	default:
		t, emitted, err := transport.Handle(s.Transport, parsed.Raw, parsed.Message, s.RandSource)
		s.Transport = t
		return s, emitted, err
	}
}

// Encode serializes msg for the wire under the session's current
// outbound keys.
func Encode(s Session, msg any) (Session, []byte, error) {
	t, out, err := transport.EncodeOutbound(s.Transport, msg, s.RandSource)
	if err != nil {
		return s, nil, err
	}
	s.Transport = t
	return s, out, nil
}

// EncodeMany is equivalent to calling Encode repeatedly, concatenating
// the results and stopping at the first error.
func EncodeMany(s Session, msgs []any) (Session, []byte, error) {
	var out []byte
	for _, m := range msgs {
		var chunk []byte
		var err error
		s, chunk, err = Encode(s, m)
		if err != nil {
			return s, nil, err
		}
		out = append(out, chunk...)
	}
	return s, out, nil
}
