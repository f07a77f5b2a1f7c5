package session

import (
	"github.com/kmerz/awa-ssh/internal/packet"
	"github.com/kmerz/awa-ssh/internal/transport"
	"github.com/kmerz/awa-ssh/internal/userauth"
	"github.com/kmerz/awa-ssh/internal/wire"
)

// Error kinds a host program can match with errors.Is, per spec.md
// section 7. Each aliases the sentinel the owning layer actually returns,
// so callers never need to import internal/packet, internal/transport or
// internal/userauth themselves to recognize one.
var (
	ErrNeedMore           = packet.ErrNeedMore
	ErrMalformed          = wire.ErrMalformed
	ErrUnexpected         = transport.ErrUnexpected
	ErrMacFailure         = packet.ErrMacFailure
	ErrNegotiationFailure = transport.ErrNegotiationFailure
	ErrAuthExhausted      = userauth.ErrAuthExhausted
	ErrUnhandled          = transport.ErrUnhandled
)
