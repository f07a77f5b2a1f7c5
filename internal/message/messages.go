package message

import (
	"math/big"

	"github.com/kmerz/awa-ssh/internal/wire"
)

// Message ids. VERSION is synthetic: the banner exchange happens before
// any binary packet is framed, so it never appears as a wire id.
const (
	IDVersion         = 0
	IDDisconnect      = 1
	IDIgnore          = 2
	IDUnimplemented   = 3
	IDDebug           = 4
	IDServiceRequest  = 5
	IDServiceAccept   = 6
	IDKexInit         = 20
	IDNewKeys         = 21
	IDKexDHInit       = 30
	IDKexDHReply      = 31
	IDUserAuthRequest = 50
	IDUserAuthFailure = 51
	IDUserAuthSuccess = 52
	IDUserAuthBanner  = 53
	IDUserAuthPKOk    = 60
)

// Disconnect reason codes (RFC 4253 section 11.1), limited to the ones
// this core emits.
const (
	ReasonProtocolError       = 2
	ReasonServiceNotAvailable = 7
)

// Version carries the peer's banner line, stripped of its CRLF. It never
// travels over the binary packet protocol.
type Version struct {
	Banner string
}

func (Version) ID() byte { return IDVersion }

// Disconnect is sent to tear down a session with a reason code.
type Disconnect struct {
	Reason   uint32 `sshtype:"1"`
	Message  string
	Language string
}

func (Disconnect) ID() byte { return IDDisconnect }

// Ignore carries opaque filler data that must be accepted and discarded.
type Ignore struct {
	Data string `sshtype:"2"`
}

func (Ignore) ID() byte { return IDIgnore }

// Debug carries a human-readable diagnostic string.
type Debug struct {
	AlwaysDisplay bool `sshtype:"4"`
	Message       string
	Language      string
}

func (Debug) ID() byte { return IDDebug }

// ServiceRequest asks the peer to start a named service (e.g.
// "ssh-userauth").
type ServiceRequest struct {
	Service string `sshtype:"5"`
}

func (ServiceRequest) ID() byte { return IDServiceRequest }

// ServiceAccept confirms a requested service.
type ServiceAccept struct {
	Service string `sshtype:"6"`
}

func (ServiceAccept) ID() byte { return IDServiceAccept }

// KexInit is the algorithm-negotiation message both sides exchange before
// any key material is derived.
type KexInit struct {
	Cookie                  [16]byte `sshtype:"20"`
	KexAlgorithms           []string
	ServerHostKeyAlgorithms []string
	CiphersClientToServer   []string
	CiphersServerToClient   []string
	MACsClientToServer      []string
	MACsServerToClient      []string
	CompressionC2S          []string
	CompressionS2C          []string
	LanguagesC2S            []string
	LanguagesS2C            []string
	FirstKexPacketFollows   bool
	Reserved                uint32
}

func (KexInit) ID() byte { return IDKexInit }

// NewKeys signals that the just-derived keys take effect for every packet
// sent after it in the same direction.
type NewKeys struct {
	_ struct{} `sshtype:"21"`
}

func (NewKeys) ID() byte { return IDNewKeys }

// KexDHInit carries the client's DH public value e.
type KexDHInit struct {
	E *big.Int `sshtype:"30"`
}

func (KexDHInit) ID() byte { return IDKexDHInit }

// KexDHReply carries the host key, the server's DH public value f, and
// the signature over the exchange hash.
type KexDHReply struct {
	HostKey   []byte `sshtype:"31"`
	F         *big.Int
	Signature []byte
}

func (KexDHReply) ID() byte { return IDKexDHReply }

// UserAuthRequest is the generic envelope for every userauth attempt; the
// method-specific payload lives in Payload and is parsed separately by
// ParsePublickeyMethod / ParsePasswordMethod based on Method.
type UserAuthRequest struct {
	User    string `sshtype:"50"`
	Service string
	Method  string
	Payload []byte `ssh:"rest"`
}

func (UserAuthRequest) ID() byte { return IDUserAuthRequest }

// UserAuthFailure lists the methods the server still accepts.
type UserAuthFailure struct {
	Methods        []string `sshtype:"51"`
	PartialSuccess bool
}

func (UserAuthFailure) ID() byte { return IDUserAuthFailure }

// UserAuthSuccess has no payload.
type UserAuthSuccess struct {
	_ struct{} `sshtype:"52"`
}

func (UserAuthSuccess) ID() byte { return IDUserAuthSuccess }

// UserAuthPKOk tells the client its probed public key is acceptable and
// it may proceed to send a signed request.
type UserAuthPKOk struct {
	Algorithm string `sshtype:"60"`
	PublicKey []byte
}

func (UserAuthPKOk) ID() byte { return IDUserAuthPKOk }

// PublickeyMethod is the method-specific payload of a "publickey"
// UserAuthRequest: a probe when Signature is nil, a signed attempt
// otherwise.
type PublickeyMethod struct {
	Algorithm string
	PublicKey []byte
	Signature []byte // nil for a probe
}

// ParsePublickeyMethod decodes the method-specific payload of a
// "publickey" UserAuthRequest.
func ParsePublickeyMethod(payload []byte) (*PublickeyMethod, error) {
	hasSig, rest, err := wire.ParseBool(payload)
	if err != nil {
		return nil, err
	}
	algoBytes, rest, err := wire.ParseString(rest)
	if err != nil {
		return nil, err
	}
	key, rest, err := wire.ParseString(rest)
	if err != nil {
		return nil, err
	}
	m := &PublickeyMethod{Algorithm: string(algoBytes), PublicKey: append([]byte{}, key...)}
	if !hasSig {
		return m, nil
	}
	sig, _, err := wire.ParseString(rest)
	if err != nil {
		return nil, err
	}
	m.Signature = append([]byte{}, sig...)
	return m, nil
}

// Marshal encodes the method-specific payload for a "publickey" request.
func (m *PublickeyMethod) Marshal() []byte {
	var out []byte
	out = wire.AppendBool(out, m.Signature != nil)
	out = wire.AppendStringASCII(out, m.Algorithm)
	out = wire.AppendString(out, m.PublicKey)
	if m.Signature != nil {
		out = wire.AppendString(out, m.Signature)
	}
	return out
}

// PasswordMethod is the method-specific payload of a "password"
// UserAuthRequest.
type PasswordMethod struct {
	ChangeRequest bool
	Password      string
	NewPassword   string // only set when ChangeRequest
}

// ParsePasswordMethod decodes the method-specific payload of a "password"
// UserAuthRequest.
func ParsePasswordMethod(payload []byte) (*PasswordMethod, error) {
	change, rest, err := wire.ParseBool(payload)
	if err != nil {
		return nil, err
	}
	pw, rest, err := wire.ParseString(rest)
	if err != nil {
		return nil, err
	}
	m := &PasswordMethod{ChangeRequest: change, Password: string(pw)}
	if change {
		newPw, _, err := wire.ParseString(rest)
		if err != nil {
			return nil, err
		}
		m.NewPassword = string(newPw)
	}
	return m, nil
}

// Marshal encodes the method-specific payload for a "password" request.
func (m *PasswordMethod) Marshal() []byte {
	var out []byte
	out = wire.AppendBool(out, m.ChangeRequest)
	out = wire.AppendStringASCII(out, m.Password)
	if m.ChangeRequest {
		out = wire.AppendStringASCII(out, m.NewPassword)
	}
	return out
}
