package message

import "fmt"

// Decode parses a framed packet payload into its concrete message type.
// The caller is expected to type-switch on the result; ErrUnhandled is not
// returned here — an id this core does not implement still decodes into
// an Unknown value so the session façade can classify it per spec.
func Decode(payload []byte) (any, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("message: empty payload")
	}
	switch payload[0] {
	case IDDisconnect:
		m := new(Disconnect)
		return m, Unmarshal(payload, m)
	case IDIgnore:
		m := new(Ignore)
		return m, Unmarshal(payload, m)
	case IDDebug:
		m := new(Debug)
		return m, Unmarshal(payload, m)
	case IDServiceRequest:
		m := new(ServiceRequest)
		return m, Unmarshal(payload, m)
	case IDServiceAccept:
		m := new(ServiceAccept)
		return m, Unmarshal(payload, m)
	case IDKexInit:
		m := new(KexInit)
		return m, Unmarshal(payload, m)
	case IDNewKeys:
		m := new(NewKeys)
		return m, Unmarshal(payload, m)
	case IDKexDHInit:
		m := new(KexDHInit)
		return m, Unmarshal(payload, m)
	case IDKexDHReply:
		m := new(KexDHReply)
		return m, Unmarshal(payload, m)
	case IDUserAuthRequest:
		m := new(UserAuthRequest)
		return m, Unmarshal(payload, m)
	case IDUserAuthFailure:
		m := new(UserAuthFailure)
		return m, Unmarshal(payload, m)
	case IDUserAuthSuccess:
		m := new(UserAuthSuccess)
		return m, Unmarshal(payload, m)
	case IDUserAuthPKOk:
		m := new(UserAuthPKOk)
		return m, Unmarshal(payload, m)
	default:
		return &Unknown{IDByte: payload[0], Payload: append([]byte{}, payload[1:]...)}, nil
	}
}

// Unknown wraps any message id this core does not implement, so the
// session façade can surface ErrUnhandled without failing to parse.
type Unknown struct {
	IDByte  byte
	Payload []byte
}

func (u *Unknown) ID() byte { return u.IDByte }
