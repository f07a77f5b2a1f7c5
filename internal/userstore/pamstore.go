//go:build linux

package userstore

import (
	"log"

	pam "github.com/msteinert/pam/v2"

	"github.com/kmerz/awa-ssh/internal/userauth"
)

// PAMStore authenticates against the host's PAM stack instead of a local
// user database, grounded on the teacher's pamAuth/PasswordAuthCallback.
// It only ever answers password requests: Lookup always reports no
// registered public keys, so publickey authentication against a PAMStore
// always falls through to the password method.
type PAMStore struct {
	// ServiceName is the PAM service to authenticate against, e.g. "sshd".
	ServiceName string
}

// Lookup implements userauth.Store. PAM has no notion of a registered
// public key, so every lookup succeeds with an empty key set, deferring
// entirely to VerifyPassword.
func (s PAMStore) Lookup(name string) (userauth.User, bool) {
	return userauth.User{Name: name}, true
}

// VerifyPassword implements userauth.Store by starting a PAM
// authentication transaction for name, supplying candidate for every
// PromptEchoOff prompt.
func (s PAMStore) VerifyPassword(name, candidate string) bool {
	service := s.ServiceName
	if service == "" {
		service = "sshd"
	}
	t, err := pam.StartFunc(service, name, func(style pam.Style, msg string) (string, error) {
		switch style {
		case pam.PromptEchoOff:
			return candidate, nil
		case pam.TextInfo:
			return "", nil
		default:
			return "", nil
		}
	})
	if err != nil {
		log.Printf("userstore: PAM session failed to start for %q: %v", name, err)
		return false
	}
	if err := t.Authenticate(0); err != nil {
		return false
	}
	return true
}
