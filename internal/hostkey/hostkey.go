// Package hostkey wraps an RSA key pair behind the opaque host-key
// variant spec.md section 4.4 calls for: canonical algorithm name, wire
// public-key blob, sign and verify. Generation and PEM encoding are
// grounded on the teacher repo's ssh/keys.go.
package hostkey

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"

	"github.com/kmerz/awa-ssh/internal/wire"
)

// CanonicalName is the only host-key algorithm this core negotiates.
const CanonicalName = "ssh-rsa"

// ErrUnknownKey is returned by Sign and always by Verify on an Unknown
// key, per spec.md's "Publickey probe branch refuses Unknown host key
// variants unconditionally" note.
var ErrUnknownKey = errors.New("hostkey: unknown key variant cannot sign or verify")

// Key is the sum type spec.md describes: an RSA public key, an RSA
// private key (which can also verify, since it carries the public half),
// or Unknown — a public key blob this core received but cannot interpret.
type Key struct {
	private *rsa.PrivateKey
	public  *rsa.PublicKey
	unknown []byte // set only for the Unknown variant
}

// FromPrivate wraps an RSA private key as a signing-capable Key.
func FromPrivate(priv *rsa.PrivateKey) Key {
	return Key{private: priv, public: &priv.PublicKey}
}

// FromPublic wraps an RSA public key as a verify-only Key.
func FromPublic(pub *rsa.PublicKey) Key {
	return Key{public: pub}
}

// Unknown wraps an undecodable public-key blob. It always fails Verify.
func Unknown(blob []byte) Key {
	return Key{unknown: append([]byte{}, blob...)}
}

// IsUnknown reports whether k is the Unknown variant.
func (k Key) IsUnknown() bool { return k.public == nil && k.unknown != nil }

// CanSign reports whether k carries a private key.
func (k Key) CanSign() bool { return k.private != nil }

// CanonicalName returns "ssh-rsa" for RSA keys; Unknown keys have no
// canonical name they can claim.
func (k Key) CanonicalName() (string, error) {
	if k.IsUnknown() {
		return "", ErrUnknownKey
	}
	return CanonicalName, nil
}

// Marshal returns the wire public-key blob: string("ssh-rsa") || mpint(e)
// || mpint(n). Unknown keys return their original opaque blob verbatim.
func (k Key) Marshal() []byte {
	if k.IsUnknown() {
		return append([]byte{}, k.unknown...)
	}
	var out []byte
	out = wire.AppendStringASCII(out, CanonicalName)
	out = wire.AppendMpint(out, big.NewInt(int64(k.public.E)))
	out = wire.AppendMpint(out, k.public.N)
	return out
}

// Parse decodes a wire public-key blob. Blobs whose algorithm name is not
// "ssh-rsa" decode to the Unknown variant rather than erroring, so a probe
// against an unsupported key type fails verification instead of aborting
// the session.
func Parse(blob []byte) (Key, error) {
	algo, rest, err := wire.ParseString(blob)
	if err != nil {
		return Key{}, fmt.Errorf("hostkey: %w", err)
	}
	if string(algo) != CanonicalName {
		return Unknown(blob), nil
	}
	e, rest, err := wire.ParseMpint(rest)
	if err != nil {
		return Key{}, fmt.Errorf("hostkey: rsa exponent: %w", err)
	}
	n, _, err := wire.ParseMpint(rest)
	if err != nil {
		return Key{}, fmt.Errorf("hostkey: rsa modulus: %w", err)
	}
	return FromPublic(&rsa.PublicKey{E: int(e.Int64()), N: n}), nil
}

// Sign produces a signature blob over message, using PKCS#1 v1.5 with
// SHA-256 (the scheme this core negotiates "ssh-rsa" to mean): string(
// "ssh-rsa") || string(raw PKCS#1 signature).
func (k Key) Sign(message []byte) ([]byte, error) {
	if k.private == nil {
		return nil, ErrUnknownKey
	}
	digest := sha256.Sum256(message)
	sig, err := rsa.SignPKCS1v15(rand.Reader, k.private, crypto.SHA256, digest[:])
	if err != nil {
		return nil, fmt.Errorf("hostkey: sign: %w", err)
	}
	var out []byte
	out = wire.AppendStringASCII(out, CanonicalName)
	out = wire.AppendString(out, sig)
	return out, nil
}

// Verify checks a signature blob produced by Sign against message.
// Unknown keys always fail, matching spec.md's note that the probe
// branch refuses Unknown variants unconditionally.
func (k Key) Verify(message, signatureBlob []byte) error {
	if k.IsUnknown() || k.public == nil {
		return ErrUnknownKey
	}
	algo, rest, err := wire.ParseString(signatureBlob)
	if err != nil {
		return fmt.Errorf("hostkey: %w", err)
	}
	if string(algo) != CanonicalName {
		return fmt.Errorf("hostkey: signature algorithm %q does not match %q", algo, CanonicalName)
	}
	sig, _, err := wire.ParseString(rest)
	if err != nil {
		return fmt.Errorf("hostkey: %w", err)
	}
	digest := sha256.Sum256(message)
	if err := rsa.VerifyPKCS1v15(k.public, crypto.SHA256, digest[:], sig); err != nil {
		return fmt.Errorf("hostkey: verify: %w", err)
	}
	return nil
}

// GenerateRSA creates a new RSA host key of the given bit size, validated
// before being returned, matching the teacher's NewRSAPrivateKey.
func GenerateRSA(bits int) (Key, error) {
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return Key{}, fmt.Errorf("hostkey: generate: %w", err)
	}
	if err := priv.Validate(); err != nil {
		return Key{}, fmt.Errorf("hostkey: validate: %w", err)
	}
	return FromPrivate(priv), nil
}

// EncodePEM PEM-encodes the private half of k in PKCS#1 form, matching
// the teacher's RSAPrivateKeyPEM.
func (k Key) EncodePEM() ([]byte, error) {
	if k.private == nil {
		return nil, ErrUnknownKey
	}
	der := x509.MarshalPKCS1PrivateKey(k.private)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}
	return pem.EncodeToMemory(block), nil
}

// DecodePEM parses a PKCS#1 PEM-encoded RSA private key, as produced by
// EncodePEM or the teacher's own host-key bootstrap.
func DecodePEM(data []byte) (Key, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return Key{}, fmt.Errorf("hostkey: no PEM block found")
	}
	priv, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		return Key{}, fmt.Errorf("hostkey: parse private key: %w", err)
	}
	return FromPrivate(priv), nil
}
