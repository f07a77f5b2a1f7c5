package cryptoprovider

import (
	"crypto/sha1"
	"crypto/sha256"
	"hash"
)

// KexSpec binds a negotiable key-exchange algorithm name to the DH group
// and hash function RFC 4253/8268 specify for it.
type KexSpec struct {
	ID    string
	Group DHGroup
	Hash  func() hash.Hash
}

// KexAlgorithms is the set of key-exchange methods this provider
// negotiates. Both entries use DH group 14; only the exchange-hash
// function differs.
var KexAlgorithms = map[string]KexSpec{
	"diffie-hellman-group14-sha1":   {ID: "diffie-hellman-group14-sha1", Group: Group14(), Hash: sha1.New},
	"diffie-hellman-group14-sha256": {ID: "diffie-hellman-group14-sha256", Group: Group14(), Hash: sha256.New},
}

// KexNames returns the supported key-exchange ids in preference order.
func KexNames() []string { return []string{"diffie-hellman-group14-sha256", "diffie-hellman-group14-sha1"} }

// HostKeyAlgorithmNames returns the supported host-key algorithm ids.
func HostKeyAlgorithmNames() []string { return []string{"ssh-rsa"} }

// CompressionNames returns the supported compression ids (compression is
// never actually applied; "none" is the only choice this core offers).
func CompressionNames() []string { return []string{"none"} }
