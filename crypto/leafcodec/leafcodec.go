// Package leafcodec derives a voter's secret field element from a stable
// identity token and a server-held salt, and the corresponding Merkle leaf.
// The derivation is deterministic so registration retries are idempotent, and
// one-way so the identity token cannot be recovered from the secret.
package leafcodec

import (
	"crypto/sha256"
	"fmt"
	"math/big"

	"github.com/anonvote/anonvote/crypto/hash/poseidon"
)

// ErrMissingSalt is returned when the server salt is not configured.
var ErrMissingSalt = fmt.Errorf("leaf codec: server salt is not configured")

// DeriveSecret computes SHA256(identityToken || salt) reduced into the scalar
// field used by the tree hash.
func DeriveSecret(identityToken, salt string) (*big.Int, error) {
	if salt == "" {
		return nil, ErrMissingSalt
	}
	h := sha256.Sum256([]byte(identityToken + salt))
	secret := new(big.Int).SetBytes(h[:])
	return secret.Mod(secret, poseidon.FieldModulus()), nil
}

// DeriveLeaf computes the tree leaf H1(secret) for a derived secret.
func DeriveLeaf(secret *big.Int) (*big.Int, error) {
	return poseidon.HashLeaf(secret)
}

// TokenHash returns the hash stored alongside a voter record to detect
// registration retries with the same token without keeping the token itself.
func TokenHash(identityToken string) []byte {
	h := sha256.Sum256([]byte(identityToken))
	return h[:]
}
