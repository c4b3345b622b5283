// Package poseidon adapts the externally supplied Poseidon hash primitive to
// the two shapes the Merkle registry needs: a unary leaf hash and a binary
// node hash. Both operate on elements of the BN254 scalar field.
package poseidon

import (
	"math/big"

	fr "github.com/consensys/gnark-crypto/ecc/bn254/fr"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/iden3/go-iden3-crypto/poseidon"
)

// zeroSeed is the public non-leaf string whose keccak256, reduced into the
// field, pads unused tree slots. A valid leaf is always Poseidon output, so
// it cannot collide with this value.
const zeroSeed = "anonvote.empty.leaf"

var zeroElement *big.Int

func init() {
	h := ethcrypto.Keccak256([]byte(zeroSeed))
	zeroElement = new(big.Int).Mod(new(big.Int).SetBytes(h), fr.Modulus())
}

// HashLeaf returns H1(x), the leaf hash of a voter secret.
func HashLeaf(x *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{x})
}

// HashPair returns H(left, right), the internal node hash.
func HashPair(left, right *big.Int) (*big.Int, error) {
	return poseidon.Hash([]*big.Int{left, right})
}

// ZeroElement returns the public padding constant for empty tree slots.
func ZeroElement() *big.Int {
	return new(big.Int).Set(zeroElement)
}

// FieldModulus returns the BN254 scalar field modulus all tree values live in.
func FieldModulus() *big.Int {
	return fr.Modulus()
}
