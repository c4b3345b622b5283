// Package merkle builds fixed-depth binary Merkle trees over ordered leaf
// sequences. Unused slots are padded with per-level hashes of a public zero
// element, so a tree of depth D always has exactly 2^D leaf positions and a
// single root. Building is a pure function of (leaves, depth): the same input
// always yields a bit-identical root, which the finalize path and every proof
// request rely on.
package merkle

import (
	"fmt"
	"math/big"

	"github.com/anonvote/anonvote/crypto/hash/poseidon"
	"github.com/anonvote/anonvote/types"
)

var (
	// ErrInvalidDepth is returned when the requested depth is out of bounds.
	ErrInvalidDepth = fmt.Errorf("invalid tree depth")
	// ErrTooManyLeaves is returned when the leaf sequence exceeds 2^depth.
	ErrTooManyLeaves = fmt.Errorf("too many leaves for tree depth")
	// ErrIndexOutOfRange is returned when a proof is requested for a leaf
	// position that holds no leaf.
	ErrIndexOutOfRange = fmt.Errorf("leaf index out of range")
)

// Tree is a materialized fixed-depth Merkle tree. It is immutable once built.
type Tree struct {
	depth  int
	levels [][]*big.Int // levels[0] are the leaves, levels[depth] holds the root
	zeros  []*big.Int   // zeros[i] is the empty-subtree hash at level i
}

// BuildTree constructs the tree for the given ordered leaves and depth. Only
// the nodes covering real leaves are materialized; everything to their right
// is an empty-subtree hash.
func BuildTree(leaves []*big.Int, depth int) (*Tree, error) {
	if depth < 1 || depth > types.MaxTreeDepth {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	if len(leaves) > 1<<depth {
		return nil, fmt.Errorf("%w: %d leaves, capacity %d", ErrTooManyLeaves, len(leaves), 1<<depth)
	}

	zeros := make([]*big.Int, depth+1)
	zeros[0] = poseidon.ZeroElement()
	for i := 1; i <= depth; i++ {
		h, err := poseidon.HashPair(zeros[i-1], zeros[i-1])
		if err != nil {
			return nil, err
		}
		zeros[i] = h
	}

	levels := make([][]*big.Int, depth+1)
	levels[0] = make([]*big.Int, len(leaves))
	copy(levels[0], leaves)

	for lv := 0; lv < depth; lv++ {
		cur := levels[lv]
		next := make([]*big.Int, (len(cur)+1)/2)
		for i := range next {
			left := cur[2*i]
			right := zeros[lv]
			if 2*i+1 < len(cur) {
				right = cur[2*i+1]
			}
			h, err := poseidon.HashPair(left, right)
			if err != nil {
				return nil, err
			}
			next[i] = h
		}
		levels[lv+1] = next
	}

	return &Tree{depth: depth, levels: levels, zeros: zeros}, nil
}

// Depth returns the fixed depth the tree was built with.
func (t *Tree) Depth() int {
	return t.depth
}

// NumLeaves returns the number of real (non-padding) leaves.
func (t *Tree) NumLeaves() int {
	return len(t.levels[0])
}

// Root returns the tree root. An empty tree has the empty-subtree hash of the
// top level as root.
func (t *Tree) Root() *big.Int {
	if len(t.levels[t.depth]) == 0 {
		return new(big.Int).Set(t.zeros[t.depth])
	}
	return new(big.Int).Set(t.levels[t.depth][0])
}

// GenProof returns the sibling values and direction bits for the leaf at the
// given position. Direction bit 0 means the node on the path is a left child
// at that level, 1 means it is a right child.
func (t *Tree) GenProof(index int) ([]*big.Int, []int, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, nil, fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	pathElements := make([]*big.Int, t.depth)
	pathIndices := make([]int, t.depth)
	idx := index
	for lv := 0; lv < t.depth; lv++ {
		pathIndices[lv] = idx & 1
		sibling := idx ^ 1
		if sibling < len(t.levels[lv]) {
			pathElements[lv] = new(big.Int).Set(t.levels[lv][sibling])
		} else {
			pathElements[lv] = new(big.Int).Set(t.zeros[lv])
		}
		idx >>= 1
	}
	return pathElements, pathIndices, nil
}

// VerifyProof folds the sibling path over the leaf and reports whether the
// result equals root. This is the same check the circuit performs in-circuit.
func VerifyProof(leaf, root *big.Int, pathElements []*big.Int, pathIndices []int) bool {
	if len(pathElements) != len(pathIndices) {
		return false
	}
	cur := new(big.Int).Set(leaf)
	for i, sibling := range pathElements {
		var (
			h   *big.Int
			err error
		)
		if pathIndices[i] == 0 {
			h, err = poseidon.HashPair(cur, sibling)
		} else {
			h, err = poseidon.HashPair(sibling, cur)
		}
		if err != nil {
			return false
		}
		cur = h
	}
	return cur.Cmp(root) == 0
}
