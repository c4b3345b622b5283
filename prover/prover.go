// Package prover turns a registered voter secret into a Merkle membership
// witness for the external proof circuit. Witnesses are recomputed from the
// persisted leaf sequence on every request: a cached proof could silently
// refer to a leaf set that no longer matches the frozen on-chain root.
package prover

import (
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/crypto/leafcodec"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/merkle"
	"github.com/anonvote/anonvote/registry"
	"github.com/anonvote/anonvote/types"
)

// ErrLeafNotFound is returned when the derived leaf is not part of the
// election's leaf set: the caller never completed registration, or completed
// it after the tree was frozen.
var ErrLeafNotFound = fmt.Errorf("leaf not found in the election leaf set")

// ElectionStore is the subset of the storage layer the generator needs.
type ElectionStore interface {
	Election(id uuid.UUID) (*types.Election, error)
}

// Generator produces membership witnesses over the persisted leaf sets.
type Generator struct {
	elections ElectionStore
	registry  *registry.Registry
}

// NewGenerator creates a witness generator.
func NewGenerator(elections ElectionStore, reg *registry.Registry) *Generator {
	return &Generator{elections: elections, registry: reg}
}

// GenerateProof derives the leaf for the given secret, locates it in the
// election's persisted leaf sequence, rebuilds the fixed-depth tree and
// returns the full membership witness.
func (g *Generator) GenerateProof(electionID uuid.UUID, secret *big.Int) (*types.MerkleProofWitness, error) {
	election, err := g.elections.Election(electionID)
	if err != nil {
		return nil, err
	}

	leaf, err := leafcodec.DeriveLeaf(secret)
	if err != nil {
		return nil, err
	}

	leaves, err := g.registry.LoadLeaves(electionID)
	if err != nil {
		return nil, err
	}
	index := -1
	for i, l := range leaves {
		if l.Cmp(leaf) == 0 {
			index = i
			break
		}
	}
	if index < 0 {
		return nil, ErrLeafNotFound
	}

	tree, err := merkle.BuildTree(leaves, election.TreeDepth)
	if err != nil {
		return nil, err
	}
	pathElements, pathIndices, err := tree.GenProof(index)
	if err != nil {
		return nil, err
	}

	elems := make([]*types.BigInt, len(pathElements))
	for i, e := range pathElements {
		elems[i] = types.NewBigInt(e)
	}
	log.Debugw("membership witness generated",
		"election", electionID.String(), "index", index, "leaves", len(leaves))
	return &types.MerkleProofWitness{
		Secret:       types.NewBigInt(secret),
		Leaf:         types.NewBigInt(leaf),
		Root:         types.NewBigInt(tree.Root()),
		PathElements: elems,
		PathIndices:  pathIndices,
	}, nil
}
