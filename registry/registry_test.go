package registry

import (
	"math/big"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/anonvote/anonvote/crypto/hash/poseidon"
	"github.com/anonvote/anonvote/merkle"
)

func newRegistry(t *testing.T) *Registry {
	return New(metadb.NewTest(t))
}

func testLeaf(t *testing.T, secret int64) *big.Int {
	t.Helper()
	leaf, err := poseidon.HashLeaf(big.NewInt(secret))
	qt.Assert(t, err, qt.IsNil)
	return leaf
}

func TestAppendAndLoad(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()

	// Empty election has no leaves.
	leaves, err := r.LoadLeaves(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 0)

	l1 := testLeaf(t, 11)
	l2 := testLeaf(t, 22)
	c.Assert(r.AppendLeaf(electionID, l1, 3), qt.IsNil)
	c.Assert(r.AppendLeaf(electionID, l2, 3), qt.IsNil)

	// Insertion order is preserved.
	leaves, err = r.LoadLeaves(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(leaves, qt.HasLen, 2)
	c.Assert(leaves[0].Cmp(l1), qt.Equals, 0)
	c.Assert(leaves[1].Cmp(l2), qt.Equals, 0)

	n, err := r.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 2)
}

func TestAppendDuplicate(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()

	leaf := testLeaf(t, 11)
	c.Assert(r.AppendLeaf(electionID, leaf, 3), qt.IsNil)
	c.Assert(r.AppendLeaf(electionID, leaf, 3), qt.ErrorIs, ErrDuplicateLeaf)

	// The same leaf is fine in a different election.
	c.Assert(r.AppendLeaf(uuid.New(), leaf, 3), qt.IsNil)
}

func TestAppendCapacity(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()
	const depth = 2 // capacity 4

	for i := int64(0); i < 4; i++ {
		c.Assert(r.AppendLeaf(electionID, testLeaf(t, 100+i), depth), qt.IsNil)
	}
	err := r.AppendLeaf(electionID, testLeaf(t, 999), depth)
	c.Assert(err, qt.ErrorIs, ErrCapacityExceeded)
}

func TestFreeze(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()

	c.Assert(r.AppendLeaf(electionID, testLeaf(t, 11), 3), qt.IsNil)

	c.Assert(r.Freeze(electionID), qt.IsNil)
	frozen, err := r.Frozen(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(frozen, qt.IsTrue)

	// Appends are rejected while frozen.
	err = r.AppendLeaf(electionID, testLeaf(t, 22), 3)
	c.Assert(err, qt.ErrorIs, ErrLeafSetFrozen)

	// Only one caller can win the freeze flip.
	err = r.Freeze(electionID)
	c.Assert(err, qt.ErrorIs, ErrLeafSetFrozen)

	// Unfreeze re-opens the sequence, and the flip can be won again.
	c.Assert(r.Unfreeze(electionID), qt.IsNil)
	c.Assert(r.Unfreeze(electionID), qt.IsNil)
	c.Assert(r.AppendLeaf(electionID, testLeaf(t, 22), 3), qt.IsNil)
	c.Assert(r.Freeze(electionID), qt.IsNil)
}

func TestRootMatchesDirectBuild(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()

	expected := []*big.Int{testLeaf(t, 11), testLeaf(t, 22), testLeaf(t, 33)}
	for _, leaf := range expected {
		c.Assert(r.AppendLeaf(electionID, leaf, 3), qt.IsNil)
	}

	root, err := r.Root(electionID, 3)
	c.Assert(err, qt.IsNil)

	tree, err := merkle.BuildTree(expected, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(root.Cmp(tree.Root()), qt.Equals, 0)
}

func TestConcurrentAppendsNoLostUpdate(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()

	// Two concurrent appends of distinct leaves on the same empty election
	// must both land; the final sequence holds exactly two leaves, never one.
	var wg sync.WaitGroup
	errs := make([]error, 2)
	leaves := []*big.Int{testLeaf(t, 11), testLeaf(t, 22)}
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.AppendLeaf(electionID, leaves[i], 3)
		}(i)
	}
	wg.Wait()

	c.Assert(errs[0], qt.IsNil)
	c.Assert(errs[1], qt.IsNil)
	got, err := r.LoadLeaves(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(got, qt.HasLen, 2)
	c.Assert(got[0].Cmp(got[1]), qt.Not(qt.Equals), 0)
}

func TestConcurrentAppendsManyWriters(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	r := newRegistry(t)
	electionID := uuid.New()
	const writers = 16

	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = r.AppendLeaf(electionID, testLeaf(t, int64(1000+i)), 5)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		c.Assert(err, qt.IsNil, qt.Commentf("writer %d", i))
	}
	n, err := r.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, writers)
}
