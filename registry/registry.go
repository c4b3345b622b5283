// Package registry owns the append-only leaf sequence of each election and
// materializes its fixed-depth Merkle tree on demand. The persisted leaf
// sequence is the only mutable shared resource of the proof pipeline: trees
// and proofs are always recomputed from it, never cached across requests.
package registry

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/merkle"
)

var leafSetPrefix = []byte("ls_")

// maxAppendRetries bounds the optimistic-concurrency retry loop of
// AppendLeaf. Conflicts only happen when another process instance commits a
// record between our read and write.
const maxAppendRetries = 8

var (
	// ErrDuplicateLeaf is returned when the leaf is already present.
	ErrDuplicateLeaf = fmt.Errorf("leaf already present in the registry")
	// ErrCapacityExceeded is returned when the leaf set already holds 2^depth leaves.
	ErrCapacityExceeded = fmt.Errorf("leaf set is at tree capacity")
	// ErrLeafSetFrozen is returned when appending after the root was frozen.
	ErrLeafSetFrozen = fmt.Errorf("leaf set is frozen")
	// ErrConcurrentUpdate is returned when the optimistic-concurrency retries
	// are exhausted.
	ErrConcurrentUpdate = fmt.Errorf("too many concurrent updates to the leaf set")
)

// leafRecord is the single persisted record per election. Leaves are stored
// as decimal-string field elements in insertion order. Version increases on
// every committed mutation and guards the read-modify-write cycle against
// lost updates from concurrent process instances.
type leafRecord struct {
	Leaves  []string `cbor:"0,keyasint"`
	Version uint64   `cbor:"1,keyasint"`
	Frozen  bool     `cbor:"2,keyasint"`
}

func (r *leafRecord) contains(leaf string) bool {
	for _, l := range r.Leaves {
		if l == leaf {
			return true
		}
	}
	return false
}

// Registry is a safe and persistent database of per-election leaf sequences.
type Registry struct {
	db db.Database

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// New creates a Registry over the given database.
func New(db db.Database) *Registry {
	return &Registry{
		db:    db,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockFor returns the per-election append lock, creating it on first use.
func (r *Registry) lockFor(electionID uuid.UUID) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[electionID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[electionID] = l
	}
	return l
}

// loadRecord reads the leaf record of an election, returning an empty record
// when none exists yet.
func (r *Registry) loadRecord(electionID uuid.UUID) (*leafRecord, error) {
	rTx := prefixeddb.NewPrefixedReader(r.db, leafSetPrefix)
	data, err := rTx.Get(electionID[:])
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return &leafRecord{}, nil
		}
		return nil, fmt.Errorf("load leaf record: %w", err)
	}
	rec := &leafRecord{}
	if err := decodeRecord(data, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// commitRecord writes rec inside a transaction, but only if the stored
// version still equals expectVersion. Returns false when the record moved
// underneath us and the caller must retry.
func (r *Registry) commitRecord(electionID uuid.UUID, rec *leafRecord, expectVersion uint64) (bool, error) {
	wTx := prefixeddb.NewPrefixedWriteTx(r.db.WriteTx(), leafSetPrefix)
	defer wTx.Discard()

	current, err := wTx.Get(electionID[:])
	switch {
	case err == nil:
		stored := &leafRecord{}
		if err := decodeRecord(current, stored); err != nil {
			return false, err
		}
		if stored.Version != expectVersion {
			return false, nil
		}
	case errors.Is(err, db.ErrKeyNotFound):
		if expectVersion != 0 {
			return false, nil
		}
	default:
		return false, fmt.Errorf("reread leaf record: %w", err)
	}

	rec.Version = expectVersion + 1
	data, err := encodeRecord(rec)
	if err != nil {
		return false, err
	}
	if err := wTx.Set(electionID[:], data); err != nil {
		return false, err
	}
	return true, wTx.Commit()
}

// AppendLeaf appends a leaf to the election's sequence and persists it
// atomically. Duplicate and capacity checks run under the same serialization
// as the write, so two racing registrations can never both slip a duplicate
// past the check or lose each other's append.
func (r *Registry) AppendLeaf(electionID uuid.UUID, leaf *big.Int, depth int) error {
	if leaf == nil {
		return fmt.Errorf("nil leaf")
	}
	lock := r.lockFor(electionID)
	lock.Lock()
	defer lock.Unlock()

	leafStr := leaf.String()
	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		rec, err := r.loadRecord(electionID)
		if err != nil {
			return err
		}
		if rec.Frozen {
			return ErrLeafSetFrozen
		}
		if rec.contains(leafStr) {
			return ErrDuplicateLeaf
		}
		if len(rec.Leaves) >= 1<<depth {
			return ErrCapacityExceeded
		}
		version := rec.Version
		rec.Leaves = append(rec.Leaves, leafStr)
		ok, err := r.commitRecord(electionID, rec, version)
		if err != nil {
			return err
		}
		if ok {
			log.Debugw("leaf appended", "election", electionID.String(),
				"position", len(rec.Leaves)-1, "version", rec.Version)
			return nil
		}
	}
	return ErrConcurrentUpdate
}

// LoadLeaves returns the full persisted leaf sequence in insertion order, or
// an empty slice when no leaf was ever appended.
func (r *Registry) LoadLeaves(electionID uuid.UUID) ([]*big.Int, error) {
	rec, err := r.loadRecord(electionID)
	if err != nil {
		return nil, err
	}
	leaves := make([]*big.Int, len(rec.Leaves))
	for i, s := range rec.Leaves {
		v, ok := new(big.Int).SetString(s, 10)
		if !ok {
			return nil, fmt.Errorf("corrupt leaf record: %q is not a decimal field element", s)
		}
		leaves[i] = v
	}
	return leaves, nil
}

// LeafCount returns the number of persisted leaves.
func (r *Registry) LeafCount(electionID uuid.UUID) (int, error) {
	rec, err := r.loadRecord(electionID)
	if err != nil {
		return 0, err
	}
	return len(rec.Leaves), nil
}

// Frozen reports whether the leaf set no longer accepts appends.
func (r *Registry) Frozen(electionID uuid.UUID) (bool, error) {
	rec, err := r.loadRecord(electionID)
	if err != nil {
		return false, err
	}
	return rec.Frozen, nil
}

// Freeze marks the leaf set read-only. The coordinator calls it before
// reading the leaves at finalize time, so the computed root reflects exactly
// the sequence visible at the flip and no in-flight registration can land in
// between. Only one caller can win the flip: a leaf set that is already
// frozen returns ErrLeafSetFrozen, which is how two racing finalizes are
// serialized.
func (r *Registry) Freeze(electionID uuid.UUID) error {
	lock := r.lockFor(electionID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		rec, err := r.loadRecord(electionID)
		if err != nil {
			return err
		}
		if rec.Frozen {
			return ErrLeafSetFrozen
		}
		version := rec.Version
		rec.Frozen = true
		ok, err := r.commitRecord(electionID, rec, version)
		if err != nil {
			return err
		}
		if ok {
			log.Infow("leaf set frozen", "election", electionID.String())
			return nil
		}
	}
	return ErrConcurrentUpdate
}

// Unfreeze re-opens the leaf set. It is the compensating action for a
// finalize whose ledger publication failed before anything irreversible
// happened on-chain. Idempotent.
func (r *Registry) Unfreeze(electionID uuid.UUID) error {
	lock := r.lockFor(electionID)
	lock.Lock()
	defer lock.Unlock()

	for attempt := 0; attempt < maxAppendRetries; attempt++ {
		rec, err := r.loadRecord(electionID)
		if err != nil {
			return err
		}
		if !rec.Frozen {
			return nil
		}
		version := rec.Version
		rec.Frozen = false
		ok, err := r.commitRecord(electionID, rec, version)
		if err != nil {
			return err
		}
		if ok {
			log.Infow("leaf set unfrozen", "election", electionID.String())
			return nil
		}
	}
	return ErrConcurrentUpdate
}

// Root loads the persisted leaves, builds the fixed-depth tree and returns
// its root. Building is deterministic, so this matches the root any later
// proof request recomputes over the same sequence.
func (r *Registry) Root(electionID uuid.UUID, depth int) (*big.Int, error) {
	leaves, err := r.LoadLeaves(electionID)
	if err != nil {
		return nil, err
	}
	tree, err := merkle.BuildTree(leaves, depth)
	if err != nil {
		return nil, err
	}
	return tree.Root(), nil
}
