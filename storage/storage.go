// Package storage persists all election artifacts in a prefixed key-value
// store. The following prefixes are used:
//   - 'e/' for elections
//   - 'v/' for voters
//   - 'a/' for admin capability tokens
//   - 'i/' for operator incidents
//
// The leaf sequences of the Merkle registry live under their own prefix and
// are owned by the registry package, which needs transaction-level control
// over its single record per election.
package storage

import (
	"errors"
	"fmt"

	"go.vocdoni.io/dvote/db"
	"go.vocdoni.io/dvote/db/prefixeddb"
)

var (
	// Prefixes for the keys in the database.
	electionPrefix = []byte("e/")
	voterPrefix    = []byte("v/")
	adminPrefix    = []byte("a/")
	incidentPrefix = []byte("i/")
)

// ErrNotFound is returned when the requested artifact does not exist.
var ErrNotFound = fmt.Errorf("artifact not found")

// Storage wraps the key-value database with typed accessors for every
// artifact kind.
type Storage struct {
	db db.Database
}

// New creates a new Storage instance over the given database.
func New(db db.Database) *Storage {
	return &Storage{db: db}
}

// Close closes the underlying database.
func (s *Storage) Close() {
	s.db.Close()
}

// Database exposes the underlying key-value store for packages that manage
// their own records (the Merkle registry).
func (s *Storage) Database() db.Database {
	return s.db
}

// getArtifact reads and decodes a single artifact. Returns ErrNotFound when
// the key does not exist.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	rTx := prefixeddb.NewPrefixedReader(s.db, prefix)
	data, err := rTx.Get(key)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get artifact: %w", err)
	}
	return decodeArtifact(data, out)
}

// setArtifact encodes and stores a single artifact.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := encodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedWriteTx(s.db.WriteTx(), prefix)
	if err := wTx.Set(key, data); err != nil {
		wTx.Discard()
		return err
	}
	return wTx.Commit()
}

// listArtifactKeys returns every key stored under the given prefix.
func (s *Storage) listArtifactKeys(prefix []byte) ([][]byte, error) {
	keys := [][]byte{}
	if err := prefixeddb.NewPrefixedDatabase(s.db, prefix).Iterate(nil, func(k, _ []byte) bool {
		key := make([]byte, len(k))
		copy(key, k)
		keys = append(keys, key)
		return true
	}); err != nil {
		return nil, err
	}
	return keys, nil
}
