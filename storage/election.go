package storage

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/types"
)

// Election retrieves an election record from the storage. It returns
// ErrNotFound if the election does not exist.
func (s *Storage) Election(id uuid.UUID) (*types.Election, error) {
	e := &types.Election{}
	if err := s.getArtifact(electionPrefix, id[:], e); err != nil {
		return nil, err
	}
	return e, nil
}

// SetElection stores an election record.
func (s *Storage) SetElection(e *types.Election) error {
	if e == nil {
		return fmt.Errorf("nil election")
	}
	if e.TreeDepth < 1 || e.TreeDepth > types.MaxTreeDepth {
		return fmt.Errorf("invalid tree depth %d", e.TreeDepth)
	}
	return s.setArtifact(electionPrefix, e.ID[:], e)
}

// ListElections returns the IDs of every stored election.
func (s *Storage) ListElections() ([]uuid.UUID, error) {
	keys, err := s.listArtifactKeys(electionPrefix)
	if err != nil {
		return nil, err
	}
	ids := make([]uuid.UUID, 0, len(keys))
	for _, k := range keys {
		id, err := uuid.FromBytes(k)
		if err != nil {
			return nil, fmt.Errorf("malformed election key %x: %w", k, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
