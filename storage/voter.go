package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/types"
)

// voterKey builds the storage key for the (election id, email) pair that
// uniquely identifies a voter.
func voterKey(electionID uuid.UUID, email string) []byte {
	return append(electionID[:], []byte("/"+strings.ToLower(email))...)
}

// Voter retrieves a voter record. It returns ErrNotFound when the voter was
// never invited to the election.
func (s *Storage) Voter(electionID uuid.UUID, email string) (*types.Voter, error) {
	v := &types.Voter{}
	if err := s.getArtifact(voterPrefix, voterKey(electionID, email), v); err != nil {
		return nil, err
	}
	return v, nil
}

// SetVoter stores a voter record.
func (s *Storage) SetVoter(v *types.Voter) error {
	if v == nil {
		return fmt.Errorf("nil voter")
	}
	if v.Email == "" {
		return fmt.Errorf("voter email is empty")
	}
	return s.setArtifact(voterPrefix, voterKey(v.ElectionID, v.Email), v)
}

// InviteVoters creates unregistered voter records for the given emails,
// skipping any email already invited so re-running a bulk invitation is
// harmless. It returns the number of new invitations.
func (s *Storage) InviteVoters(electionID uuid.UUID, emails []string) (int, error) {
	invited := 0
	now := time.Now()
	for _, email := range emails {
		if email == "" {
			continue
		}
		if _, err := s.Voter(electionID, email); err == nil {
			continue
		} else if err != ErrNotFound {
			return invited, err
		}
		v := &types.Voter{
			ElectionID: electionID,
			Email:      strings.ToLower(email),
			InvitedAt:  now,
		}
		if err := s.SetVoter(v); err != nil {
			return invited, err
		}
		invited++
	}
	return invited, nil
}
