package storage

import (
	"encoding/binary"
	"time"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/types"
)

// Incident records a detected-but-unresolved inconsistency between on-chain
// and local state. Incidents are operator-facing: they are written when the
// caller-visible operation already succeeded on-chain and must never be
// reported as an ordinary failure.
type Incident struct {
	ElectionID uuid.UUID     `json:"electionId" cbor:"0,keyasint"`
	Root       *types.BigInt `json:"root"       cbor:"1,keyasint,omitempty"`
	Detail     string        `json:"detail"     cbor:"2,keyasint"`
	At         time.Time     `json:"at"         cbor:"3,keyasint"`
}

func incidentKey(electionID uuid.UUID, at time.Time) []byte {
	key := make([]byte, len(electionID)+8)
	copy(key, electionID[:])
	binary.BigEndian.PutUint64(key[len(electionID):], uint64(at.UnixNano()))
	return key
}

// AddIncident durably records an operator incident.
func (s *Storage) AddIncident(inc *Incident) error {
	return s.setArtifact(incidentPrefix, incidentKey(inc.ElectionID, inc.At), inc)
}

// ListIncidents returns all recorded incidents.
func (s *Storage) ListIncidents() ([]*Incident, error) {
	keys, err := s.listArtifactKeys(incidentPrefix)
	if err != nil {
		return nil, err
	}
	incidents := make([]*Incident, 0, len(keys))
	for _, k := range keys {
		inc := &Incident{}
		if err := s.getArtifact(incidentPrefix, k, inc); err != nil {
			return nil, err
		}
		incidents = append(incidents, inc)
	}
	return incidents, nil
}
