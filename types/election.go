package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ElectionPhase is the lifecycle state of an election. Transitions are owned
// by the coordinator and are strictly forward: RegistrationOpen -> Voting ->
// Completed.
type ElectionPhase uint8

const (
	// PhaseRegistrationOpen accepts voter registrations and leaf appends.
	PhaseRegistrationOpen ElectionPhase = iota
	// PhaseVoting starts once the Merkle root is frozen and published.
	PhaseVoting
	// PhaseCompleted is terminal; only history queries are allowed.
	PhaseCompleted
)

func (p ElectionPhase) String() string {
	switch p {
	case PhaseRegistrationOpen:
		return "registrationOpen"
	case PhaseVoting:
		return "voting"
	case PhaseCompleted:
		return "completed"
	}
	return "unknown"
}

// Election holds the record of a single anonymous election. MerkleRoot stays
// nil until the leaf set is frozen at finalize time, and is immutable
// afterwards.
type Election struct {
	ID                uuid.UUID     `json:"id"                          cbor:"0,keyasint"`
	Name              string        `json:"name"                        cbor:"1,keyasint,omitempty"`
	TreeDepth         int           `json:"merkleTreeDepth"             cbor:"2,keyasint"`
	CandidateCount    int           `json:"candidateCount"              cbor:"3,keyasint,omitempty"`
	RegistrationStart time.Time     `json:"registrationStart"           cbor:"4,keyasint,omitempty"`
	RegistrationEnd   time.Time     `json:"registrationEnd"             cbor:"5,keyasint,omitempty"`
	VotingStart       time.Time     `json:"votingStart,omitempty"       cbor:"6,keyasint,omitempty"`
	VotingEnd         time.Time     `json:"votingEnd,omitempty"         cbor:"7,keyasint,omitempty"`
	MerkleRoot        *BigInt       `json:"merkleRoot,omitempty"        cbor:"8,keyasint,omitempty"`
	ContractAddress   string        `json:"contractAddress,omitempty"   cbor:"9,keyasint,omitempty"`
	Phase             ElectionPhase `json:"phase"                       cbor:"10,keyasint"`
}

// Finalized reports whether the Merkle root has been frozen.
func (e *Election) Finalized() bool {
	return e.MerkleRoot != nil
}

// MaxLeaves returns the leaf capacity of the election tree.
func (e *Election) MaxLeaves() int {
	return 1 << e.TreeDepth
}

func (e *Election) String() string {
	data, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(data)
}

// Voter is an invited participant of one election, identified by the pair
// (election id, email). TokenHash and Secret are set exactly once, when the
// real-world user completes registration.
type Voter struct {
	ElectionID uuid.UUID `json:"electionId"          cbor:"0,keyasint"`
	Email      string    `json:"email"               cbor:"1,keyasint"`
	TokenHash  HexBytes  `json:"tokenHash,omitempty" cbor:"2,keyasint,omitempty"`
	Secret     *BigInt   `json:"secret,omitempty"    cbor:"3,keyasint,omitempty"`
	InvitedAt  time.Time `json:"invitedAt"           cbor:"4,keyasint,omitempty"`
}

// Registered reports whether the voter completed registration.
func (v *Voter) Registered() bool {
	return v.Secret != nil
}
