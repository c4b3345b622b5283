package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/types"
)

// RegisterRequest is the body of POST RegisterEndpoint.
type RegisterRequest struct {
	Email         string `json:"email"`
	IdentityToken string `json:"identityToken"`
}

// ProofRequest is the body of POST ProofEndpoint. The identity token never
// leaves the request: the server re-derives the secret and returns a fresh
// witness.
type ProofRequest struct {
	IdentityToken string `json:"identityToken"`
}

// FinalizeRequest is the body of POST FinalizeEndpoint.
type FinalizeRequest struct {
	VotingEnd time.Time `json:"votingEnd"`
}

// ElectionsResponse is the body of GET ElectionsEndpoint.
type ElectionsResponse struct {
	Elections []uuid.UUID `json:"elections"`
}

// TestElectionRequest is the body of POST TestSetElectionEndpoint. It creates
// the election record and its voter invitations in one shot.
type TestElectionRequest struct {
	Election    types.Election `json:"election"`
	Invitations []string       `json:"invitations"`
	AdminToken  string         `json:"adminToken"`
}
