package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/anonvote/anonvote/coordinator"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/storage"
)

// elections lists the known election ids
// GET /elections
func (a *API) elections(w http.ResponseWriter, r *http.Request) {
	ids, err := a.storage.ListElections()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, &ElectionsResponse{Elections: ids})
}

// election returns the election record
// GET /elections/{electionId}
func (a *API) election(w http.ResponseWriter, r *http.Request) {
	electionID, ok := urlElectionID(w, r)
	if !ok {
		return
	}
	election, err := a.storage.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			ErrElectionNotFound.Write(w)
			return
		}
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, election)
}

// finalize freezes the election root and publishes it to the ledger
// POST /elections/{electionId}/finalize
func (a *API) finalize(w http.ResponseWriter, r *http.Request) {
	if !a.adminAuthorized(w, r) {
		return
	}
	electionID, ok := urlElectionID(w, r)
	if !ok {
		return
	}
	req := &FinalizeRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.VotingEnd.IsZero() {
		ErrMalformedBody.With("missing votingEnd").Write(w)
		return
	}
	election, err := a.coordinator.Finalize(r.Context(), electionID, req.VotingEnd)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrElectionNotFound):
			ErrElectionNotFound.Write(w)
		case errors.Is(err, coordinator.ErrContractNotDeployed):
			ErrContractNotDeployed.Write(w)
		case errors.Is(err, coordinator.ErrAlreadyFinalized):
			ErrAlreadyFinalized.Write(w)
		case errors.Is(err, coordinator.ErrNoVoters):
			ErrNoVoters.Write(w)
		case errors.Is(err, coordinator.ErrLedgerUnavailable):
			ErrLedgerUnavailable.WithErr(err).Write(w)
		case errors.Is(err, coordinator.ErrCriticalInconsistency):
			ErrCriticalInconsistency.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	log.Infow("election finalized via API",
		"election", electionID.String(), "root", election.MerkleRoot.String())
	httpWriteJSON(w, election)
}

// complete flips the election to its terminal phase
// POST /elections/{electionId}/complete
func (a *API) complete(w http.ResponseWriter, r *http.Request) {
	if !a.adminAuthorized(w, r) {
		return
	}
	electionID, ok := urlElectionID(w, r)
	if !ok {
		return
	}
	if err := a.coordinator.Complete(electionID); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrElectionNotFound):
			ErrElectionNotFound.Write(w)
		case errors.Is(err, coordinator.ErrNotFinalized):
			ErrElectionNotFinalized.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteOK(w)
}

// incidents lists unresolved operator incidents
// GET /incidents
func (a *API) incidents(w http.ResponseWriter, r *http.Request) {
	if !a.adminAuthorized(w, r) {
		return
	}
	incs, err := a.storage.ListIncidents()
	if err != nil {
		ErrGenericInternalServerError.WithErr(err).Write(w)
		return
	}
	httpWriteJSON(w, incs)
}
