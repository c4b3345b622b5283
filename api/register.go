package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/anonvote/anonvote/coordinator"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/prover"
	"github.com/anonvote/anonvote/storage"
)

// register completes a voter registration, appending their leaf to the
// election tree
// POST /elections/{electionId}/register
func (a *API) register(w http.ResponseWriter, r *http.Request) {
	electionID, ok := urlElectionID(w, r)
	if !ok {
		return
	}
	req := &RegisterRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		ErrMalformedBody.Withf("invalid email: %v", err).Write(w)
		return
	}
	if strings.TrimSpace(req.IdentityToken) == "" {
		ErrMalformedBody.With("missing identityToken").Write(w)
		return
	}
	if err := a.coordinator.Register(electionID, req.Email, req.IdentityToken); err != nil {
		switch {
		case errors.Is(err, coordinator.ErrElectionNotFound):
			ErrElectionNotFound.Write(w)
		case errors.Is(err, coordinator.ErrRegistrationClosed):
			ErrRegistrationClosed.Write(w)
		case errors.Is(err, coordinator.ErrVoterNotInvited):
			ErrVoterNotInvited.Write(w)
		case errors.Is(err, coordinator.ErrAlreadyRegistered):
			ErrAlreadyRegistered.Write(w)
		case errors.Is(err, coordinator.ErrElectionFull):
			ErrElectionFull.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	log.Debugw("voter registered via API", "election", electionID.String(), "email", req.Email)
	httpWriteOK(w)
}

// proof returns a fresh membership witness for the voter's identity token
// POST /elections/{electionId}/proof
func (a *API) proof(w http.ResponseWriter, r *http.Request) {
	electionID, ok := urlElectionID(w, r)
	if !ok {
		return
	}
	req := &ProofRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if strings.TrimSpace(req.IdentityToken) == "" {
		ErrMalformedBody.With("missing identityToken").Write(w)
		return
	}
	witness, err := a.coordinator.Proof(electionID, req.IdentityToken)
	if err != nil {
		switch {
		case errors.Is(err, coordinator.ErrElectionNotFound), errors.Is(err, storage.ErrNotFound):
			ErrElectionNotFound.Write(w)
		case errors.Is(err, coordinator.ErrNotFinalized):
			ErrElectionNotFinalized.Write(w)
		case errors.Is(err, prover.ErrLeafNotFound):
			ErrLeafNotFound.Write(w)
		default:
			ErrGenericInternalServerError.WithErr(err).Write(w)
		}
		return
	}
	httpWriteJSON(w, witness)
}
