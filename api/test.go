package api

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/types"
)

var testAvailable bool

func init() {
	if os.Getenv("TEST_API") == "true" || os.Getenv("TEST_API") == "1" {
		testAvailable = true
	}
}

// setElectionForTest creates an election record, its voter invitations and
// optionally an admin token in one shot. In a real scenario this data is set
// up by the admin-facing deployment layer; the endpoint only exists when the
// TEST_API environment variable enables it.
// POST /elections/test
func (a *API) setElectionForTest(w http.ResponseWriter, r *http.Request) {
	if !testAvailable {
		http.Error(w, "not available", http.StatusServiceUnavailable)
		return
	}
	req := &TestElectionRequest{}
	if err := json.NewDecoder(r.Body).Decode(req); err != nil {
		ErrMalformedBody.Withf("could not decode request body: %v", err).Write(w)
		return
	}
	if req.Election.ID == uuid.Nil {
		req.Election.ID = uuid.New()
	}
	if req.Election.TreeDepth == 0 {
		req.Election.TreeDepth = types.DefaultTreeDepth
	}
	if err := a.storage.SetElection(&req.Election); err != nil {
		ErrGenericInternalServerError.Withf("could not store election: %v", err).Write(w)
		return
	}
	if len(req.Invitations) > 0 {
		if _, err := a.storage.InviteVoters(req.Election.ID, req.Invitations); err != nil {
			ErrGenericInternalServerError.Withf("could not store invitations: %v", err).Write(w)
			return
		}
	}
	if req.AdminToken != "" {
		if err := a.storage.AddAdminToken(req.AdminToken); err != nil {
			ErrGenericInternalServerError.Withf("could not store admin token: %v", err).Write(w)
			return
		}
	}
	log.Infow("test election created", "election", req.Election.ID.String(),
		"invitations", len(req.Invitations))
	httpWriteJSON(w, &req.Election)
}
