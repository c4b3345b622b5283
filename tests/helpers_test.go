package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/anonvote/anonvote/api"
	"github.com/anonvote/anonvote/api/client"
	"github.com/anonvote/anonvote/coordinator"
	"github.com/anonvote/anonvote/registry"
	"github.com/anonvote/anonvote/service"
	"github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/types"
	"github.com/anonvote/anonvote/util"
)

const (
	testSalt       = "integration-salt"
	testAdminToken = "integration-admin-token"
	testContract   = "0x00000000000000000000000000000000000000aa"
)

// testService bundles everything the integration tests touch.
type testService struct {
	api     *service.APIService
	storage *storage.Storage
	ledger  *coordinator.MockLedger
}

// setupAPI creates and starts a new API server for testing on a random port.
func setupAPI(ctx context.Context, stg *storage.Storage, coord *coordinator.Coordinator) (*service.APIService, error) {
	tmpPort := util.RandomInt(40000, 60000)

	apiSrv := service.NewAPI(stg, coord, "127.0.0.1", tmpPort)
	if err := apiSrv.Start(ctx); err != nil {
		return nil, err
	}

	// Wait for the HTTP server to start
	time.Sleep(500 * time.Millisecond)
	return apiSrv, nil
}

// NewTestClient creates a new API client for testing.
func NewTestClient(port int) (*client.HTTPclient, error) {
	return client.New(fmt.Sprintf("http://127.0.0.1:%d", port))
}

// NewTestService starts storage, registry, coordinator and the API service
// over a mock ledger and returns the bundle.
func NewTestService(t *testing.T, ctx context.Context) *testService {
	db := metadb.NewTest(t)
	stg := storage.New(db)
	reg := registry.New(db)
	ledger := coordinator.NewMockLedger()
	coord := coordinator.NewCoordinator(stg, reg, ledger, testSalt)
	coord.SetTxWaitTimeout(time.Second)

	err := stg.AddAdminToken(testAdminToken)
	qt.Assert(t, err, qt.IsNil)

	apiSrv, err := setupAPI(ctx, stg, coord)
	qt.Assert(t, err, qt.IsNil)

	return &testService{api: apiSrv, storage: stg, ledger: ledger}
}

// createElection stores an election with its invitations directly, the way
// the out-of-scope admin deployment layer would.
func (ts *testService) createElection(t *testing.T, depth int, invitations ...string) uuid.UUID {
	electionID := uuid.New()
	err := ts.storage.SetElection(&types.Election{
		ID:                electionID,
		Name:              "integration test election",
		TreeDepth:         depth,
		RegistrationStart: time.Now().Add(-time.Hour),
		RegistrationEnd:   time.Now().Add(time.Hour),
		ContractAddress:   testContract,
		Phase:             types.PhaseRegistrationOpen,
	})
	qt.Assert(t, err, qt.IsNil)
	if len(invitations) > 0 {
		_, err = ts.storage.InviteVoters(electionID, invitations)
		qt.Assert(t, err, qt.IsNil)
	}
	return electionID
}

func electionPath(electionID uuid.UUID, suffix string) string {
	return "/elections/" + electionID.String() + suffix
}

// registerVoter completes a voter registration over HTTP.
func registerVoter(c *qt.C, cli *client.HTTPclient, electionID uuid.UUID, email, token string) {
	body, status, err := cli.Request(client.HTTPPOST, &api.RegisterRequest{
		Email:         email,
		IdentityToken: token,
	}, nil, electionPath(electionID, "/register"))
	c.Assert(err, qt.IsNil)
	c.Assert(status, qt.Equals, http.StatusOK, qt.Commentf("body: %s", body))
}

// finalizeElection runs the finalize transition over HTTP and returns the
// resulting election record.
func finalizeElection(c *qt.C, cli *client.HTTPclient, electionID uuid.UUID, votingEnd time.Time) (*types.Election, int) {
	body, status, err := cli.Request(client.HTTPPOST, &api.FinalizeRequest{
		VotingEnd: votingEnd,
	}, nil, electionPath(electionID, "/finalize"))
	c.Assert(err, qt.IsNil)
	if status != http.StatusOK {
		return nil, status
	}
	election := &types.Election{}
	c.Assert(json.Unmarshal(body, election), qt.IsNil)
	return election, status
}

// requestProof asks for a membership witness over HTTP.
func requestProof(c *qt.C, cli *client.HTTPclient, electionID uuid.UUID, token string) (*types.MerkleProofWitness, int) {
	body, status, err := cli.Request(client.HTTPPOST, &api.ProofRequest{
		IdentityToken: token,
	}, nil, electionPath(electionID, "/proof"))
	c.Assert(err, qt.IsNil)
	if status != http.StatusOK {
		return nil, status
	}
	witness := &types.MerkleProofWitness{}
	c.Assert(json.Unmarshal(body, witness), qt.IsNil)
	return witness, status
}
