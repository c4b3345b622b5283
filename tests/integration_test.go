package tests

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"

	"github.com/anonvote/anonvote/api/client"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/merkle"
)

func init() {
	log.Init(log.LogLevelDebug, "stdout")
}

func TestIntegration(t *testing.T) {
	c := qt.New(t)

	// Setup
	ctx := context.Background()
	ts := NewTestService(t, ctx)
	_, port := ts.api.HostPort()
	cli, err := NewTestClient(port)
	c.Assert(err, qt.IsNil)
	cli.SetAdminToken(testAdminToken)

	emails := []string{"alice@example.com", "bob@example.com", "carol@example.com"}
	electionID := ts.createElection(t, 4, emails...)

	c.Run("register voters", func(c *qt.C) {
		for _, email := range emails {
			registerVoter(c, cli, electionID, email, "token-"+email)
		}
		// a registration retry with the same token is accepted
		registerVoter(c, cli, electionID, emails[0], "token-"+emails[0])
	})

	c.Run("finalize publishes root and period", func(c *qt.C) {
		votingEnd := time.Now().Add(2 * time.Hour).Truncate(time.Second)
		election, status := finalizeElection(c, cli, electionID, votingEnd)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(election.MerkleRoot, qt.Not(qt.IsNil))
		c.Assert(ts.ledger.TxCount(), qt.Equals, 2)

		published := ts.ledger.Root(common.HexToAddress(testContract))
		c.Assert(published, qt.Not(qt.IsNil))
		c.Assert(published.String(), qt.Equals, election.MerkleRoot.String())
		_, end := ts.ledger.Period(common.HexToAddress(testContract))
		c.Assert(end, qt.Equals, uint64(votingEnd.Unix()))

		// a second finalize is rejected without new transactions
		_, status = finalizeElection(c, cli, electionID, votingEnd)
		c.Assert(status, qt.Equals, http.StatusConflict)
		c.Assert(ts.ledger.TxCount(), qt.Equals, 2)
	})

	c.Run("late registration is rejected", func(c *qt.C) {
		_, err := ts.storage.InviteVoters(electionID, []string{"late@example.com"})
		c.Assert(err, qt.IsNil)
		_, status, err := cli.Request(client.HTTPPOST, map[string]string{
			"email":         "late@example.com",
			"identityToken": "late-token",
		}, nil, electionPath(electionID, "/register"))
		c.Assert(err, qt.IsNil)
		c.Assert(status, qt.Equals, http.StatusBadRequest)
	})

	c.Run("witnesses fold to the published root", func(c *qt.C) {
		published := ts.ledger.Root(common.HexToAddress(testContract))
		for _, email := range emails {
			witness, status := requestProof(c, cli, electionID, "token-"+email)
			c.Assert(status, qt.Equals, http.StatusOK)
			c.Assert(witness.Root.String(), qt.Equals, published.String())

			elems := make([]*big.Int, len(witness.PathElements))
			for i, e := range witness.PathElements {
				elems[i] = e.MathBigInt()
			}
			c.Assert(merkle.VerifyProof(witness.Leaf.MathBigInt(), witness.Root.MathBigInt(),
				elems, witness.PathIndices), qt.IsTrue)
		}
		// an unregistered token has no witness
		_, status := requestProof(c, cli, electionID, "stranger-token")
		c.Assert(status, qt.Equals, http.StatusNotFound)
	})

	c.Run("complete is terminal and idempotent", func(c *qt.C) {
		for range 2 {
			_, status, err := cli.Request(client.HTTPPOST, nil, nil, electionPath(electionID, "/complete"))
			c.Assert(err, qt.IsNil)
			c.Assert(status, qt.Equals, http.StatusOK)
		}
	})
}

func TestIntegrationLedgerOutage(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	ts := NewTestService(t, ctx)
	_, port := ts.api.HostPort()
	cli, err := NewTestClient(port)
	c.Assert(err, qt.IsNil)
	cli.SetAdminToken(testAdminToken)

	electionID := ts.createElection(t, 3, "alice@example.com")
	registerVoter(c, cli, electionID, "alice@example.com", "token-alice")

	// finalize during the outage fails with a retryable error and leaves
	// the election open
	ts.ledger.FailRoot = fmt.Errorf("rpc unavailable")
	_, status := finalizeElection(c, cli, electionID, time.Now().Add(time.Hour))
	c.Assert(status, qt.Equals, http.StatusBadGateway)
	c.Assert(ts.ledger.TxCount(), qt.Equals, 0)

	// registration still works while open
	_, err = ts.storage.InviteVoters(electionID, []string{"bob@example.com"})
	c.Assert(err, qt.IsNil)
	registerVoter(c, cli, electionID, "bob@example.com", "token-bob")

	// retry after the outage succeeds and includes both leaves
	ts.ledger.FailRoot = nil
	election, status := finalizeElection(c, cli, electionID, time.Now().Add(time.Hour))
	c.Assert(status, qt.Equals, http.StatusOK)
	c.Assert(election.MerkleRoot, qt.Not(qt.IsNil))

	for _, token := range []string{"token-alice", "token-bob"} {
		witness, status := requestProof(c, cli, electionID, token)
		c.Assert(status, qt.Equals, http.StatusOK)
		c.Assert(witness.Root.String(), qt.Equals, election.MerkleRoot.String())
	}
}
