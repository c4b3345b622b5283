package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"go.vocdoni.io/dvote/db/metadb"

	"github.com/anonvote/anonvote/crypto/leafcodec"
	"github.com/anonvote/anonvote/merkle"
	"github.com/anonvote/anonvote/registry"
	"github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/types"
)

const testSalt = "test-salt"

type testEnv struct {
	coordinator *Coordinator
	storage     *storage.Storage
	registry    *registry.Registry
	ledger      *MockLedger
}

func newTestEnv(t *testing.T) *testEnv {
	db := metadb.NewTest(t)
	st := storage.New(db)
	reg := registry.New(db)
	ledger := NewMockLedger()
	coordinator := NewCoordinator(st, reg, ledger, testSalt)
	coordinator.SetTxWaitTimeout(time.Second)
	return &testEnv{
		coordinator: coordinator,
		storage:     st,
		registry:    reg,
		ledger:      ledger,
	}
}

func (env *testEnv) createElection(t *testing.T, contract string) uuid.UUID {
	electionID := uuid.New()
	err := env.storage.SetElection(&types.Election{
		ID:                electionID,
		Name:              "coordinator test",
		TreeDepth:         4,
		RegistrationStart: time.Now().Add(-time.Hour),
		RegistrationEnd:   time.Now().Add(time.Hour),
		ContractAddress:   contract,
		Phase:             types.PhaseRegistrationOpen,
	})
	qt.Assert(t, err, qt.IsNil)
	return electionID
}

func (env *testEnv) inviteAndRegister(t *testing.T, electionID uuid.UUID, emails ...string) {
	_, err := env.storage.InviteVoters(electionID, emails)
	qt.Assert(t, err, qt.IsNil)
	for _, email := range emails {
		err := env.coordinator.Register(electionID, email, "token-"+email)
		qt.Assert(t, err, qt.IsNil)
	}
}

const testContract = "0x00000000000000000000000000000000000000aa"

func TestRegister(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)

	// not invited
	err := env.coordinator.Register(electionID, "mallory@example.com", "tok")
	c.Assert(err, qt.ErrorIs, ErrVoterNotInvited)

	// unknown election
	err = env.coordinator.Register(uuid.New(), "alice@example.com", "tok")
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)

	_, err = env.storage.InviteVoters(electionID, []string{"alice@example.com", "bob@example.com"})
	c.Assert(err, qt.IsNil)

	err = env.coordinator.Register(electionID, "alice@example.com", "token-alice")
	c.Assert(err, qt.IsNil)
	count, err := env.registry.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)

	// retry with the same token is a no-op
	err = env.coordinator.Register(electionID, "alice@example.com", "token-alice")
	c.Assert(err, qt.IsNil)
	count, err = env.registry.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)

	// a different token for a registered voter is a conflict
	err = env.coordinator.Register(electionID, "alice@example.com", "other-token")
	c.Assert(err, qt.ErrorIs, ErrAlreadyRegistered)

	// the same token for a different voter derives the same leaf
	err = env.coordinator.Register(electionID, "bob@example.com", "token-alice")
	c.Assert(err, qt.ErrorIs, ErrAlreadyRegistered)

	voter, err := env.storage.Voter(electionID, "alice@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(voter.Registered(), qt.IsTrue)
}

func TestRegisterClosedPhase(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com")

	_, err := env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)

	_, err = env.storage.InviteVoters(electionID, []string{"late@example.com"})
	c.Assert(err, qt.IsNil)
	err = env.coordinator.Register(electionID, "late@example.com", "late-token")
	c.Assert(err, qt.ErrorIs, ErrRegistrationClosed)
}

// unreliableVoterStore wraps a real store and fails the next SetVoter calls
// on demand, to drive the partial-registration paths.
type unreliableVoterStore struct {
	*storage.Storage
	failSetVoter int
}

func (us *unreliableVoterStore) SetVoter(v *types.Voter) error {
	if us.failSetVoter > 0 {
		us.failSetVoter--
		return errors.New("disk full")
	}
	return us.Storage.SetVoter(v)
}

func TestRegisterVoterPersistFailure(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	db := metadb.NewTest(t)
	st := storage.New(db)
	reg := registry.New(db)
	us := &unreliableVoterStore{Storage: st, failSetVoter: 1}
	coordinator := NewCoordinator(us, reg, NewMockLedger(), testSalt)

	electionID := uuid.New()
	err := st.SetElection(&types.Election{
		ID:              electionID,
		TreeDepth:       4,
		ContractAddress: testContract,
		Phase:           types.PhaseRegistrationOpen,
	})
	c.Assert(err, qt.IsNil)
	_, err = st.InviteVoters(electionID, []string{"alice@example.com"})
	c.Assert(err, qt.IsNil)

	// the binding write fails before the tree is touched, so nothing is
	// durable
	err = coordinator.Register(electionID, "alice@example.com", "token-alice")
	c.Assert(err, qt.IsNotNil)
	count, err := reg.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 0)
	voter, err := st.Voter(electionID, "alice@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(voter.Registered(), qt.IsFalse)

	// a retry with the same token completes the registration with a single
	// leaf
	err = coordinator.Register(electionID, "alice@example.com", "token-alice")
	c.Assert(err, qt.IsNil)
	count, err = reg.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)
	voter, err = st.Voter(electionID, "alice@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(voter.Registered(), qt.IsTrue)

	// a retry with a different token cannot mint a second leaf for the same
	// voter
	err = coordinator.Register(electionID, "alice@example.com", "other-token")
	c.Assert(err, qt.ErrorIs, ErrAlreadyRegistered)
	count, err = reg.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)
}

func TestRegisterRepairsInterruptedAppend(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	_, err := env.storage.InviteVoters(electionID, []string{"alice@example.com"})
	c.Assert(err, qt.IsNil)

	// simulate a crash between the binding write and the leaf append: the
	// voter record is bound but the tree has no leaf
	secret, err := leafcodec.DeriveSecret("token-alice", testSalt)
	c.Assert(err, qt.IsNil)
	voter, err := env.storage.Voter(electionID, "alice@example.com")
	c.Assert(err, qt.IsNil)
	voter.TokenHash = leafcodec.TokenHash("token-alice")
	voter.Secret = types.NewBigInt(secret)
	c.Assert(env.storage.SetVoter(voter), qt.IsNil)
	count, err := env.registry.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 0)

	// the voter's own retry lands the missing leaf exactly once
	for range 2 {
		err = env.coordinator.Register(electionID, "alice@example.com", "token-alice")
		c.Assert(err, qt.IsNil)
		count, err = env.registry.LeafCount(electionID)
		c.Assert(err, qt.IsNil)
		c.Assert(count, qt.Equals, 1)
	}

	// a different token still conflicts and changes nothing
	err = env.coordinator.Register(electionID, "alice@example.com", "other-token")
	c.Assert(err, qt.ErrorIs, ErrAlreadyRegistered)
	count, err = env.registry.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 1)
}

func TestRegisterCapacity(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := uuid.New()
	err := env.storage.SetElection(&types.Election{
		ID:              electionID,
		TreeDepth:       1,
		ContractAddress: testContract,
		Phase:           types.PhaseRegistrationOpen,
	})
	c.Assert(err, qt.IsNil)
	emails := []string{"a@example.com", "b@example.com", "c@example.com"}
	_, err = env.storage.InviteVoters(electionID, emails)
	c.Assert(err, qt.IsNil)

	for _, email := range emails[:2] {
		c.Assert(env.coordinator.Register(electionID, email, "token-"+email), qt.IsNil)
	}
	err = env.coordinator.Register(electionID, emails[2], "token-"+emails[2])
	c.Assert(err, qt.ErrorIs, ErrElectionFull)

	count, err := env.registry.LeafCount(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(count, qt.Equals, 2)
	// the rejected voter is rolled back to invited-only
	voter, err := env.storage.Voter(electionID, emails[2])
	c.Assert(err, qt.IsNil)
	c.Assert(voter.Registered(), qt.IsFalse)
}

func TestFinalizeConcurrent(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com", "bob@example.com")

	// hold the root transaction in flight so both callers overlap inside
	// the saga
	env.ledger.Delay = 200 * time.Millisecond

	votingEnd := time.Now().Add(time.Hour)
	errs := make(chan error, 2)
	for range 2 {
		go func() {
			_, err := env.coordinator.Finalize(context.Background(), electionID, votingEnd)
			errs <- err
		}()
	}
	var won, conflicted int
	for range 2 {
		switch err := <-errs; {
		case err == nil:
			won++
		case errors.Is(err, ErrAlreadyFinalized):
			conflicted++
		default:
			c.Fatalf("unexpected finalize error: %v", err)
		}
	}
	// exactly one caller runs the saga and exactly two transactions are
	// published
	c.Assert(won, qt.Equals, 1)
	c.Assert(conflicted, qt.Equals, 1)
	c.Assert(env.ledger.TxCount(), qt.Equals, 2)

	stored, err := env.storage.Election(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.MerkleRoot, qt.Not(qt.IsNil))
	c.Assert(stored.MerkleRoot.String(), qt.Equals,
		env.ledger.Root(common.HexToAddress(testContract)).String())
}

func TestFinalizePreconditions(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	ctx := context.Background()
	votingEnd := time.Now().Add(time.Hour)

	_, err := env.coordinator.Finalize(ctx, uuid.New(), votingEnd)
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)

	noContract := env.createElection(t, "")
	_, err = env.coordinator.Finalize(ctx, noContract, votingEnd)
	c.Assert(err, qt.ErrorIs, ErrContractNotDeployed)

	empty := env.createElection(t, testContract)
	_, err = env.coordinator.Finalize(ctx, empty, votingEnd)
	c.Assert(err, qt.ErrorIs, ErrNoVoters)
	c.Assert(env.ledger.TxCount(), qt.Equals, 0)
}

func TestFinalizeAndIdempotence(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com", "bob@example.com")

	votingEnd := time.Now().Add(time.Hour).Truncate(time.Second)
	election, err := env.coordinator.Finalize(context.Background(), electionID, votingEnd)
	c.Assert(err, qt.IsNil)
	c.Assert(election.Phase, qt.Equals, types.PhaseVoting)
	c.Assert(election.MerkleRoot, qt.Not(qt.IsNil))
	c.Assert(env.ledger.TxCount(), qt.Equals, 2)

	contract := common.HexToAddress(testContract)
	c.Assert(env.ledger.Root(contract), qt.Not(qt.IsNil))
	c.Assert(env.ledger.Root(contract).String(), qt.Equals, election.MerkleRoot.String())
	start, end := env.ledger.Period(contract)
	c.Assert(end, qt.Equals, uint64(votingEnd.Unix()))
	c.Assert(start <= uint64(time.Now().Unix()), qt.IsTrue)

	// a second finalize performs no new transactions and leaves the root
	// untouched
	_, err = env.coordinator.Finalize(context.Background(), electionID, votingEnd.Add(time.Hour))
	c.Assert(err, qt.ErrorIs, ErrAlreadyFinalized)
	c.Assert(env.ledger.TxCount(), qt.Equals, 2)

	stored, err := env.storage.Election(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.MerkleRoot.String(), qt.Equals, election.MerkleRoot.String())
	c.Assert(uint64(stored.VotingEnd.Unix()), qt.Equals, uint64(votingEnd.Unix()))
}

func TestFinalizeLedgerFailureIsRetryable(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com")

	env.ledger.FailRoot = fmt.Errorf("rpc unavailable")
	_, err := env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.ErrorIs, ErrLedgerUnavailable)
	c.Assert(env.ledger.TxCount(), qt.Equals, 0)

	// local state rolled back: still open, leaf set unfrozen, root unset
	stored, err := env.storage.Election(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Phase, qt.Equals, types.PhaseRegistrationOpen)
	c.Assert(stored.MerkleRoot, qt.IsNil)
	frozen, err := env.registry.Frozen(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(frozen, qt.IsFalse)

	// the failure also hits the second transaction of the saga
	env.ledger.FailRoot = nil
	env.ledger.FailPeriod = fmt.Errorf("rpc unavailable")
	_, err = env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.ErrorIs, ErrLedgerUnavailable)
	frozen, err = env.registry.Frozen(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(frozen, qt.IsFalse)

	// retry after the outage succeeds
	env.ledger.FailPeriod = nil
	election, err := env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)
	c.Assert(election.Phase, qt.Equals, types.PhaseVoting)
}

// failingStore wraps a real store and fails SetElection on demand, to drive
// the persistence-after-publication failure path.
type failingStore struct {
	*storage.Storage
	failSetElection bool
}

func (fs *failingStore) SetElection(e *types.Election) error {
	if fs.failSetElection {
		return errors.New("disk full")
	}
	return fs.Storage.SetElection(e)
}

func TestFinalizeCriticalInconsistency(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	db := metadb.NewTest(t)
	st := storage.New(db)
	reg := registry.New(db)
	ledger := NewMockLedger()
	fs := &failingStore{Storage: st}
	coordinator := NewCoordinator(fs, reg, ledger, testSalt)
	coordinator.SetTxWaitTimeout(time.Second)

	electionID := uuid.New()
	err := st.SetElection(&types.Election{
		ID:              electionID,
		TreeDepth:       4,
		ContractAddress: testContract,
		Phase:           types.PhaseRegistrationOpen,
	})
	c.Assert(err, qt.IsNil)
	_, err = st.InviteVoters(electionID, []string{"alice@example.com"})
	c.Assert(err, qt.IsNil)
	err = coordinator.Register(electionID, "alice@example.com", "token-alice")
	c.Assert(err, qt.IsNil)

	fs.failSetElection = true
	_, err = coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.ErrorIs, ErrCriticalInconsistency)

	// the on-chain side went through and an incident was recorded
	c.Assert(ledger.TxCount(), qt.Equals, 2)
	incidents, err := st.ListIncidents()
	c.Assert(err, qt.IsNil)
	c.Assert(incidents, qt.HasLen, 1)
	c.Assert(incidents[0].ElectionID, qt.Equals, electionID)
	c.Assert(incidents[0].Root.String(), qt.Equals, ledger.Root(common.HexToAddress(testContract)).String())
}

func TestComplete(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com")

	err := env.coordinator.Complete(uuid.New())
	c.Assert(err, qt.ErrorIs, ErrElectionNotFound)

	// not legal before finalize
	err = env.coordinator.Complete(electionID)
	c.Assert(err, qt.ErrorIs, ErrNotFinalized)

	_, err = env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)

	err = env.coordinator.Complete(electionID)
	c.Assert(err, qt.IsNil)
	stored, err := env.storage.Election(electionID)
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Phase, qt.Equals, types.PhaseCompleted)

	// idempotent
	err = env.coordinator.Complete(electionID)
	c.Assert(err, qt.IsNil)
}

func TestProofPhaseGate(t *testing.T) {
	t.Parallel()
	c := qt.New(t)
	env := newTestEnv(t)
	electionID := env.createElection(t, testContract)
	env.inviteAndRegister(t, electionID, "alice@example.com", "bob@example.com")

	_, err := env.coordinator.Proof(electionID, "token-alice@example.com")
	c.Assert(err, qt.ErrorIs, ErrNotFinalized)

	election, err := env.coordinator.Finalize(context.Background(), electionID, time.Now().Add(time.Hour))
	c.Assert(err, qt.IsNil)

	witness, err := env.coordinator.Proof(electionID, "token-alice@example.com")
	c.Assert(err, qt.IsNil)
	c.Assert(witness.Root.String(), qt.Equals, election.MerkleRoot.String())
	ok := merkle.VerifyProof(witness.Leaf.MathBigInt(), witness.Root.MathBigInt(),
		bigSlice(witness.PathElements), witness.PathIndices)
	c.Assert(ok, qt.IsTrue)
}

func bigSlice(elems []*types.BigInt) []*big.Int {
	out := make([]*big.Int, len(elems))
	for i, e := range elems {
		out[i] = e.MathBigInt()
	}
	return out
}
