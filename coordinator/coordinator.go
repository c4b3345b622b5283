// Package coordinator owns the election lifecycle: voter registration during
// the registration phase, the finalize saga that freezes the Merkle root and
// publishes it to the ledger, and the terminal complete transition.
package coordinator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/anonvote/anonvote/crypto/leafcodec"
	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/prover"
	"github.com/anonvote/anonvote/registry"
	"github.com/anonvote/anonvote/storage"
	"github.com/anonvote/anonvote/types"
)

var (
	// ErrElectionNotFound is returned when the election id is unknown.
	ErrElectionNotFound = fmt.Errorf("election not found")
	// ErrRegistrationClosed is returned when registration is attempted
	// outside the registration phase.
	ErrRegistrationClosed = fmt.Errorf("registration is closed")
	// ErrVoterNotInvited is returned when the email has no invitation for
	// the election.
	ErrVoterNotInvited = fmt.Errorf("voter is not invited to this election")
	// ErrAlreadyRegistered is returned when the voter (or their identity
	// token) is already bound to a leaf. Safe to treat as an idempotent
	// no-op when the token matches.
	ErrAlreadyRegistered = fmt.Errorf("voter already registered")
	// ErrContractNotDeployed is returned by Finalize when the election has
	// no ledger contract address.
	ErrContractNotDeployed = fmt.Errorf("no ledger contract deployed for election")
	// ErrAlreadyFinalized guards the immutability of the published root.
	ErrAlreadyFinalized = fmt.Errorf("election already finalized")
	// ErrNoVoters is returned by Finalize when the leaf set is empty.
	ErrNoVoters = fmt.Errorf("election has no registered voters")
	// ErrElectionFull is returned when the election tree has no free leaf
	// slots left.
	ErrElectionFull = fmt.Errorf("election is at voter capacity")
	// ErrNotFinalized is returned when an operation requires a frozen root.
	ErrNotFinalized = fmt.Errorf("election is not finalized")
	// ErrLedgerUnavailable means ledger publication failed or timed out.
	// Local state was rolled back and Finalize may be retried.
	ErrLedgerUnavailable = fmt.Errorf("ledger publication failed")
	// ErrCriticalInconsistency means the root was published on-chain but
	// local persistence failed. Not retryable by the caller; an operator
	// incident has been recorded.
	ErrCriticalInconsistency = fmt.Errorf("on-chain finalize succeeded but local persistence failed")
)

// Store is the subset of election state the coordinator reads and persists.
// *storage.Storage satisfies it.
type Store interface {
	Election(id uuid.UUID) (*types.Election, error)
	SetElection(e *types.Election) error
	Voter(electionID uuid.UUID, email string) (*types.Voter, error)
	SetVoter(v *types.Voter) error
	AddIncident(inc *storage.Incident) error
}

// Coordinator owns the election lifecycle: voter registration during the
// registration phase, the finalize transition that freezes the Merkle root
// and publishes it to the ledger, and the terminal complete flip. It is safe
// for concurrent use.
type Coordinator struct {
	store         Store
	registry      *registry.Registry
	prover        *prover.Generator
	ledger        LedgerService
	salt          string
	txWaitTimeout time.Duration
}

// NewCoordinator creates a Coordinator over the given state, leaf registry
// and ledger publisher. The salt is mixed into every secret derivation so
// identity tokens alone cannot be brute-forced into leaves.
func NewCoordinator(store Store, reg *registry.Registry, ledger LedgerService, salt string) *Coordinator {
	return &Coordinator{
		store:         store,
		registry:      reg,
		prover:        prover.NewGenerator(store, reg),
		ledger:        ledger,
		salt:          salt,
		txWaitTimeout: 2 * time.Minute,
	}
}

// SetTxWaitTimeout overrides the ledger confirmation wait used by Finalize.
func (c *Coordinator) SetTxWaitTimeout(d time.Duration) {
	c.txWaitTimeout = d
}

// Register derives the voter's secret and leaf from their identity token and
// appends the leaf to the election registry. The voter must hold an
// invitation and the election must still be in the registration phase.
// Retrying with the same token after a successful registration is a no-op.
func (c *Coordinator) Register(electionID uuid.UUID, email, identityToken string) error {
	election, err := c.store.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrElectionNotFound
		}
		return fmt.Errorf("load election: %w", err)
	}
	if election.Phase != types.PhaseRegistrationOpen {
		return ErrRegistrationClosed
	}
	voter, err := c.store.Voter(electionID, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrVoterNotInvited
		}
		return fmt.Errorf("load voter: %w", err)
	}
	tokenHash := leafcodec.TokenHash(identityToken)
	secret, err := leafcodec.DeriveSecret(identityToken, c.salt)
	if err != nil {
		return fmt.Errorf("derive secret: %w", err)
	}
	leaf, err := leafcodec.DeriveLeaf(secret)
	if err != nil {
		return fmt.Errorf("derive leaf: %w", err)
	}
	if voter.Registered() {
		if !bytes.Equal(voter.TokenHash, tokenHash) {
			return ErrAlreadyRegistered
		}
		// Retry with the voter's own token: make sure their leaf really is
		// in the tree and report success. This repairs a registration whose
		// append was interrupted after the binding was persisted.
		return c.ensureLeaf(electionID, leaf, election.TreeDepth)
	}

	// Bind the token to the voter before touching the tree. A voter can
	// therefore never end up with a leaf that no record accounts for: if the
	// append below fails, the binding is rolled back, and if the rollback
	// itself fails, a retry with the same token repairs the tree through the
	// path above instead of appending a second leaf.
	voter.TokenHash = tokenHash
	voter.Secret = types.NewBigInt(secret)
	if err := c.store.SetVoter(voter); err != nil {
		return fmt.Errorf("persist voter: %w", err)
	}
	if err := c.registry.AppendLeaf(electionID, leaf, election.TreeDepth); err != nil {
		c.unbindVoter(voter)
		switch {
		case errors.Is(err, registry.ErrLeafSetFrozen):
			return ErrRegistrationClosed
		case errors.Is(err, registry.ErrDuplicateLeaf):
			return ErrAlreadyRegistered
		case errors.Is(err, registry.ErrCapacityExceeded):
			return ErrElectionFull
		}
		return fmt.Errorf("append leaf: %w", err)
	}
	log.Debugw("voter registered", "election", electionID.String(), "email", email)
	return nil
}

// ensureLeaf appends the leaf if it is not already present.
func (c *Coordinator) ensureLeaf(electionID uuid.UUID, leaf *big.Int, depth int) error {
	err := c.registry.AppendLeaf(electionID, leaf, depth)
	switch {
	case err == nil:
		log.Warnw("repaired half-completed registration",
			"election", electionID.String())
		return nil
	case errors.Is(err, registry.ErrDuplicateLeaf):
		return nil
	case errors.Is(err, registry.ErrLeafSetFrozen):
		return ErrRegistrationClosed
	case errors.Is(err, registry.ErrCapacityExceeded):
		return ErrElectionFull
	}
	return fmt.Errorf("append leaf: %w", err)
}

// unbindVoter rolls a voter record back to its invited-only state after a
// rejected append. Best effort: a failed rollback leaves the record bound,
// which the retry path above resolves.
func (c *Coordinator) unbindVoter(voter *types.Voter) {
	voter.TokenHash = nil
	voter.Secret = nil
	if err := c.store.SetVoter(voter); err != nil {
		log.Warnw("failed to roll back voter binding after rejected append",
			"election", voter.ElectionID.String(), "email", voter.Email,
			"error", err.Error())
	}
}

// Finalize freezes the election leaf set, publishes the Merkle root and the
// voting window [now, votingEnd) to the ledger, and persists the root
// locally. Publication failures roll the freeze back and are retryable; a
// local persistence failure after on-chain success is reported as
// ErrCriticalInconsistency and recorded as an operator incident.
func (c *Coordinator) Finalize(ctx context.Context, electionID uuid.UUID, votingEnd time.Time) (*types.Election, error) {
	election, err := c.store.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, fmt.Errorf("load election: %w", err)
	}
	if election.ContractAddress == "" {
		return nil, ErrContractNotDeployed
	}
	if election.Finalized() {
		return nil, ErrAlreadyFinalized
	}
	count, err := c.registry.LeafCount(electionID)
	if err != nil {
		return nil, fmt.Errorf("count leaves: %w", err)
	}
	if count == 0 {
		return nil, ErrNoVoters
	}

	// Freeze before reading the root so it reflects exactly the leaf set
	// visible at this point. Registrations arriving after the freeze are
	// rejected, never silently excluded. The freeze flip also serializes
	// finalize itself: a concurrent call finds the set frozen and stops
	// here, so only one saga ever runs per election.
	if err := c.registry.Freeze(electionID); err != nil {
		if errors.Is(err, registry.ErrLeafSetFrozen) {
			return nil, ErrAlreadyFinalized
		}
		return nil, fmt.Errorf("freeze leaf set: %w", err)
	}
	root, err := c.registry.Root(electionID, election.TreeDepth)
	if err != nil {
		c.unfreeze(electionID)
		return nil, fmt.Errorf("compute root: %w", err)
	}

	contract := common.HexToAddress(election.ContractAddress)
	now := time.Now().Truncate(time.Second)
	if err := c.publish(ctx, contract, root, now, votingEnd); err != nil {
		// Nothing was durably recorded as finalized; reopen and let the
		// caller retry.
		c.unfreeze(electionID)
		return nil, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	election.MerkleRoot = types.NewBigInt(root)
	election.RegistrationEnd = now
	election.VotingStart = now
	election.VotingEnd = votingEnd
	election.Phase = types.PhaseVoting
	if err := c.store.SetElection(election); err != nil {
		log.Errorw(err, "CRITICAL: root published on-chain but local persistence failed, manual reconciliation required")
		incident := &storage.Incident{
			ElectionID: electionID,
			Root:       types.NewBigInt(root),
			Detail:     fmt.Sprintf("finalize persisted on-chain (contract %s) but local write failed: %v", contract.Hex(), err),
			At:         time.Now(),
		}
		if ierr := c.store.AddIncident(incident); ierr != nil {
			log.Errorw(ierr, "failed to record finalize incident")
		}
		return nil, fmt.Errorf("%w: %v", ErrCriticalInconsistency, err)
	}
	log.Infow("election finalized", "election", electionID.String(),
		"root", root.String(), "voters", count, "votingEnd", votingEnd.String())
	return election, nil
}

// publish sends the root and voting period transactions sequentially, each
// confirmed before the next. The order matters: the contract must never have
// an active voting period with an absent root.
func (c *Coordinator) publish(ctx context.Context, contract common.Address, root *big.Int, start, end time.Time) error {
	hash, err := c.ledger.SetMerkleRoot(ctx, contract, root)
	if err != nil {
		return fmt.Errorf("set merkle root: %w", err)
	}
	if err := c.ledger.WaitTx(ctx, hash, c.txWaitTimeout); err != nil {
		return fmt.Errorf("wait merkle root tx: %w", err)
	}
	hash, err = c.ledger.SetVotingPeriod(ctx, contract, uint64(start.Unix()), uint64(end.Unix()))
	if err != nil {
		return fmt.Errorf("set voting period: %w", err)
	}
	if err := c.ledger.WaitTx(ctx, hash, c.txWaitTimeout); err != nil {
		return fmt.Errorf("wait voting period tx: %w", err)
	}
	return nil
}

func (c *Coordinator) unfreeze(electionID uuid.UUID) {
	if err := c.registry.Unfreeze(electionID); err != nil {
		log.Errorw(err, "failed to unfreeze leaf set after aborted finalize")
	}
}

// Complete flips the election to its terminal phase. Idempotent, no ledger
// interaction, legal any time once the election has been finalized.
func (c *Coordinator) Complete(electionID uuid.UUID) error {
	election, err := c.store.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrElectionNotFound
		}
		return fmt.Errorf("load election: %w", err)
	}
	switch election.Phase {
	case types.PhaseCompleted:
		return nil
	case types.PhaseRegistrationOpen:
		return ErrNotFinalized
	}
	election.Phase = types.PhaseCompleted
	if err := c.store.SetElection(election); err != nil {
		return fmt.Errorf("persist election: %w", err)
	}
	log.Infow("election completed", "election", electionID.String())
	return nil
}

// Proof re-derives the voter's secret from their identity token and returns
// a fresh membership witness against the frozen leaf set. Only legal once
// the election has been finalized.
func (c *Coordinator) Proof(electionID uuid.UUID, identityToken string) (*types.MerkleProofWitness, error) {
	election, err := c.store.Election(electionID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrElectionNotFound
		}
		return nil, fmt.Errorf("load election: %w", err)
	}
	if election.Phase == types.PhaseRegistrationOpen {
		return nil, ErrNotFinalized
	}
	secret, err := leafcodec.DeriveSecret(identityToken, c.salt)
	if err != nil {
		return nil, fmt.Errorf("derive secret: %w", err)
	}
	return c.prover.GenerateProof(electionID, secret)
}
