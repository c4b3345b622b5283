package coordinator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// MockLedger implements a mock version of web3.Contracts for testing. It
// records published roots and voting periods per contract address and can be
// told to fail the next publication.
type MockLedger struct {
	mu      sync.Mutex
	roots   map[common.Address]*big.Int
	periods map[common.Address][2]uint64
	txCount int

	// FailRoot and FailPeriod, when set, are returned by the next call to
	// SetMerkleRoot or SetVotingPeriod respectively.
	FailRoot   error
	FailPeriod error

	// Delay, when set, is applied before every publication. Set it before
	// use to hold a transaction in flight during a test.
	Delay time.Duration
}

func NewMockLedger() *MockLedger {
	return &MockLedger{
		roots:   make(map[common.Address]*big.Int),
		periods: make(map[common.Address][2]uint64),
	}
}

func (m *MockLedger) SetMerkleRoot(_ context.Context, contract common.Address, root *big.Int) (common.Hash, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRoot != nil {
		return common.Hash{}, m.FailRoot
	}
	m.roots[contract] = new(big.Int).Set(root)
	m.txCount++
	return common.BigToHash(new(big.Int).SetInt64(int64(m.txCount))), nil
}

func (m *MockLedger) SetVotingPeriod(_ context.Context, contract common.Address, start, end uint64) (common.Hash, error) {
	if m.Delay > 0 {
		time.Sleep(m.Delay)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailPeriod != nil {
		return common.Hash{}, m.FailPeriod
	}
	m.periods[contract] = [2]uint64{start, end}
	m.txCount++
	return common.BigToHash(new(big.Int).SetInt64(int64(m.txCount))), nil
}

func (m *MockLedger) AccountAddress() common.Address {
	return common.HexToAddress("0x1234567890123456789012345678901234567890")
}

func (m *MockLedger) WaitTx(_ context.Context, hash common.Hash, _ time.Duration) error {
	if (hash == common.Hash{}) {
		return fmt.Errorf("unknown transaction")
	}
	return nil
}

// TxCount returns the number of transactions successfully published.
func (m *MockLedger) TxCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.txCount
}

// Root returns the last root published to the given contract, or nil.
func (m *MockLedger) Root(contract common.Address) *big.Int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roots[contract]
}

// Period returns the last voting period published to the given contract.
func (m *MockLedger) Period(contract common.Address) (uint64, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p := m.periods[contract]
	return p[0], p[1]
}
