package coordinator

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// LedgerService defines the interface for the web3 ledger publisher used by
// the coordinator. The implementation only sends and waits; the coordinator
// owns retry and compensation policy.
type LedgerService interface {
	SetMerkleRoot(ctx context.Context, contract common.Address, root *big.Int) (common.Hash, error)
	SetVotingPeriod(ctx context.Context, contract common.Address, start, end uint64) (common.Hash, error)
	AccountAddress() common.Address
	WaitTx(ctx context.Context, hash common.Hash, timeout time.Duration) error
}
