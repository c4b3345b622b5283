// Package web3 is the thin adapter between the election coordinator and the
// external ledger. It only sends the root-setting and voting-period
// transactions and waits for their confirmation; retry and fatality policy is
// owned by the coordinator.
package web3

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/anonvote/anonvote/log"
	"github.com/anonvote/anonvote/util"
)

const (
	// web3QueryTimeout is the timeout for read-only RPC queries.
	web3QueryTimeout = 10 * time.Second
	// txPollInterval is how often WaitTx polls for a transaction receipt.
	txPollInterval = time.Second
	// DefaultTxWaitTimeout is the confirmation wait used when the caller
	// does not set one.
	DefaultTxWaitTimeout = 2 * time.Minute
)

// electionContractABI is the surface of the deployed election contract this
// core consumes. The tally submission entrypoints live on the same contract
// but belong to the vote submission path, not to this adapter.
const electionContractABI = `[
	{"type":"function","name":"setMerkleRoot","stateMutability":"nonpayable","inputs":[{"name":"root","type":"uint256"}],"outputs":[]},
	{"type":"function","name":"setVotingPeriod","stateMutability":"nonpayable","inputs":[{"name":"start","type":"uint256"},{"name":"end","type":"uint256"}],"outputs":[]}
]`

var (
	// ErrTransactionFailed is returned when a mined transaction reverted.
	ErrTransactionFailed = fmt.Errorf("transaction reverted on-chain")
	// ErrTxConfirmationTimeout is returned when the confirmation wait ran
	// out. The transaction may still confirm later; callers must re-check
	// before resubmitting.
	ErrTxConfirmationTimeout = fmt.Errorf("timeout waiting for transaction confirmation")
)

// Contracts holds the client and signing account used to publish election
// state to the ledger.
type Contracts struct {
	ChainID uint64

	cli     *ethclient.Client
	abi     abi.ABI
	privKey *ecdsa.PrivateKey
	address common.Address
}

// New dials the given web3 endpoint and prepares the contract ABI.
func New(web3rpc string) (*Contracts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), web3QueryTimeout)
	defer cancel()
	cli, err := ethclient.DialContext(ctx, web3rpc)
	if err != nil {
		return nil, fmt.Errorf("error dialing web3 provider uri '%s': %w", web3rpc, err)
	}
	chainID, err := cli.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chainID from web3 provider: %w", err)
	}
	parsedABI, err := abi.JSON(strings.NewReader(electionContractABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse election contract ABI: %w", err)
	}
	return &Contracts{
		ChainID: chainID.Uint64(),
		cli:     cli,
		abi:     parsedABI,
	}, nil
}

// SetAccountPrivateKey sets the private key to be used for signing transactions.
func (c *Contracts) SetAccountPrivateKey(hexPrivKey string) error {
	var err error
	c.privKey, err = crypto.HexToECDSA(util.TrimHex(hexPrivKey))
	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}
	c.address = crypto.PubkeyToAddress(c.privKey.PublicKey)
	return nil
}

// AccountAddress returns the address of the account used to sign transactions.
func (c *Contracts) AccountAddress() common.Address {
	return c.address
}

// authTransactOpts creates the transact options with the configured private
// key. It sets the nonce, gas tip cap, and gas limit.
func (c *Contracts) authTransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.privKey == nil {
		return nil, fmt.Errorf("no private key set")
	}
	bChainID := new(big.Int).SetUint64(c.ChainID)
	auth, err := bind.NewKeyedTransactorWithChainID(c.privKey, bChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to create transactor: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, web3QueryTimeout)
	defer cancel()
	log.Debugw("getting nonce", "address", c.address.Hex())
	nonce, err := c.cli.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	auth.Nonce = new(big.Int).SetUint64(nonce)
	if auth.GasTipCap, err = c.cli.SuggestGasTipCap(ctx); err != nil {
		return nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	auth.GasLimit = 1000000
	return auth, nil
}

// bound returns the bound contract at the given address.
func (c *Contracts) bound(contract common.Address) *bind.BoundContract {
	return bind.NewBoundContract(contract, c.abi, c.cli, c.cli, c.cli)
}

// SetMerkleRoot sends the transaction freezing the Merkle root on the
// election contract and returns its hash.
func (c *Contracts) SetMerkleRoot(ctx context.Context, contract common.Address, root *big.Int) (common.Hash, error) {
	txOpts, err := c.authTransactOpts(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transact options: %w", err)
	}
	tx, err := c.bound(contract).Transact(txOpts, "setMerkleRoot", root)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send setMerkleRoot: %w", err)
	}
	log.Infow("merkle root transaction sent",
		"contract", contract.Hex(), "root", root.String(), "tx", tx.Hash().Hex())
	return tx.Hash(), nil
}

// SetVotingPeriod sends the transaction setting the voting window on the
// election contract and returns its hash.
func (c *Contracts) SetVotingPeriod(ctx context.Context, contract common.Address, start, end uint64) (common.Hash, error) {
	txOpts, err := c.authTransactOpts(ctx)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to create transact options: %w", err)
	}
	tx, err := c.bound(contract).Transact(txOpts,
		"setVotingPeriod", new(big.Int).SetUint64(start), new(big.Int).SetUint64(end))
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send setVotingPeriod: %w", err)
	}
	log.Infow("voting period transaction sent",
		"contract", contract.Hex(), "start", start, "end", end, "tx", tx.Hash().Hex())
	return tx.Hash(), nil
}

// WaitTx polls for the receipt of the given transaction until it is mined or
// the timeout elapses. A timeout does not mean the transaction is gone: it
// may still confirm later, so callers must re-check before resubmitting.
func (c *Contracts) WaitTx(ctx context.Context, hash common.Hash, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	ticker := time.NewTicker(txPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s", ErrTxConfirmationTimeout, hash.Hex())
		case <-ticker.C:
			receipt, err := c.cli.TransactionReceipt(ctx, hash)
			if err != nil {
				continue // not mined yet
			}
			if receipt.Status != 1 {
				return fmt.Errorf("%w: %s", ErrTransactionFailed, hash.Hex())
			}
			log.Debugw("transaction confirmed", "tx", hash.Hex(), "block", receipt.BlockNumber)
			return nil
		}
	}
}
