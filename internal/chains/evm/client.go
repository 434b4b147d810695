package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"golang.org/x/time/rate"

	"github.com/pendergraft/deployer/internal/chains"
)

// Backend is the RPC surface the client and factory need.
// Both *ethclient.Client and the simulated backend's client satisfy it.
type Backend interface {
	bind.ContractBackend
	ethereum.ChainIDReader
	ethereum.BlockNumberReader
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, txHash common.Hash) (tx *types.Transaction, isPending bool, err error)
}

// ClientOptions tunes confirmation polling
type ClientOptions struct {
	// NetworkName is reported by Network(); JSON-RPC has no name endpoint.
	NetworkName string
	// PollInterval is the minimum spacing between receipt polls.
	PollInterval time.Duration
	// MaxPollErrors is how many consecutive RPC failures end the wait.
	MaxPollErrors int
	// DropAfterPolls declares the tx dropped once the node stops knowing it
	// for this many consecutive polls. Zero disables the check.
	DropAfterPolls int
}

// DefaultClientOptions returns the options used when none are configured
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		NetworkName:    "unknown",
		PollInterval:   2 * time.Second,
		MaxPollErrors:  10,
		DropAfterPolls: 30,
	}
}

// Client implements chains.Network on top of a JSON-RPC backend
type Client struct {
	backend Backend
	opts    ClientOptions
	logger  *slog.Logger
	closer  func()
}

// Dial connects to an RPC endpoint
func Dial(ctx context.Context, rpcURL string, opts ClientOptions, logger *slog.Logger) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", rpcURL, err)
	}
	c := NewClient(ec, opts, logger)
	c.closer = ec.Close
	return c, nil
}

// NewClient wraps an existing backend
func NewClient(backend Backend, opts ClientOptions, logger *slog.Logger) *Client {
	defaults := DefaultClientOptions()
	if opts.NetworkName == "" {
		opts.NetworkName = defaults.NetworkName
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaults.PollInterval
	}
	if opts.MaxPollErrors <= 0 {
		opts.MaxPollErrors = defaults.MaxPollErrors
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{backend: backend, opts: opts, logger: logger}
}

// Close releases the underlying connection
func (c *Client) Close() {
	if c.closer != nil {
		c.closer()
	}
}

// Backend exposes the raw backend for contract bindings
func (c *Client) Backend() Backend {
	return c.backend
}

// Network returns the configured name and the chain id reported by the node
func (c *Client) Network(ctx context.Context) (chains.NetworkInfo, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return chains.NetworkInfo{}, fmt.Errorf("reading chain id: %w", err)
	}
	return chains.NetworkInfo{Name: c.opts.NetworkName, ChainID: id}, nil
}

// BalanceAt returns the latest balance of an account in wei
func (c *Client) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, account, nil)
}

// SuggestGasPrice returns the node's legacy gas price suggestion
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	return c.backend.SuggestGasPrice(ctx)
}

// CodeAt returns the latest runtime code at an address
func (c *Client) CodeAt(ctx context.Context, account common.Address) ([]byte, error) {
	return c.backend.CodeAt(ctx, account, nil)
}

// BlockNumber returns the latest block number
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	return c.backend.BlockNumber(ctx)
}

// EstimateGas estimates the gas a call would consume
func (c *Client) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	return c.backend.EstimateGas(ctx, msg)
}

// WaitMined polls for a transaction receipt until one exists.
// A missing receipt is not an error; the wait ends on ctx, on too many
// consecutive RPC failures, or when the node forgets the transaction.
func (c *Client) WaitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	limiter := rate.NewLimiter(rate.Every(c.opts.PollInterval), 1)
	logger := c.logger.With("tx", hash.Hex())

	var pollErrors, unknownPolls int
	for {
		if err := limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for receipt: %w", err)
		}

		receipt, err := c.backend.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, nil
		}

		if !errors.Is(err, ethereum.NotFound) {
			pollErrors++
			logger.Warn("receipt poll failed", "attempt", pollErrors, "error", err)
			if pollErrors >= c.opts.MaxPollErrors {
				return nil, fmt.Errorf("polling receipt: %d consecutive failures: %w", pollErrors, err)
			}
			continue
		}
		pollErrors = 0

		if c.opts.DropAfterPolls == 0 {
			continue
		}
		_, _, txErr := c.backend.TransactionByHash(ctx, hash)
		switch {
		case txErr == nil:
			unknownPolls = 0
		case errors.Is(txErr, ethereum.NotFound):
			unknownPolls++
			logger.Debug("transaction unknown to node", "polls", unknownPolls)
			if unknownPolls >= c.opts.DropAfterPolls {
				return nil, fmt.Errorf("%w: %s", chains.ErrTxDropped, hash.Hex())
			}
		default:
			logger.Debug("transaction lookup failed", "error", txErr)
		}
	}
}
