package evm

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core"
	"github.com/ethereum/go-ethereum/core/txpool"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/pendergraft/deployer/internal/chains"
)

// Factory deploys one compiled contract with a single signing key
type Factory struct {
	client   *Client
	abi      abi.ABI
	bytecode []byte
	key      *ecdsa.PrivateKey
	from     common.Address
}

// NewFactory prepares a factory from an EVM artifact
func NewFactory(client *Client, artifact *chains.Artifact, key *ecdsa.PrivateKey) (*Factory, error) {
	if artifact == nil || artifact.EVM == nil {
		return nil, fmt.Errorf("artifact has no EVM data")
	}

	parsed, err := abi.JSON(bytes.NewReader(artifact.EVM.ABI))
	if err != nil {
		return nil, fmt.Errorf("parsing ABI for %s: %w", artifact.Name, err)
	}
	if len(parsed.Constructor.Inputs) > 0 {
		return nil, fmt.Errorf("%s constructor takes %d arguments; only argument-free constructors are supported",
			artifact.Name, len(parsed.Constructor.Inputs))
	}

	code, err := DecodeBytecode(artifact.EVM.Bytecode)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", artifact.Name, err)
	}

	return &Factory{
		client:   client,
		abi:      parsed,
		bytecode: code,
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// From returns the deployer address derived from the signing key
func (f *Factory) From() common.Address {
	return f.from
}

// DeployTransaction returns the unsigned creation call
func (f *Factory) DeployTransaction(ctx context.Context) (ethereum.CallMsg, error) {
	return ethereum.CallMsg{
		From: f.from,
		Data: append([]byte(nil), f.bytecode...),
	}, nil
}

// Deploy signs and submits the creation transaction as a legacy tx so the
// recorded gas price is the one charged.
func (f *Factory) Deploy(ctx context.Context, opts chains.DeployOptions) (chains.DeployedContract, error) {
	chainID, err := f.client.backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading chain id: %w", err)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(f.key, chainID)
	if err != nil {
		return nil, fmt.Errorf("creating transactor: %w", err)
	}
	auth.Context = ctx
	auth.GasLimit = opts.GasLimit
	auth.GasPrice = opts.GasPrice

	addr, tx, bound, err := bind.DeployContract(auth, f.abi, f.bytecode, f.client.backend)
	if err != nil {
		return nil, classifySendError(err)
	}

	return &deployedContract{
		client:  f.client,
		address: addr,
		tx:      tx,
		bound:   bound,
	}, nil
}

type deployedContract struct {
	client  *Client
	address common.Address
	tx      *types.Transaction
	bound   *bind.BoundContract
}

func (d *deployedContract) Address() common.Address {
	return d.address
}

func (d *deployedContract) DeploymentTransaction() chains.DeploymentTx {
	return chains.DeploymentTx{
		Hash:     d.tx.Hash(),
		GasLimit: d.tx.Gas(),
		GasPrice: d.tx.GasPrice(),
	}
}

func (d *deployedContract) WaitForDeployment(ctx context.Context) (*chains.Receipt, error) {
	receipt, err := d.client.WaitMined(ctx, d.tx.Hash())
	if err != nil {
		return nil, err
	}
	return &chains.Receipt{
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		Status:      receipt.Status,
	}, nil
}

func (d *deployedContract) Call(ctx context.Context, method string) (any, error) {
	var out []any
	if err := d.bound.Call(&bind.CallOpts{Context: ctx}, &out, method); err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("calling %s: no return value", method)
	}
	return out[0], nil
}

var (
	insufficientFundsErrors = []error{
		core.ErrInsufficientFunds,
		core.ErrInsufficientFundsForTransfer,
	}
	nonceConflictErrors = []error{
		core.ErrNonceTooLow,
		core.ErrNonceTooHigh,
		txpool.ErrReplaceUnderpriced,
		txpool.ErrAlreadyKnown,
	}
)

// classifySendError maps a submission failure onto the chains sentinels.
// Remote nodes return these errors as JSON-RPC text, so the node's canonical
// messages are matched here once instead of by every caller.
func classifySendError(err error) error {
	if matchesAny(err, insufficientFundsErrors) {
		return fmt.Errorf("%w: %v", chains.ErrInsufficientFunds, err)
	}
	if matchesAny(err, nonceConflictErrors) {
		return fmt.Errorf("%w: %v", chains.ErrNonceConflict, err)
	}
	return fmt.Errorf("sending deployment: %w", err)
}

func matchesAny(err error, targets []error) bool {
	for _, target := range targets {
		if errors.Is(err, target) || strings.Contains(err.Error(), target.Error()) {
			return true
		}
	}
	return false
}
