// Package chains defines the chain-side capabilities the deployer consumes:
// the network client, the contract factory, and artifact builders.
package chains

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
)

// Classified failures produced by network and factory implementations.
// Callers match these with errors.Is, never by message text.
var (
	ErrInsufficientFunds = errors.New("insufficient funds for transaction")
	ErrNonceConflict     = errors.New("nonce conflict")
	ErrTxDropped         = errors.New("transaction dropped from mempool")
	ErrEmptyCode         = errors.New("no code at address")
)

// NetworkInfo identifies the network an RPC endpoint serves.
type NetworkInfo struct {
	Name    string
	ChainID *big.Int
}

// Network is the read and estimation surface of an RPC endpoint.
type Network interface {
	Network(ctx context.Context) (NetworkInfo, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address) ([]byte, error)
	BlockNumber(ctx context.Context) (uint64, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
}

// DeployOptions are the overrides applied to a deployment transaction.
type DeployOptions struct {
	GasLimit uint64
	GasPrice *big.Int
}

// DeploymentTx describes a submitted deployment transaction.
type DeploymentTx struct {
	Hash     common.Hash
	GasLimit uint64
	GasPrice *big.Int
}

// Receipt is the subset of a mined receipt the deployer records.
type Receipt struct {
	BlockNumber uint64
	GasUsed     uint64
	Status      uint64
}

// ContractFactory builds and submits a contract creation transaction.
type ContractFactory interface {
	// DeployTransaction returns the unsigned creation call, for estimation only.
	DeployTransaction(ctx context.Context) (ethereum.CallMsg, error)
	// Deploy signs and submits the creation transaction.
	Deploy(ctx context.Context, opts DeployOptions) (DeployedContract, error)
}

// DeployedContract is a handle to a submitted deployment.
type DeployedContract interface {
	Address() common.Address
	DeploymentTransaction() DeploymentTx
	// WaitForDeployment blocks until the creation transaction is mined.
	WaitForDeployment(ctx context.Context) (*Receipt, error)
	// Call invokes a no-argument view method and returns its first output.
	Call(ctx context.Context, method string) (any, error)
}

// Chain represents a blockchain ecosystem
type Chain interface {
	Name() string        // "evm"
	DisplayName() string // "Ethereum/EVM"

	DetectBuilder(dir string) (Builder, error)
	Builders() []Builder

	VerifyDeployment(ctx context.Context, net Network, opts VerifyOptions) (*VerifyResult, error)
}

// Builder loads compiled artifacts produced by a specific build tool
type Builder interface {
	Name() string        // "foundry", "hardhat"
	DisplayName() string // "Foundry", "Hardhat"
	Chain() string       // "evm"

	Detect(dir string) (bool, error)
	ConfigFile() string

	Discover(dir string, opts DiscoverOptions) ([]string, error)
	Parse(artifactPath string) (*Artifact, error)
}

// DiscoverOptions configures artifact discovery
type DiscoverOptions struct {
	// Contracts to include (empty = all)
	Contracts []string
}

// VerifyOptions configures a runtime bytecode check
type VerifyOptions struct {
	Address      common.Address
	ExpectedCode []byte
}

// VerifyResult contains verification results
type VerifyResult struct {
	Match     bool   // Whether the bytecode matches
	MatchType string // "full", "partial", "none"
	Message   string // Human-readable explanation
}

// Artifact is a compiled contract ready for deployment
type Artifact struct {
	Name    string `json:"name"`
	Chain   string `json:"chain"`
	Builder string `json:"builder"`

	EVM *EVMArtifact `json:"evm,omitempty"`
}

// EVMArtifact contains EVM-specific contract data
type EVMArtifact struct {
	SourcePath       string          `json:"sourcePath"`
	ABI              json.RawMessage `json:"abi"`
	Bytecode         string          `json:"bytecode"`
	DeployedBytecode string          `json:"deployedBytecode"`
	Compiler         EVMCompiler     `json:"compiler"`
}

// EVMCompiler contains EVM compiler details
type EVMCompiler struct {
	Version    string `json:"version"`
	EVMVersion string `json:"evmVersion"`
}

// Registry holds all registered chain modules
type Registry struct {
	chains map[string]Chain
}

// NewRegistry creates a new chain registry
func NewRegistry() *Registry {
	return &Registry{
		chains: make(map[string]Chain),
	}
}

// Register adds a chain module to the registry
func (r *Registry) Register(c Chain) {
	r.chains[c.Name()] = c
}

// Get retrieves a chain module by name
func (r *Registry) Get(name string) (Chain, bool) {
	c, ok := r.chains[name]
	return c, ok
}

// List returns all registered chain modules sorted by name
func (r *Registry) List() []Chain {
	chains := make([]Chain, 0, len(r.chains))
	for _, c := range r.chains {
		chains = append(chains, c)
	}
	sort.Slice(chains, func(i, j int) bool { return chains[i].Name() < chains[j].Name() })
	return chains
}

// DetectChainAndBuilder detects the chain and builder for a project directory
func (r *Registry) DetectChainAndBuilder(dir string) (Chain, Builder, error) {
	for _, chain := range r.List() {
		builder, err := chain.DetectBuilder(dir)
		if err == nil && builder != nil {
			return chain, builder, nil
		}
	}
	return nil, nil, fmt.Errorf("no supported builder detected in %s", dir)
}
