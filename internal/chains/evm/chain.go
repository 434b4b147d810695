// Package evm provides the EVM chain module: an RPC-backed network client,
// a contract factory, artifact builders, and bytecode helpers.
package evm

import (
	"context"
	"fmt"

	"github.com/pendergraft/deployer/internal/chains"
)

// Chain implements the chains.Chain interface for EVM-compatible blockchains
type Chain struct {
	builders []chains.Builder
}

// NewChain creates a new EVM chain module
func NewChain() *Chain {
	return &Chain{
		builders: []chains.Builder{
			NewHardhatBuilder(),
			NewFoundryBuilder(),
		},
	}
}

// Name returns the chain identifier
func (c *Chain) Name() string {
	return "evm"
}

// DisplayName returns a human-readable name
func (c *Chain) DisplayName() string {
	return "Ethereum/EVM"
}

// Builders returns all available builders for this chain
func (c *Chain) Builders() []chains.Builder {
	return c.builders
}

// DetectBuilder detects which builder is used in the given directory
func (c *Chain) DetectBuilder(dir string) (chains.Builder, error) {
	for _, b := range c.builders {
		detected, err := b.Detect(dir)
		if err != nil {
			continue
		}
		if detected {
			return b, nil
		}
	}
	return nil, fmt.Errorf("no EVM builder detected in %s", dir)
}

// Builder returns a builder by name
func (c *Chain) Builder(name string) (chains.Builder, bool) {
	for _, b := range c.builders {
		if b.Name() == name {
			return b, true
		}
	}
	return nil, false
}

// VerifyDeployment checks that runtime code at an address matches the expected code
func (c *Chain) VerifyDeployment(ctx context.Context, net chains.Network, opts chains.VerifyOptions) (*chains.VerifyResult, error) {
	deployed, err := net.CodeAt(ctx, opts.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to get deployed bytecode: %w", err)
	}
	if len(deployed) == 0 {
		return nil, fmt.Errorf("%w: %s", chains.ErrEmptyCode, opts.Address.Hex())
	}

	return chains.CompareBytecode(deployed, opts.ExpectedCode), nil
}
