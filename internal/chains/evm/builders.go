package evm

import (
	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/chains/evm/foundry"
	"github.com/pendergraft/deployer/internal/chains/evm/hardhat"
)

// NewFoundryBuilder creates a new Foundry builder
func NewFoundryBuilder() chains.Builder {
	return foundry.New()
}

// NewHardhatBuilder creates a new Hardhat builder
func NewHardhatBuilder() chains.Builder {
	return hardhat.New()
}
