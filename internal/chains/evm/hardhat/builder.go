// Package hardhat loads contract artifacts produced by Hardhat.
package hardhat

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pendergraft/deployer/internal/chains"
)

// configFiles are the Hardhat config names, checked in order
var configFiles = []string{"hardhat.config.js", "hardhat.config.ts", "hardhat.config.cjs", "hardhat.config.mjs"}

// Builder implements chains.Builder for Hardhat projects
type Builder struct{}

// New creates a new Hardhat builder
func New() *Builder {
	return &Builder{}
}

// Name returns the builder identifier
func (b *Builder) Name() string {
	return "hardhat"
}

// DisplayName returns a human-readable name
func (b *Builder) DisplayName() string {
	return "Hardhat"
}

// Chain returns the chain this builder targets
func (b *Builder) Chain() string {
	return "evm"
}

// ConfigFile returns the primary config file name
func (b *Builder) ConfigFile() string {
	return configFiles[0]
}

// Detect checks if a directory is a Hardhat project
func (b *Builder) Detect(dir string) (bool, error) {
	for _, name := range configFiles {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !os.IsNotExist(err) {
			return false, err
		}
	}
	return false, nil
}

// Discover finds contract artifacts under artifacts/contracts
func (b *Builder) Discover(dir string, opts chains.DiscoverOptions) ([]string, error) {
	root := filepath.Join(dir, "artifacts", "contracts")
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil, fmt.Errorf("artifacts/contracts not found - run 'npx hardhat compile' first")
	}

	var artifacts []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		name := info.Name()
		if info.IsDir() || !strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".dbg.json") {
			return nil
		}

		contractName := strings.TrimSuffix(name, ".json")
		if len(opts.Contracts) > 0 && !slices.Contains(opts.Contracts, contractName) {
			return nil
		}

		artifacts = append(artifacts, path)
		return nil
	})

	return artifacts, err
}

// Parse parses a Hardhat artifact file
func (b *Builder) Parse(artifactPath string) (*chains.Artifact, error) {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	var raw HardhatArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing artifact JSON: %w", err)
	}

	if raw.Bytecode == "" || raw.Bytecode == "0x" {
		return nil, fmt.Errorf("contract has no bytecode (likely an interface or abstract contract)")
	}
	if len(raw.LinkReferences) > 0 {
		return nil, fmt.Errorf("contract links %d external libraries; link them before deploying", len(raw.LinkReferences))
	}

	name := raw.ContractName
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(artifactPath), ".json")
	}

	return &chains.Artifact{
		Name:    name,
		Chain:   "evm",
		Builder: b.Name(),
		EVM: &chains.EVMArtifact{
			SourcePath:       raw.SourceName,
			ABI:              raw.ABI,
			Bytecode:         raw.Bytecode,
			DeployedBytecode: raw.DeployedBytecode,
		},
	}, nil
}

// HardhatArtifact is the hh-sol-artifact-1 format
type HardhatArtifact struct {
	Format           string                       `json:"_format"`
	ContractName     string                       `json:"contractName"`
	SourceName       string                       `json:"sourceName"`
	ABI              json.RawMessage              `json:"abi"`
	Bytecode         string                       `json:"bytecode"`
	DeployedBytecode string                       `json:"deployedBytecode"`
	LinkReferences   map[string]map[string][]Link `json:"linkReferences"`
}

// Link represents a library link reference
type Link struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}
