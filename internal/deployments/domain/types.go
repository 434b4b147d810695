// Package domain contains the deployment pipeline: preflight, gas budgeting,
// submission, confirmation, verification, read-back and reporting.
package domain

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Record statuses
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// NetworkConfig describes the target network.
type NetworkConfig struct {
	Name        string
	ChainID     int64
	Symbol      string
	ExplorerURL string
	FaucetURL   string
}

// Request is the immutable input to a deployment.
type Request struct {
	ContractName string
	Deployer     common.Address
	Network      NetworkConfig

	// MinBalance is the preflight threshold in wei.
	MinBalance *big.Int
	// GasMultiplier is applied to the gas estimate, e.g. 1.20.
	GasMultiplier float64

	// ReadBacks are no-argument view methods called after deployment.
	ReadBacks []string
	// ExpectedRuntime is the artifact's deployed bytecode; empty skips the comparison.
	ExpectedRuntime string

	// ConfirmationTimeout bounds the confirmation wait; zero waits indefinitely.
	ConfirmationTimeout time.Duration
}

// Validate checks a request before any network call is made.
func (r Request) Validate() error {
	var errs []error
	if r.ContractName == "" {
		errs = append(errs, errors.New("contract name is required"))
	}
	if r.Deployer == (common.Address{}) {
		errs = append(errs, errors.New("deployer address is required"))
	}
	if r.Network.ChainID <= 0 {
		errs = append(errs, fmt.Errorf("invalid chain id %d", r.Network.ChainID))
	}
	if r.MinBalance == nil || r.MinBalance.Sign() < 0 {
		errs = append(errs, errors.New("minimum balance must be non-negative"))
	}
	if r.GasMultiplier < 1 || r.GasMultiplier > MaxGasMultiplier {
		errs = append(errs, fmt.Errorf("gas multiplier %v out of range [1, %v]", r.GasMultiplier, MaxGasMultiplier))
	}
	if r.ConfirmationTimeout < 0 {
		errs = append(errs, errors.New("confirmation timeout must not be negative"))
	}
	return errors.Join(errs...)
}

// Warning is a non-fatal finding attached to a deployment.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Source  string `json:"source"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s (%s): %s", w.Kind, w.Source, w.Message)
}

// Record is the persisted, write-once description of a deployment.
type Record struct {
	ContractName          string `json:"contractName"`
	ContractAddress       string `json:"contractAddress"`
	DeploymentTransaction string `json:"deploymentTransaction"`
	Deployer              string `json:"deployer"`
	Network               string `json:"network"`
	ChainID               int64  `json:"chainId"`
	BlockNumber           uint64 `json:"blockNumber"`
	Timestamp             string `json:"timestamp"`
	// GasUsed is the applied gas limit, as a decimal string.
	GasUsed string `json:"gasUsed"`
	// GasPrice is in wei, as a decimal string.
	GasPrice string `json:"gasPrice"`
	// DeploymentCost is gasPrice × gasUsed in ether.
	DeploymentCost string `json:"deploymentCost"`

	Status            string            `json:"status"`
	GasEstimate       uint64            `json:"gasEstimate"`
	ReceiptGasUsed    uint64            `json:"receiptGasUsed"`
	ConfirmationBlock uint64            `json:"confirmationBlock"`
	OwnerVerified     bool              `json:"ownerVerified"`
	InitialState      map[string]string `json:"initialState,omitempty"`
	ExplorerURL       string            `json:"explorerUrl,omitempty"`
	Warnings          []Warning         `json:"warnings,omitempty"`
}

// Succeeded reports whether the record describes a created contract.
func (r *Record) Succeeded() bool {
	return r.Status == StatusSuccess
}

// Outcome is what Deploy returns alongside its error.
type Outcome struct {
	Record *Record
	// Warnings holds every non-fatal finding, including persistence failures.
	Warnings []Warning
	// PersistErr is set when the record could not be written.
	PersistErr error
}

// timestampLayout matches JavaScript's Date.toISOString.
const timestampLayout = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
