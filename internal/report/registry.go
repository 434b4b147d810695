package report

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pendergraft/deployer/internal/deployments/domain"
	"github.com/pendergraft/deployer/pkg/client"
)

// Registry is the part of the registry client a RegistrySink needs.
type Registry interface {
	RecordDeployment(ctx context.Context, req client.DeploymentRequest) error
}

// RegistrySink announces successful deployments to a contract registry.
// Failed records stay local.
type RegistrySink struct {
	registry Registry
}

// NewRegistrySink creates a sink posting to registry.
func NewRegistrySink(registry Registry) *RegistrySink {
	return &RegistrySink{registry: registry}
}

// Write posts the record.
func (s *RegistrySink) Write(ctx context.Context, record *domain.Record) error {
	if !record.Succeeded() {
		return nil
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}

	err = s.registry.RecordDeployment(ctx, client.DeploymentRequest{
		Contract:        record.ContractName,
		Network:         record.Network,
		ChainID:         record.ChainID,
		Address:         record.ContractAddress,
		TxHash:          record.DeploymentTransaction,
		DeployerAddress: record.Deployer,
		BlockNumber:     record.BlockNumber,
		GasLimit:        record.GasUsed,
		GasPrice:        record.GasPrice,
		Status:          record.Status,
		Record:          data,
	})
	if err != nil {
		return fmt.Errorf("registering deployment: %w", err)
	}
	return nil
}
