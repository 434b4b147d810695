package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/pendergraft/deployer/internal/deployments/domain"
	"github.com/pendergraft/deployer/internal/storage"
)

// DeploymentRecorder is the part of the history store a StoreSink needs.
type DeploymentRecorder interface {
	RecordDeployment(ctx context.Context, d *storage.Deployment) error
}

// StoreSink appends the record to the deployment history.
type StoreSink struct {
	store  DeploymentRecorder
	logger *slog.Logger
}

// NewStoreSink creates a sink backed by store.
func NewStoreSink(store DeploymentRecorder, logger *slog.Logger) *StoreSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &StoreSink{store: store, logger: logger}
}

// Write records the deployment.
func (s *StoreSink) Write(ctx context.Context, record *domain.Record) error {
	d, err := ToDeployment(record)
	if err != nil {
		return err
	}
	if err := s.store.RecordDeployment(ctx, d); err != nil {
		return fmt.Errorf("recording deployment history: %w", err)
	}
	s.logger.Debug("deployment recorded in history", "id", d.ID, "address", d.Address)
	return nil
}

// ToDeployment converts a record into a history row.
func ToDeployment(record *domain.Record) (*storage.Deployment, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return &storage.Deployment{
		ContractName:    record.ContractName,
		Network:         record.Network,
		ChainID:         strconv.FormatInt(record.ChainID, 10),
		Address:         record.ContractAddress,
		DeployerAddress: record.Deployer,
		TxHash:          record.DeploymentTransaction,
		BlockNumber:     int64(record.BlockNumber),
		GasLimit:        record.GasUsed,
		GasPrice:        record.GasPrice,
		DeploymentCost:  record.DeploymentCost,
		Status:          record.Status,
		OwnerVerified:   record.OwnerVerified,
		DeployedAt:      record.Timestamp,
		Record:          data,
	}, nil
}
