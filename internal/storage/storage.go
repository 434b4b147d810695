package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/pendergraft/deployer/internal/config"
)

// DeploymentStore handles deployment history operations
type DeploymentStore interface {
	RecordDeployment(ctx context.Context, d *Deployment) error
	GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error)
	ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error)
}

// Store combines the deployment store with lifecycle methods.
// Consumers define their own minimal interfaces based on their actual usage.
type Store interface {
	DeploymentStore

	// Lifecycle
	Close() error
	Migrate(ctx context.Context) error
}

// Deployment is one row of deployment history
type Deployment struct {
	ID              string `json:"id"`
	ContractName    string `json:"contractName"`
	Network         string `json:"network"`
	ChainID         string `json:"chainId"`
	Address         string `json:"address"`
	DeployerAddress string `json:"deployerAddress"`
	TxHash          string `json:"txHash"`
	BlockNumber     int64  `json:"blockNumber"`
	GasLimit        string `json:"gasLimit"`
	GasPrice        string `json:"gasPrice"`
	DeploymentCost  string `json:"deploymentCost"`
	Status          string `json:"status"`
	OwnerVerified   bool   `json:"ownerVerified"`
	// DeployedAt is the record timestamp, RFC 3339 with milliseconds.
	DeployedAt string `json:"deployedAt"`
	// Record is the full JSON record as written to the report file.
	Record    json.RawMessage `json:"record,omitempty"`
	CreatedAt string          `json:"createdAt"`
}

// DeploymentFilter contains filter options for listing deployments
type DeploymentFilter struct {
	ChainID      string
	ContractName string
	Deployer     string
	Status       string
}

// PaginationParams contains pagination options
type PaginationParams struct {
	Limit int
	// Cursor is the NextCursor of the previous page.
	Cursor string
}

// PaginatedResult contains paginated results
type PaginatedResult[T any] struct {
	Data       []T    `json:"data"`
	HasMore    bool   `json:"hasMore"`
	NextCursor string `json:"nextCursor,omitempty"`
}

// DefaultPageSize is used when PaginationParams.Limit is not positive.
const DefaultPageSize = 20

// New creates a new store based on configuration
func New(cfg config.StorageConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteStore(cfg.SQLite.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.Postgres.URL, logger)
	case "none", "":
		return nil, ErrDisabled
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}

const deploymentColumns = `id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
		gas_limit, gas_price, deployment_cost, status, owner_verified, deployed_at, record, created_at`

// listQuery builds the filtered, newest-first page query. placeholder
// renders the n-th (1-based) bind parameter for the driver.
func listQuery(columns string, filter DeploymentFilter, pagination PaginationParams, placeholder func(n int) string) (string, []any, int, error) {
	limit := pagination.Limit
	if limit <= 0 {
		limit = DefaultPageSize
	}

	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, placeholder(len(args))))
	}

	if filter.ChainID != "" {
		add("chain_id = %s", filter.ChainID)
	}
	if filter.ContractName != "" {
		add("contract_name = %s", filter.ContractName)
	}
	if filter.Deployer != "" {
		add("LOWER(deployer_address) = LOWER(%s)", filter.Deployer)
	}
	if filter.Status != "" {
		add("status = %s", filter.Status)
	}
	if pagination.Cursor != "" {
		deployedAt, id, err := decodeCursor(pagination.Cursor)
		if err != nil {
			return "", nil, 0, err
		}
		// Keyset on (deployed_at, id) to match the ORDER BY
		args = append(args, deployedAt, deployedAt, id)
		n := len(args)
		where = append(where, fmt.Sprintf("(deployed_at < %s OR (deployed_at = %s AND id < %s))",
			placeholder(n-2), placeholder(n-1), placeholder(n)))
	}

	query := "SELECT " + columns + " FROM deployments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, limit+1)
	query += " ORDER BY deployed_at DESC, id DESC LIMIT " + placeholder(len(args))

	return query, args, limit, nil
}

// paginate trims the extra row fetched to detect another page.
func paginate(deployments []Deployment, limit int) *PaginatedResult[Deployment] {
	hasMore := len(deployments) > limit
	if hasMore {
		deployments = deployments[:limit]
	}
	var nextCursor string
	if hasMore && len(deployments) > 0 {
		last := deployments[len(deployments)-1]
		nextCursor = encodeCursor(last.DeployedAt, last.ID)
	}
	return &PaginatedResult[Deployment]{
		Data:       deployments,
		HasMore:    hasMore,
		NextCursor: nextCursor,
	}
}
