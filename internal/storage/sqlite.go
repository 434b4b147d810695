package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id TEXT PRIMARY KEY,
		contract_name TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number INTEGER NOT NULL,
		gas_limit TEXT NOT NULL,
		gas_price TEXT NOT NULL,
		deployment_cost TEXT NOT NULL,
		status TEXT NOT NULL,
		owner_verified INTEGER NOT NULL DEFAULT 0,
		deployed_at TEXT NOT NULL,
		record TEXT NOT NULL,
		created_at TEXT DEFAULT (strftime('%Y-%m-%d %H:%M:%S', 'now')),
		UNIQUE(chain_id, address)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_deployed_at ON deployments(deployed_at);
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract_name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("database migrations complete", "driver", "sqlite")
	return nil
}

// RecordDeployment records a deployment. Rows are write-once.
func (s *SQLiteStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
			gas_limit, gas_price, deployment_cost, status, owner_verified, deployed_at, record)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.Network, d.ChainID, d.Address, d.DeployerAddress, d.TxHash, d.BlockNumber,
		d.GasLimit, d.GasPrice, d.DeploymentCost, d.Status, d.OwnerVerified, d.DeployedAt, string(d.Record),
	)
	if isSQLiteUniqueViolation(err) {
		return fmt.Errorf("%w: %s on chain %s", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

// GetDeployment retrieves a deployment by chain and address
func (s *SQLiteStore) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	query := `SELECT ` + deploymentColumns + ` FROM deployments WHERE chain_id = ? AND LOWER(address) = LOWER(?)`
	d, err := scanSQLiteDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *SQLiteStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	query, args, limit, err := listQuery(deploymentColumns, filter, pagination, func(int) string { return "?" })
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var deployments []Deployment
	for rows.Next() {
		d, err := scanSQLiteDeployment(rows)
		if err != nil {
			return nil, err
		}
		deployments = append(deployments, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return paginate(deployments, limit), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var record string
	err := row.Scan(
		&d.ID, &d.ContractName, &d.Network, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash, &d.BlockNumber,
		&d.GasLimit, &d.GasPrice, &d.DeploymentCost, &d.Status, &d.OwnerVerified, &d.DeployedAt, &record, &d.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	d.Record = []byte(record)
	return &d, nil
}
