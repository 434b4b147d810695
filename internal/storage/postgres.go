package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// uniqueViolation is the Postgres SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS deployments (
		id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
		contract_name TEXT NOT NULL,
		network TEXT NOT NULL,
		chain_id TEXT NOT NULL,
		address TEXT NOT NULL,
		deployer_address TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		block_number BIGINT NOT NULL,
		gas_limit TEXT NOT NULL,
		gas_price TEXT NOT NULL,
		deployment_cost TEXT NOT NULL,
		status TEXT NOT NULL,
		owner_verified BOOLEAN NOT NULL DEFAULT FALSE,
		deployed_at TEXT NOT NULL,
		record JSONB NOT NULL,
		created_at TIMESTAMPTZ DEFAULT NOW(),
		UNIQUE(chain_id, address)
	);

	CREATE INDEX IF NOT EXISTS idx_deployments_deployed_at ON deployments(deployed_at);
	CREATE INDEX IF NOT EXISTS idx_deployments_contract ON deployments(contract_name);
	`

	_, err := s.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Debug("database migrations complete", "driver", "postgres")
	return nil
}

// RecordDeployment records a deployment. Rows are write-once.
func (s *PostgresStore) RecordDeployment(ctx context.Context, d *Deployment) error {
	if d.ID == "" {
		d.ID = generateID()
	}
	query := `
		INSERT INTO deployments (id, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
			gas_limit, gas_price, deployment_cost, status, owner_verified, deployed_at, record)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`
	_, err := s.db.ExecContext(ctx, query,
		d.ID, d.ContractName, d.Network, d.ChainID, d.Address, d.DeployerAddress, d.TxHash, d.BlockNumber,
		d.GasLimit, d.GasPrice, d.DeploymentCost, d.Status, d.OwnerVerified, d.DeployedAt, string(d.Record),
	)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s on chain %s", ErrAlreadyRecorded, d.Address, d.ChainID)
	}
	return err
}

// GetDeployment retrieves a deployment by chain and address
func (s *PostgresStore) GetDeployment(ctx context.Context, chainID, address string) (*Deployment, error) {
	query := `SELECT ` + postgresColumns + ` FROM deployments WHERE chain_id = $1 AND LOWER(address) = LOWER($2)`
	d, err := scanPostgresDeployment(s.db.QueryRowContext(ctx, query, chainID, address))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return d, err
}

// ListDeployments lists deployments, newest first
func (s *PostgresStore) ListDeployments(ctx context.Context, filter DeploymentFilter, pagination PaginationParams) (*PaginatedResult[Deployment], error) {
	query, args, limit, err := listQuery(postgresColumns, filter, pagination, func(n int) string { return "$" + strconv.Itoa(n) })
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
		d, err := scanPostgresDeployment(rows)
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

// postgresColumns casts the typed columns back to the shapes Deployment holds.
const postgresColumns = `id::text, contract_name, network, chain_id, address, deployer_address, tx_hash, block_number,
		gas_limit, gas_price, deployment_cost, status, owner_verified, deployed_at, record::text, created_at`

func scanPostgresDeployment(row rowScanner) (*Deployment, error) {
	var d Deployment
	var record string
	var createdAt time.Time
	err := row.Scan(
		&d.ID, &d.ContractName, &d.Network, &d.ChainID, &d.Address, &d.DeployerAddress, &d.TxHash, &d.BlockNumber,
		&d.GasLimit, &d.GasPrice, &d.DeploymentCost, &d.Status, &d.OwnerVerified, &d.DeployedAt, &record, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	d.Record = []byte(record)
	d.CreatedAt = createdAt.UTC().Format("2006-01-02 15:04:05")
	return &d, nil
}
