//go:build e2e

package e2e

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/chains/evm"
	"github.com/pendergraft/deployer/internal/storage"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
	Store             storage.Store
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("deployments"),
		postgres.WithUsername("deployer"),
		postgres.WithPassword("deployer"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

// uniqueChainID isolates a test's rows in the shared database
func uniqueChainID() string {
	return "e2e-" + uuid.NewString()[:8]
}

// The constructor stores CALLER in slot 0; the runtime returns slot 0 for
// any call, so every view method reads back the deployer.
const (
	ownerEchoCreation = "0x33600055600b80600f6000396000f3" + "60005460005260206000f3"
	ownerEchoRuntime  = "0x60005460005260206000f3"
)

func ownerEchoArtifact(t *testing.T) *chains.Artifact {
	t.Helper()
	var methods []map[string]any
	for name, out := range map[string]string{
		"owner":              "address",
		"nextDisasterZoneId": "uint256",
		"nextProofId":        "uint256",
		"minStakeAmount":     "uint256",
	} {
		methods = append(methods, map[string]any{
			"type":            "function",
			"name":            name,
			"stateMutability": "view",
			"inputs":          []any{},
			"outputs":         []map[string]any{{"name": "", "type": out}},
		})
	}
	abiJSON, err := json.Marshal(methods)
	require.NoError(t, err)

	return &chains.Artifact{
		Name:    "DisasterResponseMining",
		Chain:   "evm",
		Builder: "hardhat",
		EVM: &chains.EVMArtifact{
			ABI:              abiJSON,
			Bytecode:         ownerEchoCreation,
			DeployedBytecode: ownerEchoRuntime,
		},
	}
}

// simulatedChain is an in-process chain that mines a block every interval.
type simulatedChain struct {
	Backend *simulated.Backend
	Client  *evm.Client
	Key     *ecdsa.PrivateKey
}

// newSimulatedChain starts a chain where the deployer holds balance wei.
func newSimulatedChain(t *testing.T, balance *big.Int) *simulatedChain {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	alloc := types.GenesisAlloc{}
	if balance != nil && balance.Sign() > 0 {
		alloc[crypto.PubkeyToAddress(key.PublicKey)] = types.Account{Balance: balance}
	}
	sim := simulated.NewBackend(alloc)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(50 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				sim.Commit()
			}
		}
	}()
	t.Cleanup(func() {
		close(stop)
		wg.Wait()
		_ = sim.Close()
	})

	client := evm.NewClient(sim.Client(), evm.ClientOptions{
		NetworkName:    "simulated",
		PollInterval:   20 * time.Millisecond,
		MaxPollErrors:  5,
		DropAfterPolls: 100,
	}, testLogger())

	return &simulatedChain{Backend: sim, Client: client, Key: key}
}
