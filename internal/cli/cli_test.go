package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/config"
	"github.com/pendergraft/deployer/internal/deployments/domain"
	"github.com/pendergraft/deployer/internal/storage"
)

func TestRootCommandStructure(t *testing.T) {
	root := newRootCmd("test")

	names := make(map[string]bool)
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"deploy", "history", "config", "verify", "version"} {
		assert.True(t, names[want], "missing subcommand %s", want)
	}

	// The root command deploys, so it takes the deploy flags
	for _, flag := range []string{"rpc-url", "output", "gas-multiplier", "confirmation-timeout", "no-history"} {
		assert.NotNil(t, root.Flags().Lookup(flag), "root is missing --%s", flag)
	}
	assert.NotNil(t, root.PersistentFlags().Lookup("config"))
	assert.NotNil(t, root.PersistentFlags().Lookup("env-file"))
}

func TestVersionCommand(t *testing.T) {
	root := newRootCmd("1.2.3")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{"version"})

	require.NoError(t, root.Execute())
	assert.Equal(t, "drm-deploy 1.2.3\n", out.String())
}

func TestApplyDeployFlags(t *testing.T) {
	opts := &deployOptions{}
	cmd := newDeployCmd(opts)
	require.NoError(t, cmd.Flags().Parse([]string{
		"--rpc-url", "http://127.0.0.1:8545",
		"--chain-id", "31337",
		"-o", "local.json",
		"--gas-multiplier", "1.5",
		"--confirmation-timeout", "90s",
		"--no-history",
	}))

	cfg := config.Default()
	applyDeployFlags(cmd, cfg, opts)

	assert.Equal(t, "http://127.0.0.1:8545", cfg.Network.RPCURL)
	assert.Equal(t, int64(31337), cfg.Network.ChainID)
	assert.Equal(t, "local.json", cfg.Output.Path)
	assert.Equal(t, 1.5, cfg.Deploy.GasMultiplier)
	assert.Equal(t, 90*time.Second, cfg.Deploy.ConfirmationTimeout)
	assert.Equal(t, "none", cfg.Storage.Type)

	// Unset flags keep configured values
	assert.Equal(t, "DisasterResponseMining", cfg.Deploy.ContractName)
	assert.Equal(t, "0.01", cfg.Deploy.MinBalance)
	assert.Equal(t, "Core Testnet", cfg.Network.Name)
}

// chdirClean runs the test in an empty directory with no deploy settings
// inherited from the environment.
func chdirClean(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	for _, key := range []string{"PRIVATE_KEY", "RPC_URL", "CHAIN_ID", "STORAGE_TYPE", "DATABASE_URL", "SQLITE_PATH", "OUTPUT_PATH", "GAS_MULTIPLIER"} {
		t.Setenv(key, "")
	}
	return dir
}

func TestDeploy_RejectsInvalidFlags(t *testing.T) {
	chdirClean(t)

	root := newRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"--gas-multiplier", "0.5", "--no-history"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.Contains(t, err.Error(), "GasMultiplier")
}

func TestDeploy_RequiresPrivateKey(t *testing.T) {
	chdirClean(t)

	// An empty non-terminal stdin
	r, w, err := os.Pipe()
	require.NoError(t, err)
	w.Close()
	stdin := os.Stdin
	os.Stdin = r
	t.Cleanup(func() {
		os.Stdin = stdin
		r.Close()
	})

	root := newRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"deploy", "--no-history"})

	err = root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIVATE_KEY is not set")
	assert.NoFileExists(t, "deployment-info.json")
}

func TestDeploy_MissingArtifacts(t *testing.T) {
	chdirClean(t)
	t.Setenv("PRIVATE_KEY", "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")

	root := newRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"deploy", "--no-history"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported builder detected")
}

func writeHardhatArtifact(t *testing.T, dir, name, bytecode string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "hardhat.config.js"), []byte("module.exports = {}"), 0644))

	base := filepath.Join(dir, "artifacts", "contracts", name+".sol")
	require.NoError(t, os.MkdirAll(base, 0755))
	data, err := json.Marshal(map[string]any{
		"_format":          "hh-sol-artifact-1",
		"contractName":     name,
		"sourceName":       "contracts/" + name + ".sol",
		"abi":              []any{},
		"bytecode":         bytecode,
		"deployedBytecode": "0x6001",
		"linkReferences":   map[string]any{},
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(base, name+".json"), data, 0644))
}

func TestLoadArtifact(t *testing.T) {
	dir := t.TempDir()
	writeHardhatArtifact(t, dir, "DisasterResponseMining", "0x6080")

	deploy := config.Default().Deploy
	deploy.ArtifactsDir = dir

	t.Run("auto-detect", func(t *testing.T) {
		artifact, err := loadArtifact(deploy)
		require.NoError(t, err)
		assert.Equal(t, "DisasterResponseMining", artifact.Name)
		assert.Equal(t, "hardhat", artifact.Builder)
		assert.Equal(t, "0x6001", artifact.EVM.DeployedBytecode)
	})

	t.Run("explicit builder", func(t *testing.T) {
		d := deploy
		d.Builder = "hardhat"
		_, err := loadArtifact(d)
		require.NoError(t, err)
	})

	t.Run("wrong builder", func(t *testing.T) {
		d := deploy
		d.Builder = "foundry"
		_, err := loadArtifact(d)
		assert.Error(t, err)
	})

	t.Run("unknown contract", func(t *testing.T) {
		d := deploy
		d.ContractName = "Missing"
		_, err := loadArtifact(d)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no Hardhat artifact found for Missing")
	})

	t.Run("no creation bytecode", func(t *testing.T) {
		abstractDir := t.TempDir()
		writeHardhatArtifact(t, abstractDir, "DisasterResponseMining", "0x")
		d := deploy
		d.ArtifactsDir = abstractDir
		_, err := loadArtifact(d)
		assert.Error(t, err)
	})
}

func TestBuildRequest(t *testing.T) {
	cfg := config.Default()
	deployer := common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	artifact := &chains.Artifact{Name: "DisasterResponseMining", EVM: &chains.EVMArtifact{DeployedBytecode: "0x6001"}}

	req, err := buildRequest(cfg, deployer, artifact)
	require.NoError(t, err)
	require.NoError(t, req.Validate())

	assert.Equal(t, deployer, req.Deployer)
	assert.Equal(t, int64(1114), req.Network.ChainID)
	assert.Equal(t, "https://scan.test2.btcs.network/faucet", req.Network.FaucetURL)
	assert.Equal(t, "10000000000000000", req.MinBalance.String())
	assert.Equal(t, 1.20, req.GasMultiplier)
	assert.Equal(t, "0x6001", req.ExpectedRuntime)

	cfg.Deploy.VerifyRuntime = false
	req, err = buildRequest(cfg, deployer, artifact)
	require.NoError(t, err)
	assert.Empty(t, req.ExpectedRuntime)
}

func TestConfigInit(t *testing.T) {
	dir := chdirClean(t)

	var out bytes.Buffer
	require.NoError(t, runConfigInit(&out, false))
	assert.Contains(t, out.String(), "Created deploy.toml")

	// The template parses and validates
	cfg, path, err := config.Load(config.LoadOptions{})
	require.NoError(t, err)
	assert.Equal(t, "deploy.toml", path)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.Default().Network, cfg.Network)
	assert.Equal(t, 2*time.Second, cfg.Deploy.PollInterval)

	err = runConfigInit(&out, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	require.NoError(t, runConfigInit(&out, true))
	assert.FileExists(t, filepath.Join(dir, "deploy.toml"))
}

func TestConfigShow_MasksSecrets(t *testing.T) {
	cfg := config.Default()
	cfg.Deploy.PrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	cfg.Storage.Type = "postgres"
	cfg.Storage.Postgres.URL = "postgres://deployer:hunter2@db:5432/history"

	var out bytes.Buffer
	runConfigShow(&out, cfg, "deploy.toml")

	s := out.String()
	assert.NotContains(t, s, "bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	assert.NotContains(t, s, "hunter2")
	assert.Contains(t, s, "0xac09...ff80")
	assert.Contains(t, s, "deployment-info.failed.json")
	assert.Contains(t, s, "4. deploy.toml")
}

func TestMaskKey(t *testing.T) {
	assert.Equal(t, "(not set)", maskKey(""))
	assert.Equal(t, "****", maskKey("short"))
	assert.Equal(t, "abcdef...wxyz", maskKey("abcdefghijklmnopqrstuvwxyz"))
}

func TestTruncateAddress(t *testing.T) {
	assert.Equal(t, "0xf39F...2266", truncateAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"))
	assert.Equal(t, "0x1234", truncateAddress("0x1234"))
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warn"))
	assert.Equal(t, slog.LevelWarn, parseLogLevel("warning"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("verbose"))
}

func successRecord() *domain.Record {
	return &domain.Record{
		ContractName:          "DisasterResponseMining",
		ContractAddress:       "0x2222222222222222222222222222222222222222",
		DeploymentTransaction: "0xabc0000000000000000000000000000000000000000000000000000000000001",
		Deployer:              "0x1111111111111111111111111111111111111111",
		Network:               "Core Testnet",
		ChainID:               1114,
		BlockNumber:           42,
		Timestamp:             "2025-01-02T03:04:05.678Z",
		GasUsed:               "2400000",
		GasPrice:              "30000000000",
		DeploymentCost:        "0.072",
		Status:                domain.StatusSuccess,
		OwnerVerified:         true,
		InitialState: map[string]string{
			"owner":              "0x1111111111111111111111111111111111111111",
			"nextDisasterZoneId": "1",
			"nextProofId":        "1",
			"minStakeAmount":     "100000000000000000",
		},
	}
}

func TestPrintSummary(t *testing.T) {
	cfg := config.Default()
	outcome := &domain.Outcome{
		Record: successRecord(),
		Warnings: []domain.Warning{
			{Kind: domain.KindReadBack, Source: "bytecode", Message: "runtime bytecode differs"},
		},
	}

	var out bytes.Buffer
	printSummary(&out, cfg, outcome, "deployment-info.json")
	s := out.String()

	assert.Contains(t, s, "✅ CONTRACT DEPLOYED SUCCESSFULLY!")
	assert.Contains(t, s, "📍 Contract Address: 0x2222222222222222222222222222222222222222")
	assert.Contains(t, s, "⛽ Gas Used: 2400000")
	assert.Contains(t, s, "💰 Deployment Cost: 0.072 CORE")
	assert.Contains(t, s, "💰 Minimum Stake Amount: 0.1 CORE")
	assert.Contains(t, s, "✅ Owner Verification: PASSED")
	assert.Contains(t, s, "⛽ Gas Price: 30.0 Gwei")
	assert.Contains(t, s, "https://scan.test2.btcs.network/address/0x2222222222222222222222222222222222222222")
	assert.Contains(t, s, "https://scan.test2.btcs.network/tx/0xabc0000000000000000000000000000000000000000000000000000000000001")
	assert.Contains(t, s, "ReadBackWarning (bytecode): runtime bytecode differs")
	assert.Contains(t, s, "💾 Deployment info saved to 'deployment-info.json'")
}

func TestPrintSummary_OwnerMismatchWithoutExplorer(t *testing.T) {
	cfg := config.Default()
	cfg.Network.ExplorerURL = ""
	record := successRecord()
	record.OwnerVerified = false

	var out bytes.Buffer
	printSummary(&out, cfg, &domain.Outcome{Record: record}, "")
	s := out.String()

	assert.Contains(t, s, "✅ Owner Verification: FAILED")
	assert.NotContains(t, s, "BLOCKCHAIN EXPLORER")
	assert.NotContains(t, s, "saved to")
}

func TestPrintFailure(t *testing.T) {
	err := &domain.Error{
		Kind: domain.KindPrecondition,
		Op:   "check balance",
		Hint: "Add more CORE tokens to your wallet (faucet: https://scan.test2.btcs.network/faucet)",
		Err:  errors.New("balance of 0x11 is 0 CORE, need at least 0.01 CORE"),
	}

	var out bytes.Buffer
	printFailure(&out, fmt.Errorf("deploy: %w", err), "")
	s := out.String()

	assert.Contains(t, s, "❌ DEPLOYMENT FAILED!")
	assert.Contains(t, s, "Stage: PreconditionFailure (check balance)")
	assert.Contains(t, s, "💡 Solution: Add more CORE tokens to your wallet")
	assert.NotContains(t, s, "saved to")

	out.Reset()
	printFailure(&out, &domain.Error{Kind: domain.KindVerification, Op: "verify code", Err: errors.New("no code")}, "deployment-info.failed.json")
	assert.Contains(t, out.String(), "💾 Failure record saved to 'deployment-info.failed.json'")
	assert.NotContains(t, out.String(), "Solution")
}

func newHistoryStore(t *testing.T) storage.Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	require.NoError(t, store.Migrate(context.Background()))

	for i, status := range []string{"success", "failed", "success"} {
		require.NoError(t, store.RecordDeployment(context.Background(), &storage.Deployment{
			ContractName:    "DisasterResponseMining",
			Network:         "Core Testnet",
			ChainID:         "1114",
			Address:         fmt.Sprintf("0x%040d", i+1),
			DeployerAddress: "0x1111111111111111111111111111111111111111",
			TxHash:          fmt.Sprintf("0x%064d", i+1),
			BlockNumber:     int64(100 + i),
			GasLimit:        "2400000",
			GasPrice:        "30000000000",
			DeploymentCost:  "0.072",
			Status:          status,
			OwnerVerified:   status == "success",
			DeployedAt:      fmt.Sprintf("2025-01-0%dT00:00:00.000Z", i+1),
			Record:          json.RawMessage(`{"contractName":"DisasterResponseMining"}`),
		}))
	}
	return store
}

func TestHistoryList(t *testing.T) {
	store := newHistoryStore(t)
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, runHistoryList(ctx, &out, store, storage.DeploymentFilter{}, storage.PaginationParams{}, false))
	s := out.String()
	assert.Contains(t, s, "CHAIN")
	assert.Contains(t, s, "0x0000...0003")
	assert.Contains(t, s, "failed")

	t.Run("filter and paginate", func(t *testing.T) {
		var out bytes.Buffer
		filter := storage.DeploymentFilter{Status: "success"}
		require.NoError(t, runHistoryList(ctx, &out, store, filter, storage.PaginationParams{Limit: 1}, false))
		assert.Contains(t, out.String(), "0x0000...0003")
		assert.NotContains(t, out.String(), "0x0000...0001")
		_, rest, ok := strings.Cut(out.String(), "more available: --cursor ")
		require.True(t, ok)
		cursor, _, _ := strings.Cut(rest, ")")

		var next bytes.Buffer
		require.NoError(t, runHistoryList(ctx, &next, store, filter, storage.PaginationParams{Limit: 1, Cursor: cursor}, false))
		assert.Contains(t, next.String(), "0x0000...0001")
		assert.NotContains(t, next.String(), "0x0000...0003")
	})

	t.Run("json", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runHistoryList(ctx, &out, store, storage.DeploymentFilter{ChainID: "1114"}, storage.PaginationParams{}, true))

		var result struct {
			Data    []storage.Deployment `json:"data"`
			HasMore bool                 `json:"hasMore"`
		}
		require.NoError(t, json.Unmarshal(out.Bytes(), &result))
		assert.Len(t, result.Data, 3)
		assert.False(t, result.HasMore)
	})

	t.Run("empty", func(t *testing.T) {
		var out bytes.Buffer
		require.NoError(t, runHistoryList(ctx, &out, store, storage.DeploymentFilter{ChainID: "1"}, storage.PaginationParams{}, false))
		assert.Contains(t, out.String(), "No deployments found")
	})
}

func TestHistoryShow(t *testing.T) {
	store := newHistoryStore(t)
	ctx := context.Background()
	address := fmt.Sprintf("0x%040d", 2)

	var out bytes.Buffer
	require.NoError(t, runHistoryShow(ctx, &out, store, "1114", address, false))
	assert.Contains(t, out.String(), "Status:      failed")
	assert.Contains(t, out.String(), "Owner:       ❌ FAILED")

	out.Reset()
	require.NoError(t, runHistoryShow(ctx, &out, store, "1114", address, true))
	assert.JSONEq(t, `{"contractName":"DisasterResponseMining"}`, out.String())

	err := runHistoryShow(ctx, &out, store, "1", address, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no deployment of")
}

func TestHistoryCommand_Disabled(t *testing.T) {
	chdirClean(t)
	t.Setenv("STORAGE_TYPE", "none")

	root := newRootCmd("test")
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"history", "list"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "history is disabled")
}
