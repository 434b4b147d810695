package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/chains/evm"
	"github.com/pendergraft/deployer/internal/config"
	"github.com/pendergraft/deployer/internal/deployments/domain"
	"github.com/pendergraft/deployer/internal/observability/metrics"
	"github.com/pendergraft/deployer/internal/report"
	"github.com/pendergraft/deployer/internal/storage"
	"github.com/pendergraft/deployer/internal/validation"
	"github.com/pendergraft/deployer/pkg/client"
)

const rule = "=================================================="

// deployOptions are flag overrides; each applies only when set.
type deployOptions struct {
	rpcURL              string
	chainID             int64
	output              string
	artifacts           string
	contract            string
	builder             string
	gasMultiplier       float64
	minBalance          string
	confirmationTimeout time.Duration
	noHistory           bool
}

func createDeployCmd() *cobra.Command {
	return newDeployCmd(&deployOptions{})
}

func newDeployCmd(opts *deployOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the contract and record the result",
		Long: `Deploy the contract once, verify that code exists at the new address,
read back its initial state, and write deployment-info.json.

The deployer key is read from PRIVATE_KEY (environment or .env). When it
is unset the key is prompted for, or read from piped stdin.

Nothing is submitted unless the deployer balance meets the minimum.
There is no retry: a failed run exits with status 1.

EXAMPLES:
  # Deploy to Core Testnet with the defaults
  drm-deploy deploy

  # Use a local node and a different output file
  drm-deploy deploy --rpc-url http://127.0.0.1:8545 --chain-id 31337 --output local.json

  # Give up waiting for the receipt after five minutes
  drm-deploy deploy --confirmation-timeout 5m
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.rpcURL, "rpc-url", "", "RPC endpoint (default from config)")
	cmd.Flags().Int64Var(&opts.chainID, "chain-id", 0, "expected chain ID")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "deployment record path")
	cmd.Flags().StringVar(&opts.artifacts, "artifacts", "", "project directory containing build artifacts")
	cmd.Flags().StringVar(&opts.contract, "contract", "", "contract name")
	cmd.Flags().StringVar(&opts.builder, "builder", "", "artifact builder: hardhat or foundry (default: auto-detect)")
	cmd.Flags().Float64Var(&opts.gasMultiplier, "gas-multiplier", 0, "buffer applied to the gas estimate")
	cmd.Flags().StringVar(&opts.minBalance, "min-balance", "", "minimum deployer balance in ether")
	cmd.Flags().DurationVar(&opts.confirmationTimeout, "confirmation-timeout", 0, "maximum wait for the receipt (0 waits indefinitely)")
	cmd.Flags().BoolVar(&opts.noHistory, "no-history", false, "do not record the deployment in the history store")

	return cmd
}

// applyDeployFlags overrides configuration with flags the user set
func applyDeployFlags(cmd *cobra.Command, cfg *config.Config, opts *deployOptions) {
	flags := cmd.Flags()
	if flags.Changed("rpc-url") {
		cfg.Network.RPCURL = opts.rpcURL
	}
	if flags.Changed("chain-id") {
		cfg.Network.ChainID = opts.chainID
	}
	if flags.Changed("output") {
		cfg.Output.Path = opts.output
	}
	if flags.Changed("artifacts") {
		cfg.Deploy.ArtifactsDir = opts.artifacts
	}
	if flags.Changed("contract") {
		cfg.Deploy.ContractName = opts.contract
	}
	if flags.Changed("builder") {
		cfg.Deploy.Builder = opts.builder
	}
	if flags.Changed("gas-multiplier") {
		cfg.Deploy.GasMultiplier = opts.gasMultiplier
	}
	if flags.Changed("min-balance") {
		cfg.Deploy.MinBalance = opts.minBalance
	}
	if flags.Changed("confirmation-timeout") {
		cfg.Deploy.ConfirmationTimeout = opts.confirmationTimeout
	}
	if opts.noHistory {
		cfg.Storage.Type = "none"
	}
}

func runDeploy(cmd *cobra.Command, opts *deployOptions) error {
	out := cmd.OutOrStdout()

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	applyDeployFlags(cmd, cfg, opts)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := setupLogger(cfg, stderr)
	metrics.Init(cfg.Metrics.Enabled, "drm-deploy")

	if err := validation.ValidateContractName(cfg.Deploy.ContractName); err != nil {
		return err
	}
	for _, method := range cfg.Deploy.ReadBacks {
		if err := validation.ValidateMethodName(method); err != nil {
			return fmt.Errorf("read_backs: %w", err)
		}
	}

	hexKey := cfg.Deploy.PrivateKey
	if hexKey == "" {
		hexKey, err = promptPrivateKey(out)
		if err != nil {
			return err
		}
	}
	key, err := validation.ParsePrivateKey(hexKey)
	if err != nil {
		return err
	}

	artifact, err := loadArtifact(cfg.Deploy)
	if err != nil {
		return err
	}
	logger.Debug("loaded artifact", "contract", artifact.Name, "builder", artifact.Builder, "source", artifact.EVM.SourcePath)

	// Signals cancel the pre-submission stages only
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	clientOpts := evm.DefaultClientOptions()
	clientOpts.NetworkName = cfg.Network.Name
	clientOpts.PollInterval = cfg.Deploy.PollInterval
	rpc, err := evm.Dial(ctx, cfg.Network.RPCURL, clientOpts, logger)
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", cfg.Network.Name, err)
	}
	defer rpc.Close()

	factory, err := evm.NewFactory(rpc, artifact, key)
	if err != nil {
		return err
	}

	fileSink := report.NewFileSink(cfg.Output.Path)
	sinks := report.Multi{fileSink}

	store, err := openHistory(ctx, cfg.Storage, logger)
	switch {
	case errors.Is(err, storage.ErrDisabled):
	case err != nil:
		logger.Warn("deployment history unavailable", "error", err)
	default:
		defer store.Close()
		sinks = append(sinks, report.NewStoreSink(store, logger))
	}

	if cfg.Registry.URL != "" {
		sinks = append(sinks, report.NewRegistrySink(client.New(cfg.Registry.URL, cfg.Registry.APIKey)))
	}

	req, err := buildRequest(cfg, factory.From(), artifact)
	if err != nil {
		return err
	}

	printPreflight(ctx, out, cfg, rpc, factory.From())

	svc := domain.NewService(rpc, factory, sinks, logger)
	outcome, deployErr := svc.Deploy(ctx, req)

	pushMetrics(cfg, logger)

	if deployErr != nil {
		printFailure(out, deployErr, fileSink.Written())
		return deployErr
	}

	printSummary(out, cfg, outcome, fileSink.Written())
	return nil
}

// buildRequest turns configuration into the pipeline's input
func buildRequest(cfg *config.Config, deployer common.Address, artifact *chains.Artifact) (domain.Request, error) {
	minBalance, err := cfg.MinBalanceWei()
	if err != nil {
		return domain.Request{}, err
	}

	req := domain.Request{
		ContractName: cfg.Deploy.ContractName,
		Deployer:     deployer,
		Network: domain.NetworkConfig{
			Name:        cfg.Network.Name,
			ChainID:     cfg.Network.ChainID,
			Symbol:      cfg.Network.Symbol,
			ExplorerURL: cfg.Network.ExplorerURL,
			FaucetURL:   cfg.Network.FaucetURL,
		},
		MinBalance:          minBalance,
		GasMultiplier:       cfg.Deploy.GasMultiplier,
		ReadBacks:           cfg.Deploy.ReadBacks,
		ConfirmationTimeout: cfg.Deploy.ConfirmationTimeout,
	}
	if cfg.Deploy.VerifyRuntime && artifact != nil && artifact.EVM != nil {
		req.ExpectedRuntime = artifact.EVM.DeployedBytecode
	}
	return req, nil
}

// loadArtifact finds and parses the compiled contract
func loadArtifact(deploy config.DeployConfig) (*chains.Artifact, error) {
	var builder chains.Builder
	if deploy.Builder != "" {
		b, ok := evm.NewChain().Builder(deploy.Builder)
		if !ok {
			return nil, fmt.Errorf("unknown builder %q", deploy.Builder)
		}
		builder = b
	} else {
		registry := chains.NewRegistry()
		registry.Register(evm.NewChain())
		_, b, err := registry.DetectChainAndBuilder(deploy.ArtifactsDir)
		if err != nil {
			return nil, err
		}
		builder = b
	}

	paths, err := builder.Discover(deploy.ArtifactsDir, chains.DiscoverOptions{Contracts: []string{deploy.ContractName}})
	if err != nil {
		return nil, fmt.Errorf("discovering %s artifacts: %w", builder.DisplayName(), err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no %s artifact found for %s in %s (did you compile?)",
			builder.DisplayName(), deploy.ContractName, deploy.ArtifactsDir)
	}

	artifact, err := builder.Parse(paths[0])
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", paths[0], err)
	}
	if artifact.EVM == nil || artifact.EVM.Bytecode == "" || artifact.EVM.Bytecode == "0x" {
		return nil, fmt.Errorf("%s has no creation bytecode (abstract contract or interface?)", deploy.ContractName)
	}
	return artifact, nil
}

// openHistory opens and migrates the history store
func openHistory(ctx context.Context, cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	store, err := storage.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return store, nil
}

// promptPrivateKey reads the deployer key from stdin, without echo on a terminal
func promptPrivateKey(out io.Writer) (string, error) {
	var key string
	stdinFd := int(os.Stdin.Fd())
	if term.IsTerminal(stdinFd) {
		fmt.Fprint(out, "Deployer private key: ")
		keyBytes, err := term.ReadPassword(stdinFd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("reading private key: %w", err)
		}
		key = string(keyBytes)
	} else {
		reader := bufio.NewReader(os.Stdin)
		line, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return "", fmt.Errorf("reading private key: %w", err)
		}
		key = line
	}

	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("PRIVATE_KEY is not set (add it to .env or the environment)")
	}
	return key, nil
}

func pushMetrics(cfg *config.Config, logger *slog.Logger) {
	if !cfg.Metrics.Enabled || cfg.Metrics.PushgatewayURL == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	grouping := metrics.PushGrouping(strconv.FormatInt(cfg.Network.ChainID, 10))
	if err := metrics.Push(ctx, cfg.Metrics.PushgatewayURL, grouping); err != nil {
		logger.Warn("failed to push metrics", "error", err)
	}
}

func printPreflight(ctx context.Context, out io.Writer, cfg *config.Config, network chains.Network, deployer common.Address) {
	fmt.Fprintf(out, "🚨 Deploying %s\n", cfg.Deploy.ContractName)
	fmt.Fprintln(out, strings.Repeat("=", 70))
	fmt.Fprintf(out, "👤 Deploying from account: %s\n", deployer.Hex())
	if balance, err := network.BalanceAt(ctx, deployer); err == nil {
		fmt.Fprintf(out, "💰 Account balance: %s %s\n", chains.FormatEther(balance), cfg.Network.Symbol)
	}
	fmt.Fprintf(out, "🌐 Network: %s (Chain ID: %d)\n", cfg.Network.Name, cfg.Network.ChainID)
	fmt.Fprintf(out, "🔗 RPC URL: %s\n", cfg.Network.RPCURL)
	fmt.Fprintln(out)
	fmt.Fprintf(out, "🚀 Deploying %s contract...\n", cfg.Deploy.ContractName)
	fmt.Fprintln(out, "⏳ Please wait for deployment to complete...")
}

func printSummary(out io.Writer, cfg *config.Config, outcome *domain.Outcome, savedTo string) {
	record := outcome.Record
	symbol := cfg.Network.Symbol

	fmt.Fprintln(out)
	fmt.Fprintln(out, "✅ CONTRACT DEPLOYED SUCCESSFULLY!")
	fmt.Fprintln(out, rule)
	fmt.Fprintf(out, "📍 Contract Address: %s\n", record.ContractAddress)
	fmt.Fprintf(out, "🔗 Transaction Hash: %s\n", record.DeploymentTransaction)
	fmt.Fprintf(out, "⛽ Gas Used: %s\n", record.GasUsed)
	fmt.Fprintf(out, "💰 Deployment Cost: %s %s\n", record.DeploymentCost, symbol)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "🔍 CONTRACT VERIFICATION")
	fmt.Fprintln(out, rule[:30])
	fmt.Fprintln(out, "✅ Contract code confirmed at address")

	if len(record.InitialState) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "📊 INITIAL CONTRACT STATE")
		fmt.Fprintln(out, rule[:35])
		printInitialState(out, record, symbol)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "🌍 NETWORK INFORMATION")
	fmt.Fprintln(out, rule[:30])
	fmt.Fprintf(out, "🔗 Network Name: %s\n", record.Network)
	fmt.Fprintf(out, "🆔 Chain ID: %d\n", record.ChainID)
	fmt.Fprintf(out, "📦 Block Number: %d\n", record.BlockNumber)
	if price, ok := new(big.Int).SetString(record.GasPrice, 10); ok {
		fmt.Fprintf(out, "⛽ Gas Price: %s Gwei\n", chains.FormatGwei(price))
	}

	if explorer := strings.TrimRight(cfg.Network.ExplorerURL, "/"); explorer != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "🔍 BLOCKCHAIN EXPLORER")
		fmt.Fprintln(out, rule[:30])
		fmt.Fprintf(out, "📄 Contract: %s/address/%s\n", explorer, record.ContractAddress)
		fmt.Fprintf(out, "📄 Transaction: %s/tx/%s\n", explorer, record.DeploymentTransaction)
	}

	if len(outcome.Warnings) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "⚠️  %d warning(s):\n", len(outcome.Warnings))
		for _, w := range outcome.Warnings {
			fmt.Fprintf(out, "   - %s\n", w)
		}
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, "📖 NEXT STEPS")
	fmt.Fprintln(out, rule[:20])
	fmt.Fprintln(out, "1. 🏥 Create disaster zones using createDisasterZone()")
	fmt.Fprintln(out, "2. 👥 Allow responders to register using registerResponder()")
	fmt.Fprintln(out, "3. ✅ Verify responders using verifyResponder()")
	fmt.Fprintln(out, "4. 📍 Responders submit location proofs using submitLocationProof()")
	fmt.Fprintln(out, "5. 💰 Responders claim rewards using claimRewards()")

	if savedTo != "" {
		fmt.Fprintln(out)
		fmt.Fprintf(out, "💾 Deployment info saved to '%s'\n", savedTo)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "🎉 DEPLOYMENT COMPLETED SUCCESSFULLY!")
}

// stateLabels orders and names the known read-backs
var stateLabels = []struct {
	method string
	label  string
	ether  bool
}{
	{"owner", "👑 Contract Owner", false},
	{"nextDisasterZoneId", "🆔 Next Disaster Zone ID", false},
	{"nextProofId", "🆔 Next Proof ID", false},
	{"minStakeAmount", "💰 Minimum Stake Amount", true},
}

func printInitialState(out io.Writer, record *domain.Record, symbol string) {
	known := make(map[string]bool, len(stateLabels))
	for _, s := range stateLabels {
		known[s.method] = true
		value, ok := record.InitialState[s.method]
		if !ok {
			continue
		}
		if s.ether {
			if wei, ok := new(big.Int).SetString(value, 10); ok {
				value = chains.FormatEther(wei) + " " + symbol
			}
		}
		fmt.Fprintf(out, "%s: %s\n", s.label, value)
	}
	var extra []string
	for method := range record.InitialState {
		if !known[method] {
			extra = append(extra, method)
		}
	}
	sort.Strings(extra)
	for _, method := range extra {
		fmt.Fprintf(out, "🔹 %s: %s\n", method, record.InitialState[method])
	}

	if _, ok := record.InitialState["owner"]; ok {
		result := "FAILED"
		if record.OwnerVerified {
			result = "PASSED"
		}
		fmt.Fprintf(out, "✅ Owner Verification: %s\n", result)
	}
}

func printFailure(out io.Writer, err error, savedTo string) {
	fmt.Fprintln(out)
	fmt.Fprintln(out, "❌ DEPLOYMENT FAILED!")

	var deployErr *domain.Error
	if errors.As(err, &deployErr) {
		fmt.Fprintf(out, "Stage: %s (%s)\n", deployErr.Kind, deployErr.Op)
		fmt.Fprintf(out, "Error: %v\n", deployErr.Err)
		if deployErr.Hint != "" {
			fmt.Fprintf(out, "💡 Solution: %s\n", deployErr.Hint)
		}
	} else {
		fmt.Fprintf(out, "Error: %v\n", err)
	}

	if savedTo != "" {
		fmt.Fprintf(out, "💾 Failure record saved to '%s'\n", savedTo)
	}
}
