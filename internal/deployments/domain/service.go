package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/observability/metrics"
)

// Sink receives the finished deployment record.
type Sink interface {
	Write(ctx context.Context, record *Record) error
}

// Service defines the deployment service interface.
type Service interface {
	// Deploy runs the pipeline once. A fatal failure returns a *Error; the
	// Outcome is also returned when a record was produced.
	Deploy(ctx context.Context, req Request) (*Outcome, error)
}

// service implements the Service interface.
type service struct {
	network chains.Network
	factory chains.ContractFactory
	sink    Sink
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures the service.
type Option func(*service)

// WithClock overrides the record timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// NewService creates a new deployment service.
func NewService(network chains.Network, factory chains.ContractFactory, sink Sink, logger *slog.Logger, opts ...Option) Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &service{
		network: network,
		factory: factory,
		sink:    sink,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// gasBudget is the output of the estimation stage.
type gasBudget struct {
	estimate uint64
	limit    uint64
	price    *big.Int
}

// Deploy runs preflight, gas budgeting, submission, confirmation,
// verification, read-back and reporting in that order.
func (s *service) Deploy(ctx context.Context, req Request) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, newError(KindPrecondition, "validate request", "", err)
	}

	logger := s.logger.With("contract", req.ContractName, "deployer", req.Deployer.Hex())
	chainLabel := strconv.FormatInt(req.Network.ChainID, 10)

	networkName, err := s.preflight(ctx, req, logger)
	if err != nil {
		metrics.DeploymentResult(req.ContractName, chainLabel, "precondition_failed")
		return nil, err
	}

	budget, err := s.budgetGas(ctx, req, logger)
	if err != nil {
		metrics.DeploymentResult(req.ContractName, chainLabel, "estimation_failed")
		return nil, err
	}

	started := time.Now()
	handle, err := s.factory.Deploy(ctx, chains.DeployOptions{GasLimit: budget.limit, GasPrice: budget.price})
	if err != nil {
		metrics.StageCompleted("submit", "error", time.Since(started))
		metrics.DeploymentResult(req.ContractName, chainLabel, "submission_failed")
		return nil, classifySubmission(err, req.Network)
	}
	metrics.StageCompleted("submit", "ok", time.Since(started))

	// Once submitted the outcome must be observed; caller cancellation no
	// longer applies, only the configured confirmation timeout.
	postCtx := context.WithoutCancel(ctx)

	tx := handle.DeploymentTransaction()
	logger.Info("deployment submitted", "tx", tx.Hash.Hex(), "gasLimit", tx.GasLimit)

	receipt, err := s.confirm(postCtx, req, handle, logger)
	if err != nil {
		metrics.DeploymentResult(req.ContractName, chainLabel, "confirmation_failed")
		return nil, err
	}

	address := handle.Address()
	record := &Record{
		ContractName:          req.ContractName,
		ContractAddress:       address.Hex(),
		DeploymentTransaction: tx.Hash.Hex(),
		Deployer:              req.Deployer.Hex(),
		Network:               networkName,
		ChainID:               req.Network.ChainID,
		BlockNumber:           receipt.BlockNumber,
		GasUsed:               strconv.FormatUint(tx.GasLimit, 10),
		GasPrice:              bigString(tx.GasPrice),
		DeploymentCost:        chains.FormatEther(deploymentCost(tx.GasPrice, tx.GasLimit)),
		GasEstimate:           budget.estimate,
		ReceiptGasUsed:        receipt.GasUsed,
		ConfirmationBlock:     receipt.BlockNumber,
		ExplorerURL:           explorerAddressURL(req.Network.ExplorerURL, address),
	}

	code, verr := s.verifyCode(postCtx, address, logger)
	if verr != nil {
		record.Status = StatusFailed
		record.Timestamp = formatTimestamp(s.now())
		outcome := s.persist(postCtx, record, nil, logger)
		metrics.DeploymentResult(req.ContractName, chainLabel, "verification_failed")
		return outcome, verr
	}

	warnings := s.readBack(postCtx, req, handle, code, record, logger)

	record.Status = StatusSuccess
	record.Warnings = warnings
	record.Timestamp = formatTimestamp(s.now())

	outcome := s.persist(postCtx, record, warnings, logger)
	metrics.DeploymentResult(req.ContractName, chainLabel, StatusSuccess)
	return outcome, nil
}

// preflight checks the chain id and the deployer's balance. It returns the
// network name to record.
func (s *service) preflight(ctx context.Context, req Request, logger *slog.Logger) (string, error) {
	started := time.Now()
	fail := func(err error) (string, error) {
		metrics.StageCompleted("preflight", "error", time.Since(started))
		return "", err
	}

	info, err := s.network.Network(ctx)
	if err != nil {
		return fail(newError(KindPrecondition, "read network", "", err))
	}
	if info.ChainID == nil || info.ChainID.Int64() != req.Network.ChainID {
		return fail(newError(KindPrecondition, "check chain id", "Point the RPC endpoint at the configured network",
			fmt.Errorf("endpoint reports chain %v, expected %d", info.ChainID, req.Network.ChainID)))
	}

	name := info.Name
	if name == "" || name == "unknown" {
		name = req.Network.Name
	}

	balance, err := s.network.BalanceAt(ctx, req.Deployer)
	if err != nil {
		return fail(newError(KindPrecondition, "read balance", "", err))
	}
	logger.Info("deployer balance", "balance", chains.FormatEther(balance), "symbol", req.Network.Symbol)

	if balance.Cmp(req.MinBalance) < 0 {
		return fail(newError(KindPrecondition, "check balance", fundHint(req.Network.Symbol, req.Network.FaucetURL),
			&InsufficientFundsError{
				Address:  req.Deployer,
				Balance:  balance,
				Required: req.MinBalance,
				Symbol:   req.Network.Symbol,
			}))
	}

	metrics.StageCompleted("preflight", "ok", time.Since(started))
	return name, nil
}

// budgetGas estimates the deployment and applies the buffer.
func (s *service) budgetGas(ctx context.Context, req Request, logger *slog.Logger) (*gasBudget, error) {
	started := time.Now()
	fail := func(op string, err error) (*gasBudget, error) {
		metrics.StageCompleted("estimate", "error", time.Since(started))
		return nil, newError(KindEstimation, op, "", err)
	}

	msg, err := s.factory.DeployTransaction(ctx)
	if err != nil {
		return fail("build deployment transaction", err)
	}

	estimate, err := s.network.EstimateGas(ctx, msg)
	if err != nil {
		return fail("estimate gas", err)
	}

	limit, err := ApplyGasBuffer(estimate, req.GasMultiplier)
	if err != nil {
		return fail("apply gas buffer", err)
	}

	price, err := s.network.SuggestGasPrice(ctx)
	if err != nil {
		return fail("read gas price", err)
	}

	logger.Info("gas budget",
		"estimate", estimate,
		"multiplier", req.GasMultiplier,
		"gasLimit", limit,
		"gasPriceGwei", chains.FormatGwei(price),
	)
	metrics.GasBudget(estimate, limit, price)
	metrics.StageCompleted("estimate", "ok", time.Since(started))

	return &gasBudget{estimate: estimate, limit: limit, price: price}, nil
}

// confirm waits for the deployment to be mined.
func (s *service) confirm(ctx context.Context, req Request, handle chains.DeployedContract, logger *slog.Logger) (*chains.Receipt, error) {
	started := time.Now()
	if req.ConfirmationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.ConfirmationTimeout)
		defer cancel()
	}

	receipt, err := handle.WaitForDeployment(ctx)
	if err != nil {
		metrics.StageCompleted("confirm", "error", time.Since(started))
		hint := ""
		switch {
		case errors.Is(err, chains.ErrTxDropped):
			hint = hintNonce
		case errors.Is(err, context.DeadlineExceeded):
			hint = "The transaction may still be mined; check the explorer before redeploying"
		}
		return nil, newError(KindConfirmation, "wait for confirmation", hint, err)
	}

	logger.Info("deployment confirmed", "block", receipt.BlockNumber, "gasUsed", receipt.GasUsed, "status", receipt.Status)
	metrics.StageCompleted("confirm", "ok", time.Since(started))
	return receipt, nil
}

// verifyCode proves a contract exists at the address.
func (s *service) verifyCode(ctx context.Context, address common.Address, logger *slog.Logger) ([]byte, error) {
	started := time.Now()
	code, err := s.network.CodeAt(ctx, address)
	if err != nil {
		metrics.StageCompleted("verify", "error", time.Since(started))
		return nil, newError(KindVerification, "read code", "", err)
	}
	if len(code) == 0 {
		metrics.StageCompleted("verify", "error", time.Since(started))
		logger.Error("no code at deployment address", "address", address.Hex())
		return nil, newError(KindVerification, "verify code", "The creation transaction was mined but reverted",
			fmt.Errorf("%w: %s", chains.ErrEmptyCode, address.Hex()))
	}

	logger.Info("code verified", "address", address.Hex(), "bytes", len(code))
	metrics.StageCompleted("verify", "ok", time.Since(started))
	return code, nil
}

// readBack runs the advisory checks. Every failure becomes a warning and
// the remaining checks still run.
func (s *service) readBack(ctx context.Context, req Request, handle chains.DeployedContract, code []byte, record *Record, logger *slog.Logger) []Warning {
	started := time.Now()
	var warnings []Warning
	warn := func(source string, format string, args ...any) {
		w := Warning{Kind: KindReadBack, Source: source, Message: fmt.Sprintf(format, args...)}
		logger.Warn("read-back check failed", "source", source, "message", w.Message)
		metrics.Warning(w.Kind.String())
		warnings = append(warnings, w)
	}

	if req.ExpectedRuntime != "" {
		if result := chains.CompareBytecode(code, []byte(req.ExpectedRuntime)); !result.Match {
			warn("bytecode", "%s", result.Message)
		}
	}

	state := make(map[string]string, len(req.ReadBacks))
	for _, method := range req.ReadBacks {
		value, err := handle.Call(ctx, method)
		if err != nil {
			warn(method, "%v", err)
			continue
		}
		state[method] = renderValue(value)

		if method == "owner" {
			owner, ok := value.(common.Address)
			switch {
			case !ok:
				warn(method, "unexpected owner type %T", value)
			case owner != req.Deployer:
				warn(method, "owner %s does not match deployer %s", owner.Hex(), req.Deployer.Hex())
			default:
				record.OwnerVerified = true
			}
		}
	}
	if len(state) > 0 {
		record.InitialState = state
	}

	block, err := s.network.BlockNumber(ctx)
	if err != nil {
		warn("blockNumber", "%v; recording confirmation block", err)
	} else {
		record.BlockNumber = block
	}

	status := "ok"
	if len(warnings) > 0 {
		status = "warning"
	}
	metrics.StageCompleted("read_back", status, time.Since(started))
	return warnings
}

// persist hands the record to the sink. A failure is a warning, never fatal.
func (s *service) persist(ctx context.Context, record *Record, warnings []Warning, logger *slog.Logger) *Outcome {
	outcome := &Outcome{Record: record, Warnings: warnings}
	if s.sink == nil {
		return outcome
	}

	started := time.Now()
	if err := s.sink.Write(ctx, record); err != nil {
		logger.Error("failed to persist deployment record", "error", err)
		metrics.StageCompleted("persist", "error", time.Since(started))
		metrics.Warning(KindPersistence.String())
		outcome.PersistErr = err
		outcome.Warnings = append(outcome.Warnings, Warning{
			Kind:    KindPersistence,
			Source:  "record",
			Message: err.Error(),
		})
		return outcome
	}

	metrics.StageCompleted("persist", "ok", time.Since(started))
	return outcome
}

func renderValue(v any) string {
	switch val := v.(type) {
	case common.Address:
		return val.Hex()
	case *big.Int:
		return val.String()
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(v)
	}
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func explorerAddressURL(base string, address common.Address) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/address/" + address.Hex()
}
