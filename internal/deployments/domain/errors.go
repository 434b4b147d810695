package domain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/pendergraft/deployer/internal/chains"
)

// Kind classifies a pipeline failure or warning.
type Kind int

const (
	KindPrecondition Kind = iota + 1
	KindEstimation
	KindSubmission
	KindConfirmation
	KindVerification
	KindReadBack
	KindPersistence
)

var kindNames = map[Kind]string{
	KindPrecondition: "PreconditionFailure",
	KindEstimation:   "EstimationFailure",
	KindSubmission:   "SubmissionFailure",
	KindConfirmation: "ConfirmationFailure",
	KindVerification: "VerificationFailure",
	KindReadBack:     "ReadBackWarning",
	KindPersistence:  "PersistenceFailure",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Fatal reports whether a failure of this kind aborts the pipeline.
func (k Kind) Fatal() bool {
	return k >= KindPrecondition && k <= KindVerification
}

// MarshalText renders the kind by name in JSON records.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText parses a kind name.
func (k *Kind) UnmarshalText(text []byte) error {
	for kind, name := range kindNames {
		if name == string(text) {
			*k = kind
			return nil
		}
	}
	return fmt.Errorf("unknown kind %q", text)
}

// Error is a classified fatal pipeline failure.
type Error struct {
	Kind Kind
	Op   string
	// Hint is a remediation suggestion for the operator, if one applies.
	Hint string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op, hint string, err error) *Error {
	return &Error{Kind: kind, Op: op, Hint: hint, Err: err}
}

// KindOf returns the classification of err, if it carries one.
func KindOf(err error) (Kind, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind, true
	}
	return 0, false
}

// InsufficientFundsError reports a deployer balance below the configured minimum.
type InsufficientFundsError struct {
	Address  common.Address
	Balance  *big.Int
	Required *big.Int
	Symbol   string
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("balance of %s is %s %s, need at least %s %s",
		e.Address.Hex(), chains.FormatEther(e.Balance), e.Symbol, chains.FormatEther(e.Required), e.Symbol)
}

// Is lets callers match the preflight failure and a submit-time failure alike.
func (e *InsufficientFundsError) Is(target error) bool {
	return target == chains.ErrInsufficientFunds
}

// Remediation hints
const (
	hintFund  = "Add more CORE tokens to your wallet"
	hintNonce = "Reset your wallet nonce or wait for pending transactions"
)

func fundHint(symbol, faucetURL string) string {
	hint := hintFund
	if symbol != "" && symbol != "CORE" {
		hint = fmt.Sprintf("Add more %s tokens to your wallet", symbol)
	}
	if faucetURL != "" {
		hint += " (faucet: " + faucetURL + ")"
	}
	return hint
}

// classifySubmission attaches a hint to a submission failure.
func classifySubmission(err error, net NetworkConfig) *Error {
	switch {
	case errors.Is(err, chains.ErrInsufficientFunds):
		return newError(KindSubmission, "submit deployment", fundHint(net.Symbol, net.FaucetURL), err)
	case errors.Is(err, chains.ErrNonceConflict):
		return newError(KindSubmission, "submit deployment", hintNonce, err)
	default:
		return newError(KindSubmission, "submit deployment", "", err)
	}
}
