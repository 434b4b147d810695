// Package validation provides input validation for deployment parameters.
package validation

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Solidity identifiers: letters, digits, $ and _, not starting with a digit
var identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]{0,127}$`)

// ValidateContractName validates a contract name
func ValidateContractName(name string) error {
	if name == "" {
		return errors.New("contract name cannot be empty")
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid contract name %q: must be a Solidity identifier", name)
	}
	return nil
}

// ValidateMethodName validates the name of a no-argument view method
func ValidateMethodName(name string) error {
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("invalid method name %q", name)
	}
	return nil
}

// ValidateAddress validates an Ethereum address. Mixed-case input must
// carry a valid EIP-55 checksum.
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	if !common.IsHexAddress(addr) {
		return errors.New("invalid address: contains non-hex characters")
	}
	body := addr[2:]
	if body != strings.ToLower(body) && body != strings.ToUpper(body) {
		if common.HexToAddress(addr).Hex() != addr {
			return errors.New("invalid address: checksum mismatch")
		}
	}
	return nil
}

// ValidateChainID validates a chain ID
func ValidateChainID(chainID int64) error {
	if chainID <= 0 {
		return errors.New("chain ID must be positive")
	}
	return nil
}

// ParsePrivateKey parses a hex private key, with or without 0x. Errors
// never include the key material.
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	if hexKey == "" {
		return nil, errors.New("private key is empty")
	}
	if len(hexKey) != 64 {
		return nil, fmt.Errorf("invalid private key: expected 64 hex characters, got %d", len(hexKey))
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, errors.New("invalid private key: not a valid secp256k1 key")
	}
	return key, nil
}
