package evm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Library placeholder pattern: __$<34 hex chars>$__
var libraryPlaceholder = regexp.MustCompile(`__\$[a-f0-9]{34}\$__`)

// HasLibraryPlaceholders checks if hex bytecode contains unlinked library placeholders
func HasLibraryPlaceholders(bytecode string) bool {
	return libraryPlaceholder.MatchString(bytecode)
}

// DecodeBytecode decodes artifact bytecode, rejecting unlinked or malformed input.
func DecodeBytecode(code string) ([]byte, error) {
	if HasLibraryPlaceholders(code) {
		return nil, fmt.Errorf("bytecode has unlinked library placeholders")
	}
	if !strings.HasPrefix(code, "0x") {
		code = "0x" + code
	}
	if code == "0x" {
		return nil, fmt.Errorf("bytecode is empty")
	}
	b, err := hexutil.Decode(code)
	if err != nil {
		return nil, fmt.Errorf("decoding bytecode: %w", err)
	}
	return b, nil
}
