package chains

import (
	"bytes"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// CBOR metadata marker (Solidity >=0.6.0) - "ipfs" in CBOR
var metadataMarker = []byte{0xa2, 0x64, 0x69, 0x70, 0x66, 0x73}

// StripMetadata removes the CBOR metadata appended to bytecode
func StripMetadata(bytecode []byte) []byte {
	idx := bytes.LastIndex(bytecode, metadataMarker)
	if idx == -1 {
		return bytecode
	}
	// Length prefix sits 2 bytes before the marker
	if idx >= 2 {
		return bytecode[:idx-2]
	}
	return bytecode
}

// CompareBytecode compares on-chain runtime code to the artifact's deployed bytecode.
// The expected code may be raw bytes or a 0x-prefixed hex string.
func CompareBytecode(deployed, expected []byte) *VerifyResult {
	if bytes.HasPrefix(expected, []byte("0x")) {
		expected = common.FromHex(string(expected))
	}

	if len(expected) == 0 {
		return &VerifyResult{
			Match:     false,
			MatchType: "none",
			Message:   "Artifact has no deployed bytecode to compare",
		}
	}

	if bytes.Equal(deployed, expected) {
		return &VerifyResult{
			Match:     true,
			MatchType: "full",
			Message:   "Bytecode matches exactly including metadata",
		}
	}

	if bytes.Equal(StripMetadata(deployed), StripMetadata(expected)) {
		return &VerifyResult{
			Match:     true,
			MatchType: "partial",
			Message:   "Executable code matches, metadata differs",
		}
	}

	return &VerifyResult{
		Match:     false,
		MatchType: "none",
		Message:   fmt.Sprintf("Bytecode does not match (on-chain %d bytes, artifact %d bytes)", len(deployed), len(expected)),
	}
}
