package cli

import (
	"fmt"
	"io"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"

	"github.com/pendergraft/deployer/internal/chains"
	"github.com/pendergraft/deployer/internal/chains/evm"
	"github.com/pendergraft/deployer/internal/validation"
)

func createVerifyCmd() *cobra.Command {
	var rpcURL string
	var artifacts string

	cmd := &cobra.Command{
		Use:   "verify <address>",
		Short: "Verify deployed contract matches the local artifact",
		Long: `Verify that a deployed contract's bytecode matches the compiled artifact.

Compares the on-chain runtime bytecode with the artifact's deployed bytecode,
stripping CBOR metadata for accurate comparison.

EXAMPLES:
  # Verify the address from deployment-info.json
  drm-deploy verify 0x1234...

  # Specify custom RPC URL
  drm-deploy verify 0x1234... --rpc-url http://127.0.0.1:8545
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("rpc-url") {
				cfg.Network.RPCURL = rpcURL
			}
			if cmd.Flags().Changed("artifacts") {
				cfg.Deploy.ArtifactsDir = artifacts
			}
			if err := validation.ValidateAddress(args[0]); err != nil {
				return err
			}

			artifact, err := loadArtifact(cfg.Deploy)
			if err != nil {
				return err
			}

			logger := setupLogger(cfg, stderr)
			opts := evm.DefaultClientOptions()
			opts.NetworkName = cfg.Network.Name
			rpc, err := evm.Dial(cmd.Context(), cfg.Network.RPCURL, opts, logger)
			if err != nil {
				return fmt.Errorf("connecting to %s: %w", cfg.Network.Name, err)
			}
			defer rpc.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "🔍 Verifying %s\n", artifact.Name)
			fmt.Fprintf(out, "   Chain:   %d\n", cfg.Network.ChainID)
			fmt.Fprintf(out, "   Address: %s\n", args[0])

			result, err := evm.NewChain().VerifyDeployment(cmd.Context(), rpc, chains.VerifyOptions{
				Address:      common.HexToAddress(args[0]),
				ExpectedCode: []byte(artifact.EVM.DeployedBytecode),
			})
			if err != nil {
				return fmt.Errorf("verification failed: %w", err)
			}

			printVerifyResult(out, result)
			if !result.Match {
				return fmt.Errorf("bytecode at %s does not match %s", args[0], artifact.Name)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rpcURL, "rpc-url", "", "RPC endpoint (default from config)")
	cmd.Flags().StringVar(&artifacts, "artifacts", "", "project directory containing build artifacts")

	return cmd
}

func printVerifyResult(out io.Writer, result *chains.VerifyResult) {
	fmt.Fprintln(out)

	switch result.MatchType {
	case "full":
		fmt.Fprintln(out, "✅ VERIFIED - Full match")
		fmt.Fprintln(out, "   Deployed bytecode exactly matches the artifact (including metadata)")
	case "partial":
		fmt.Fprintln(out, "✅ VERIFIED - Partial match")
		fmt.Fprintln(out, "   Executable code matches, but metadata differs")
		fmt.Fprintln(out, "   (This can happen with different source paths or comments)")
	case "none":
		fmt.Fprintln(out, "❌ NOT VERIFIED - No match")
		fmt.Fprintln(out, "   Deployed bytecode does not match the artifact")
		if result.Message != "" {
			fmt.Fprintf(out, "   Reason: %s\n", result.Message)
		}
	default:
		if result.Match {
			fmt.Fprintln(out, "✅ VERIFIED")
		} else {
			fmt.Fprintln(out, "❌ NOT VERIFIED")
		}
	}
}
