package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/deployer/internal/config"
	"github.com/pendergraft/deployer/internal/storage"
)

func createHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect recorded deployments",
		Long: `Inspect deployments recorded in the history store.

The store is configured by [storage] in deploy.toml, or by STORAGE_TYPE,
SQLITE_PATH and DATABASE_URL.`,
	}

	cmd.AddCommand(createHistoryListCmd())
	cmd.AddCommand(createHistoryShowCmd())

	return cmd
}

func createHistoryListCmd() *cobra.Command {
	var chainID string
	var contract string
	var deployer string
	var status string
	var limit int
	var cursor string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded deployments, newest first",
		Long: `List recorded deployments, newest first.

EXAMPLES:
  # All deployments
  drm-deploy history list

  # Failed deployments on Core Testnet
  drm-deploy history list --chain-id 1114 --status failed

  # Next page, using the cursor printed after the table
  drm-deploy history list --cursor <cursor>
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			filter := storage.DeploymentFilter{
				ChainID:      chainID,
				ContractName: contract,
				Deployer:     deployer,
				Status:       status,
			}
			pagination := storage.PaginationParams{Limit: limit, Cursor: cursor}
			return runHistoryList(cmd.Context(), cmd.OutOrStdout(), store, filter, pagination, asJSON)
		},
	}

	cmd.Flags().StringVar(&chainID, "chain-id", "", "filter by chain ID")
	cmd.Flags().StringVar(&contract, "contract", "", "filter by contract name")
	cmd.Flags().StringVar(&deployer, "deployer", "", "filter by deployer address")
	cmd.Flags().StringVar(&status, "status", "", "filter by status (success or failed)")
	cmd.Flags().IntVar(&limit, "limit", storage.DefaultPageSize, "maximum rows to show")
	cmd.Flags().StringVar(&cursor, "cursor", "", "continue from the cursor printed by the previous page")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")

	return cmd
}

func createHistoryShowCmd() *cobra.Command {
	var chainID int64
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <address>",
		Short: "Show one recorded deployment",
		Long: `Show one recorded deployment.

EXAMPLES:
  drm-deploy history show 0x1234...

  # Print the stored deployment-info record
  drm-deploy history show 0x1234... --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openHistoryStore(cmd.Context())
			if err != nil {
				return err
			}
			defer store.Close()

			if !cmd.Flags().Changed("chain-id") {
				cfg, _, err := loadConfig()
				if err != nil {
					return err
				}
				chainID = cfg.Network.ChainID
			}
			return runHistoryShow(cmd.Context(), cmd.OutOrStdout(), store, strconv.FormatInt(chainID, 10), args[0], asJSON)
		},
	}

	cmd.Flags().Int64Var(&chainID, "chain-id", 0, "chain ID (default from config)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the stored record as JSON")

	return cmd
}

// openHistoryStore opens the configured store for reading
func openHistoryStore(ctx context.Context) (storage.Store, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	store, err := openHistory(ctx, cfg.Storage, setupLogger(cfg, stderr))
	if errors.Is(err, storage.ErrDisabled) {
		return nil, errors.New("deployment history is disabled (storage type is none)")
	}
	if err != nil {
		return nil, fmt.Errorf("opening deployment history: %w", err)
	}
	return store, nil
}

func runHistoryList(ctx context.Context, out io.Writer, store storage.DeploymentStore, filter storage.DeploymentFilter, pagination storage.PaginationParams, asJSON bool) error {
	result, err := store.ListDeployments(ctx, filter, pagination)
	if err != nil {
		return fmt.Errorf("listing deployments: %w", err)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if len(result.Data) == 0 {
		fmt.Fprintln(out, "No deployments found")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CHAIN\tADDRESS\tCONTRACT\tSTATUS\tOWNER\tDEPLOYED")
	for _, d := range result.Data {
		owner := "✗"
		if d.OwnerVerified {
			owner = "✓"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			d.ChainID, truncateAddress(d.Address), d.ContractName, d.Status, owner, d.DeployedAt)
	}
	w.Flush()

	if result.HasMore {
		fmt.Fprintf(out, "\n(showing %d deployments, more available: --cursor %s)\n", len(result.Data), result.NextCursor)
	}

	return nil
}

func runHistoryShow(ctx context.Context, out io.Writer, store storage.DeploymentStore, chainID, address string, asJSON bool) error {
	d, err := store.GetDeployment(ctx, chainID, address)
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("no deployment of %s recorded on chain %s", address, chainID)
	}
	if err != nil {
		return fmt.Errorf("getting deployment: %w", err)
	}

	if asJSON {
		if len(d.Record) > 0 {
			var indented map[string]any
			if err := json.Unmarshal(d.Record, &indented); err == nil {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(indented)
			}
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(d)
	}

	owner := "❌ FAILED"
	if d.OwnerVerified {
		owner = "✅ PASSED"
	}

	fmt.Fprintf(out, "📍 %s\n", d.Address)
	fmt.Fprintf(out, "   Contract:    %s\n", d.ContractName)
	fmt.Fprintf(out, "   Network:     %s (Chain ID: %s)\n", d.Network, d.ChainID)
	fmt.Fprintf(out, "   Status:      %s\n", d.Status)
	fmt.Fprintf(out, "   Deployer:    %s\n", d.DeployerAddress)
	fmt.Fprintf(out, "   Transaction: %s\n", d.TxHash)
	fmt.Fprintf(out, "   Block:       %d\n", d.BlockNumber)
	fmt.Fprintf(out, "   Gas Limit:   %s\n", d.GasLimit)
	fmt.Fprintf(out, "   Gas Price:   %s wei\n", d.GasPrice)
	fmt.Fprintf(out, "   Cost:        %s\n", d.DeploymentCost)
	fmt.Fprintf(out, "   Owner:       %s\n", owner)
	fmt.Fprintf(out, "   Deployed:    %s\n", d.DeployedAt)

	return nil
}

// historyEnabled reports whether cfg records deployments
func historyEnabled(cfg *config.Config) bool {
	return cfg.Storage.Type != "" && cfg.Storage.Type != "none"
}
