package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pendergraft/echoes/internal/validation"
	"github.com/pendergraft/echoes/pkg/client"
)

func createStatusCmd() *cobra.Command {
	var jsonOutput bool
	var showTxs bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of a running daemon",
		Long: `Query a running daemon for its wallet connection, sync phase and
recent alerts.

EXAMPLES:
  echoes status
  echoes status --bridge http://127.0.0.1:9090 --json

  # Include transactions handed to the wallet (requires the bridge token)
  echoes status --transactions --token $BRIDGE_TOKEN
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(jsonOutput, showTxs)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().BoolVar(&showTxs, "transactions", false, "list recent wallet transactions")

	return cmd
}

type statusOutput struct {
	Bridge       string               `json:"bridge"`
	Version      string               `json:"version"`
	Wallet       *client.WalletStatus `json:"wallet"`
	Sync         *client.Status       `json:"sync"`
	Info         *client.ContractInfo `json:"contractInfo"`
	Alerts       []client.Alert       `json:"alerts"`
	Transactions []client.Transaction `json:"transactions,omitempty"`
}

func runStatus(jsonOutput, showTxs bool) error {
	c := client.New(getBridge(), getBridgeToken())
	ctx, cancel := commandContext()
	defer cancel()

	out := statusOutput{Bridge: getBridge()}
	var err error
	if out.Version, err = c.Version(ctx); err != nil {
		return fmt.Errorf("failed to reach daemon at %s: %w", out.Bridge, err)
	}
	if err := validation.CheckCompatible(cliVersion, out.Version); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
	}
	if out.Wallet, err = c.Wallet(ctx); err != nil {
		return fmt.Errorf("failed to get wallet status: %w", err)
	}
	if out.Sync, err = c.Status(ctx); err != nil {
		return fmt.Errorf("failed to get sync status: %w", err)
	}
	if out.Info, err = c.ContractInfo(ctx); err != nil {
		return fmt.Errorf("failed to get contract info: %w", err)
	}
	if out.Alerts, err = c.Alerts(ctx); err != nil {
		return fmt.Errorf("failed to get alerts: %w", err)
	}
	if showTxs && out.Wallet.Connected {
		if out.Transactions, err = c.Transactions(ctx, "", 10); err != nil {
			return fmt.Errorf("failed to list transactions: %w", err)
		}
	}

	if jsonOutput {
		return printJSON(out)
	}

	fmt.Printf("Bridge:    %s (%s)\n", out.Bridge, out.Version)
	if out.Wallet.Connected {
		fmt.Printf("Wallet:    %s\n", orNone(out.Wallet.Address))
	} else {
		fmt.Println("Wallet:    (not connected)")
	}
	fmt.Printf("Phase:     %s\n", out.Sync.Phase)
	fmt.Printf("Vault:     %s\n", orNone(out.Info.UserVaultAddress))
	if out.Info.PieceCount != nil {
		fmt.Printf("Pieces:    %d (%d known, %d pending, %d failed)\n",
			*out.Info.PieceCount, len(out.Info.PieceAddresses), out.Sync.PendingPieces, out.Sync.FailedPieces)
	}
	if out.Info.Loading || out.Sync.Refreshing {
		fmt.Println("Loading:   yes")
	}

	if len(out.Alerts) > 0 {
		fmt.Println()
		fmt.Printf("Alerts (%d):\n", len(out.Alerts))
		for _, a := range out.Alerts {
			fmt.Printf("  • %s %s\n", a.Time.Format("15:04:05"), a.Message)
		}
	}

	if len(out.Transactions) > 0 {
		fmt.Println()
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tSTATUS\tVALID UNTIL\tCREATED")
		for _, tx := range out.Transactions {
			id := tx.ID
			if len(id) > 8 {
				id = id[:8] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", id, tx.Status, tx.ValidUntil, tx.CreatedAt)
		}
		w.Flush()
	}

	return nil
}

func createPendingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pending",
		Short: "Show or stage the pending piece",
		Long: `Show, stage or clear the piece the daemon holds for the embedded
application. Staging and clearing require the bridge token when auth is
enabled.
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			p, err := client.New(getBridge(), getBridgeToken()).PendingPiece(ctx)
			if err != nil {
				return fmt.Errorf("failed to get pending piece: %w", err)
			}
			if p.PieceData == nil && p.RemixedFrom == nil {
				fmt.Println("No pending piece")
				return nil
			}
			return printJSON(p)
		},
	}

	cmd.AddCommand(createPendingSetCmd())
	cmd.AddCommand(createPendingClearCmd())

	return cmd
}

func createPendingSetCmd() *cobra.Command {
	var data string
	var remixFrom string

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Stage a piece",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var p client.PendingPiece
			if data != "" {
				p.PieceData = &data
			}
			if remixFrom != "" {
				if _, err := parseRemixParent(remixFrom); err != nil {
					return err
				}
				p.RemixedFrom = &remixFrom
			}

			ctx, cancel := commandContext()
			defer cancel()

			if err := client.New(getBridge(), getBridgeToken()).SetPendingPiece(ctx, p); err != nil {
				return fmt.Errorf("failed to stage piece: %w", err)
			}
			fmt.Println("✅ Piece staged")
			return nil
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "piece content")
	cmd.Flags().StringVar(&remixFrom, "remix-from", "", "address of the remixed piece")

	return cmd
}

func createPendingClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear the staged piece",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := commandContext()
			defer cancel()

			if err := client.New(getBridge(), getBridgeToken()).ClearPendingPiece(ctx); err != nil {
				return fmt.Errorf("failed to clear pending piece: %w", err)
			}
			fmt.Println("✅ Pending piece cleared")
			return nil
		},
	}
}
