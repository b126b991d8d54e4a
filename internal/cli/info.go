package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/echoes/internal/contracts"
)

func createInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show registry parameters",
		Long: `Display the fee and security parameters of the EchoRegistry contract.

EXAMPLES:
  echoes info
  echoes info --json
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createVaultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vault <user-address>",
		Short: "Show a user's vault address",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVault(args[0])
		},
	}
}

func createPiecesCmd() *cobra.Command {
	var jsonOutput bool
	var withData bool

	cmd := &cobra.Command{
		Use:   "pieces <user-address>",
		Short: "List a user's pieces",
		Long: `List the pieces held in a user's vault.

EXAMPLES:
  # Addresses only
  echoes pieces EQD...

  # Include each piece's content and remix parent
  echoes pieces EQD... --data --json
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPieces(args[0], withData, jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&withData, "data", false, "fetch piece content and remix parents")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

func createPieceCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "piece <piece-address>",
		Short: "Show a piece's content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPiece(args[0], jsonOutput)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	return cmd
}

type infoOutput struct {
	RegistryAddress string                    `json:"registryAddress"`
	FeeParams       *contracts.FeeParams      `json:"feeParams"`
	SecurityParams  *contracts.SecurityParams `json:"securityParams"`
}

func runInfo(jsonOutput bool) error {
	_, r, err := openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := commandContext()
	defer cancel()

	fees, err := r.GetFeeParams(ctx)
	if err != nil {
		return fmt.Errorf("failed to get fee params: %w", err)
	}
	security, err := r.GetSecurityParams(ctx)
	if err != nil {
		return fmt.Errorf("failed to get security params: %w", err)
	}

	if jsonOutput {
		return printJSON(infoOutput{RegistryAddress: r.registry, FeeParams: fees, SecurityParams: security})
	}

	fmt.Printf("Registry: %s\n", r.registry)
	fmt.Println()
	if fees != nil {
		fmt.Printf("Deploy value:   %d nanoton\n", fees.DeployValue)
		fmt.Printf("Message value:  %d nanoton\n", fees.MessageValue)
	} else {
		fmt.Println("Fee params:     (unavailable)")
	}
	if security != nil {
		fmt.Printf("Min action fee: %d nanoton\n", security.MinActionFee)
		fmt.Printf("Cool down:      %ds\n", security.CoolDownSeconds)
	} else {
		fmt.Println("Security:       (unavailable)")
	}

	return nil
}

func runVault(user string) error {
	_, r, err := openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := commandContext()
	defer cancel()

	vault, err := r.GetVaultAddress(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to get vault: %w", err)
	}
	if vault == nil {
		fmt.Println("No vault found")
		return nil
	}

	fmt.Println(*vault)
	return nil
}

type piecesOutput struct {
	VaultAddress   *string            `json:"vaultAddress"`
	PieceCount     *uint64            `json:"pieceCount"`
	PieceAddresses []string           `json:"pieceAddresses"`
	PieceData      map[string]*string `json:"pieceData,omitempty"`
	PieceRemixData map[string]*string `json:"pieceRemixData,omitempty"`
	PieceErrors    map[string]string  `json:"pieceErrors,omitempty"`
}

func runPieces(user string, withData, jsonOutput bool) error {
	_, r, err := openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := commandContext()
	defer cancel()

	out, err := collectPieces(ctx, r, user, withData)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(out)
	}

	if out.VaultAddress == nil {
		fmt.Println("No vault found")
		return nil
	}

	fmt.Printf("Vault:  %s\n", *out.VaultAddress)
	if out.PieceCount != nil {
		fmt.Printf("Count:  %d\n", *out.PieceCount)
	}
	fmt.Println()

	if len(out.PieceAddresses) == 0 {
		fmt.Println("No pieces")
		return nil
	}

	fmt.Printf("Pieces (%d):\n", len(out.PieceAddresses))
	for _, addr := range out.PieceAddresses {
		line := "  • " + addr
		if withData {
			if msg, failed := out.PieceErrors[addr]; failed {
				line += " (error: " + msg + ")"
			} else if data := out.PieceData[addr]; data != nil {
				line += fmt.Sprintf(" (%d bytes)", len(*data))
			} else {
				line += " (unavailable)"
			}
			if parent := out.PieceRemixData[addr]; parent != nil {
				line += " remix of " + *parent
			}
		}
		fmt.Println(line)
	}

	return nil
}

// collectPieces runs the same lookups as the daemon's full fetch for one user.
func collectPieces(ctx context.Context, r contracts.Reader, user string, withData bool) (*piecesOutput, error) {
	vault, err := r.GetVaultAddress(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("failed to get vault: %w", err)
	}
	out := &piecesOutput{VaultAddress: vault, PieceAddresses: []string{}}
	if vault == nil {
		return out, nil
	}

	if out.PieceCount, err = r.GetPieceCount(ctx, *vault); err != nil {
		return nil, fmt.Errorf("failed to get piece count: %w", err)
	}
	addrs, err := r.GetPieceAddresses(ctx, *vault)
	if err != nil {
		return nil, fmt.Errorf("failed to get pieces: %w", err)
	}
	if addrs != nil {
		out.PieceAddresses = addrs
	}

	if !withData {
		return out, nil
	}

	contents, err := contracts.GetAllPieceData(ctx, r, addrs)
	if err != nil {
		return nil, err
	}
	out.PieceData = make(map[string]*string, len(addrs))
	out.PieceRemixData = make(map[string]*string, len(addrs))
	for addr, pc := range contents {
		// Failed pieces stay nil, matching the daemon, with the cause kept.
		out.PieceData[addr] = pc.Data
		out.PieceRemixData[addr] = pc.RemixedFrom
		if pc.Err != nil {
			if out.PieceErrors == nil {
				out.PieceErrors = make(map[string]string)
			}
			out.PieceErrors[addr] = pc.Err.Error()
			cliLogger().Warn("fetching piece", "piece", addr, "error", pc.Err)
		}
	}

	return out, nil
}

type pieceOutput struct {
	Address     string  `json:"address"`
	PieceData   *string `json:"pieceData"`
	RemixedFrom *string `json:"remixedFrom"`
}

func runPiece(addr string, jsonOutput bool) error {
	_, r, err := openReader()
	if err != nil {
		return err
	}
	defer r.Close()

	ctx, cancel := commandContext()
	defer cancel()

	data, err := r.GetPieceData(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to get piece data: %w", err)
	}
	parent, err := r.GetRemixedFromAddress(ctx, addr)
	if err != nil {
		return fmt.Errorf("failed to get remix parent: %w", err)
	}

	if jsonOutput {
		return printJSON(pieceOutput{Address: addr, PieceData: data, RemixedFrom: parent})
	}

	fmt.Printf("Piece:       %s\n", addr)
	fmt.Printf("Remix of:    %s\n", orNone(parent))
	fmt.Println()
	if data == nil {
		fmt.Println("(no data)")
		return nil
	}
	fmt.Println(*data)
	return nil
}
