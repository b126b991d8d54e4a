package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/xssnick/tonutils-go/address"

	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/wallet"
	"github.com/pendergraft/echoes/pkg/client"
)

func createCreateCmd() *cobra.Command {
	var data string
	var dataFile string
	var remixFrom string
	var from string
	var submit bool

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Build a create-piece transaction",
		Long: `Build the TON Connect transaction request that creates a piece.

By default the request is printed for signing with any wallet. With --submit
the piece is sent to a running daemon, which hands it to its wallet session.

EXAMPLES:
  # Print the request
  echoes create --data '{"nodes":[]}'

  # Remix an existing piece, reading the content from a file
  echoes create --data-file graph.json --remix-from EQB...

  # Submit through the daemon
  echoes create --data-file graph.json --submit --token $BRIDGE_TOKEN
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dataFile != "" {
				raw, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("failed to read data file: %w", err)
				}
				data = string(raw)
			}
			if submit {
				return runCreateSubmit(data, remixFrom)
			}
			return runCreate(data, remixFrom, from)
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "piece content")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "read piece content from a file")
	cmd.Flags().StringVar(&remixFrom, "remix-from", "", "address of the remixed piece")
	cmd.Flags().StringVar(&from, "from", "", "sender wallet address to put in the request")
	cmd.Flags().BoolVar(&submit, "submit", false, "submit through a running daemon")
	cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	cmd.MarkFlagsMutuallyExclusive("submit", "from")

	return cmd
}

var errNoPieceData = errors.New("piece content is required (--data or --data-file)")

func runCreate(data, remixFrom, from string) error {
	if data == "" {
		return errNoPieceData
	}

	parent, err := parseRemixParent(remixFrom)
	if err != nil {
		return err
	}

	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	svc, err := wallet.NewService(nil, wallet.NewServiceConfig(cfg), cliLogger())
	if err != nil {
		return err
	}

	tx, err := svc.BuildTransaction([]byte(data), parent)
	if err != nil {
		return fmt.Errorf("failed to build transaction: %w", err)
	}
	if from != "" {
		raw, err := ton.NormalizeRaw(from)
		if err != nil {
			return fmt.Errorf("invalid sender address: %w", err)
		}
		tx.From = raw
	}

	return printJSON(tx)
}

func runCreateSubmit(data, remixFrom string) error {
	if data == "" {
		return errNoPieceData
	}
	if _, err := parseRemixParent(remixFrom); err != nil {
		return err
	}

	ctx, cancel := commandContext()
	defer cancel()

	ok, err := client.New(getBridge(), getBridgeToken()).CreatePiece(ctx, data, remixFrom)
	if err != nil {
		return fmt.Errorf("failed to submit piece: %w", err)
	}
	if !ok {
		return fmt.Errorf("wallet did not accept the transaction (see 'echoes status')")
	}

	fmt.Println("✅ Transaction sent to wallet")
	return nil
}

func parseRemixParent(s string) (*address.Address, error) {
	if s == "" {
		return nil, nil
	}
	addr, err := ton.ParseAny(s)
	if err != nil {
		return nil, fmt.Errorf("invalid remix address: %w", err)
	}
	return addr, nil
}
