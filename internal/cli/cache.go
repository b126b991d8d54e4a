package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pendergraft/echoes/internal/cache"
	"github.com/pendergraft/echoes/internal/chains/ton"
	"github.com/pendergraft/echoes/internal/storage"
)

func createCacheCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect the local piece cache",
		Long: `Inspect or clear the piece cache the daemon keeps per wallet.

The cache lives in the configured storage backend (STORAGE_TYPE). Stop the
daemon before clearing an embedded store it holds open.
`,
	}

	cmd.AddCommand(createCacheListCmd())
	cmd.AddCommand(createCacheShowCmd())
	cmd.AddCommand(createCacheClearCmd())

	return cmd
}

func createCacheListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List wallets with cached pieces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				users := c.Users(ctx)
				if len(users) == 0 {
					fmt.Println("Cache is empty")
					return nil
				}
				for _, u := range users {
					fmt.Println(u)
				}
				return nil
			})
		},
	}
}

func createCacheShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <user-address>",
		Short: "Show a wallet's cached pieces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ton.NormalizeRaw(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				p := c.LoadPieces(ctx, user)
				if p == nil {
					fmt.Printf("No cached pieces for %s\n", user)
					return nil
				}
				return printJSON(piecesOutput{
					PieceAddresses: p.PieceAddresses,
					PieceData:      p.PieceData,
					PieceRemixData: p.PieceRemixData,
				})
			})
		},
	}
}

func createCacheClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear <user-address>",
		Short: "Remove a wallet's cached pieces",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			user, err := ton.NormalizeRaw(args[0])
			if err != nil {
				return fmt.Errorf("invalid address: %w", err)
			}
			return withCache(func(ctx context.Context, c *cache.Cache) error {
				c.ClearPieces(ctx, user)
				fmt.Printf("✅ Cleared cached pieces for %s\n", user)
				return nil
			})
		},
	}
}

// withCache opens the configured store for the duration of fn.
func withCache(fn func(ctx context.Context, c *cache.Cache) error) error {
	cfg, err := LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := cliLogger()
	store, err := storage.New(cfg.Storage, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	ctx, cancel := commandContext()
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return fn(ctx, cache.New(store, cfg.Cache.KeyPrefix, logger))
}
