package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/AnshRaj112/physiq-backend/internal/clock"
	"github.com/AnshRaj112/physiq-backend/internal/config"
	"github.com/AnshRaj112/physiq-backend/internal/database"
	"github.com/AnshRaj112/physiq-backend/internal/services"
)

// SeedOptions holds flags for the seed command.
type SeedOptions struct {
	*RootOptions
	File string
}

// NewMigrateCommand creates the migrate command.
func NewMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the SQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				log.Println("In-memory store has no schema; nothing to migrate")
				return nil
			}
			b, err := openBackends(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer b.Close()
			return b.migrate(cmd.Context())
		},
	}
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SeedOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert demo members and the reward catalog",
		Long: `Insert demo members and the reward catalog.

Records that already exist are skipped, so seeding twice is harmless.
Without --file the built-in demo data is used.

Example:
  physiq seed
  physiq seed --file ./seed.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			seed := database.DefaultSeed()
			if opts.File != "" {
				data, err := os.ReadFile(opts.File)
				if err != nil {
					return fmt.Errorf("read seed file: %w", err)
				}
				if seed, err = database.ParseSeed(data); err != nil {
					return err
				}
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				return fmt.Errorf("seeding the in-memory store has no lasting effect; use SEED_ON_START with serve")
			}
			b, err := openBackends(cmd.Context(), cfg, false)
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.migrate(cmd.Context()); err != nil {
				return err
			}
			res, err := database.Seed(cmd.Context(), b.store, clock.Real(), seed)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d users, %d rewards\n", res.Users, res.Rewards)
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.File, "file", "", "YAML seed file (defaults to the built-in demo data)")
	return cmd
}

// NewResetMonthlyCommand creates the reset-monthly command. It is meant to be
// run by an external scheduler at the start of each month.
func NewResetMonthlyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset-monthly",
		Short: "Zero every member's monthly vote count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.StoreDriver == config.StoreMemory {
				return fmt.Errorf("reset-monthly needs a persistent store")
			}
			b, err := openBackends(cmd.Context(), cfg, true)
			if err != nil {
				return err
			}
			defer b.Close()

			votes := services.NewVoteService(b.store, clock.Real())
			if b.redis != nil {
				votes = votes.WithCache(services.NewRedisCache(b.redis))
			}
			n, err := votes.ResetMonthlyVotes(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset monthly votes for %d members\n", n)
			return nil
		},
	}
}
