// Package cli wires the pipeline together behind the treasurywatch command.
package cli

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/voskhod/treasurywatch/config"
	"github.com/voskhod/treasurywatch/internal/checkers"
	"github.com/voskhod/treasurywatch/internal/extraction"
	"github.com/voskhod/treasurywatch/internal/logging"
	"github.com/voskhod/treasurywatch/internal/models"
	"github.com/voskhod/treasurywatch/internal/monitor"
	"github.com/voskhod/treasurywatch/internal/notify"
	"github.com/voskhod/treasurywatch/internal/ratelimit"
	"github.com/voskhod/treasurywatch/internal/registry"
	"github.com/voskhod/treasurywatch/internal/storage"
)

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	cfg := config.DefaultConfig()
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "treasurywatch",
		Short: "Monitor corporate treasury holdings across public sources",
		Long: `treasurywatch polls regulatory filings, official pages, social posts,
aggregators, and the chain itself for changes to tracked entities' treasury
holdings, and routes detected changes through an approval policy.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// The managed file is the source of record; the environment
			// still wins for individual settings. A missing file is created
			// from the current (env-resolved) values.
			manager, err := config.NewManager(
				config.WithConfigPath(configPath),
				config.WithInitialConfig(cfg),
			)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			loaded := manager.Get()
			loaded.ApplyEnv()
			*cfg = loaded

			if err := cfg.EnsureDirectories(); err != nil {
				return fmt.Errorf("create data directories: %w", err)
			}
			logging.Setup(cfg.LogLevel)

			// Log level follows file edits while a command is running.
			if err := manager.Watch(cmd.Context(), func(c config.Config) {
				c.ApplyEnv()
				logging.Setup(c.LogLevel)
			}); err != nil {
				return fmt.Errorf("watch config: %w", err)
			}
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file path (default: the user config dir)")

	rootCmd.AddCommand(newRunCmd(cfg))
	rootCmd.AddCommand(newEntitiesCmd(cfg))
	rootCmd.AddCommand(newPendingCmd(cfg))
	rootCmd.AddCommand(newApproveCmd(cfg))
	rootCmd.AddCommand(newRejectCmd(cfg))
	rootCmd.AddCommand(newRunsCmd(cfg))

	return rootCmd
}

func openStore(cfg *config.Config) (*storage.Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return storage.NewStore(cfg.DatabasePath)
}

func newRunCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one monitoring run across all sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			runType, _ := cmd.Flags().GetString("type")
			return executeRun(cmd.Context(), cfg, runType)
		},
	}
	cmd.Flags().String("type", "daily", "Run type; one run per type at a time")
	return cmd
}

func executeRun(ctx context.Context, cfg *config.Config, runType string) error {
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	model, err := extraction.NewChatModel(ctx, cfg)
	if err != nil {
		return fmt.Errorf("extraction delegate: %w", err)
	}

	limiter := ratelimit.NewHostLimiter(1)
	chks := []checkers.Checker{
		checkers.NewFilingsChecker(cfg, limiter),
		checkers.NewHoldingsPageChecker(cfg, limiter),
		checkers.NewAnnouncementChecker(cfg, limiter),
	}
	if cfg.SearchAPIURL != "" {
		chks = append(chks, checkers.NewSocialChecker(checkers.NewHTTPSearchClient(cfg, limiter)))
	}
	chks = append(chks,
		checkers.NewAggregatorChecker(cfg, limiter),
		checkers.NewOnchainChecker(cfg, limiter),
	)

	runner := monitor.NewRunner(
		store,
		chks,
		extraction.NewEngine(model),
		notify.New(cfg),
		time.Duration(cfg.StaleAfterDays)*24*time.Hour,
	)

	result, err := runner.Run(ctx, runType)
	if err != nil {
		return err
	}

	fmt.Printf("Run %d (%s) finished: %s\n", result.RunID, result.RunType, result.Status)
	fmt.Printf("  sources checked:    %d\n", result.Counters.SourcesChecked)
	fmt.Printf("  companies checked:  %d\n", result.Counters.CompaniesChecked)
	fmt.Printf("  updates detected:   %d\n", result.Counters.UpdatesDetected)
	fmt.Printf("  auto-approved:      %d\n", result.Counters.AutoApproved)
	fmt.Printf("  pending review:     %d\n", result.Counters.PendingReview)
	fmt.Printf("  notifications sent: %d\n", result.Counters.NotificationsSent)
	if len(result.Errors) > 0 {
		fmt.Printf("  errors (%d):\n", len(result.Errors))
		for _, e := range result.Errors {
			fmt.Printf("    - %s\n", e)
		}
	}
	return nil
}

func newEntitiesCmd(cfg *config.Config) *cobra.Command {
	entitiesCmd := &cobra.Command{
		Use:   "entities",
		Short: "Manage tracked entities",
	}

	entitiesCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List tracked entities",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			entities, err := registry.New(store).EntitiesToMonitor(cmd.Context())
			if err != nil {
				return err
			}
			if len(entities) == 0 {
				fmt.Println("no tracked entities; add one with: treasurywatch entities add")
				return nil
			}
			fmt.Printf("%-8s %-28s %-6s %14s  %s\n", "TICKER", "NAME", "ASSET", "HOLDINGS", "LAST UPDATED")
			for _, e := range entities {
				updated := "never"
				if !e.HoldingsLastUpdated.IsZero() {
					updated = e.HoldingsLastUpdated.Format("2006-01-02 15:04")
				}
				fmt.Printf("%-8s %-28s %-6s %14.4f  %s\n", e.Ticker, e.Name, e.Asset, e.CurrentHoldings, updated)
			}
			return nil
		},
	})

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Register a new tracked entity",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			flags := cmd.Flags()
			ticker, _ := flags.GetString("ticker")
			name, _ := flags.GetString("name")
			asset, _ := flags.GetString("asset")
			holdings, _ := flags.GetFloat64("holdings")
			cik, _ := flags.GetString("cik")
			holdingsURL, _ := flags.GetString("holdings-url")
			announcementURL, _ := flags.GetString("announcement-url")
			slug, _ := flags.GetString("aggregator-slug")
			wallets, _ := flags.GetStringSlice("wallet")
			queries, _ := flags.GetStringSlice("social-query")

			entity := &models.TrackedEntity{
				Ticker:          ticker,
				Name:            name,
				Asset:           asset,
				CurrentHoldings: holdings,
				Sources: models.SourceConfig{
					FilingIndexID:   cik,
					HoldingsPageURL: holdingsURL,
					AnnouncementURL: announcementURL,
					AggregatorSlug:  slug,
					WalletAddresses: wallets,
					SocialQueries:   queries,
				},
			}
			id, err := registry.New(store).Add(cmd.Context(), entity)
			if err != nil {
				return err
			}
			fmt.Printf("added %s (id %d)\n", entity.Ticker, id)
			return nil
		},
	}
	addCmd.Flags().String("ticker", "", "Ticker symbol (required)")
	addCmd.Flags().String("name", "", "Company name (required)")
	addCmd.Flags().String("asset", "BTC", "Tracked asset")
	addCmd.Flags().Float64("holdings", 0, "Current known holdings")
	addCmd.Flags().String("cik", "", "Regulatory filing index id (e.g. SEC CIK)")
	addCmd.Flags().String("holdings-url", "", "Dedicated holdings page URL")
	addCmd.Flags().String("announcement-url", "", "Press/announcement page URL")
	addCmd.Flags().String("aggregator-slug", "", "Slug on the public treasury aggregator")
	addCmd.Flags().StringSlice("wallet", nil, "Known wallet address (repeatable)")
	addCmd.Flags().StringSlice("social-query", nil, "Social search query (repeatable)")
	addCmd.MarkFlagRequired("ticker")
	addCmd.MarkFlagRequired("name")
	entitiesCmd.AddCommand(addCmd)

	return entitiesCmd
}

func newPendingCmd(cfg *config.Config) *cobra.Command {
	pendingCmd := &cobra.Command{
		Use:   "pending",
		Short: "Inspect the review queue",
	}
	pendingCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List updates awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			updates, err := store.ListPendingUpdates(cmd.Context())
			if err != nil {
				return err
			}
			if len(updates) == 0 {
				fmt.Println("review queue is empty")
				return nil
			}
			fmt.Printf("%-5s %-8s %14s %14s %6s %-18s %s\n",
				"ID", "TICKER", "CURRENT", "DETECTED", "CONF", "SOURCE", "REASON")
			for _, u := range updates {
				fmt.Printf("%-5d %-8s %14.4f %14.4f %6.2f %-18s %s\n",
					u.ID, u.Ticker, u.PreviousHoldings, u.DetectedHoldings,
					u.Confidence, u.Source, u.ApprovalReason)
			}
			return nil
		},
	})
	return pendingCmd
}

func newApproveCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <update-id>",
		Short: "Approve a pending update and apply it to the entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid update id %q", args[0])
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			actor, _ := cmd.Flags().GetString("actor")
			notes, _ := cmd.Flags().GetString("notes")
			if err := store.ApprovePendingUpdate(cmd.Context(), id, actor, notes); err != nil {
				return err
			}
			fmt.Printf("update %d approved\n", id)
			return nil
		},
	}
	cmd.Flags().String("actor", "manual", "Who is approving")
	cmd.Flags().String("notes", "", "Resolution notes")
	return cmd
}

func newRejectCmd(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reject <update-id>",
		Short: "Reject a pending update without touching the entity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid update id %q", args[0])
			}
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			actor, _ := cmd.Flags().GetString("actor")
			notes, _ := cmd.Flags().GetString("notes")
			if err := store.RejectPendingUpdate(cmd.Context(), id, actor, notes); err != nil {
				return err
			}
			fmt.Printf("update %d rejected\n", id)
			return nil
		},
	}
	cmd.Flags().String("actor", "manual", "Who is rejecting")
	cmd.Flags().String("notes", "", "Resolution notes")
	return cmd
}

func newRunsCmd(cfg *config.Config) *cobra.Command {
	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect run history",
	}
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent monitoring runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := store.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}
			fmt.Printf("%-5s %-8s %-10s %-17s %8s %8s %8s %7s\n",
				"ID", "TYPE", "STATUS", "STARTED", "UPDATES", "AUTO", "PENDING", "ERRORS")
			for _, r := range runs {
				fmt.Printf("%-5d %-8s %-10s %-17s %8d %8d %8d %7d\n",
					r.ID, r.RunType, r.Status, r.StartedAt.Format("2006-01-02 15:04"),
					r.Counters.UpdatesDetected, r.Counters.AutoApproved,
					r.Counters.PendingReview, r.Counters.ErrorCount)
			}
			return nil
		},
	}
	listCmd.Flags().Int("limit", 20, "Maximum runs to show")
	runsCmd.AddCommand(listCmd)
	return runsCmd
}
