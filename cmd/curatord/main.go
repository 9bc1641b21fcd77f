package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/xaenox/curatord/internal/bus"
	"github.com/xaenox/curatord/internal/catalog"
	"github.com/xaenox/curatord/internal/curator"
	"github.com/xaenox/curatord/internal/models"
	"github.com/xaenox/curatord/internal/scheduler"
	"github.com/xaenox/curatord/internal/storage"
	"github.com/xaenox/curatord/internal/suggestion"
	"github.com/xaenox/curatord/pkg/config"
	"go.uber.org/zap"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "curatord",
		Short: "Curator scheduling and messaging service",
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "config.yaml", "path to config file")

	root.AddCommand(serveCmd(), runDueCmd(), expireCmd(), listenCmd(), registerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app bundles the wired-up service graph shared by the subcommands.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	store       storage.Storage
	collections catalog.CollectionStore
	items       catalog.ItemStore
	images      catalog.ImageStore
	messageBus  *bus.MessageBus
	suggestions *suggestion.Service
	curators    *curator.Service
}

func newApp() (*app, error) {
	logger, _ := zap.NewProduction()

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}

	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		a.store = storage.NewMemoryStorage()
		memCatalog := catalog.NewMemoryCatalog()
		a.collections, a.items, a.images = memCatalog, memCatalog, memCatalog
	} else {
		logger.Info("Using PostgreSQL storage")
		pg, err := storage.NewPostgresStorage(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		a.store = pg
		pgCatalog := catalog.NewPostgresCatalog(pg.DB())
		a.collections, a.items, a.images = pgCatalog, pgCatalog, pgCatalog
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	codec := bus.NewCodec(cfg.Bus.SharedSecret)
	a.messageBus = bus.NewMessageBus(client, codec, cfg.Bus.CommandChannel, cfg.Bus.ResponseChannel, logger)

	a.suggestions = suggestion.NewService(a.store, a.items, a.images, logger)

	var provider curator.LLMProvider
	if cfg.AI.Provider == "openai" {
		provider = curator.NewOpenAIProvider(cfg.AI.OpenAI.APIKey, cfg.AI.OpenAI.Model, cfg.AI.OpenAI.MaxTokens)
	} else {
		provider = curator.NewAnthropicProvider(cfg.AI.Anthropic.APIKey, cfg.AI.Anthropic.URL, cfg.AI.Anthropic.Model, cfg.AI.Anthropic.MaxTokens)
	}
	a.curators = curator.NewService(a.store, a.collections, a.suggestions, provider, cfg.AI.Temperature, logger)

	return a, nil
}

func (a *app) close() {
	a.store.Close()
	a.logger.Sync()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, run workers, and bus listener",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			runner := scheduler.NewRunner(func(ctx context.Context, curatorID string) error {
				_, err := a.curators.Run(ctx, curatorID, "")
				return err
			}, a.cfg.Scheduler.Workers, a.cfg.Scheduler.QueueSize, a.logger)
			runner.Start(ctx)

			sched := scheduler.New(a.store, runner, a.cfg.Scheduler.SweepInterval, a.logger)
			go sched.Start(ctx)

			dispatcher := bus.NewDispatcher(a.store, a.logger)
			go func() {
				if err := a.messageBus.ListenForResponses(ctx, dispatcher.Handle); err != nil && ctx.Err() == nil {
					a.logger.Error("Bus listener stopped", zap.Error(err))
				}
			}()

			a.logger.Info("curatord started")
			<-ctx.Done()
			runner.Wait()
			a.logger.Info("curatord stopped")
			return nil
		},
	}
}

func runDueCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run-due",
		Short: "Trigger all due curators once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			cmd.Println("Checking for scheduled curator runs...")

			// Runs are handed to the external curation worker over the bus;
			// publishing is fire-and-forget, so this command can exit as
			// soon as the sweep is done.
			enqueue := scheduler.EnqueueFunc(func(ctx context.Context, c *models.Curator) error {
				if err := a.messageBus.RunCurator(ctx, c, ""); err != nil {
					cmd.Printf("✗ Failed to queue curator %s: %v\n", c.ID, err)
					return err
				}
				cmd.Printf("✓ Curator %s queued successfully\n", c.ID)
				return nil
			})

			sched := scheduler.New(a.store, enqueue, a.cfg.Scheduler.SweepInterval, a.logger)
			result, err := sched.RunDue(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to query due curators: %w", err)
			}

			if result.Due == 0 {
				cmd.Println("No curators are due to run.")
			}
			cmd.Println("Scheduled curator run complete.")
			return nil
		},
	}
}

func expireCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "expire-suggestions",
		Short: "Expire pending suggestions past their review window",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			expired, err := a.suggestions.ExpirePending(cmd.Context())
			if err != nil {
				return err
			}
			cmd.Printf("Expired %d suggestion(s).\n", expired)
			return nil
		},
	}
}

func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen",
		Short: "Consume curator responses from the bus",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			dispatcher := bus.NewDispatcher(a.store, a.logger)
			a.logger.Info("Listening for curator responses")
			err = a.messageBus.ListenForResponses(ctx, dispatcher.Handle)
			if ctx.Err() != nil {
				return nil
			}
			return err
		},
	}
}

func registerCmd() *cobra.Command {
	var (
		collectionID string
		prompt       string
		name         string
		autoApprove  bool
		threshold    int
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a curator and announce it to the curation worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			c := &models.Curator{
				CollectionID:        collectionID,
				Name:                name,
				Prompt:              prompt,
				Status:              models.CuratorInactive,
				ScheduleType:        models.ScheduleDaily,
				AutoApprove:         autoApprove,
				ConfidenceThreshold: threshold,
			}
			if err := a.store.CreateCurator(ctx, c); err != nil {
				return err
			}

			var issuer catalog.CredentialIssuer = catalog.LocalIssuer{}
			token, err := issuer.IssueBearerToken(ctx, c.ID, "curator-token")
			if err != nil {
				return err
			}
			if err := a.messageBus.RegisterCurator(ctx, c, token); err != nil {
				return err
			}

			cmd.Printf("Curator %s registered for collection %s\n", c.ID, c.CollectionID)
			return nil
		},
	}

	cmd.Flags().StringVar(&collectionID, "collection", "", "collection id the curator manages")
	cmd.Flags().StringVar(&prompt, "prompt", "", "natural-language curation prompt")
	cmd.Flags().StringVar(&name, "name", "", "display name for the curator")
	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "execute high-confidence suggestions without review")
	cmd.Flags().IntVar(&threshold, "confidence-threshold", 80, "minimum confidence for auto-approval")
	cmd.MarkFlagRequired("collection")
	cmd.MarkFlagRequired("prompt")

	return cmd
}
