package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/config"
	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/filler"
	"github.com/xkilldash9x/formpilot/internal/llmclient"
	"github.com/xkilldash9x/formpilot/internal/notify"
	"github.com/xkilldash9x/formpilot/internal/resolver"
	"github.com/xkilldash9x/formpilot/internal/store"
	"github.com/xkilldash9x/formpilot/internal/submit"
	"github.com/xkilldash9x/formpilot/internal/worker"
)

// Options selects which parts of the graph a command needs.
type Options struct {
	// SeedPath is a JSON seed document loaded into the in-memory store.
	// Ignored when a database URL is configured.
	SeedPath string

	// Browser builds the session launcher.
	Browser bool

	// Resolver builds the LLM client and the selector resolver.
	Resolver bool

	// Executor builds the full worker: supervisor, notifiers and the claim loop.
	// It implies Browser and Resolver.
	Executor bool
}

// ComponentFactory builds the Components for a command. It is an interface so the
// commands can be tested against a fake graph.
type ComponentFactory interface {
	Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (*Components, error)
}

type poolOpener func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error)

type llmOpener func(ctx context.Context, cfg config.ResolverConfig, logger *zap.Logger) (schemas.LLMClient, error)

// concreteFactory is the production implementation of the ComponentFactory.
type concreteFactory struct {
	openPool poolOpener
	openLLM  llmOpener
}

// NewComponentFactory creates a new production-ready component factory.
func NewComponentFactory() ComponentFactory {
	return &concreteFactory{
		openPool: func(ctx context.Context, cfg config.DatabaseConfig) (Pool, error) {
			return store.NewPool(ctx, cfg)
		},
		openLLM: func(ctx context.Context, cfg config.ResolverConfig, logger *zap.Logger) (schemas.LLMClient, error) {
			return llmclient.NewGeminiClient(ctx, cfg, logger)
		},
	}
}

// Create wires the requested components. On failure every component created so far
// is shut down before the error is returned.
func (f *concreteFactory) Create(ctx context.Context, cfg config.Interface, opts Options, logger *zap.Logger) (components *Components, initializationErr error) {
	components = &Components{}
	defer func() {
		if initializationErr != nil {
			logger.Warn("Component initialization failed, cleaning up partial components.", zap.Error(initializationErr))
			components.Shutdown()
			components = nil
		}
	}()

	if opts.Executor {
		opts.Browser = true
		opts.Resolver = true
	}

	if err := f.initStore(ctx, cfg, opts, components, logger); err != nil {
		return components, err
	}

	if opts.Resolver {
		llm, err := f.openLLM(ctx, cfg.Resolver(), logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		components.LLM = llm
		components.Resolver = resolver.New(llm, cfg.Resolver(), logger)
		components.Tags = components.Resolver
	}

	if opts.Browser {
		components.Launcher = browser.NewLauncher(cfg, logger)
		components.Sessions = components.Launcher
	}

	components.Dispatcher = engine.NewDispatcher(components.Jobs, logger)

	if !opts.Executor {
		return components, nil
	}

	pipeline := worker.NewPipeline(
		components.Resolver,
		filler.New(cfg, logger),
		submit.New(cfg, logger),
		logger,
	)
	supervisor, err := worker.NewSupervisor(cfg, logger, components.Jobs, components.Launcher, pipeline)
	if err != nil {
		return components, fmt.Errorf("failed to create supervisor: %w", err)
	}
	components.Supervisor = supervisor

	components.Notifier = buildNotifier(cfg.Notify(), logger)

	executor, err := engine.New(cfg, logger, components.Jobs, components.Profiles, supervisor, components.Notifier)
	if err != nil {
		return components, fmt.Errorf("failed to create executor: %w", err)
	}
	components.Executor = executor

	return components, nil
}

func (f *concreteFactory) initStore(ctx context.Context, cfg config.Interface, opts Options, c *Components, logger *zap.Logger) error {
	dbCfg := cfg.Database()
	if dbCfg.URL == "" {
		mem, err := openMemoryStore(opts.SeedPath)
		if err != nil {
			return err
		}
		if opts.SeedPath == "" {
			logger.Warn("No database configured and no seed given; using an empty in-memory store.",
				zap.String("hint", "set FORMPILOT_DATABASE_URL or pass --seed"))
		} else {
			logger.Info("Using in-memory store.", zap.String("seed", opts.SeedPath))
		}
		c.Memory = mem
		c.Jobs = mem
		c.Profiles = mem
		return nil
	}

	if !strings.HasPrefix(dbCfg.URL, "postgres://") && !strings.HasPrefix(dbCfg.URL, "postgresql://") {
		return errors.New("database URL must use the postgres:// or postgresql:// scheme (hint: check FORMPILOT_DATABASE_URL)")
	}

	pool, err := f.openPool(ctx, dbCfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	c.DBPool = pool

	dbStore, err := store.New(ctx, pool, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database store: %w", err)
	}
	c.Jobs = dbStore
	c.Profiles = dbStore
	return nil
}

func openMemoryStore(seedPath string) (*store.MemoryStore, error) {
	mem := store.NewMemoryStore()
	if seedPath == "" {
		return mem, nil
	}
	path, err := homedir.Expand(seedPath)
	if err != nil {
		return nil, fmt.Errorf("expanding seed path: %w", err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()
	if err := mem.LoadSeed(f); err != nil {
		return nil, fmt.Errorf("failed to load seed %s: %w", path, err)
	}
	return mem, nil
}

// buildNotifier always logs, and also posts to the webhook when one is configured.
func buildNotifier(cfg config.NotifyConfig, logger *zap.Logger) schemas.Notifier {
	notifiers := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(cfg, logger))
	}
	return notifiers
}
