package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/browser"
	"github.com/xkilldash9x/formpilot/internal/engine"
	"github.com/xkilldash9x/formpilot/internal/observability"
	"github.com/xkilldash9x/formpilot/internal/resolver"
	"github.com/xkilldash9x/formpilot/internal/store"
	"github.com/xkilldash9x/formpilot/internal/worker"
)

// Pool is a database pool the components own and close on shutdown.
// *pgxpool.Pool and pgxmock pools both satisfy it.
type Pool interface {
	store.DBPool
	Close()
}

// TagSuggester proposes industry tags for a page.
type TagSuggester interface {
	SuggestTags(ctx context.Context, url, html string) ([]string, error)
}

// Components holds the initialized services for one command invocation.
// Fields the requested options did not need stay nil.
type Components struct {
	Jobs     schemas.JobStore
	Profiles schemas.ProfileStore

	// Memory is set when no database is configured.
	Memory *store.MemoryStore

	LLM      schemas.LLMClient
	Resolver *resolver.LLMResolver
	Tags     TagSuggester

	// Sessions is the launcher as seen by the commands; Launcher keeps the concrete
	// type for its counters.
	Sessions schemas.SessionFactory
	Launcher *browser.Launcher

	Supervisor *worker.Supervisor
	Executor   *engine.Executor
	Dispatcher *engine.Dispatcher
	Notifier   schemas.Notifier
	DBPool     Pool
}

// Shutdown releases the components in reverse order of creation. Browser sessions
// are owned by the supervisor and are already closed once Run returns.
func (c *Components) Shutdown() {
	logger := observability.GetLogger()
	logger.Debug("Beginning components shutdown sequence.")

	if c.Launcher != nil {
		opened, closed := c.Launcher.Stats()
		if opened != closed {
			logger.Warn("Browser sessions left open at shutdown.",
				zap.Int64("opened", opened),
				zap.Int64("closed", closed),
			)
		}
	}

	if c.LLM != nil {
		if err := c.LLM.Close(); err != nil {
			logger.Warn("Error closing LLM client.", zap.Error(err))
		}
		logger.Debug("LLM client closed.")
	}

	if c.DBPool != nil {
		c.DBPool.Close()
		logger.Debug("Database connection pool closed.")
	}

	logger.Debug("Components shutdown sequence complete.")
}
