package resolver

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

// LLMResolver resolves form selectors by asking a language model about the sanitized page.
type LLMResolver struct {
	llm    schemas.LLMClient
	cfg    config.ResolverConfig
	logger *zap.Logger
}

var _ schemas.SelectorResolver = (*LLMResolver)(nil)

// New returns a resolver backed by llm.
func New(llm schemas.LLMClient, cfg config.ResolverConfig, logger *zap.Logger) *LLMResolver {
	return &LLMResolver{llm: llm, cfg: cfg, logger: logger.Named("resolver")}
}

// Resolve returns the selector map for the page. Any model or decoding failure
// is returned as an error so the attempt fails without a partial fill.
func (r *LLMResolver) Resolve(ctx context.Context, raw string) (schemas.FieldSelectorMap, error) {
	sanitized, err := Sanitize(raw, r.cfg.MaxHTMLChars)
	if err != nil {
		return schemas.FieldSelectorMap{}, fmt.Errorf("sanitize page: %w", err)
	}

	reply, err := r.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: selectorSystemPrompt,
		UserPrompt:   buildSelectorPrompt(sanitized),
		Options: schemas.GenerationOptions{
			Temperature:     r.cfg.Temperature,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return schemas.FieldSelectorMap{}, fmt.Errorf("resolve selectors: %w", err)
	}

	m, err := DecodeSelectorMap(reply)
	if err != nil {
		r.logger.Warn("Resolver reply could not be decoded.", zap.Int("reply_len", len(reply)), zap.Error(err))
		return schemas.FieldSelectorMap{}, err
	}
	r.logger.Debug("Resolved form selectors.",
		zap.Int("html_bytes", len(sanitized)),
		zap.Strings("slots", m.Present()),
	)
	return m, nil
}
