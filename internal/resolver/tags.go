package resolver

import (
	"context"
	"fmt"

	"github.com/xkilldash9x/formpilot/api/schemas"
)

const tagsTemperature = 0.3

// SuggestTags asks the model for industry tags describing the page at url.
func (r *LLMResolver) SuggestTags(ctx context.Context, url, raw string) ([]string, error) {
	sanitized, err := Sanitize(raw, r.cfg.MaxHTMLChars)
	if err != nil {
		return nil, fmt.Errorf("sanitize page: %w", err)
	}
	reply, err := r.llm.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: tagsSystemPrompt,
		UserPrompt:   buildTagsPrompt(url, sanitized),
		Options:      schemas.GenerationOptions{Temperature: tagsTemperature},
	})
	if err != nil {
		return nil, fmt.Errorf("suggest tags: %w", err)
	}
	return ParseTags(reply), nil
}
