package llmclient

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/genai"

	"github.com/xkilldash9x/formpilot/api/schemas"
	"github.com/xkilldash9x/formpilot/internal/config"
)

type fakeGenerator struct {
	calls   atomic.Int32
	model   string
	config  *genai.GenerateContentConfig
	prompt  []*genai.Content
	respond func() (*genai.GenerateContentResponse, error)
}

func (f *fakeGenerator) GenerateContent(ctx context.Context, model string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.calls.Add(1)
	f.model, f.prompt, f.config = model, contents, cfg
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.respond()
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{Content: genai.NewContentFromText(text, genai.RoleModel)}},
	}
}

func testResolverConfig() config.ResolverConfig {
	return config.ResolverConfig{Model: "gemini-test", Temperature: 0, Timeout: 5 * time.Second, RateLimit: 100, Burst: 10}
}

func TestNewGeminiClient_RequiresKey(t *testing.T) {
	_, err := NewGeminiClient(context.Background(), testResolverConfig(), zaptest.NewLogger(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestGenerate(t *testing.T) {
	t.Run("returns candidate text and forwards options", func(t *testing.T) {
		gen := &fakeGenerator{respond: func() (*genai.GenerateContentResponse, error) {
			return textResponse(`{"email":"#mail"}`), nil
		}}
		c := newGeminiClient(gen, testResolverConfig(), zaptest.NewLogger(t))

		out, err := c.Generate(context.Background(), schemas.GenerationRequest{
			SystemPrompt: "system",
			UserPrompt:   "<form></form>",
			Options:      schemas.GenerationOptions{Temperature: 0.2, ForceJSONFormat: true},
		})
		require.NoError(t, err)
		assert.Equal(t, `{"email":"#mail"}`, out)
		assert.Equal(t, "gemini-test", gen.model)
		assert.Equal(t, "application/json", gen.config.ResponseMIMEType)
		require.NotNil(t, gen.config.Temperature)
		assert.InDelta(t, 0.2, *gen.config.Temperature, 1e-6)
		require.NotNil(t, gen.config.SystemInstruction)
		require.Len(t, gen.prompt, 1)
		assert.Equal(t, "<form></form>", gen.prompt[0].Parts[0].Text)
	})

	t.Run("empty text is an error", func(t *testing.T) {
		gen := &fakeGenerator{respond: func() (*genai.GenerateContentResponse, error) {
			return &genai.GenerateContentResponse{}, nil
		}}
		c := newGeminiClient(gen, testResolverConfig(), zaptest.NewLogger(t))
		_, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
		assert.ErrorIs(t, err, ErrEmptyResponse)
	})

	t.Run("sdk errors are wrapped", func(t *testing.T) {
		sdkErr := errors.New("quota exceeded")
		gen := &fakeGenerator{respond: func() (*genai.GenerateContentResponse, error) { return nil, sdkErr }}
		c := newGeminiClient(gen, testResolverConfig(), zaptest.NewLogger(t))
		_, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "x"})
		assert.ErrorIs(t, err, sdkErr)
	})

	t.Run("cancelled context stops at the limiter", func(t *testing.T) {
		gen := &fakeGenerator{respond: func() (*genai.GenerateContentResponse, error) { return textResponse("ok"), nil }}
		cfg := testResolverConfig()
		cfg.RateLimit = 0.001
		cfg.Burst = 1
		c := newGeminiClient(gen, cfg, zaptest.NewLogger(t))

		_, err := c.Generate(context.Background(), schemas.GenerationRequest{UserPrompt: "first"})
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err = c.Generate(ctx, schemas.GenerationRequest{UserPrompt: "second"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "rate limiter")
		assert.Equal(t, int32(1), gen.calls.Load())
	})
}
