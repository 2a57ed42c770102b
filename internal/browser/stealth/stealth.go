package stealth

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/formpilot/internal/config"
)

//go:embed evasions.js
var evasionsScript string

// Persona defines the browser characteristics to emulate.
type Persona struct {
	UserAgent string   `json:"userAgent"`
	Platform  string   `json:"platform"`
	Languages []string `json:"languages"`
	Timezone  string   `json:"-"`
	Locale    string   `json:"-"`
	Width     int64    `json:"-"`
	Height    int64    `json:"-"`
}

// DefaultPersona is a Japanese-locale Windows desktop Chrome.
var DefaultPersona = Persona{
	UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
	Platform:  "Win32",
	Languages: []string{"ja-JP", "ja", "en-US"},
	Timezone:  "Asia/Tokyo",
	Locale:    "ja-JP",
	Width:     1280,
	Height:    800,
}

// PersonaFromConfig overlays the browser config onto DefaultPersona.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := DefaultPersona
	p.Languages = append([]string(nil), DefaultPersona.Languages...)
	if cfg.UserAgent != "" {
		p.UserAgent = cfg.UserAgent
	}
	if cfg.Timezone != "" {
		p.Timezone = cfg.Timezone
	}
	if cfg.Locale != "" {
		p.Locale = cfg.Locale
		base := strings.SplitN(cfg.Locale, "-", 2)[0]
		p.Languages = dedupe([]string{cfg.Locale, base, "en-US"})
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		p.Width, p.Height = int64(cfg.Viewport.Width), int64(cfg.Viewport.Height)
	}
	return p
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// Script returns the new-document script for p: the persona values followed by the evasions.
func Script(p Persona) (string, error) {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("failed to encode persona: %w", err)
	}
	return fmt.Sprintf("window.__formpilotPersona = %s;\n%s", data, evasionsScript), nil
}

// Apply returns the CDP actions that make the session look user-operated. They
// must run before the first navigation.
func Apply(p Persona, logger *zap.Logger) (chromedp.Tasks, error) {
	script, err := Script(p)
	if err != nil {
		return nil, err
	}
	if logger != nil {
		logger.Debug("Applying browser stealth persona.",
			zap.String("user_agent", p.UserAgent),
			zap.String("locale", p.Locale),
			zap.String("timezone", p.Timezone),
		)
	}

	tasks := chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(acceptLanguage(p.Languages)).
			WithPlatform(p.Platform),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if _, err := page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
				return fmt.Errorf("failed to inject evasions script: %w", err)
			}
			return nil
		}),
	}
	if p.Timezone != "" {
		tasks = append(tasks, emulation.SetTimezoneOverride(p.Timezone))
	}
	if p.Locale != "" {
		tasks = append(tasks, emulation.SetLocaleOverride().WithLocale(p.Locale))
	}
	if p.Width > 0 && p.Height > 0 {
		tasks = append(tasks, chromedp.EmulateViewport(p.Width, p.Height))
	}
	if len(p.Languages) > 0 {
		tasks = append(tasks, network.SetExtraHTTPHeaders(network.Headers{
			"Accept-Language": acceptLanguage(p.Languages),
		}))
	}
	return tasks, nil
}

// acceptLanguage renders languages as an Accept-Language value with descending weights.
func acceptLanguage(langs []string) string {
	parts := make([]string, 0, len(langs))
	for i, l := range langs {
		if i == 0 {
			parts = append(parts, l)
			continue
		}
		q := 1.0 - 0.1*float64(i)
		if q < 0.1 {
			q = 0.1
		}
		parts = append(parts, fmt.Sprintf("%s;q=%.1f", l, q))
	}
	return strings.Join(parts, ",")
}
