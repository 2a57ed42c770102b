package browser

import (
	"strings"

	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/formpilot/internal/config"
)

// allocatorFlags computes the Chrome command line flags layered on top of
// chromedp's defaults. Keys carry no leading dashes; chromedp adds them.
func allocatorFlags(cfg config.BrowserConfig) map[string]interface{} {
	flags := map[string]interface{}{
		"no-sandbox":                      true,
		"disable-blink-features":          "AutomationControlled",
		"enable-automation":               false,
		"disable-dev-shm-usage":           true,
		"disable-features":                "Translate,OptimizationHints,MediaRouter",
		"disable-background-networking":   true,
		"disable-renderer-backgrounding":  true,
		"no-first-run":                    true,
		"no-default-browser-check":        true,
		"password-store":                  "basic",
		"use-mock-keychain":               true,
		"disable-popup-blocking":          true,
		"disable-notifications":           true,
		"disable-session-crashed-bubble":  true,
		"hide-crash-restore-bubble":       true,
		"disable-ipc-flooding-protection": true,
	}
	if !cfg.Headless {
		flags["headless"] = false
	}
	if cfg.IgnoreTLSErrors {
		flags["ignore-certificate-errors"] = true
		flags["allow-insecure-localhost"] = true
	}
	if cfg.DisableCache {
		flags["disable-cache"] = true
		flags["disk-cache-size"] = "0"
		flags["media-cache-size"] = "0"
	}
	if cfg.Locale != "" {
		flags["lang"] = cfg.Locale
	}

	// User supplied args win over everything above.
	for _, arg := range cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimLeft(strings.TrimSpace(arg), "-"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			flags[name] = value
		} else {
			flags[name] = true
		}
	}
	return flags
}

// DefaultAllocatorOptions returns the exec allocator options for one session browser.
func DefaultAllocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	for name, value := range allocatorFlags(cfg) {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	if cfg.Viewport.Width > 0 && cfg.Viewport.Height > 0 {
		opts = append(opts, chromedp.WindowSize(cfg.Viewport.Width, cfg.Viewport.Height))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}
