package config

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
)

// Interface defines the contract for accessing application configuration.
// Components depend on it rather than on *Config so tests can substitute values.
type Interface interface {
	Logger() LoggerConfig
	Database() DatabaseConfig
	Browser() BrowserConfig
	Network() NetworkConfig
	Engine() EngineConfig
	Resolver() ResolverConfig
	Submit() SubmitConfig
	Notify() NotifyConfig

	// Browser Setters
	SetBrowserHeadless(bool)

	// Engine Setters
	SetEngineOwnerID(string)
	SetEngineBatchName(string)
	SetEngineConcurrency(int)
	SetEngineExitWhenIdle(bool)
	SetEngineQueuedOnly(bool)
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	DatabaseCfg DatabaseConfig `mapstructure:"database" yaml:"database"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	NetworkCfg  NetworkConfig  `mapstructure:"network" yaml:"network"`
	EngineCfg   EngineConfig   `mapstructure:"engine" yaml:"engine"`
	ResolverCfg ResolverConfig `mapstructure:"resolver" yaml:"resolver"`
	SubmitCfg   SubmitConfig   `mapstructure:"submit" yaml:"submit"`
	NotifyCfg   NotifyConfig   `mapstructure:"notify" yaml:"notify"`
}

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Database() DatabaseConfig { return c.DatabaseCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Network() NetworkConfig   { return c.NetworkCfg }
func (c *Config) Engine() EngineConfig     { return c.EngineCfg }
func (c *Config) Resolver() ResolverConfig { return c.ResolverCfg }
func (c *Config) Submit() SubmitConfig     { return c.SubmitCfg }
func (c *Config) Notify() NotifyConfig     { return c.NotifyCfg }

func (c *Config) SetBrowserHeadless(b bool) { c.BrowserCfg.Headless = b }

func (c *Config) SetEngineOwnerID(id string)     { c.EngineCfg.OwnerID = id }
func (c *Config) SetEngineBatchName(name string) { c.EngineCfg.BatchName = name }
func (c *Config) SetEngineConcurrency(n int)     { c.EngineCfg.Concurrency = n }
func (c *Config) SetEngineExitWhenIdle(b bool)   { c.EngineCfg.ExitWhenIdle = b }
func (c *Config) SetEngineQueuedOnly(b bool)     { c.EngineCfg.QueuedOnly = b }

// LoggerConfig configures the global zap logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig maps log levels to color names for the console encoder.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// DatabaseConfig holds the job store connection settings. An empty URL selects the in-memory store.
type DatabaseConfig struct {
	URL            string        `mapstructure:"url" yaml:"url"`
	MaxConns       int32         `mapstructure:"max_conns" yaml:"max_conns"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
}

// ViewportConfig is the fixed browser window size.
type ViewportConfig struct {
	Width  int `mapstructure:"width" yaml:"width"`
	Height int `mapstructure:"height" yaml:"height"`
}

// BrowserConfig configures the execution session launcher.
type BrowserConfig struct {
	Headless        bool           `mapstructure:"headless" yaml:"headless"`
	DisableCache    bool           `mapstructure:"disable_cache" yaml:"disable_cache"`
	IgnoreTLSErrors bool           `mapstructure:"ignore_tls_errors" yaml:"ignore_tls_errors"`
	ExecPath        string         `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent       string         `mapstructure:"user_agent" yaml:"user_agent"`
	Locale          string         `mapstructure:"locale" yaml:"locale"`
	Timezone        string         `mapstructure:"timezone" yaml:"timezone"`
	Args            []string       `mapstructure:"args" yaml:"args"`
	Viewport        ViewportConfig `mapstructure:"viewport" yaml:"viewport"`
	CloseTimeout    time.Duration  `mapstructure:"close_timeout" yaml:"close_timeout"`
	Debug           bool           `mapstructure:"debug" yaml:"debug"`
}

// NetworkConfig bounds every network-facing wait of a session.
type NetworkConfig struct {
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`
	QuietPeriod       time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// EngineConfig configures the executor loop and the retry supervisor.
type EngineConfig struct {
	OwnerID         string        `mapstructure:"owner_id" yaml:"owner_id"`
	BatchName       string        `mapstructure:"batch_name" yaml:"batch_name"`
	ProfileID       string        `mapstructure:"profile_id" yaml:"profile_id"`
	Concurrency     int           `mapstructure:"concurrency" yaml:"concurrency"`
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`
	PollInterval    time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	ExitWhenIdle    bool          `mapstructure:"exit_when_idle" yaml:"exit_when_idle"`
	QueuedOnly      bool          `mapstructure:"queued_only" yaml:"queued_only"`
	FinalizeTimeout time.Duration `mapstructure:"finalize_timeout" yaml:"finalize_timeout"`
	ActionTimeout   time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
}

// ResolverConfig configures the LLM-backed field selector resolver.
type ResolverConfig struct {
	Model        string        `mapstructure:"model" yaml:"model"`
	APIKey       string        `mapstructure:"api_key" yaml:"-"`
	Temperature  float32       `mapstructure:"temperature" yaml:"temperature"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxHTMLChars int           `mapstructure:"max_html_chars" yaml:"max_html_chars"`
	RateLimit    float64       `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst        int           `mapstructure:"burst" yaml:"burst"`
}

// SubmitConfig holds the fixed waits and the final-button label pattern of the submission engine.
type SubmitConfig struct {
	ConfirmWait   time.Duration `mapstructure:"confirm_wait" yaml:"confirm_wait"`
	RescanDelay   time.Duration `mapstructure:"rescan_delay" yaml:"rescan_delay"`
	SettleDelay   time.Duration `mapstructure:"settle_delay" yaml:"settle_delay"`
	PostFillPause time.Duration `mapstructure:"post_fill_pause" yaml:"post_fill_pause"`
	LabelPattern  string        `mapstructure:"label_pattern" yaml:"label_pattern"`
}

// NotifyConfig selects the batch completion notifiers. The log notifier is always active.
type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url" yaml:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// DefaultLabelPattern matches the labels of a form's final send button.
const DefaultLabelPattern = `(?i)送信|完了|Send|Submit|申|込`

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for every configuration key.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "formpilot")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")
	v.SetDefault("logger.colors.dpanic", "magenta")
	v.SetDefault("logger.colors.panic", "magenta")
	v.SetDefault("logger.colors.fatal", "magenta")

	// -- Database --
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.connect_timeout", "10s")

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_cache", true)
	v.SetDefault("browser.ignore_tls_errors", true)
	v.SetDefault("browser.user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	v.SetDefault("browser.locale", "ja-JP")
	v.SetDefault("browser.timezone", "Asia/Tokyo")
	v.SetDefault("browser.viewport.width", 1280)
	v.SetDefault("browser.viewport.height", 800)
	v.SetDefault("browser.close_timeout", "10s")
	v.SetDefault("browser.debug", false)
	v.SetDefault("browser.exec_path", "")

	// -- Network --
	v.SetDefault("network.navigation_timeout", "25s")
	v.SetDefault("network.idle_timeout", "10s")
	v.SetDefault("network.quiet_period", "500ms")

	// -- Engine --
	// Empty defaults make the keys visible to AutomaticEnv on Unmarshal.
	v.SetDefault("engine.owner_id", "")
	v.SetDefault("engine.batch_name", "")
	v.SetDefault("engine.profile_id", "")
	v.SetDefault("engine.concurrency", 1)
	v.SetDefault("engine.max_retries", 3)
	v.SetDefault("engine.poll_interval", "5s")
	v.SetDefault("engine.exit_when_idle", false)
	v.SetDefault("engine.queued_only", false)
	v.SetDefault("engine.finalize_timeout", "15s")
	v.SetDefault("engine.action_timeout", "5s")

	// -- Resolver --
	v.SetDefault("resolver.model", "gemini-2.5-flash")
	v.SetDefault("resolver.temperature", 0.0)
	v.SetDefault("resolver.timeout", "60s")
	v.SetDefault("resolver.max_html_chars", 30000)
	v.SetDefault("resolver.rate_limit", 1.0)
	v.SetDefault("resolver.burst", 2)

	// -- Submit --
	v.SetDefault("submit.confirm_wait", "3s")
	v.SetDefault("submit.rescan_delay", "2s")
	v.SetDefault("submit.settle_delay", "5s")
	v.SetDefault("submit.post_fill_pause", "1s")
	v.SetDefault("submit.label_pattern", DefaultLabelPattern)

	// -- Notify --
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", "10s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values are commonly provided under their conventional names.
	_ = v.BindEnv("resolver.api_key", "FORMPILOT_RESOLVER_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("database.url", "FORMPILOT_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.expandPaths(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func (c *Config) expandPaths() error {
	var err error
	if c.LoggerCfg.LogFile, err = homedir.Expand(c.LoggerCfg.LogFile); err != nil {
		return fmt.Errorf("expanding logger.log_file: %w", err)
	}
	if c.BrowserCfg.ExecPath, err = homedir.Expand(c.BrowserCfg.ExecPath); err != nil {
		return fmt.Errorf("expanding browser.exec_path: %w", err)
	}
	return nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.EngineCfg.Concurrency <= 0 {
		return fmt.Errorf("engine.concurrency must be a positive integer")
	}
	if c.EngineCfg.MaxRetries <= 0 {
		return fmt.Errorf("engine.max_retries must be a positive integer")
	}
	if c.EngineCfg.PollInterval <= 0 {
		return fmt.Errorf("engine.poll_interval must be a positive duration")
	}
	if c.EngineCfg.FinalizeTimeout <= 0 {
		return fmt.Errorf("engine.finalize_timeout must be a positive duration")
	}
	if c.NetworkCfg.NavigationTimeout <= 0 {
		return fmt.Errorf("network.navigation_timeout must be a positive duration")
	}
	if c.NetworkCfg.IdleTimeout <= 0 {
		return fmt.Errorf("network.idle_timeout must be a positive duration")
	}
	if c.NetworkCfg.QuietPeriod < 0 {
		return fmt.Errorf("network.quiet_period must not be negative")
	}
	if c.BrowserCfg.Viewport.Width <= 0 || c.BrowserCfg.Viewport.Height <= 0 {
		return fmt.Errorf("browser.viewport width and height must be positive")
	}
	if err := c.ResolverCfg.Validate(); err != nil {
		return fmt.Errorf("resolver configuration invalid: %w", err)
	}
	if err := c.SubmitCfg.Validate(); err != nil {
		return fmt.Errorf("submit configuration invalid: %w", err)
	}
	return nil
}

// Validate checks the resolver settings. The API key is checked when the client is built,
// so commands that never call the model can run without one.
func (r *ResolverConfig) Validate() error {
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.MaxHTMLChars <= 0 {
		return errors.New("max_html_chars must be positive")
	}
	if r.RateLimit <= 0 {
		return errors.New("rate_limit must be positive")
	}
	if r.Burst <= 0 {
		return errors.New("burst must be positive")
	}
	return nil
}

// Validate checks the submission waits and the label pattern.
func (s *SubmitConfig) Validate() error {
	if s.ConfirmWait < 0 || s.RescanDelay < 0 || s.SettleDelay < 0 || s.PostFillPause < 0 {
		return errors.New("waits must not be negative")
	}
	return ValidateLabelPattern(s.LabelPattern)
}

// unportableSyntax lists RE2 constructs that a browser RegExp rejects or reads
// differently.
var unportableSyntax = []string{`\A`, `\z`, `\Q`, `\E`, `\C`, `\p`, `\P`, `[[:`}

// ValidateLabelPattern checks that pattern compiles and stays within the syntax
// shared by RE2 and JavaScript, since it is evaluated inside the page. The only
// flag allowed is a leading (?i).
func ValidateLabelPattern(pattern string) error {
	if _, err := regexp.Compile(pattern); err != nil {
		return fmt.Errorf("label_pattern does not compile: %w", err)
	}
	body := strings.TrimPrefix(pattern, "(?i)")
	for i := 0; i+1 < len(body); i++ {
		if body[i] == '\\' {
			i++
			continue
		}
		if body[i] == '(' && body[i+1] == '?' && !strings.HasPrefix(body[i+2:], ":") {
			return fmt.Errorf("label_pattern: group %q is not supported in the browser; only (?:...) and a leading (?i) are", body[i:min(i+4, len(body))])
		}
	}
	for _, tok := range unportableSyntax {
		if strings.Contains(body, tok) {
			return fmt.Errorf("label_pattern: %s is not supported in the browser", tok)
		}
	}
	return nil
}
