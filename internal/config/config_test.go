package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -- Constructor and Defaults Tests --

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "formpilot", cfg.Logger().ServiceName)
	assert.Equal(t, 3, cfg.Engine().MaxRetries)
	assert.Equal(t, 1, cfg.Engine().Concurrency)
	assert.True(t, cfg.Browser().Headless)
	assert.True(t, cfg.Browser().IgnoreTLSErrors)
	assert.Equal(t, 1280, cfg.Browser().Viewport.Width)
	assert.Equal(t, 25*time.Second, cfg.Network().NavigationTimeout)
	assert.Equal(t, 30000, cfg.Resolver().MaxHTMLChars)
	assert.Equal(t, 5*time.Second, cfg.Submit().SettleDelay)
	assert.Equal(t, 3*time.Second, cfg.Submit().ConfirmWait)
	assert.Equal(t, DefaultLabelPattern, cfg.Submit().LabelPattern)
	assert.NoError(t, cfg.Validate())
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Engine", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.EngineCfg.Concurrency = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.concurrency must be a positive integer")

		cfg = NewDefaultConfig()
		cfg.EngineCfg.MaxRetries = 0
		err = cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "engine.max_retries")
	})

	t.Run("Network", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.NetworkCfg.IdleTimeout = 0
		assert.ErrorContains(t, cfg.Validate(), "network.idle_timeout must be a positive duration")

		cfg = NewDefaultConfig()
		cfg.NetworkCfg.QuietPeriod = -time.Millisecond
		assert.ErrorContains(t, cfg.Validate(), "network.quiet_period must not be negative")

		cfg = NewDefaultConfig()
		cfg.NetworkCfg.QuietPeriod = 0
		assert.NoError(t, cfg.Validate())
	})

	t.Run("Browser", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.BrowserCfg.Viewport.Height = 0
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "browser.viewport")
	})

	t.Run("Resolver", func(t *testing.T) {
		valid := NewDefaultConfig().ResolverCfg
		assert.NoError(t, valid.Validate())

		noModel := valid
		noModel.Model = ""
		assert.ErrorContains(t, noModel.Validate(), "model is required")

		noRate := valid
		noRate.RateLimit = 0
		assert.ErrorContains(t, noRate.Validate(), "rate_limit")
	})

	t.Run("Submit", func(t *testing.T) {
		valid := NewDefaultConfig().SubmitCfg
		assert.NoError(t, valid.Validate())

		badPattern := valid
		badPattern.LabelPattern = "(送信"
		assert.ErrorContains(t, badPattern.Validate(), "label_pattern does not compile")

		negative := valid
		negative.SettleDelay = -time.Second
		assert.ErrorContains(t, negative.Validate(), "must not be negative")
	})

	t.Run("LabelPattern", func(t *testing.T) {
		for _, pattern := range []string{
			DefaultLabelPattern,
			`Send|Submit`,
			`(?i)(?:send|ok)\s*$`,
			`^\(确认\)$`,
		} {
			assert.NoError(t, ValidateLabelPattern(pattern), pattern)
		}

		for pattern, want := range map[string]string{
			`(?P<verb>send)`: "is not supported in the browser",
			`send\z`:         `\z is not supported`,
			`send(?s).`:      "is not supported in the browser",
			`(?i)a(?i)b`:     "is not supported in the browser",
			`\pL+`:           `\p is not supported`,
			`[[:alpha:]]`:    "[[: is not supported",
			`(send`:          "does not compile",
		} {
			assert.ErrorContains(t, ValidateLabelPattern(pattern), want, pattern)
		}
	})
}

// -- Loading Tests --

func TestNewConfigFromViper(t *testing.T) {
	t.Run("yaml overrides defaults", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.SetConfigType("yaml")
		yaml := []byte(`
engine:
  owner_id: "owner-1"
  batch_name: "spring-campaign"
  concurrency: 4
browser:
  headless: false
  args: ["lang=ja", "disable-gpu"]
submit:
  settle_delay: 8s
`)
		require.NoError(t, v.ReadConfig(bytes.NewBuffer(yaml)))

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "owner-1", cfg.Engine().OwnerID)
		assert.Equal(t, "spring-campaign", cfg.Engine().BatchName)
		assert.Equal(t, 4, cfg.Engine().Concurrency)
		assert.False(t, cfg.Browser().Headless)
		assert.Equal(t, []string{"lang=ja", "disable-gpu"}, cfg.Browser().Args)
		assert.Equal(t, 8*time.Second, cfg.Submit().SettleDelay)
		assert.Equal(t, 3, cfg.Engine().MaxRetries, "unset keys keep their defaults")
	})

	t.Run("api key from conventional env var", func(t *testing.T) {
		t.Setenv("GEMINI_API_KEY", "secret-key")
		v := viper.New()
		SetDefaults(v)

		cfg, err := NewConfigFromViper(v)
		require.NoError(t, err)
		assert.Equal(t, "secret-key", cfg.Resolver().APIKey)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		v := viper.New()
		SetDefaults(v)
		v.Set("engine.max_retries", 0)

		_, err := NewConfigFromViper(v)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetBrowserHeadless(false)
	iface.SetEngineOwnerID("owner-2")
	iface.SetEngineBatchName("batch")
	iface.SetEngineConcurrency(3)
	iface.SetEngineExitWhenIdle(true)
	iface.SetEngineQueuedOnly(true)

	assert.False(t, iface.Browser().Headless)
	assert.Equal(t, "owner-2", iface.Engine().OwnerID)
	assert.Equal(t, "batch", iface.Engine().BatchName)
	assert.Equal(t, 3, iface.Engine().Concurrency)
	assert.True(t, iface.Engine().ExitWhenIdle)
	assert.True(t, iface.Engine().QueuedOnly)
}
