// File: internal/config/config_test.go
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

	// Verify a few key defaults to ensure the mechanism works.
	assert.Equal(t, "info", cfg.Logger().Level)
	assert.Equal(t, "cadence", cfg.Logger().ServiceName)
	assert.Equal(t, IntRange{Min: 35, Max: 65}, cfg.Stealth().Typing.WPMRange)
	assert.True(t, cfg.Stealth().Typing.BurstEnabled)
	assert.Equal(t, IntRange{Min: 1000, Max: 3000}, cfg.Stealth().Timing.ThinkTimeMs)
	assert.Equal(t, int64(30*60*1000), cfg.Stealth().Behavioral.FatigueOnsetMs)
	assert.ElementsMatch(t, []string{"adjacent_key", "transposition", "omission", "doubling"}, cfg.Stealth().Errors.TypoTypes)
	assert.Equal(t, time.Second, cfg.Delivery().RetryDelay)
	assert.Equal(t, 3, cfg.Delivery().MaxRetries)
	assert.Equal(t, "paced", cfg.Delivery().DefaultMode)

	require.NoError(t, cfg.Validate(), "defaults must always validate")
}

func TestSetters(t *testing.T) {
	cfg := NewDefaultConfig()
	var iface Interface = cfg

	iface.SetTypingWPMRange(40, 60)
	iface.SetTypoProbability(0)
	iface.SetFatigueSimulation(false)
	iface.SetDeliveryMode("instant")
	iface.SetDeliveryTimingMultiplier(0.5)
	iface.SetDeliveryEnableTypos(false)

	assert.Equal(t, IntRange{Min: 40, Max: 60}, iface.Stealth().Typing.WPMRange)
	assert.Zero(t, iface.Stealth().Errors.TypoProbability)
	assert.False(t, iface.Stealth().Behavioral.FatigueSimulation)
	assert.Equal(t, "instant", iface.Delivery().DefaultMode)
	assert.Equal(t, 0.5, iface.Delivery().TimingMultiplier)
	assert.False(t, iface.Delivery().EnableTypos)
}

// -- Validation Logic Tests --

func TestConfigValidation(t *testing.T) {
	t.Run("Typing Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Stealth().Typing
		assert.NoError(t, valid.Validate())

		zeroWPM := valid
		zeroWPM.WPMRange.Min = 0
		err := zeroWPM.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "wpm_range.min must be greater than 0")

		inverted := valid
		inverted.WPMRange = IntRange{Min: 80, Max: 40}
		err = inverted.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "wpm_range.max must be >= wpm_range.min")

		badVariance := valid
		badVariance.SpeedVariance = 1.0
		assert.Error(t, badVariance.Validate())

		badPause := valid
		badPause.PauseProbability = 1.5
		assert.Error(t, badPause.Validate())
	})

	t.Run("Timing Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Stealth().Timing
		assert.NoError(t, valid.Validate())

		invertedThink := valid
		invertedThink.ThinkTimeMs = IntRange{Min: 10, Max: 5}
		err := invertedThink.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "think_time_ms")

		badDistraction := valid
		badDistraction.DistractionProbability = -0.1
		assert.Error(t, badDistraction.Validate())
	})

	t.Run("Behavioral Validation", func(t *testing.T) {
		b := BehavioralConfig{FatigueSimulation: true, FatigueOnsetMs: 0}
		err := b.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "fatigue_onset_ms must be greater than 0")

		b.FatigueSimulation = false
		assert.NoError(t, b.Validate(), "disabled fatigue ignores the onset")
	})

	t.Run("Errors Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Stealth().Errors
		assert.NoError(t, valid.Validate())

		unknown := valid
		unknown.TypoTypes = []string{"adjacent_key", "homophone"}
		err := unknown.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), `unknown typo type "homophone"`)

		badCorrection := valid
		badCorrection.CorrectionProbability = 2
		assert.Error(t, badCorrection.Validate())
	})

	t.Run("Delivery Validation", func(t *testing.T) {
		valid := NewDefaultConfig().Delivery()
		assert.NoError(t, valid.Validate())

		negRetries := valid
		negRetries.MaxRetries = -1
		assert.Error(t, negRetries.Validate())

		zeroMultiplier := valid
		zeroMultiplier.TimingMultiplier = 0
		err := zeroMultiplier.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "timing_multiplier must be greater than 0")

		badMode := valid
		badMode.DefaultMode = "teleport"
		err = badMode.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "default_mode must be one of instant, paced")

		negRate := valid
		negRate.RateLimit = -1
		assert.Error(t, negRate.Validate())

		noBurst := valid
		noBurst.RateLimit = 2
		noBurst.RateBurst = 0
		err = noBurst.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "rate_burst")

		limited := valid
		limited.RateLimit = 0.5
		assert.NoError(t, limited.Validate())
	})

	t.Run("Top Level Wraps Section Errors", func(t *testing.T) {
		cfg := NewDefaultConfig()
		cfg.StealthCfg.Errors.TypoProbability = 3
		err := cfg.Validate()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "stealth configuration invalid")
	})
}

// -- Viper Integration Tests --

func TestNewConfigFromViper(t *testing.T) {
	yamlConfig := []byte(`
logger:
  level: debug
stealth:
  typing:
    wpm_range:
      min: 50
      max: 90
    burst_enabled: false
  errors:
    typo_probability: 0
    typo_types: [omission, doubling]
delivery:
  retry_delay: 250ms
  fallback_channel: backup
  default_mode: instant
`)

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(bytes.NewBuffer(yamlConfig)))

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logger().Level)
	assert.Equal(t, IntRange{Min: 50, Max: 90}, cfg.Stealth().Typing.WPMRange)
	assert.False(t, cfg.Stealth().Typing.BurstEnabled)
	// Untouched keys keep their defaults.
	assert.Equal(t, 0.15, cfg.Stealth().Typing.SpeedVariance)
	assert.Equal(t, []string{"omission", "doubling"}, cfg.Stealth().Errors.TypoTypes)
	assert.Equal(t, 250*time.Millisecond, cfg.Delivery().RetryDelay)
	assert.Equal(t, "backup", cfg.Delivery().FallbackChannel)
	assert.Equal(t, "instant", cfg.Delivery().DefaultMode)
}

func TestNewConfigFromViper_EnvOverride(t *testing.T) {
	t.Setenv("CADENCE_DELIVERY_MAX_RETRIES", "7")

	v := viper.New()
	SetDefaults(v)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Delivery().MaxRetries)
}

func TestNewConfigFromViper_Invalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("stealth.typing.wpm_range.min", 0)

	_, err := NewConfigFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	want := NewDefaultConfig()
	want.SetDeliveryMode("instant")
	want.DeliveryCfg.RetryDelay = 750 * time.Millisecond
	want.StealthCfg.Errors.TypoTypes = []string{"omission"}

	var buf bytes.Buffer
	require.NoError(t, want.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "retry_delay: 750ms")

	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(&buf))

	got, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
