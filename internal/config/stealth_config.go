// File: internal/config/stealth_config.go
// This file defines the StealthConfig struct, which contains all the tunable
// parameters for the human behavior simulation. These settings control the
// models that generate realistic typing traces, pre-typing delays, fatigue
// and typo patterns.
//
// The configuration is designed to be loaded from a file (e.g., YAML) using
// Viper, allowing the simulated typist's "personality" to be changed without
// touching the core code.
package config

import (
	"fmt"
	"slices"

	"github.com/spf13/viper"
)

// IntRange is an inclusive [Min, Max] interval.
type IntRange struct {
	Min int `mapstructure:"min" yaml:"min"`
	Max int `mapstructure:"max" yaml:"max"`
}

func (r IntRange) validate(name string) error {
	if r.Min < 0 {
		return fmt.Errorf("%s.min must not be negative", name)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%s.max must be >= %s.min", name, name)
	}
	return nil
}

// StealthConfig groups the four simulation sections.
type StealthConfig struct {
	Typing     TypingConfig     `mapstructure:"typing" yaml:"typing"`
	Timing     TimingConfig     `mapstructure:"timing" yaml:"timing"`
	Behavioral BehavioralConfig `mapstructure:"behavioral" yaml:"behavioral"`
	Errors     ErrorsConfig     `mapstructure:"errors" yaml:"errors"`
}

// TypingConfig controls keystroke speed and rhythm.
type TypingConfig struct {
	WPMRange         IntRange `mapstructure:"wpm_range" yaml:"wpm_range"`
	SpeedVariance    float64  `mapstructure:"speed_variance" yaml:"speed_variance"`
	BurstEnabled     bool     `mapstructure:"burst_enabled" yaml:"burst_enabled"`
	PauseProbability float64  `mapstructure:"pause_probability" yaml:"pause_probability"`
}

// TimingConfig controls the read/think/distraction delay before typing starts.
type TimingConfig struct {
	MinReadTimeMs          int      `mapstructure:"min_read_time_ms" yaml:"min_read_time_ms"`
	ReadTimePerWordMs      int      `mapstructure:"read_time_per_word_ms" yaml:"read_time_per_word_ms"`
	ThinkTimeMs            IntRange `mapstructure:"think_time_ms" yaml:"think_time_ms"`
	DistractionProbability float64  `mapstructure:"distraction_probability" yaml:"distraction_probability"`
	DistractionDelayMs     IntRange `mapstructure:"distraction_delay_ms" yaml:"distraction_delay_ms"`
}

// BehavioralConfig controls session-level effects shared by the timing and typing models.
type BehavioralConfig struct {
	AttentionWandering bool  `mapstructure:"attention_wandering" yaml:"attention_wandering"`
	FatigueSimulation  bool  `mapstructure:"fatigue_simulation" yaml:"fatigue_simulation"`
	FatigueOnsetMs     int64 `mapstructure:"fatigue_onset_ms" yaml:"fatigue_onset_ms"`
}

// ErrorsConfig controls typo injection.
type ErrorsConfig struct {
	TypoProbability         float64  `mapstructure:"typo_probability" yaml:"typo_probability"`
	TypoTypes               []string `mapstructure:"typo_types" yaml:"typo_types"`
	CorrectionProbability   float64  `mapstructure:"correction_probability" yaml:"correction_probability"`
	GrammarErrorProbability float64  `mapstructure:"grammar_error_probability" yaml:"grammar_error_probability"`
}

// knownTypoTypes mirrors schemas.AllTypoTypes without importing the schema package.
var knownTypoTypes = []string{"adjacent_key", "transposition", "omission", "doubling"}

// DefaultStealthConfig returns the stealth defaults without going through viper.
func DefaultStealthConfig() StealthConfig {
	return NewDefaultConfig().Stealth()
}

// setStealthDefaults registers the default stealth values.
func setStealthDefaults(v *viper.Viper) {
	// -- Typing --
	v.SetDefault("stealth.typing.wpm_range.min", 35)
	v.SetDefault("stealth.typing.wpm_range.max", 65)
	v.SetDefault("stealth.typing.speed_variance", 0.15)
	v.SetDefault("stealth.typing.burst_enabled", true)
	v.SetDefault("stealth.typing.pause_probability", 0.1)

	// -- Timing --
	v.SetDefault("stealth.timing.min_read_time_ms", 500)
	v.SetDefault("stealth.timing.read_time_per_word_ms", 200)
	v.SetDefault("stealth.timing.think_time_ms.min", 1000)
	v.SetDefault("stealth.timing.think_time_ms.max", 3000)
	v.SetDefault("stealth.timing.distraction_probability", 0.05)
	v.SetDefault("stealth.timing.distraction_delay_ms.min", 2000)
	v.SetDefault("stealth.timing.distraction_delay_ms.max", 8000)

	// -- Behavioral --
	v.SetDefault("stealth.behavioral.attention_wandering", true)
	v.SetDefault("stealth.behavioral.fatigue_simulation", true)
	v.SetDefault("stealth.behavioral.fatigue_onset_ms", 30*60*1000)

	// -- Errors --
	v.SetDefault("stealth.errors.typo_probability", 0.03)
	v.SetDefault("stealth.errors.typo_types", knownTypoTypes)
	v.SetDefault("stealth.errors.correction_probability", 0.7)
	v.SetDefault("stealth.errors.grammar_error_probability", 0.02)
}

// Validate checks every stealth section.
func (s *StealthConfig) Validate() error {
	if err := s.Typing.Validate(); err != nil {
		return fmt.Errorf("typing: %w", err)
	}
	if err := s.Timing.Validate(); err != nil {
		return fmt.Errorf("timing: %w", err)
	}
	if err := s.Behavioral.Validate(); err != nil {
		return fmt.Errorf("behavioral: %w", err)
	}
	if err := s.Errors.Validate(); err != nil {
		return fmt.Errorf("errors: %w", err)
	}
	return nil
}

// Validate checks the TypingConfig settings.
func (t *TypingConfig) Validate() error {
	if t.WPMRange.Min <= 0 {
		return fmt.Errorf("wpm_range.min must be greater than 0")
	}
	if err := t.WPMRange.validate("wpm_range"); err != nil {
		return err
	}
	if t.SpeedVariance < 0 || t.SpeedVariance >= 1 {
		return fmt.Errorf("speed_variance must be in [0, 1)")
	}
	if !isProbability(t.PauseProbability) {
		return fmt.Errorf("pause_probability must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the TimingConfig settings.
func (t *TimingConfig) Validate() error {
	if t.MinReadTimeMs < 0 || t.ReadTimePerWordMs < 0 {
		return fmt.Errorf("read times must not be negative")
	}
	if err := t.ThinkTimeMs.validate("think_time_ms"); err != nil {
		return err
	}
	if err := t.DistractionDelayMs.validate("distraction_delay_ms"); err != nil {
		return err
	}
	if !isProbability(t.DistractionProbability) {
		return fmt.Errorf("distraction_probability must be between 0.0 and 1.0")
	}
	return nil
}

// Validate checks the BehavioralConfig settings.
func (b *BehavioralConfig) Validate() error {
	if b.FatigueSimulation && b.FatigueOnsetMs <= 0 {
		return fmt.Errorf("fatigue_onset_ms must be greater than 0 when fatigue_simulation is enabled")
	}
	return nil
}

// Validate checks the ErrorsConfig settings.
func (e *ErrorsConfig) Validate() error {
	if !isProbability(e.TypoProbability) {
		return fmt.Errorf("typo_probability must be between 0.0 and 1.0")
	}
	if !isProbability(e.CorrectionProbability) {
		return fmt.Errorf("correction_probability must be between 0.0 and 1.0")
	}
	if !isProbability(e.GrammarErrorProbability) {
		return fmt.Errorf("grammar_error_probability must be between 0.0 and 1.0")
	}
	for _, tt := range e.TypoTypes {
		if !slices.Contains(knownTypoTypes, tt) {
			return fmt.Errorf("unknown typo type %q", tt)
		}
	}
	return nil
}

func isProbability(p float64) bool {
	return p >= 0 && p <= 1
}
