package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"github.com/xkilldash9x/cadence/internal/humanoid"
	"github.com/xkilldash9x/cadence/internal/observability"
)

// Options tunes a single delivery. Manager.DefaultOptions returns the
// configured defaults; a nil *Options means exactly those.
type Options struct {
	Mode schemas.DeliveryMode
	// SkipPreTypingDelay starts typing immediately.
	SkipPreTypingDelay bool
	// PreTypingDelay, when positive, replaces the computed reading and thinking delay.
	PreTypingDelay time.Duration
	// TimingMultiplier scales every keystroke delay. Values <= 0 mean 1.
	TimingMultiplier float64
	// EnableTypos runs the typo generator and types its corrections.
	EnableTypos bool
	// KeepUncorrectedTypos types the generator's final text, so mistakes the
	// typist did not notice reach the channel.
	KeepUncorrectedTypos bool
	// PhoneticErrors swaps commonly confused spellings before typing.
	PhoneticErrors bool
	// OnProgress is called after every keystroke of a paced delivery.
	OnProgress func(schemas.Progress)
}

func (o Options) multiplier() float64 {
	if o.TimingMultiplier <= 0 {
		return 1
	}
	return o.TimingMultiplier
}

// ConfigUpdate carries a partial manager policy update. Nil fields are left unchanged.
type ConfigUpdate struct {
	AutoRetry          *bool
	MaxRetries         *int
	RetryDelay         *time.Duration
	FallbackChannel    *string
	RateLimit          *float64
	RateBurst          *int
	DefaultMode        *string
	TimingMultiplier   *float64
	EnableTypos        *bool
	SkipPreTypingDelay *bool
}

func (u ConfigUpdate) apply(cfg config.DeliveryConfig) config.DeliveryConfig {
	if u.AutoRetry != nil {
		cfg.AutoRetry = *u.AutoRetry
	}
	if u.MaxRetries != nil {
		cfg.MaxRetries = *u.MaxRetries
	}
	if u.RetryDelay != nil {
		cfg.RetryDelay = *u.RetryDelay
	}
	if u.FallbackChannel != nil {
		cfg.FallbackChannel = *u.FallbackChannel
	}
	if u.RateLimit != nil {
		cfg.RateLimit = *u.RateLimit
	}
	if u.RateBurst != nil {
		cfg.RateBurst = *u.RateBurst
	}
	if u.DefaultMode != nil {
		cfg.DefaultMode = *u.DefaultMode
	}
	if u.TimingMultiplier != nil {
		cfg.TimingMultiplier = *u.TimingMultiplier
	}
	if u.EnableTypos != nil {
		cfg.EnableTypos = *u.EnableTypos
	}
	if u.SkipPreTypingDelay != nil {
		cfg.SkipPreTypingDelay = *u.SkipPreTypingDelay
	}
	return cfg
}

// Sleeper suspends the caller for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// SleepContext is the default Sleeper, backed by a timer.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Option configures a Manager at construction time.
type Option func(*Manager)

// WithTimingCalculator injects the pre-typing delay model.
func WithTimingCalculator(tc *humanoid.TimingCalculator) Option {
	return func(m *Manager) { m.timing = tc }
}

// WithTypingSimulator injects the keystroke trace model.
func WithTypingSimulator(ts *humanoid.TypingSimulator) Option {
	return func(m *Manager) { m.typing = ts }
}

// WithTypoGenerator injects the typo model.
func WithTypoGenerator(tg *humanoid.TypoGenerator) Option {
	return func(m *Manager) { m.typos = tg }
}

// WithSleeper replaces the timer-based sleep used for every delay.
func WithSleeper(s Sleeper) Option {
	return func(m *Manager) { m.sleep = s }
}

// WithClock replaces the wall clock used for timestamps and durations. It is
// also handed to the components the manager builds itself.
func WithClock(c humanoid.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMetrics records delivery metrics on m. The default discards them.
func WithMetrics(met *observability.Metrics) Option {
	return func(m *Manager) { m.metrics = met }
}

// WithSeed makes every component the manager builds, now or after a
// stealth config update, draw from a source derived from seed.
func WithSeed(seed int64) Option {
	return func(m *Manager) { m.seed = &seed }
}

// WithIDGenerator replaces the uuid-based delivery ID generator.
func WithIDGenerator(gen func() string) Option {
	return func(m *Manager) { m.newID = gen }
}

func (m *Manager) validateOptions(o Options) error {
	switch o.Mode {
	case schemas.DeliveryInstant, schemas.DeliveryPaced:
		return nil
	}
	return fmt.Errorf("unknown delivery mode %q", o.Mode)
}
