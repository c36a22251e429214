// Package humanoid models how a human reads, thinks about and types a chat
// message. It contains three independent components: TimingCalculator
// (pre-typing delay), TypingSimulator (keystroke trace) and TypoGenerator
// (word-level mistakes). Each component owns a random source and, where it
// models fatigue, a session state; neither is safe to share across
// concurrently running sessions, so give every session its own instance.
package humanoid

import (
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Clock returns the current time. It is injected so tests can move the
// session start around without sleeping.
type Clock func() time.Time

// Option configures a component at construction time.
type Option func(*options)

type options struct {
	rng    *rand.Rand
	clock  Clock
	logger *zap.Logger
}

// WithRand sets the random source. Pass a seeded source for reproducible output.
func WithRand(rng *rand.Rand) Option {
	return func(o *options) { o.rng = rng }
}

// WithClock overrides the wall clock used for session and fatigue tracking.
func WithClock(clock Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithLogger attaches a logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.rng == nil {
		o.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if o.clock == nil {
		o.clock = time.Now
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}
	return o
}

// sampleGaussian samples a value from a Gaussian distribution.
func sampleGaussian(rng *rand.Rand, mean, stdDev float64) float64 {
	if rng == nil {
		return mean
	}
	return mean + rng.NormFloat64()*stdDev
}

// uniform draws from [min, max]. A degenerate range returns min.
func uniform(rng *rand.Rand, min, max float64) float64 {
	if max <= min {
		return min
	}
	return min + rng.Float64()*(max-min)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// fatigueMultiplier grows logarithmically with the time spent past onset and
// is capped. It returns 1 until onset has elapsed.
func fatigueMultiplier(elapsed, onset time.Duration, rate, ceiling float64) float64 {
	if onset <= 0 || elapsed <= onset {
		return 1.0
	}
	excessMinutes := (elapsed - onset).Minutes()
	return math.Min(ceiling, 1.0+rate*math.Log1p(excessMinutes))
}
