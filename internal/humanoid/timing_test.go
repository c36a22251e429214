package humanoid

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap/zaptest"
)

func setupTimingTest(t *testing.T, seed int64, mutate func(*config.TimingConfig, *config.BehavioralConfig)) *TimingCalculator {
	stealth := config.DefaultStealthConfig()
	timing, behavioral := stealth.Timing, stealth.Behavioral
	if mutate != nil {
		mutate(&timing, &behavioral)
	}
	return NewTimingCalculator(timing, behavioral,
		WithRand(rand.New(rand.NewSource(seed))),
		WithClock(fixedClock),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestCalculateResponseTiming_TotalInvariant(t *testing.T) {
	messages := []string{
		"",
		"hi",
		"What is the status of my refund for order 88213?",
		"I can't believe this happened AGAIN!! This is terrible.",
		"Please reset the authentication configuration on the api server and confirm the deployment architecture.",
	}
	tc := setupTimingTest(t, 3, func(_ *config.TimingConfig, b *config.BehavioralConfig) {
		b.FatigueOnsetMs = 1
	})
	tc.SetSessionStart(fixedNow.Add(-2 * time.Hour))

	for _, m := range messages {
		timing := tc.CalculateResponseTiming(m)
		parts := float64(timing.ReadTimeMs + timing.ThinkTimeMs + timing.DistractionDelayMs)
		assert.Equal(t, int64(math.Round(parts*timing.FatigueModifier)), timing.TotalPreTypingDelayMs, "message %q", m)
		assert.Positive(t, timing.ReadTimeMs)
		assert.Positive(t, timing.ThinkTimeMs)
		assert.NotEmpty(t, timing.Explanation)
	}
	assert.Equal(t, len(messages), tc.State().MessagesProcessed)
}

func TestCalculateResponseTiming_TotalMatchesReportedParts(t *testing.T) {
	const msg = "What is the status of my refund for order 88213?"
	for seed := int64(1); seed <= 200; seed++ {
		tc := setupTimingTest(t, seed, func(_ *config.TimingConfig, b *config.BehavioralConfig) {
			b.FatigueSimulation = true
			b.FatigueOnsetMs = 1
		})
		tc.SetSessionStart(fixedNow.Add(-72 * time.Hour))

		timing := tc.CalculateResponseTiming(msg)
		sum := timing.ReadTimeMs + timing.ThinkTimeMs + timing.DistractionDelayMs
		require.Equal(t, int64(math.Round(float64(sum)*timing.FatigueModifier)), timing.TotalPreTypingDelayMs,
			"seed %d: read=%d think=%d distraction=%d fatigue=%v",
			seed, timing.ReadTimeMs, timing.ThinkTimeMs, timing.DistractionDelayMs, timing.FatigueModifier)
	}
}

func TestCalculateResponseTiming_EmptyMessage(t *testing.T) {
	tc := setupTimingTest(t, 1, func(tcfg *config.TimingConfig, _ *config.BehavioralConfig) {
		tcfg.DistractionProbability = 0
	})
	timing := tc.CalculateResponseTiming("")

	// Only the minimum read time with its +-20% jitter.
	assert.GreaterOrEqual(t, timing.ReadTimeMs, int64(400))
	assert.LessOrEqual(t, timing.ReadTimeMs, int64(600))
	assert.GreaterOrEqual(t, timing.ThinkTimeMs, int64(1000))
	assert.LessOrEqual(t, timing.ThinkTimeMs, int64(3000))
	assert.Zero(t, timing.DistractionDelayMs)
	assert.Equal(t, 1.0, timing.FatigueModifier)
}

func TestCalculateResponseTiming_LongerMessagesReadLonger(t *testing.T) {
	short := setupTimingTest(t, 4, nil).CalculateResponseTiming("ok")
	long := setupTimingTest(t, 4, nil).CalculateResponseTiming(
		"so I went to the store yesterday and they told me the thing I ordered last week " +
			"would not be in until next month which honestly seems like a long time to wait")
	assert.Greater(t, long.ReadTimeMs, short.ReadTimeMs)
}

func TestCalculateResponseTiming_Distraction(t *testing.T) {
	t.Run("Always", func(t *testing.T) {
		tc := setupTimingTest(t, 2, func(tcfg *config.TimingConfig, _ *config.BehavioralConfig) {
			tcfg.DistractionProbability = 1
		})
		for range 10 {
			d := tc.CalculateResponseTiming("hey").DistractionDelayMs
			assert.GreaterOrEqual(t, d, int64(2000))
			assert.LessOrEqual(t, d, int64(8000))
		}
	})

	t.Run("Never", func(t *testing.T) {
		tc := setupTimingTest(t, 2, func(tcfg *config.TimingConfig, _ *config.BehavioralConfig) {
			tcfg.DistractionProbability = 0
		})
		for range 10 {
			assert.Zero(t, tc.CalculateResponseTiming("hey").DistractionDelayMs)
		}
	})
}

func TestCalculateResponseTiming_Fatigue(t *testing.T) {
	mutate := func(_ *config.TimingConfig, b *config.BehavioralConfig) {
		b.FatigueSimulation = true
		b.FatigueOnsetMs = int64(30 * time.Minute / time.Millisecond)
	}

	t.Run("BeforeOnset", func(t *testing.T) {
		tc := setupTimingTest(t, 1, mutate)
		tc.SetSessionStart(fixedNow.Add(-29 * time.Minute))
		timing := tc.CalculateResponseTiming("hello")
		assert.Equal(t, 1.0, timing.FatigueModifier)
		assert.Zero(t, tc.State().FatigueLevel)
	})

	t.Run("PastOnset", func(t *testing.T) {
		tc := setupTimingTest(t, 1, mutate)
		tc.SetSessionStart(fixedNow.Add(-40 * time.Minute))
		timing := tc.CalculateResponseTiming("hello")

		expected := 1 + fatigueGrowthRate*math.Log1p(10)
		assert.InDelta(t, expected, timing.FatigueModifier, 1e-9)
		assert.InDelta(t, expected-1, tc.State().FatigueLevel, 1e-9)
	})

	t.Run("Capped", func(t *testing.T) {
		tc := setupTimingTest(t, 1, mutate)
		tc.SetSessionStart(fixedNow.Add(-72 * time.Hour))
		assert.Equal(t, maxFatigueModifier, tc.CalculateResponseTiming("hello").FatigueModifier)
	})

	t.Run("Disabled", func(t *testing.T) {
		tc := setupTimingTest(t, 1, func(_ *config.TimingConfig, b *config.BehavioralConfig) {
			b.FatigueSimulation = false
		})
		tc.SetSessionStart(fixedNow.Add(-72 * time.Hour))
		assert.Equal(t, 1.0, tc.CalculateResponseTiming("hello").FatigueModifier)
	})
}

func TestTimingState_Reset(t *testing.T) {
	tc := setupTimingTest(t, 1, nil)
	tc.CalculateResponseTiming("one two")
	tc.CalculateResponseTiming("three")

	state := tc.State()
	require.Equal(t, 2, state.MessagesProcessed)
	assert.Equal(t, len("one two")+len("three"), state.CharsProcessed)

	tc.ResetState()
	state = tc.State()
	assert.Zero(t, state.MessagesProcessed)
	assert.Zero(t, state.CharsProcessed)
	assert.Equal(t, fixedNow, state.SessionStart)
}

func TestAnalyzeMessage(t *testing.T) {
	tests := []struct {
		name  string
		input string
		check func(t *testing.T, text string)
	}{
		{"Empty", "", func(t *testing.T, text string) {
			c := AnalyzeMessage(text)
			assert.Zero(t, c.WordCount)
			assert.False(t, c.IsQuestion)
			assert.Zero(t, c.Complexity)
		}},
		{"QuestionMark", "you there?", func(t *testing.T, text string) {
			assert.True(t, AnalyzeMessage(text).IsQuestion)
		}},
		{"LeadingInterrogative", "How do I change my password", func(t *testing.T, text string) {
			assert.True(t, AnalyzeMessage(text).IsQuestion)
		}},
		{"Statement", "I changed my password", func(t *testing.T, text string) {
			assert.False(t, AnalyzeMessage(text).IsQuestion)
		}},
		{"Digits", "order 4411 shipped", func(t *testing.T, text string) {
			c := AnalyzeMessage(text)
			assert.True(t, c.ContainsData)
			assert.GreaterOrEqual(t, c.Complexity, 0.15)
		}},
		{"URL", "see https://example.com", func(t *testing.T, text string) {
			assert.True(t, AnalyzeMessage(text).ContainsData)
		}},
		{"Email", "mail me at jo@example.org", func(t *testing.T, text string) {
			assert.True(t, AnalyzeMessage(text).ContainsData)
		}},
		{"Negative", "sorry, that won't work", func(t *testing.T, text string) {
			assert.True(t, AnalyzeMessage(text).IsNegative)
		}},
		{"Emotional", "I LOVE THIS!!!", func(t *testing.T, text string) {
			// love 0.2 + repeated marks 0.3 + two shouted words 0.3
			assert.InDelta(t, 0.8, AnalyzeMessage(text).EmotionalIntensity, 1e-9)
		}},
		{"Calm", "sounds good to me", func(t *testing.T, text string) {
			c := AnalyzeMessage(text)
			assert.Zero(t, c.EmotionalIntensity)
			assert.False(t, c.IsNegative)
			assert.False(t, c.ContainsData)
		}},
		{"Complex", "Authentication infrastructure reconfiguration requires comprehensive verification procedures 2024", func(t *testing.T, text string) {
			c := AnalyzeMessage(text)
			assert.Greater(t, c.Complexity, 0.5)
			assert.LessOrEqual(t, c.Complexity, 1.0)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, tt.input)
		})
	}
}

func TestFatigueMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, fatigueMultiplier(time.Hour, 0, 0.1, 1.3), "no onset means no fatigue")
	assert.Equal(t, 1.0, fatigueMultiplier(time.Minute, time.Hour, 0.1, 1.3))
	assert.Equal(t, 1.3, fatigueMultiplier(100*time.Hour, time.Minute, 0.1, 1.3))

	a := fatigueMultiplier(31*time.Minute, 30*time.Minute, 0.1, 1.3)
	b := fatigueMultiplier(45*time.Minute, 30*time.Minute, 0.1, 1.3)
	assert.Greater(t, b, a, "fatigue grows monotonically")
}
