package humanoid

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap"
)

const (
	// maxFatigueModifier caps how much a long session can slow the typist down.
	maxFatigueModifier = 1.3
	// fatigueGrowthRate scales the logarithmic growth of fatigue past onset.
	fatigueGrowthRate = 0.1
)

var (
	interrogatives = map[string]bool{
		"what": true, "why": true, "how": true, "when": true, "where": true,
		"who": true, "whom": true, "whose": true, "which": true,
		"is": true, "are": true, "am": true, "was": true, "were": true,
		"can": true, "could": true, "would": true, "should": true, "will": true,
		"do": true, "does": true, "did": true, "have": true, "has": true,
	}

	domainKeywordRe = regexp.MustCompile(`(?i)\b(api|database|server|algorithm|protocol|configuration|encryption|authentication|integration|infrastructure|deployment|architecture|account|invoice|transaction|refund|subscription|password|verification)\b`)
	emotionWordRe   = regexp.MustCompile(`(?i)\b(love|hate|angry|furious|amazing|awesome|terrible|awful|horrible|excited|scared|worried|upset|frustrated|thrilled|devastated|annoyed|wow|omg|ugh)\b`)
	negativeWordRe  = regexp.MustCompile(`(?i)\b(no|not|never|nothing|can't|cannot|won't|don't|doesn't|isn't|bad|wrong|problem|issue|fail|failed|failure|error|broken|unfortunately|sorry|disappointed|refuse|reject|denied)\b`)
	repeatedMarkRe  = regexp.MustCompile(`[!?]{2,}`)
	dataRe          = regexp.MustCompile(`\d|https?://|\b[\w.+-]+@[\w-]+\.[\w.]+\b`)
	sentenceSplitRe = regexp.MustCompile(`[.!?]+`)
)

// TimingState tracks the session a TimingCalculator is simulating.
type TimingState struct {
	MessagesProcessed int
	CharsProcessed    int
	SessionStart      time.Time
	FatigueLevel      float64
}

// TimingCalculator computes how long a human would take before starting to
// type a reply: reading the message, thinking about it and getting distracted.
type TimingCalculator struct {
	mu         sync.Mutex
	cfg        config.TimingConfig
	behavioral config.BehavioralConfig
	state      TimingState
	opts       options
}

// NewTimingCalculator builds a calculator whose session starts now.
func NewTimingCalculator(cfg config.TimingConfig, behavioral config.BehavioralConfig, opts ...Option) *TimingCalculator {
	o := buildOptions(opts)
	return &TimingCalculator{
		cfg:        cfg,
		behavioral: behavioral,
		opts:       o,
		state:      TimingState{SessionStart: o.clock()},
	}
}

// CalculateResponseTiming analyzes text and returns the pre-typing delay
// breakdown. Every call advances the session counters.
func (tc *TimingCalculator) CalculateResponseTiming(text string) schemas.ResponseTiming {
	chars := AnalyzeMessage(text)

	tc.mu.Lock()
	defer tc.mu.Unlock()

	fatigue := tc.updateFatigue()
	read := tc.calculateReadTime(chars)
	think := tc.calculateThinkTime(chars)
	distraction := tc.maybeAddDistraction()

	// The total is derived from the reported parts so they multiply back to it.
	readMs := int64(math.Round(read))
	thinkMs := int64(math.Round(think))
	distractionMs := int64(math.Round(distraction))
	total := int64(math.Round(float64(readMs+thinkMs+distractionMs) * fatigue))

	tc.state.MessagesProcessed++
	tc.state.CharsProcessed += chars.CharCount

	timing := schemas.ResponseTiming{
		ReadTimeMs:            readMs,
		ThinkTimeMs:           thinkMs,
		DistractionDelayMs:    distractionMs,
		TotalPreTypingDelayMs: total,
		FatigueModifier:       fatigue,
	}
	timing.Explanation = explainTiming(chars, timing)

	tc.opts.logger.Debug("Calculated response timing",
		zap.Int("words", chars.WordCount),
		zap.Int64("total_ms", total),
		zap.Float64("fatigue", fatigue))
	return timing
}

// AnalyzeMessage derives the characteristics that drive the delay model.
func AnalyzeMessage(text string) schemas.MessageCharacteristics {
	words := strings.Fields(text)
	c := schemas.MessageCharacteristics{
		WordCount: len(words),
		CharCount: len([]rune(text)),
	}
	if c.WordCount == 0 {
		return c
	}

	first := strings.ToLower(strings.TrimFunc(words[0], func(r rune) bool { return !unicode.IsLetter(r) }))
	c.IsQuestion = strings.Contains(text, "?") || interrogatives[first]
	c.ContainsData = dataRe.MatchString(text)
	c.IsNegative = negativeWordRe.MatchString(text)

	// -- Complexity --
	letters := 0
	for _, w := range words {
		letters += len([]rune(w))
	}
	avgWordLen := float64(letters) / float64(c.WordCount)
	complexity := 0.0
	if avgWordLen > 5 {
		complexity += 0.2
	}
	if avgWordLen > 7 {
		complexity += 0.2
	}
	if strings.ContainsFunc(text, unicode.IsDigit) {
		complexity += 0.15
	}
	if domainKeywordRe.MatchString(text) {
		complexity += 0.2
	}
	if avgSentenceLength(text) > 15 {
		complexity += 0.15
	}
	if c.WordCount > 50 {
		complexity += 0.15
	}
	c.Complexity = clamp(complexity, 0, 1)

	// -- Emotional intensity --
	intensity := 0.2 * float64(len(emotionWordRe.FindAllStringIndex(text, -1)))
	if repeatedMarkRe.MatchString(text) {
		intensity += 0.3
	}
	capsWords := 0
	for _, w := range words {
		if isAllCaps(w) {
			capsWords++
		}
	}
	intensity += 0.15 * float64(capsWords)
	c.EmotionalIntensity = clamp(intensity, 0, 1)

	return c
}

// calculateReadTime models reading the incoming message.
func (tc *TimingCalculator) calculateReadTime(c schemas.MessageCharacteristics) float64 {
	base := float64(tc.cfg.MinReadTimeMs) + float64(c.WordCount)*float64(tc.cfg.ReadTimePerWordMs)
	if c.Complexity > 0.5 {
		base *= 1 + (c.Complexity-0.5)*0.5
	}
	if c.ContainsData {
		base *= 1.3
	}
	if c.IsQuestion {
		base *= 1.1
	}
	return base * uniform(tc.opts.rng, 0.8, 1.2)
}

// calculateThinkTime models composing a reply.
func (tc *TimingCalculator) calculateThinkTime(c schemas.MessageCharacteristics) float64 {
	think := uniform(tc.opts.rng, float64(tc.cfg.ThinkTimeMs.Min), float64(tc.cfg.ThinkTimeMs.Max))
	if c.IsQuestion && c.Complexity > 0.5 {
		think *= 1.5
	}
	if c.IsNegative {
		think *= 1.3
	}
	if c.EmotionalIntensity > 0.7 {
		// Strong emotion either triggers a snap reply or a long pause.
		if tc.opts.rng.Float64() < 0.5 {
			think *= 0.7
		} else {
			think *= 1.4
		}
	}
	return think
}

// maybeAddDistraction occasionally adds a long unrelated pause.
func (tc *TimingCalculator) maybeAddDistraction() float64 {
	p := tc.cfg.DistractionProbability
	if tc.behavioral.AttentionWandering {
		// Tired minds wander more.
		p *= 1 + tc.state.FatigueLevel*2
	}
	if tc.opts.rng.Float64() >= math.Min(1, p) {
		return 0
	}
	return uniform(tc.opts.rng, float64(tc.cfg.DistractionDelayMs.Min), float64(tc.cfg.DistractionDelayMs.Max))
}

// updateFatigue recomputes the fatigue level from the session age and
// returns the multiplier to apply. Must be called with tc.mu held.
func (tc *TimingCalculator) updateFatigue() float64 {
	if !tc.behavioral.FatigueSimulation {
		tc.state.FatigueLevel = 0
		return 1.0
	}
	elapsed := tc.opts.clock().Sub(tc.state.SessionStart)
	onset := time.Duration(tc.behavioral.FatigueOnsetMs) * time.Millisecond
	m := fatigueMultiplier(elapsed, onset, fatigueGrowthRate, maxFatigueModifier)
	tc.state.FatigueLevel = m - 1.0
	return m
}

// State returns a snapshot of the session state.
func (tc *TimingCalculator) State() TimingState {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.state
}

// ResetState starts a fresh session.
func (tc *TimingCalculator) ResetState() {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.state = TimingState{SessionStart: tc.opts.clock()}
}

// SetSessionStart moves the session start, e.g. when resuming a session.
func (tc *TimingCalculator) SetSessionStart(start time.Time) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.state.SessionStart = start
}

func avgSentenceLength(text string) float64 {
	total, count := 0, 0
	for _, s := range sentenceSplitRe.Split(text, -1) {
		n := len(strings.Fields(s))
		if n == 0 {
			continue
		}
		total += n
		count++
	}
	if count == 0 {
		return 0
	}
	return float64(total) / float64(count)
}

// isAllCaps reports whether w is a shouted word (two or more letters, all upper case).
func isAllCaps(w string) bool {
	letters := 0
	for _, r := range w {
		if !unicode.IsLetter(r) {
			continue
		}
		if !unicode.IsUpper(r) {
			return false
		}
		letters++
	}
	return letters >= 2
}

func explainTiming(c schemas.MessageCharacteristics, t schemas.ResponseTiming) string {
	var b strings.Builder
	fmt.Fprintf(&b, "read %dms (%d words", t.ReadTimeMs, c.WordCount)
	if c.ContainsData {
		b.WriteString(", data")
	}
	if c.IsQuestion {
		b.WriteString(", question")
	}
	fmt.Fprintf(&b, "), think %dms", t.ThinkTimeMs)
	if c.IsNegative {
		b.WriteString(" (negative)")
	}
	if t.DistractionDelayMs > 0 {
		fmt.Fprintf(&b, ", distracted %dms", t.DistractionDelayMs)
	}
	fmt.Fprintf(&b, ", fatigue x%.2f", t.FatigueModifier)
	return b.String()
}
