package humanoid

import (
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap"
)

// -- keyboardNeighbors maps characters to their adjacent keys on a QWERTY layout --
var keyboardNeighbors = map[rune]string{
	'1': "2q`", '2': "13wq", '3': "24we", '4': "35er", '5': "46rt", '6': "57ty",
	'7': "68yu", '8': "79ui", '9': "80io", '0': "9-op",
	'q': "wa1s", 'w': "qase23", 'e': "wsdr34", 'r': "edft45", 't': "rfgy56",
	'y': "tghu67", 'u': "yhji78", 'i': "ujko89", 'o': "iklp90", 'p': "ol;0-",
	'a': "qwsz", 's': "awedxz", 'd': "serfcx", 'f': "drtgvc", 'g': "ftyhbv",
	'h': "gyujnb", 'j': "huikmn", 'k': "jiol,m", 'l': "kop;.",
	'z': "asx", 'x': "zsdc", 'c': "xdfv", 'v': "cfgb", 'b': "vghn", 'n': "bhjm", 'm': "njk,",
}

// -- commonWords are typed from muscle memory and come out faster --
var commonWords = map[string]bool{
	"the": true, "be": true, "to": true, "of": true, "and": true, "a": true, "in": true,
	"that": true, "have": true, "i": true, "it": true, "for": true, "not": true, "on": true,
	"with": true, "he": true, "as": true, "you": true, "do": true, "at": true, "this": true,
	"but": true, "by": true, "from": true, "they": true, "we": true, "or": true, "an": true,
	"will": true, "my": true, "one": true, "all": true, "would": true, "there": true,
	"what": true, "so": true, "up": true, "out": true, "if": true, "about": true, "who": true,
	"get": true, "go": true, "me": true, "is": true, "are": true, "was": true, "can": true,
	"ok": true, "yes": true, "no": true, "hi": true, "hello": true, "thanks": true,
}

// shiftChars are the symbols that need the shift key on a US layout.
const shiftChars = "~!@#$%^&*()_+{}|:\"<>?"

// TypingState tracks the session a TypingSimulator is simulating.
type TypingState struct {
	MessagesTyped int
	CharsTyped    int
	SessionStart  time.Time
	SpeedModifier float64
}

// TypingSimulator converts text into a timed keystroke trace.
type TypingSimulator struct {
	mu         sync.Mutex
	cfg        config.TypingConfig
	behavioral config.BehavioralConfig
	state      TypingState
	opts       options
}

// NewTypingSimulator builds a simulator whose session starts now.
func NewTypingSimulator(cfg config.TypingConfig, behavioral config.BehavioralConfig, opts ...Option) *TypingSimulator {
	o := buildOptions(opts)
	return &TypingSimulator{
		cfg:        cfg,
		behavioral: behavioral,
		opts:       o,
		state:      TypingState{SessionStart: o.clock(), SpeedModifier: 1.0},
	}
}

// SimulateTyping produces the keystroke trace for text without mistakes.
func (ts *TypingSimulator) SimulateTyping(text string) schemas.TypingSimulation {
	return ts.simulate(text, nil)
}

// SimulateTypingWithCorrections produces a trace in which the character at each
// of typoPositions (rune offsets) is first mistyped with an adjacent key,
// noticed, backspaced and retyped.
func (ts *TypingSimulator) SimulateTypingWithCorrections(text string, typoPositions []int) schemas.TypingSimulation {
	corrections := make(map[int]bool, len(typoPositions))
	for _, p := range typoPositions {
		corrections[p] = true
	}
	return ts.simulate(text, corrections)
}

// wordSpan locates the whitespace-delimited word a rune belongs to.
type wordSpan struct {
	start, end int // end is exclusive
	word       string
}

func (w wordSpan) length() int { return w.end - w.start }

func (ts *TypingSimulator) simulate(text string, corrections map[int]bool) schemas.TypingSimulation {
	runes := []rune(text)

	ts.mu.Lock()
	defer ts.mu.Unlock()

	speed := ts.updateSpeedModifier()
	sim := schemas.TypingSimulation{Message: text, Keystrokes: []schemas.Keystroke{}}
	if len(runes) == 0 {
		ts.state.MessagesTyped++
		return sim
	}

	wpm := ts.sampleWPM()
	// Five characters per word is the standard WPM convention.
	baseDelay := 60000.0 / (wpm * 5)
	spans := buildWordSpans(runes)

	for i, r := range runes {
		delay := ts.charDelay(runes, i, spans[i], baseDelay, speed)

		if corrections[i] {
			if wrong, ok := adjacentKey(ts.opts.rng, r); ok {
				sim.Keystrokes = append(sim.Keystrokes,
					schemas.Keystroke{Char: string(wrong), DelayMs: delay},
					schemas.Keystroke{IsPause: true, DelayMs: scaleMs(uniform(ts.opts.rng, 200, 600), speed)},
					schemas.Keystroke{IsBackspace: true, DelayMs: scaleMs(uniform(ts.opts.rng, 80, 160), speed)},
				)
				delay = ts.charDelay(runes, i, spans[i], baseDelay, speed)
			}
		}
		sim.Keystrokes = append(sim.Keystrokes, schemas.Keystroke{Char: string(r), DelayMs: delay})

		if pause := ts.pauseAfter(runes, i, speed); pause > 0 {
			sim.Keystrokes = append(sim.Keystrokes, schemas.Keystroke{IsPause: true, DelayMs: pause})
		}
	}

	for _, k := range sim.Keystrokes {
		sim.TotalDurationMs += k.DelayMs
		if k.IsBackspace {
			sim.CorrectionCount++
		}
	}
	sim.EffectiveWPM = effectiveWPM(len(strings.Fields(text)), sim.TotalDurationMs)

	ts.state.MessagesTyped++
	ts.state.CharsTyped += len(runes)

	ts.opts.logger.Debug("Simulated typing",
		zap.Int("chars", len(runes)),
		zap.Float64("wpm", wpm),
		zap.Int64("total_ms", sim.TotalDurationMs),
		zap.Int("corrections", sim.CorrectionCount))
	return sim
}

// sampleWPM draws the typing speed for one message from a Gaussian centered on
// the configured range and clipped to it.
func (ts *TypingSimulator) sampleWPM() float64 {
	lo, hi := float64(ts.cfg.WPMRange.Min), float64(ts.cfg.WPMRange.Max)
	if hi <= lo {
		return math.Max(1, lo)
	}
	wpm := sampleGaussian(ts.opts.rng, (lo+hi)/2, (hi-lo)/4)
	return clamp(wpm, lo, hi)
}

// charDelay computes the flight time before runes[i] is pressed.
func (ts *TypingSimulator) charDelay(runes []rune, i int, span wordSpan, base, speed float64) int64 {
	r := runes[i]
	d := base
	inWord := !unicode.IsSpace(r)

	if ts.cfg.BurstEnabled && inWord && span.length() > 1 {
		switch {
		case i == span.start:
			d *= 0.9
		case i < span.end-1:
			d *= 0.85
		}
	}
	if needsShift(r) {
		d *= 1.3
	}
	if unicode.IsPunct(r) {
		d *= 1.2
	}
	if r == ' ' && i > 0 && unicode.IsPunct(runes[i-1]) {
		d *= 1.4
	}
	if inWord && commonWords[normalizeWord(span.word)] {
		d *= 0.85
	}
	if i == 0 {
		d *= 1.5
	}
	if v := ts.cfg.SpeedVariance; v > 0 {
		d *= 1 + (ts.opts.rng.Float64()*2-1)*v
	}
	return scaleMs(d, speed)
}

// pauseAfter decides whether the typist stops after runes[i] and for how long.
func (ts *TypingSimulator) pauseAfter(runes []rune, i int, speed float64) int64 {
	if i >= len(runes)-1 {
		return 0
	}
	p := ts.cfg.PauseProbability
	rng := ts.opts.rng
	switch runes[i] {
	case '.', '!', '?':
		if rng.Float64() < 0.6 {
			return scaleMs(uniform(rng, 500, 1500), speed)
		}
	case ',':
		if rng.Float64() < p {
			return scaleMs(uniform(rng, 200, 600), speed)
		}
	default:
		if rng.Float64() < 0.3*p {
			return scaleMs(uniform(rng, 100, 400), speed)
		}
	}
	return 0
}

// updateSpeedModifier slows the typist once the session passes fatigue onset.
// Must be called with ts.mu held.
func (ts *TypingSimulator) updateSpeedModifier() float64 {
	if !ts.behavioral.FatigueSimulation {
		ts.state.SpeedModifier = 1.0
		return 1.0
	}
	elapsed := ts.opts.clock().Sub(ts.state.SessionStart)
	onset := time.Duration(ts.behavioral.FatigueOnsetMs) * time.Millisecond
	ts.state.SpeedModifier = fatigueMultiplier(elapsed, onset, fatigueGrowthRate, maxFatigueModifier)
	return ts.state.SpeedModifier
}

// State returns a snapshot of the session state.
func (ts *TypingSimulator) State() TypingState {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.state
}

// ResetState starts a fresh session.
func (ts *TypingSimulator) ResetState() {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.state = TypingState{SessionStart: ts.opts.clock(), SpeedModifier: 1.0}
}

// SetSessionStart moves the session start, e.g. when resuming a session.
func (ts *TypingSimulator) SetSessionStart(start time.Time) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.state.SessionStart = start
}

// buildWordSpans maps every rune index to the word containing it. Whitespace
// runes get an empty span.
func buildWordSpans(runes []rune) []wordSpan {
	spans := make([]wordSpan, len(runes))
	for i := 0; i < len(runes); {
		if unicode.IsSpace(runes[i]) {
			spans[i] = wordSpan{start: i, end: i}
			i++
			continue
		}
		j := i
		for j < len(runes) && !unicode.IsSpace(runes[j]) {
			j++
		}
		span := wordSpan{start: i, end: j, word: string(runes[i:j])}
		for k := i; k < j; k++ {
			spans[k] = span
		}
		i = j
	}
	return spans
}

// adjacentKey picks a neighboring key for r, preserving case.
func adjacentKey(rng *rand.Rand, r rune) (rune, bool) {
	neighbors, ok := keyboardNeighbors[unicode.ToLower(r)]
	if !ok || len(neighbors) == 0 {
		return 0, false
	}
	typo := rune(neighbors[rng.Intn(len(neighbors))])
	if unicode.IsUpper(r) {
		typo = unicode.ToUpper(typo)
	}
	return typo, true
}

func needsShift(r rune) bool {
	return unicode.IsUpper(r) || strings.ContainsRune(shiftChars, r)
}

func normalizeWord(w string) string {
	return strings.ToLower(strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) }))
}

// scaleMs applies the fatigue modifier and rounds to a whole, positive millisecond.
func scaleMs(ms, speed float64) int64 {
	return max(1, int64(math.Round(ms*speed)))
}

func effectiveWPM(words int, totalMs int64) int {
	if totalMs <= 0 {
		return 0
	}
	return int(math.Round(float64(words) / (float64(totalMs) / 60000)))
}
