package schemas

// -- Keystroke Trace Schemas --

// Keystroke is a single step of a simulated typing trace. Pauses and
// backspaces carry an empty Char.
type Keystroke struct {
	Char        string `json:"char"`
	DelayMs     int64  `json:"delay_ms"`
	IsBackspace bool   `json:"is_backspace"`
	IsPause     bool   `json:"is_pause"`
}

// IsCharacter reports whether the keystroke produces a visible character.
func (k Keystroke) IsCharacter() bool {
	return !k.IsBackspace && !k.IsPause
}

// TypingSimulation is the full keystroke trace computed for a message.
// TotalDurationMs always equals the sum of the keystroke delays.
type TypingSimulation struct {
	Message         string      `json:"message"`
	Keystrokes      []Keystroke `json:"keystrokes"`
	TotalDurationMs int64       `json:"total_duration_ms"`
	EffectiveWPM    int         `json:"effective_wpm"`
	// CorrectionCount is the number of backspace keystrokes in the trace.
	CorrectionCount int `json:"correction_count"`
}

// -- Timing Schemas --

// MessageCharacteristics is derived from a message and drives the
// pre-typing delay model.
type MessageCharacteristics struct {
	WordCount          int     `json:"word_count"`
	CharCount          int     `json:"char_count"`
	IsQuestion         bool    `json:"is_question"`
	EmotionalIntensity float64 `json:"emotional_intensity"`
	Complexity         float64 `json:"complexity"`
	ContainsData       bool    `json:"contains_data"`
	IsNegative         bool    `json:"is_negative"`
}

// ResponseTiming breaks down the delay a human takes before starting to type.
// TotalPreTypingDelayMs = round((ReadTimeMs+ThinkTimeMs+DistractionDelayMs) * FatigueModifier).
type ResponseTiming struct {
	ReadTimeMs            int64   `json:"read_time_ms"`
	ThinkTimeMs           int64   `json:"think_time_ms"`
	DistractionDelayMs    int64   `json:"distraction_delay_ms"`
	TotalPreTypingDelayMs int64   `json:"total_pre_typing_delay_ms"`
	FatigueModifier       float64 `json:"fatigue_modifier"`
	Explanation           string  `json:"explanation"`
}

// -- Typo Schemas --

// TypoType enumerates the supported kinds of typing mistakes.
type TypoType string

const (
	TypoAdjacentKey   TypoType = "adjacent_key"
	TypoTransposition TypoType = "transposition"
	TypoOmission      TypoType = "omission"
	TypoDoubling      TypoType = "doubling"
)

// AllTypoTypes lists every typo type in sampling-weight order.
var AllTypoTypes = []TypoType{TypoAdjacentKey, TypoTransposition, TypoOmission, TypoDoubling}

// Typo is one mistake injected into a word. Position is the rune offset of
// the word inside the original message.
type Typo struct {
	Position    int      `json:"position"`
	Original    string   `json:"original"`
	Typo        string   `json:"typo"`
	Type        TypoType `json:"type"`
	WillCorrect bool     `json:"will_correct"`
}

// TypoResult holds the views of a message after typo injection.
// Final is Original with only the uncorrected typos applied.
type TypoResult struct {
	Original            string `json:"original"`
	WithTypos           string `json:"with_typos"`
	WithCorrections     string `json:"with_corrections"`
	Final               string `json:"final"`
	Typos               []Typo `json:"typos"`
	CorrectionPositions []int  `json:"correction_positions"`
}

// FinalCorrectionPositions maps CorrectionPositions into rune offsets of
// Final, accounting for the length changes of uncorrected typos that precede
// each corrected word.
func (r TypoResult) FinalCorrectionPositions() []int {
	positions := make([]int, 0, len(r.CorrectionPositions))
	for _, t := range r.Typos {
		if !t.WillCorrect {
			continue
		}
		shift := 0
		for _, other := range r.Typos {
			if !other.WillCorrect && other.Position < t.Position {
				shift += len([]rune(other.Typo)) - len([]rune(other.Original))
			}
		}
		positions = append(positions, t.Position+shift)
	}
	return positions
}
