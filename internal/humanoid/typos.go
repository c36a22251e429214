package humanoid

import (
	"regexp"
	"slices"
	"strings"
	"sync"
	"unicode"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap"
)

// typoWeights are the relative sampling weights of each typo type. They are
// renormalized over the enabled subset.
var typoWeights = map[schemas.TypoType]float64{
	schemas.TypoAdjacentKey:   0.4,
	schemas.TypoTransposition: 0.3,
	schemas.TypoOmission:      0.2,
	schemas.TypoDoubling:      0.1,
}

// phoneticConfusions maps a correctly spelled word to the spelling people
// commonly confuse it with.
var phoneticConfusions = map[string]string{
	"their": "there", "there": "their", "they're": "their",
	"your": "you're", "you're": "your",
	"its": "it's", "it's": "its",
	"then": "than", "than": "then",
	"to": "too", "too": "to",
	"affect": "effect", "effect": "affect",
	"lose": "loose", "loose": "lose",
	"accept": "except", "except": "accept",
	"definitely": "definately", "separate": "seperate",
	"receive": "recieve", "weird": "wierd", "until": "untill",
	"occurred": "occured", "necessary": "neccessary", "tomorrow": "tommorow",
}

var phoneticRe = buildPhoneticRe()

func buildPhoneticRe() *regexp.Regexp {
	words := make([]string, 0, len(phoneticConfusions))
	for w := range phoneticConfusions {
		words = append(words, regexp.QuoteMeta(w))
	}
	// Longest first so "they're" wins over "they".
	slices.SortFunc(words, func(a, b string) int { return len(b) - len(a) })
	return regexp.MustCompile(`(?i)\b(` + strings.Join(words, "|") + `)\b`)
}

// TypoGenerator decides which words of a message get mistakes, what kind and
// whether the typist notices and fixes them.
type TypoGenerator struct {
	mu      sync.Mutex
	cfg     config.ErrorsConfig
	enabled []schemas.TypoType
	opts    options
}

// NewTypoGenerator builds a generator. Unknown entries in cfg.TypoTypes are ignored.
func NewTypoGenerator(cfg config.ErrorsConfig, opts ...Option) *TypoGenerator {
	enabled := make([]schemas.TypoType, 0, len(schemas.AllTypoTypes))
	for _, t := range schemas.AllTypoTypes {
		if slices.Contains(cfg.TypoTypes, string(t)) {
			enabled = append(enabled, t)
		}
	}
	return &TypoGenerator{cfg: cfg, enabled: enabled, opts: buildOptions(opts)}
}

// token is an alphabetic run inside a message, addressed in runes.
type token struct {
	pos  int
	word []rune
}

// GenerateTypos injects mistakes into text and returns every view of the result.
func (tg *TypoGenerator) GenerateTypos(text string) schemas.TypoResult {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	result := schemas.TypoResult{
		Original:            text,
		Typos:               []schemas.Typo{},
		CorrectionPositions: []int{},
	}

	if tg.cfg.TypoProbability > 0 && len(tg.enabled) > 0 {
		for _, tok := range alphaTokens(text) {
			p := tg.cfg.TypoProbability * float64(len(tok.word)) / 5
			if tg.opts.rng.Float64() >= p {
				continue
			}
			kind := tg.pickType()
			mutated, ok := tg.apply(kind, tok.word)
			if !ok {
				continue
			}
			typo := schemas.Typo{
				Position:    tok.pos,
				Original:    string(tok.word),
				Typo:        mutated,
				Type:        kind,
				WillCorrect: tg.opts.rng.Float64() < tg.cfg.CorrectionProbability,
			}
			result.Typos = append(result.Typos, typo)
			if typo.WillCorrect {
				result.CorrectionPositions = append(result.CorrectionPositions, typo.Position)
			}
		}
	}

	var uncorrected []schemas.Typo
	for _, t := range result.Typos {
		if !t.WillCorrect {
			uncorrected = append(uncorrected, t)
		}
	}
	result.WithTypos = ApplyTypos(text, result.Typos, func(t schemas.Typo) string { return t.Typo })
	result.WithCorrections = ApplyTypos(text, result.Typos, func(t schemas.Typo) string {
		if t.WillCorrect {
			return t.Typo + "*" + t.Original
		}
		return t.Typo
	})
	result.Final = ApplyTypos(text, uncorrected, func(t schemas.Typo) string { return t.Typo })

	if len(result.Typos) > 0 {
		tg.opts.logger.Debug("Generated typos",
			zap.Int("typos", len(result.Typos)),
			zap.Int("corrections", len(result.CorrectionPositions)))
	}
	return result
}

// ApplyTypos substitutes each typo into text using render to produce the
// replacement. Substitutions run in descending position order so earlier
// replacements never shift the offsets of later ones.
func ApplyTypos(text string, typos []schemas.Typo, render func(schemas.Typo) string) string {
	if len(typos) == 0 {
		return text
	}
	sorted := slices.Clone(typos)
	slices.SortFunc(sorted, func(a, b schemas.Typo) int { return b.Position - a.Position })

	runes := []rune(text)
	for _, t := range sorted {
		end := t.Position + len([]rune(t.Original))
		if t.Position < 0 || end > len(runes) {
			continue
		}
		replacement := []rune(render(t))
		runes = slices.Concat(runes[:t.Position], replacement, runes[end:])
	}
	return string(runes)
}

// ApplyPhoneticErrors swaps commonly confused spellings, each occurrence
// independently with the configured grammar error probability. The case of
// the original word is preserved.
func (tg *TypoGenerator) ApplyPhoneticErrors(text string) string {
	tg.mu.Lock()
	defer tg.mu.Unlock()

	p := tg.cfg.GrammarErrorProbability
	if p <= 0 {
		return text
	}
	return phoneticRe.ReplaceAllStringFunc(text, func(match string) string {
		replacement, ok := phoneticConfusions[strings.ToLower(match)]
		if !ok || tg.opts.rng.Float64() >= p {
			return match
		}
		return matchCase(match, replacement)
	})
}

// pickType samples a typo type by weight over the enabled types.
func (tg *TypoGenerator) pickType() schemas.TypoType {
	total := 0.0
	for _, t := range tg.enabled {
		total += typoWeights[t]
	}
	x := tg.opts.rng.Float64() * total
	for _, t := range tg.enabled {
		x -= typoWeights[t]
		if x < 0 {
			return t
		}
	}
	return tg.enabled[len(tg.enabled)-1]
}

func (tg *TypoGenerator) apply(kind schemas.TypoType, word []rune) (string, bool) {
	switch kind {
	case schemas.TypoAdjacentKey:
		return tg.adjacentKeyTypo(word)
	case schemas.TypoTransposition:
		return tg.transpositionTypo(word)
	case schemas.TypoOmission:
		return tg.omissionTypo(word)
	case schemas.TypoDoubling:
		return tg.doublingTypo(word)
	}
	return "", false
}

// --- Typo Implementations ---

func (tg *TypoGenerator) adjacentKeyTypo(word []rune) (string, bool) {
	candidates := make([]int, 0, len(word))
	for i, r := range word {
		if _, ok := keyboardNeighbors[unicode.ToLower(r)]; ok {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return "", false
	}
	i := candidates[tg.opts.rng.Intn(len(candidates))]
	typo, _ := adjacentKey(tg.opts.rng, word[i])
	out := slices.Clone(word)
	out[i] = typo
	return string(out), true
}

func (tg *TypoGenerator) transpositionTypo(word []rune) (string, bool) {
	n := len(word)
	if n < 2 {
		return "", false
	}
	// The swap starts within the inner 20-80% of the word, so the first letter
	// only moves in words under five letters.
	lo := int(float64(n) * 0.2)
	hi := int(float64(n)*0.8+0.999) - 1
	if hi > n-2 {
		hi = n - 2
	}
	if hi < lo {
		hi = lo
	}
	i := lo + tg.opts.rng.Intn(hi-lo+1)
	if word[i] == word[i+1] {
		return "", false
	}
	out := slices.Clone(word)
	out[i], out[i+1] = out[i+1], out[i]
	return string(out), true
}

func (tg *TypoGenerator) omissionTypo(word []rune) (string, bool) {
	n := len(word)
	if n < 3 {
		return "", false
	}
	i := 1 + tg.opts.rng.Intn(n-2)
	return string(slices.Delete(slices.Clone(word), i, i+1)), true
}

func (tg *TypoGenerator) doublingTypo(word []rune) (string, bool) {
	n := len(word)
	if n < 2 {
		return "", false
	}
	i := tg.opts.rng.Intn(n)
	return string(slices.Insert(slices.Clone(word), i, word[i])), true
}

// alphaTokens splits text into runs of letters (apostrophes end a token).
func alphaTokens(text string) []token {
	var tokens []token
	runes := []rune(text)
	for i := 0; i < len(runes); {
		if !unicode.IsLetter(runes[i]) {
			i++
			continue
		}
		j := i
		for j < len(runes) && unicode.IsLetter(runes[j]) {
			j++
		}
		tokens = append(tokens, token{pos: i, word: runes[i:j]})
		i = j
	}
	return tokens
}

// matchCase shapes replacement after the capitalization of original.
func matchCase(original, replacement string) string {
	switch {
	case isAllCaps(original):
		return strings.ToUpper(replacement)
	case unicode.IsUpper([]rune(original)[0]):
		r := []rune(replacement)
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	}
	return replacement
}
