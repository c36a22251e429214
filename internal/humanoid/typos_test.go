package humanoid

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap/zaptest"
)

const longWords = "Unfortunately the shipment containing replacement keyboards remains delayed somewhere overseas"

func setupTypoTest(t *testing.T, seed int64, mutate func(*config.ErrorsConfig)) *TypoGenerator {
	cfg := config.DefaultStealthConfig().Errors
	if mutate != nil {
		mutate(&cfg)
	}
	return NewTypoGenerator(cfg,
		WithRand(rand.New(rand.NewSource(seed))),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestGenerateTypos_ZeroProbability(t *testing.T) {
	tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) { c.TypoProbability = 0 })
	res := tg.GenerateTypos(longWords)

	assert.Equal(t, longWords, res.Original)
	assert.Equal(t, longWords, res.WithTypos)
	assert.Equal(t, longWords, res.WithCorrections)
	assert.Equal(t, longWords, res.Final)
	assert.Empty(t, res.Typos)
	assert.Empty(t, res.CorrectionPositions)
}

func TestGenerateTypos_NoEnabledTypes(t *testing.T) {
	tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) {
		c.TypoProbability = 1
		c.TypoTypes = []string{"fat_finger"}
	})
	res := tg.GenerateTypos(longWords)
	assert.Empty(t, res.Typos)
	assert.Equal(t, longWords, res.Final)
}

func TestGenerateTypos_EmptyText(t *testing.T) {
	tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) { c.TypoProbability = 1 })
	res := tg.GenerateTypos("")
	assert.Empty(t, res.Typos)
	assert.Equal(t, "", res.Final)
}

func TestGenerateTypos_TypeShapes(t *testing.T) {
	expectedDelta := map[schemas.TypoType]int{
		schemas.TypoAdjacentKey:   0,
		schemas.TypoTransposition: 0,
		schemas.TypoOmission:      -1,
		schemas.TypoDoubling:      1,
	}

	for _, kind := range schemas.AllTypoTypes {
		t.Run(string(kind), func(t *testing.T) {
			tg := setupTypoTest(t, 5, func(c *config.ErrorsConfig) {
				// Every word of five or more letters is hit.
				c.TypoProbability = 1
				c.TypoTypes = []string{string(kind)}
			})
			res := tg.GenerateTypos(longWords)
			require.NotEmpty(t, res.Typos)

			runes := []rune(longWords)
			for _, typo := range res.Typos {
				assert.Equal(t, kind, typo.Type)
				assert.NotEqual(t, typo.Original, typo.Typo)
				assert.Equal(t, expectedDelta[kind], len([]rune(typo.Typo))-len([]rune(typo.Original)))

				end := typo.Position + len([]rune(typo.Original))
				require.LessOrEqual(t, end, len(runes))
				assert.Equal(t, typo.Original, string(runes[typo.Position:end]), "position addresses the original word")
			}
		})
	}
}

func TestTranspositionTypo_SwapSpan(t *testing.T) {
	t.Run("LongWordKeepsItsEdges", func(t *testing.T) {
		word := []rune("keyboardly")
		for seed := int64(1); seed <= 100; seed++ {
			tg := setupTypoTest(t, seed, nil)
			out, ok := tg.transpositionTypo(word)
			require.True(t, ok)
			assert.True(t, strings.HasPrefix(out, "ke"), "seed %d: %q", seed, out)
			assert.True(t, strings.HasSuffix(out, "y"), "seed %d: %q", seed, out)
		}
	})

	t.Run("ShortWordMayMoveFirstLetter", func(t *testing.T) {
		seen := map[string]bool{}
		for seed := int64(1); seed <= 100; seed++ {
			tg := setupTypoTest(t, seed, nil)
			out, ok := tg.transpositionTypo([]rune("the"))
			require.True(t, ok)
			seen[out] = true
		}
		assert.Equal(t, map[string]bool{"hte": true, "teh": true}, seen)
	})

	t.Run("RepeatedLettersAreSkipped", func(t *testing.T) {
		tg := setupTypoTest(t, 1, nil)
		_, ok := tg.transpositionTypo([]rune("aa"))
		assert.False(t, ok)
	})
}

func TestGenerateTypos_CorrectionViews(t *testing.T) {
	t.Run("AllCorrected", func(t *testing.T) {
		tg := setupTypoTest(t, 9, func(c *config.ErrorsConfig) {
			c.TypoProbability = 1
			c.CorrectionProbability = 1
		})
		res := tg.GenerateTypos(longWords)
		require.NotEmpty(t, res.Typos)

		assert.Equal(t, longWords, res.Final)
		assert.NotEqual(t, longWords, res.WithTypos)
		assert.Len(t, res.CorrectionPositions, len(res.Typos))
		for i, typo := range res.Typos {
			assert.True(t, typo.WillCorrect)
			assert.Equal(t, typo.Position, res.CorrectionPositions[i])
			assert.Contains(t, res.WithCorrections, typo.Typo+"*"+typo.Original)
		}
	})

	t.Run("NoneCorrected", func(t *testing.T) {
		tg := setupTypoTest(t, 9, func(c *config.ErrorsConfig) {
			c.TypoProbability = 1
			c.CorrectionProbability = 0
		})
		res := tg.GenerateTypos(longWords)
		require.NotEmpty(t, res.Typos)

		assert.Empty(t, res.CorrectionPositions)
		assert.Equal(t, res.WithTypos, res.Final)
		assert.Equal(t, res.WithTypos, res.WithCorrections)
		for _, typo := range res.Typos {
			assert.False(t, typo.WillCorrect)
			assert.Contains(t, res.Final, typo.Typo)
		}
	})

	t.Run("Mixed", func(t *testing.T) {
		tg := setupTypoTest(t, 13, func(c *config.ErrorsConfig) {
			c.TypoProbability = 1
			c.CorrectionProbability = 0.5
			c.TypoTypes = []string{string(schemas.TypoOmission), string(schemas.TypoDoubling)}
		})
		res := tg.GenerateTypos(longWords)
		require.NotEmpty(t, res.Typos)

		var uncorrected []schemas.Typo
		for _, typo := range res.Typos {
			if !typo.WillCorrect {
				uncorrected = append(uncorrected, typo)
			}
		}
		expected := ApplyTypos(longWords, uncorrected, func(t schemas.Typo) string { return t.Typo })
		assert.Equal(t, expected, res.Final)

		// Corrected words survive intact in Final at their shifted offsets.
		final := []rune(res.Final)
		finalPositions := res.FinalCorrectionPositions()
		require.Len(t, finalPositions, len(res.CorrectionPositions))
		i := 0
		for _, typo := range res.Typos {
			if !typo.WillCorrect {
				continue
			}
			p := finalPositions[i]
			i++
			assert.Equal(t, typo.Original, string(final[p:p+len([]rune(typo.Original))]))
		}
	})
}

func TestGenerateTypos_ShortWordsAreRarelyHit(t *testing.T) {
	tg := setupTypoTest(t, 2, func(c *config.ErrorsConfig) {
		c.TypoProbability = 0.5
		c.TypoTypes = []string{string(schemas.TypoOmission)}
	})
	// Omission needs three letters, so two-letter words can never be mutated.
	res := tg.GenerateTypos(strings.Repeat("to be or no ", 20))
	assert.Empty(t, res.Typos)
}

func TestGenerateTypos_Deterministic(t *testing.T) {
	mutate := func(c *config.ErrorsConfig) { c.TypoProbability = 0.5 }
	a := setupTypoTest(t, 77, mutate).GenerateTypos(longWords)
	b := setupTypoTest(t, 77, mutate).GenerateTypos(longWords)
	assert.Equal(t, a, b)
}

func TestApplyTypos(t *testing.T) {
	text := "hello brave world"
	typos := []schemas.Typo{
		{Position: 0, Original: "hello", Typo: "helo"},
		{Position: 12, Original: "world", Typo: "wworld"},
		{Position: 6, Original: "brave", Typo: "bravve"},
	}
	render := func(t schemas.Typo) string { return t.Typo }

	assert.Equal(t, "helo bravve wworld", ApplyTypos(text, typos, render))

	// Input order does not matter.
	reversed := []schemas.Typo{typos[1], typos[2], typos[0]}
	assert.Equal(t, "helo bravve wworld", ApplyTypos(text, reversed, render))

	// The caller's slice is not reordered.
	assert.Equal(t, 12, reversed[0].Position)

	t.Run("OutOfRangeIgnored", func(t *testing.T) {
		bad := []schemas.Typo{{Position: 15, Original: "world", Typo: "x"}}
		assert.Equal(t, text, ApplyTypos(text, bad, render))
	})

	t.Run("Empty", func(t *testing.T) {
		assert.Equal(t, text, ApplyTypos(text, nil, render))
	})
}

func TestApplyPhoneticErrors(t *testing.T) {
	t.Run("AlwaysSwap", func(t *testing.T) {
		tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) { c.GrammarErrorProbability = 1 })
		assert.Equal(t, "There house is over their", tg.ApplyPhoneticErrors("Their house is over there"))
		assert.Equal(t, "YOU'RE late, then again its fine", tg.ApplyPhoneticErrors("YOUR late, than again it's fine"))
		assert.Equal(t, "I will definately recieve it", tg.ApplyPhoneticErrors("I will definitely receive it"))
	})

	t.Run("NeverSwap", func(t *testing.T) {
		tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) { c.GrammarErrorProbability = 0 })
		in := "Their house is over there"
		assert.Equal(t, in, tg.ApplyPhoneticErrors(in))
	})

	t.Run("WholeWordsOnly", func(t *testing.T) {
		tg := setupTypoTest(t, 1, func(c *config.ErrorsConfig) { c.GrammarErrorProbability = 1 })
		in := "totally untouched thereafter"
		assert.Equal(t, in, tg.ApplyPhoneticErrors(in))
	})
}

func TestAlphaTokens(t *testing.T) {
	tokens := alphaTokens("Hi, it's 9am café!")
	var words []string
	var positions []int
	for _, tok := range tokens {
		words = append(words, string(tok.word))
		positions = append(positions, tok.pos)
	}
	assert.Equal(t, []string{"Hi", "it", "s", "am", "café"}, words)
	assert.Equal(t, []int{0, 4, 7, 10, 13}, positions)
}
