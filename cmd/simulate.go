package cmd

import (
	"encoding/json"
	"io"
	"math/rand"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/humanoid"
	"github.com/xkilldash9x/cadence/internal/observability"
)

// seedFrom returns the --seed flag, or a clock-derived seed when it is unset.
func seedFrom(cmd *cobra.Command) int64 {
	seed, _ := cmd.Flags().GetInt64("seed")
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return seed
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newSimulateCmd() *cobra.Command {
	var corrections bool
	simulateCmd := &cobra.Command{
		Use:   "simulate [text]",
		Short: "Print the keystroke trace for a message as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			stealth := cfg.Stealth()
			rng := rand.New(rand.NewSource(seedFrom(cmd)))
			logger := observability.GetLogger()

			typist := humanoid.NewTypingSimulator(stealth.Typing, stealth.Behavioral,
				humanoid.WithRand(rng), humanoid.WithLogger(logger))

			var sim schemas.TypingSimulation
			if corrections {
				typos := humanoid.NewTypoGenerator(stealth.Errors,
					humanoid.WithRand(rng), humanoid.WithLogger(logger)).GenerateTypos(args[0])
				sim = typist.SimulateTypingWithCorrections(args[0], typos.CorrectionPositions)
			} else {
				sim = typist.SimulateTyping(args[0])
			}
			return writeJSON(cmd.OutOrStdout(), sim)
		},
	}
	simulateCmd.Flags().BoolVar(&corrections, "corrections", false, "inject typos and type their corrections")
	return simulateCmd
}

func newTyposCmd() *cobra.Command {
	var phonetic bool
	typosCmd := &cobra.Command{
		Use:   "typos [text]",
		Short: "Print the typos a typist would make in a message as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			gen := humanoid.NewTypoGenerator(cfg.Stealth().Errors,
				humanoid.WithRand(rand.New(rand.NewSource(seedFrom(cmd)))),
				humanoid.WithLogger(observability.GetLogger()))

			text := args[0]
			if phonetic {
				text = gen.ApplyPhoneticErrors(text)
			}
			return writeJSON(cmd.OutOrStdout(), gen.GenerateTypos(text))
		},
	}
	typosCmd.Flags().BoolVar(&phonetic, "phonetic", false, "apply phonetic misspellings first")
	return typosCmd
}

// timingReport is the output of the timing command.
type timingReport struct {
	Characteristics schemas.MessageCharacteristics `json:"characteristics"`
	Timing          schemas.ResponseTiming         `json:"timing"`
}

func newTimingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timing [text]",
		Short: "Print how long a typist waits before answering a message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromContext(cmd.Context())
			if err != nil {
				return err
			}
			stealth := cfg.Stealth()
			tc := humanoid.NewTimingCalculator(stealth.Timing, stealth.Behavioral,
				humanoid.WithRand(rand.New(rand.NewSource(seedFrom(cmd)))),
				humanoid.WithLogger(observability.GetLogger()))

			return writeJSON(cmd.OutOrStdout(), timingReport{
				Characteristics: humanoid.AnalyzeMessage(args[0]),
				Timing:          tc.CalculateResponseTiming(args[0]),
			})
		},
	}
}
