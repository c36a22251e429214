package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/cadence/internal/delivery"
	"github.com/xkilldash9x/cadence/internal/observability"
)

const terminalChannel = "terminal"

type deliverFlags struct {
	skipDelay bool
	keepTypos bool
	phonetic  bool
	stream    bool
}

func newDeliverCmd() *cobra.Command {
	var flags deliverFlags
	deliverCmd := &cobra.Command{
		Use:   "deliver [text]",
		Short: "Type a message onto the terminal",
		Long: `Deliver replays a message onto standard output through the delivery manager.
In paced mode the message is typed keystroke by keystroke, with the reading
delay, pauses and corrected typos of a human typist.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeliver(cmd, args[0], flags)
		},
	}

	deliverCmd.Flags().String("mode", "paced", "delivery mode: paced or instant")
	deliverCmd.Flags().Bool("typos", true, "inject typos and correct them while typing")
	deliverCmd.Flags().Float64("speed", 1.0, "typing speed factor (2 types twice as fast)")
	deliverCmd.Flags().BoolVar(&flags.skipDelay, "skip-delay", false, "start typing without the reading and thinking delay")
	deliverCmd.Flags().BoolVar(&flags.keepTypos, "keep-typos", false, "leave uncorrected typos in the delivered text")
	deliverCmd.Flags().BoolVar(&flags.phonetic, "phonetic", false, "apply phonetic misspellings before typing")
	deliverCmd.Flags().BoolVar(&flags.stream, "stream", false, "consume the keystroke stream and log every keystroke")
	return deliverCmd
}

func runDeliver(cmd *cobra.Command, text string, flags deliverFlags) error {
	ctx := cmd.Context()
	cfg, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	logger := observability.GetLogger()

	metrics, err := observability.GlobalMetrics()
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	m, err := delivery.NewManager(cfg.Delivery(), cfg.Stealth(), logger,
		delivery.WithSeed(seedFrom(cmd)),
		delivery.WithMetrics(metrics),
	)
	if err != nil {
		return fmt.Errorf("failed to create delivery manager: %w", err)
	}
	defer func() {
		if cerr := m.Close(); cerr != nil {
			logger.Warn("Failed to close delivery manager", zap.Error(cerr))
		}
	}()

	ch := delivery.NewWriterChannel(terminalChannel, "Standard output", cmd.OutOrStdout())
	if err := m.Register(ch, true); err != nil {
		return err
	}

	opts := m.DefaultOptions()
	opts.SkipPreTypingDelay = opts.SkipPreTypingDelay || flags.skipDelay
	opts.KeepUncorrectedTypos = flags.keepTypos
	opts.PhoneticErrors = flags.phonetic

	if flags.stream {
		return streamDelivery(cmd, m, text, &opts, logger)
	}

	result := m.Deliver(ctx, terminalChannel, text, &opts)
	if !result.Success {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("delivery failed after %d attempt(s): %s", result.Attempts, result.Error)
	}
	logger.Info("Message delivered",
		zap.String("delivery_id", result.DeliveryID),
		zap.Int64("duration_ms", result.DurationMs),
		zap.Int("keystrokes", result.KeystrokeCount),
		zap.Int("corrections", result.CorrectionCount))
	return nil
}

func streamDelivery(cmd *cobra.Command, m *delivery.Manager, text string, opts *delivery.Options, logger *zap.Logger) error {
	events, err := m.DeliverWithStealth(cmd.Context(), terminalChannel, text, opts)
	if err != nil {
		return err
	}

	var keystrokes, corrections int
	for ev, err := range events {
		if err != nil {
			if ctxErr := cmd.Context().Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return ctxErr
			}
			return fmt.Errorf("paced delivery failed at keystroke %d: %w", keystrokes, err)
		}
		keystrokes++
		if ev.IsBackspace {
			corrections++
		}
		logger.Debug("Keystroke delivered",
			zap.Int("sequence", ev.Sequence),
			zap.String("char", ev.Char),
			zap.Bool("backspace", ev.IsBackspace),
			zap.Bool("pause", ev.IsPause),
			zap.Int64("cumulative_ms", ev.CumulativeTimeMs))
	}
	logger.Info("Message streamed", zap.Int("keystrokes", keystrokes), zap.Int("corrections", corrections))
	return nil
}
