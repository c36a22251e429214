package delivery

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"go.uber.org/zap"
)

// Deliver sends message to channelName (or the default channel when empty)
// with retry and fallback per the manager policy. It never returns an error:
// failures are reported through the result and a delivery_error event.
func (m *Manager) Deliver(ctx context.Context, channelName, message string, opts *Options) schemas.DeliveryResult {
	id := m.newID()
	start := m.clock()
	policy := m.Config()
	o := m.DefaultOptions()
	if opts != nil {
		o = *opts
	}
	if o.Mode == "" {
		o.Mode = schemas.DeliveryMode(policy.DefaultMode)
	}

	requested := channelName
	if requested == "" {
		requested = m.DefaultChannel()
	}
	m.emit(Event{Type: EventDeliveryStart, Channel: requested, DeliveryID: id, Message: message})

	d := &deliveryRun{m: m, id: id, start: start, policy: policy, opts: o, message: message}
	return d.run(ctx, channelName)
}

// deliveryRun carries the state of one Deliver call through its state machine.
type deliveryRun struct {
	m       *Manager
	id      string
	start   time.Time
	policy  config.DeliveryConfig
	opts    Options
	message string

	attempts    int
	switched    bool
	keystrokes  int
	corrections int
}

func (d *deliveryRun) run(ctx context.Context, channelName string) schemas.DeliveryResult {
	if err := d.m.validateOptions(d.opts); err != nil {
		return d.fail(ctx, channelName, err)
	}
	if err := d.m.throttle(ctx); err != nil {
		return d.fail(ctx, channelName, err)
	}

	// RESOLVE_CHANNEL
	ch, err := d.m.resolve(channelName)
	if err != nil {
		return d.fail(ctx, channelName, err)
	}

	// CHECK_AVAILABLE
	if !ch.IsAvailable(ctx) {
		next, ok := d.switchToFallback(ctx, ch.Name(), ErrChannelUnavailable)
		if !ok {
			return d.fail(ctx, ch.Name(), fmt.Errorf("%w: %q", ErrChannelUnavailable, ch.Name()))
		}
		ch = next
	}

	retries := 0
	for {
		// SEND
		d.attempts++
		err := d.attempt(ctx, ch)
		if err == nil {
			return d.complete(ctx, ch.Name())
		}
		if ctx.Err() != nil {
			return d.fail(ctx, ch.Name(), err)
		}

		// RETRY
		if d.policy.AutoRetry && retries < d.policy.MaxRetries {
			retries++
			d.m.logger.Warn("Delivery attempt failed; retrying",
				zap.String("delivery_id", d.id),
				zap.String("channel", ch.Name()),
				zap.Int("attempt", d.attempts),
				zap.Duration("retry_delay", d.policy.RetryDelay),
				zap.Error(err))
			d.m.metrics.RecordRetry(ctx, ch.Name())
			if serr := d.m.sleep(ctx, d.policy.RetryDelay); serr != nil {
				return d.fail(ctx, ch.Name(), serr)
			}
			continue
		}

		// FALLBACK
		next, ok := d.switchToFallback(ctx, ch.Name(), err)
		if !ok {
			return d.fail(ctx, ch.Name(), err)
		}
		ch = next
		retries = 0
	}
}

// attempt performs one send on ch in the configured mode.
func (d *deliveryRun) attempt(ctx context.Context, ch Channel) error {
	if d.opts.Mode == schemas.DeliveryInstant {
		res, err := ch.Send(ctx, d.message)
		if err != nil {
			return fmt.Errorf("%w: channel %q: %w", ErrSendFailed, ch.Name(), err)
		}
		if !res.Success {
			return fmt.Errorf("%w: channel %q: %s", ErrSendFailed, ch.Name(), res.Error)
		}
		d.keystrokes, d.corrections = 0, 0
		return nil
	}

	out, err := d.m.typeOut(ctx, ch, d.message, d.opts, d.id, func(schemas.KeystrokeEvent) bool { return true })
	d.keystrokes, d.corrections = out.keystrokes, out.corrections
	return err
}

// switchToFallback moves to the fallback channel at most once per delivery.
// The fallback must exist, differ from the current channel and be available.
func (d *deliveryRun) switchToFallback(ctx context.Context, current string, cause error) (Channel, bool) {
	if d.switched {
		return nil, false
	}
	next, ok := d.m.fallbackFor(d.policy, current)
	if !ok || !next.IsAvailable(ctx) {
		return nil, false
	}
	d.switched = true
	d.m.logger.Warn("Switching to fallback channel",
		zap.String("delivery_id", d.id),
		zap.String("from", current),
		zap.String("to", next.Name()),
		zap.Error(cause))
	d.m.metrics.RecordChannelSwitch(ctx, current, next.Name())
	d.m.emit(Event{Type: EventChannelSwitched, Channel: next.Name(), PreviousChannel: current, DeliveryID: d.id})
	return next, true
}

func (d *deliveryRun) complete(ctx context.Context, channel string) schemas.DeliveryResult {
	res := d.m.newResult(d.id, channel, d.start)
	res.Success = true
	res.Attempts = d.attempts
	res.KeystrokeCount = d.keystrokes
	res.CorrectionCount = d.corrections

	d.m.metrics.RecordDelivery(ctx, channel, string(d.opts.Mode), true, res.DurationMs)
	d.m.logger.Info("Delivery complete",
		zap.String("delivery_id", d.id),
		zap.String("channel", channel),
		zap.String("mode", string(d.opts.Mode)),
		zap.Int("attempts", res.Attempts),
		zap.Int64("duration_ms", res.DurationMs))
	d.m.emit(Event{Type: EventDeliveryComplete, Channel: channel, DeliveryID: d.id, Result: &res})
	return res
}

func (d *deliveryRun) fail(ctx context.Context, channel string, err error) schemas.DeliveryResult {
	res := d.m.newResult(d.id, channel, d.start)
	res.Error = err.Error()
	res.Attempts = d.attempts
	res.KeystrokeCount = d.keystrokes
	res.CorrectionCount = d.corrections

	d.m.metrics.RecordDelivery(withoutCancel(ctx), channel, string(d.opts.Mode), false, res.DurationMs)
	d.m.logger.Error("Delivery failed",
		zap.String("delivery_id", d.id),
		zap.String("channel", channel),
		zap.Int("attempts", res.Attempts),
		zap.Error(err))
	d.m.emit(Event{Type: EventDeliveryError, Channel: channel, DeliveryID: d.id, Result: &res, Err: err})
	return res
}

// DeliverWithStealth resolves the channel and returns a paced keystroke
// stream for the caller to drive. Missing or unavailable channels are
// reported immediately; retry and fallback are left to the caller.
//
// Each range over the stream performs one delivery. Breaking out of the loop
// early still runs the channel's FinalizeDelivery exactly once. A failure
// is yielded as the final (zero event, error) pair.
func (m *Manager) DeliverWithStealth(ctx context.Context, channelName, message string, opts *Options) (iter.Seq2[schemas.KeystrokeEvent, error], error) {
	ch, err := m.resolve(channelName)
	if err != nil {
		return nil, err
	}
	if !ch.IsAvailable(ctx) {
		return nil, fmt.Errorf("%w: %q", ErrChannelUnavailable, ch.Name())
	}
	o := m.DefaultOptions()
	if opts != nil {
		o = *opts
	}
	o.Mode = schemas.DeliveryPaced

	return func(yield func(schemas.KeystrokeEvent, error) bool) {
		id := m.newID()
		start := m.clock()
		m.emit(Event{Type: EventDeliveryStart, Channel: ch.Name(), DeliveryID: id, Message: message})

		var out pacedOutcome
		err := m.throttle(ctx)
		if err == nil {
			out, err = m.typeOut(ctx, ch, message, o, id, func(ev schemas.KeystrokeEvent) bool {
				return yield(ev, nil)
			})
		}

		res := m.newResult(id, ch.Name(), start)
		res.Attempts = 1
		res.KeystrokeCount = out.keystrokes
		res.CorrectionCount = out.corrections

		switch {
		case out.stopped:
			// The consumer is gone; yield must not be called again.
			m.logger.Info("Paced delivery abandoned by consumer",
				zap.String("delivery_id", id),
				zap.String("channel", ch.Name()),
				zap.Int("keystrokes", out.keystrokes))
			if err != nil {
				m.logger.Warn("Cleanup after abandoned delivery failed", zap.String("delivery_id", id), zap.Error(err))
			}
		case err != nil:
			res.Error = err.Error()
			m.metrics.RecordDelivery(withoutCancel(ctx), ch.Name(), string(o.Mode), false, res.DurationMs)
			m.logger.Error("Paced delivery failed", zap.String("delivery_id", id), zap.String("channel", ch.Name()), zap.Error(err))
			m.emit(Event{Type: EventDeliveryError, Channel: ch.Name(), DeliveryID: id, Result: &res, Err: err})
			yield(schemas.KeystrokeEvent{}, err)
		default:
			res.Success = true
			m.metrics.RecordDelivery(ctx, ch.Name(), string(o.Mode), true, res.DurationMs)
			m.logger.Info("Delivery complete",
				zap.String("delivery_id", id),
				zap.String("channel", ch.Name()),
				zap.String("mode", string(o.Mode)),
				zap.Int64("duration_ms", res.DurationMs))
			m.emit(Event{Type: EventDeliveryComplete, Channel: ch.Name(), DeliveryID: id, Result: &res})
		}
	}, nil
}

// pacedOutcome summarizes a paced run.
type pacedOutcome struct {
	keystrokes  int
	corrections int
	// stopped is set when the consumer declined further events.
	stopped bool
}

// typeOut runs one paced delivery of message onto ch, handing every
// delivered keystroke to yield. Finalization is deferred right after a
// successful preparation, so it runs exactly once however typeOut returns.
func (m *Manager) typeOut(ctx context.Context, ch Channel, message string, o Options, id string, yield func(schemas.KeystrokeEvent) bool) (out pacedOutcome, err error) {
	timingCalc, typist, typos := m.components()

	if !o.SkipPreTypingDelay {
		delay := o.PreTypingDelay
		if delay <= 0 {
			timing := timingCalc.CalculateResponseTiming(message)
			delay = time.Duration(timing.TotalPreTypingDelayMs) * time.Millisecond
			m.logger.Debug("Waiting before typing",
				zap.String("delivery_id", id),
				zap.Int64("delay_ms", timing.TotalPreTypingDelayMs),
				zap.String("explanation", timing.Explanation))
		}
		if err := m.sleep(ctx, delay); err != nil {
			return out, err
		}
	}

	if p, ok := ch.(Preparer); ok {
		if err := p.PrepareForDelivery(ctx); err != nil {
			return out, fmt.Errorf("prepare channel %q: %w", ch.Name(), err)
		}
	}
	if f, ok := ch.(Finalizer); ok {
		defer func() {
			ferr := f.FinalizeDelivery(withoutCancel(ctx))
			if ferr == nil {
				return
			}
			m.logger.Warn("Channel finalization failed", zap.String("delivery_id", id), zap.String("channel", ch.Name()), zap.Error(ferr))
			err = errors.Join(err, fmt.Errorf("finalize channel %q: %w", ch.Name(), ferr))
		}()
	}

	sim := m.buildTrace(message, o, typist, typos)
	mult := o.multiplier()

	// remaining[i] is the scaled time still to elapse once keystroke i is sent.
	delays := make([]int64, len(sim.Keystrokes))
	for i, k := range sim.Keystrokes {
		delays[i] = scaleDelay(k.DelayMs, mult)
	}
	remaining := make([]int64, len(delays)+1)
	for i := len(delays) - 1; i >= 0; i-- {
		remaining[i] = remaining[i+1] + delays[i]
	}

	total := len([]rune(sim.Message))
	var cumulative int64
	position := 0

	for i, k := range sim.Keystrokes {
		if err := m.sleep(ctx, time.Duration(delays[i])*time.Millisecond); err != nil {
			return out, err
		}
		cumulative += delays[i]
		switch {
		case k.IsBackspace:
			position = max(0, position-1)
		case k.IsCharacter():
			position++
		}

		k.DelayMs = delays[i]
		ev := schemas.KeystrokeEvent{
			Keystroke:        k,
			Sequence:         i,
			CumulativeTimeMs: cumulative,
			MessagePosition:  position,
		}
		if err := ch.SendKeystroke(ctx, ev); err != nil {
			return out, fmt.Errorf("%w: channel %q at sequence %d: %w", ErrKeystrokeRejected, ch.Name(), i, err)
		}
		ev.Delivered = true
		ev.DeliveredAt = m.clock()

		out.keystrokes++
		if k.IsBackspace {
			out.corrections++
		}
		m.metrics.RecordKeystroke(ctx, ch.Name(), k.IsBackspace)
		m.emit(Event{Type: EventKeystrokeSent, Channel: ch.Name(), DeliveryID: id, Keystroke: &ev})

		progress := schemas.Progress{
			CharactersDelivered:  position,
			TotalCharacters:      total,
			EstimatedRemainingMs: remaining[i+1],
		}
		if total > 0 {
			progress.Percent = min(100, float64(position)/float64(total)*100)
		}
		m.emit(Event{Type: EventDeliveryProgress, Channel: ch.Name(), DeliveryID: id, Progress: &progress})
		m.reportProgress(o.OnProgress, progress, id)

		if !yield(ev) {
			out.stopped = true
			return out, nil
		}
	}
	return out, nil
}

// buildTrace turns message into the keystroke trace for this delivery.
func (m *Manager) buildTrace(message string, o Options, typist typingModel, typos typoModel) schemas.TypingSimulation {
	text := message
	if o.PhoneticErrors {
		text = typos.ApplyPhoneticErrors(text)
	}
	if !o.EnableTypos {
		return typist.SimulateTyping(text)
	}
	result := typos.GenerateTypos(text)
	if o.KeepUncorrectedTypos {
		return typist.SimulateTypingWithCorrections(result.Final, result.FinalCorrectionPositions())
	}
	return typist.SimulateTypingWithCorrections(text, result.CorrectionPositions)
}

// reportProgress calls the progress callback, containing any panic.
func (m *Manager) reportProgress(fn func(schemas.Progress), p schemas.Progress, id string) {
	if fn == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Warn("Progress callback panicked; ignoring.", zap.String("delivery_id", id), zap.Any("panic", r))
		}
	}()
	fn(p)
}

func scaleDelay(ms int64, mult float64) int64 {
	if mult == 1 {
		return ms
	}
	return int64(float64(ms)*mult + 0.5)
}

type typingModel interface {
	SimulateTyping(text string) schemas.TypingSimulation
	SimulateTypingWithCorrections(text string, positions []int) schemas.TypingSimulation
}

type typoModel interface {
	GenerateTypos(text string) schemas.TypoResult
	ApplyPhoneticErrors(text string) string
}
