// Package delivery routes messages to host-supplied channels, either at once
// or as a paced keystroke stream shaped by the humanoid models, with retry,
// fallback and lifecycle events.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"slices"
	"sync"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/xkilldash9x/cadence/api/schemas"
	"github.com/xkilldash9x/cadence/internal/config"
	"github.com/xkilldash9x/cadence/internal/humanoid"
	"github.com/xkilldash9x/cadence/internal/observability"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// Manager owns the channel registry and drives deliveries. Registry and
// configuration changes are safe to make concurrently with deliveries; a
// delivery works on the components and policy it read when it started.
type Manager struct {
	logger  *zap.Logger
	events  *EventBus
	metrics *observability.Metrics
	sleep   Sleeper
	clock   humanoid.Clock
	newID   func() string

	mu          sync.RWMutex
	cfg         config.DeliveryConfig
	stealth     config.StealthConfig
	channels    map[string]Channel
	order       []string
	defaultName string
	closed      bool
	// limiter is nil when rate limiting is disabled.
	limiter *rate.Limiter

	timing *humanoid.TimingCalculator
	typing *humanoid.TypingSimulator
	typos  *humanoid.TypoGenerator

	// seed derives the random sources of components built by the manager.
	seed   *int64
	seeder *rand.Rand
}

// NewManager wires a manager from its policy and the stealth configuration.
// Components not injected through options are built from stealth.
func NewManager(cfg config.DeliveryConfig, stealth config.StealthConfig, logger *zap.Logger, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid delivery config: %w", err)
	}
	if err := stealth.Validate(); err != nil {
		return nil, fmt.Errorf("invalid stealth config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	m := &Manager{
		logger:   logger.Named("delivery"),
		cfg:      cfg,
		stealth:  stealth,
		channels: make(map[string]Channel),
		limiter:  newLimiter(cfg),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.events = NewEventBus(m.logger)
	if m.metrics == nil {
		m.metrics = observability.NoopMetrics()
	}
	if m.sleep == nil {
		m.sleep = SleepContext
	}
	if m.clock == nil {
		m.clock = time.Now
	}
	if m.newID == nil {
		m.newID = func() string { return uuid.New().String() }
	}
	if m.seed != nil {
		m.seeder = rand.New(rand.NewSource(*m.seed))
	} else {
		m.seeder = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	if m.timing == nil {
		m.timing = m.buildTiming()
	}
	if m.typing == nil {
		m.typing = m.buildTyping()
	}
	if m.typos == nil {
		m.typos = m.buildTypos()
	}
	return m, nil
}

// -- Component construction --

// leafOptions gives each component its own random source so concurrent
// deliveries never share one. Must be called with m.mu held or before the
// manager is shared.
func (m *Manager) leafOptions(component string) []humanoid.Option {
	return []humanoid.Option{
		humanoid.WithRand(rand.New(rand.NewSource(m.seeder.Int63()))),
		humanoid.WithClock(m.clock),
		humanoid.WithLogger(m.logger.Named(component)),
	}
}

func (m *Manager) buildTiming() *humanoid.TimingCalculator {
	return humanoid.NewTimingCalculator(m.stealth.Timing, m.stealth.Behavioral, m.leafOptions("timing")...)
}

func (m *Manager) buildTyping() *humanoid.TypingSimulator {
	return humanoid.NewTypingSimulator(m.stealth.Typing, m.stealth.Behavioral, m.leafOptions("typing")...)
}

func (m *Manager) buildTypos() *humanoid.TypoGenerator {
	return humanoid.NewTypoGenerator(m.stealth.Errors, m.leafOptions("typos")...)
}

func newLimiter(cfg config.DeliveryConfig) *rate.Limiter {
	if cfg.RateLimit <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(cfg.RateLimit), max(cfg.RateBurst, 1))
}

// throttle blocks until the rate limiter admits one more delivery.
func (m *Manager) throttle(ctx context.Context) error {
	m.mu.RLock()
	limiter := m.limiter
	m.mu.RUnlock()
	if limiter == nil {
		return nil
	}
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	}
	return nil
}

// -- Registry --

// Register adds ch under ch.Name(), replacing any channel with that name.
// The first registered channel becomes the default, as does ch when asDefault is set.
func (m *Manager) Register(ch Channel, asDefault bool) error {
	if ch == nil || ch.Name() == "" {
		return errors.New("channel must be non-nil and have a name")
	}
	name := ch.Name()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrManagerClosed
	}
	if _, exists := m.channels[name]; !exists {
		m.order = append(m.order, name)
	}
	m.channels[name] = ch
	if asDefault || m.defaultName == "" {
		m.defaultName = name
	}
	m.logger.Debug("Registered channel", zap.String("channel", name), zap.Bool("default", m.defaultName == name))
	return nil
}

// Unregister removes a channel. If it was the default, the earliest remaining
// registration becomes the default, or the default is cleared.
func (m *Manager) Unregister(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; !ok {
		return false
	}
	delete(m.channels, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	if m.defaultName == name {
		m.defaultName = ""
		if len(m.order) > 0 {
			m.defaultName = m.order[0]
		}
	}
	m.logger.Debug("Unregistered channel", zap.String("channel", name), zap.String("default", m.defaultName))
	return true
}

// Channels lists registered channel names in registration order.
func (m *Manager) Channels() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order)
}

// Channel returns a registered channel by name.
func (m *Manager) Channel(name string) (Channel, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[name]
	return ch, ok
}

// DefaultChannel returns the default channel name, or "" if there is none.
func (m *Manager) DefaultChannel() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.defaultName
}

// SetDefaultChannel makes a registered channel the default.
func (m *Manager) SetDefaultChannel(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.channels[name]; !ok {
		return fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	m.defaultName = name
	return nil
}

// resolve finds the channel to use for name, falling back to the default.
func (m *Manager) resolve(name string) (Channel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrManagerClosed
	}
	if name == "" {
		if m.defaultName == "" {
			return nil, ErrNoChannel
		}
		name = m.defaultName
	}
	ch, ok := m.channels[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrChannelNotFound, name)
	}
	return ch, nil
}

// fallbackFor returns the configured fallback channel if it exists and is
// not current.
func (m *Manager) fallbackFor(policy config.DeliveryConfig, current string) (Channel, bool) {
	if policy.FallbackChannel == "" || policy.FallbackChannel == current {
		return nil, false
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	ch, ok := m.channels[policy.FallbackChannel]
	return ch, ok
}

// -- Events --

// On registers a listener and returns its ID.
func (m *Manager) On(eventType EventType, fn Listener) string { return m.events.On(eventType, fn) }

// Once registers a listener for the next event of eventType only.
func (m *Manager) Once(eventType EventType, fn Listener) string { return m.events.Once(eventType, fn) }

// Off removes a listener by ID.
func (m *Manager) Off(id string) bool { return m.events.Off(id) }

// Events exposes the bus, mainly for listener introspection.
func (m *Manager) Events() *EventBus { return m.events }

func (m *Manager) emit(e Event) {
	e.Timestamp = m.clock()
	m.events.Emit(e)
}

// -- Configuration --

// Config returns the current manager policy.
func (m *Manager) Config() config.DeliveryConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// StealthConfig returns the current stealth configuration.
func (m *Manager) StealthConfig() config.StealthConfig {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stealth
}

// DefaultOptions returns delivery options derived from the policy defaults.
func (m *Manager) DefaultOptions() Options {
	cfg := m.Config()
	return Options{
		Mode:               schemas.DeliveryMode(cfg.DefaultMode),
		SkipPreTypingDelay: cfg.SkipPreTypingDelay,
		TimingMultiplier:   cfg.TimingMultiplier,
		EnableTypos:        cfg.EnableTypos,
	}
}

// UpdateConfig merges a partial policy update.
func (m *Manager) UpdateConfig(update ConfigUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	next := update.apply(m.cfg)
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid delivery config: %w", err)
	}
	if next.RateLimit != m.cfg.RateLimit || next.RateBurst != m.cfg.RateBurst {
		m.limiter = newLimiter(next)
	}
	m.cfg = next
	return nil
}

// UpdateStealthConfig replaces the stealth configuration and rebuilds only the
// components whose sections changed. Rebuilt components start a new session.
func (m *Manager) UpdateStealthConfig(next config.StealthConfig) error {
	if err := next.Validate(); err != nil {
		return fmt.Errorf("invalid stealth config: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	prev := m.stealth
	m.stealth = next

	typingChanged := !cmp.Equal(prev.Typing, next.Typing)
	timingChanged := !cmp.Equal(prev.Timing, next.Timing)
	behavioralChanged := !cmp.Equal(prev.Behavioral, next.Behavioral)
	errorsChanged := !cmp.Equal(prev.Errors, next.Errors)

	var rebuilt []string
	if timingChanged || behavioralChanged {
		m.timing = m.buildTiming()
		rebuilt = append(rebuilt, "timing")
	}
	if typingChanged || behavioralChanged {
		m.typing = m.buildTyping()
		rebuilt = append(rebuilt, "typing")
	}
	if errorsChanged {
		m.typos = m.buildTypos()
		rebuilt = append(rebuilt, "typos")
	}
	if len(rebuilt) > 0 {
		m.logger.Debug("Stealth config updated",
			zap.Strings("rebuilt", rebuilt),
			zap.String("diff", cmp.Diff(prev, next)))
	}
	return nil
}

// components snapshots the current humanoid components.
func (m *Manager) components() (*humanoid.TimingCalculator, *humanoid.TypingSimulator, *humanoid.TypoGenerator) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.timing, m.typing, m.typos
}

// -- Lifecycle --

// Close closes every channel that implements Closer, concurrently, then
// clears the registry, the default and all listeners. It returns the first
// close error; every channel is still closed.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	channels := make([]Channel, 0, len(m.order))
	for _, name := range m.order {
		channels = append(channels, m.channels[name])
	}
	m.channels = make(map[string]Channel)
	m.order = nil
	m.defaultName = ""
	m.mu.Unlock()

	var g errgroup.Group
	for _, ch := range channels {
		closer, ok := ch.(Closer)
		if !ok {
			continue
		}
		g.Go(func() error {
			if err := closer.Close(); err != nil {
				m.logger.Warn("Failed to close channel", zap.String("channel", ch.Name()), zap.Error(err))
				return fmt.Errorf("close channel %q: %w", ch.Name(), err)
			}
			return nil
		})
	}
	err := g.Wait()
	m.events.Clear()
	m.logger.Info("Delivery manager closed", zap.Int("channels", len(channels)))
	return err
}

// newResult stamps the fields every result carries.
func (m *Manager) newResult(id, channel string, start time.Time) schemas.DeliveryResult {
	now := m.clock()
	return schemas.DeliveryResult{
		Timestamp:  now,
		Channel:    channel,
		DeliveryID: id,
		DurationMs: now.Sub(start).Milliseconds(),
	}
}

// withoutCancel keeps cleanup calls alive after the delivery context ends.
func withoutCancel(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}
