package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// meterName is the instrumentation scope for every cadence instrument.
const meterName = "github.com/xkilldash9x/cadence"

// Delivery status attribute values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

// Metrics holds the OpenTelemetry instruments recorded by the delivery
// manager. The underlying OTel types are safe for concurrent use.
type Metrics struct {
	// Deliveries counts finished deliveries. Attributes: channel, mode, status.
	Deliveries metric.Int64Counter

	// Retries counts send attempts beyond the first one. Attribute: channel.
	Retries metric.Int64Counter

	// ChannelSwitches counts fallbacks. Attributes: from, to.
	ChannelSwitches metric.Int64Counter

	// KeystrokesSent counts keystrokes accepted by a channel. Attribute: channel.
	KeystrokesSent metric.Int64Counter

	// Corrections counts backspaces sent during paced deliveries. Attribute: channel.
	Corrections metric.Int64Counter

	// DeliveryDuration tracks wall time per delivery in milliseconds.
	DeliveryDuration metric.Float64Histogram
}

// durationBuckets covers instant sends (tens of ms) up to long paced
// messages (minutes).
var durationBuckets = []float64{
	10, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 180000,
}

// NewMetrics creates every instrument on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Deliveries, err = m.Int64Counter("cadence.deliveries",
		metric.WithDescription("Finished deliveries by channel, mode and status."),
	); err != nil {
		return nil, err
	}
	if met.Retries, err = m.Int64Counter("cadence.delivery.retries",
		metric.WithDescription("Send attempts beyond the first, by channel."),
	); err != nil {
		return nil, err
	}
	if met.ChannelSwitches, err = m.Int64Counter("cadence.delivery.channel_switches",
		metric.WithDescription("Fallbacks from one channel to another."),
	); err != nil {
		return nil, err
	}
	if met.KeystrokesSent, err = m.Int64Counter("cadence.keystrokes.sent",
		metric.WithDescription("Keystrokes accepted by a channel."),
	); err != nil {
		return nil, err
	}
	if met.Corrections, err = m.Int64Counter("cadence.keystrokes.corrections",
		metric.WithDescription("Backspace keystrokes sent while correcting typos."),
	); err != nil {
		return nil, err
	}
	if met.DeliveryDuration, err = m.Float64Histogram("cadence.delivery.duration",
		metric.WithDescription("Wall time of a delivery."),
		metric.WithUnit("ms"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	return met, nil
}

// NoopMetrics returns instruments that discard every measurement.
func NoopMetrics() *Metrics {
	met, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		// The noop provider never fails.
		panic("observability: failed to create noop metrics: " + err.Error())
	}
	return met
}

// GlobalMetrics builds instruments on the globally registered provider.
func GlobalMetrics() (*Metrics, error) {
	return NewMetrics(otel.GetMeterProvider())
}

// RecordDelivery records a finished delivery.
func (m *Metrics) RecordDelivery(ctx context.Context, channel, mode string, success bool, durationMs int64) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	attrs := metric.WithAttributes(
		attribute.String("channel", channel),
		attribute.String("mode", mode),
		attribute.String("status", status),
	)
	m.Deliveries.Add(ctx, 1, attrs)
	m.DeliveryDuration.Record(ctx, float64(durationMs), attrs)
}

// RecordRetry records one retry against channel.
func (m *Metrics) RecordRetry(ctx context.Context, channel string) {
	m.Retries.Add(ctx, 1, metric.WithAttributes(attribute.String("channel", channel)))
}

// RecordChannelSwitch records a fallback from one channel to another.
func (m *Metrics) RecordChannelSwitch(ctx context.Context, from, to string) {
	m.ChannelSwitches.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
	))
}

// RecordKeystroke records an accepted keystroke; backspaces also count as corrections.
func (m *Metrics) RecordKeystroke(ctx context.Context, channel string, backspace bool) {
	attrs := metric.WithAttributes(attribute.String("channel", channel))
	m.KeystrokesSent.Add(ctx, 1, attrs)
	if backspace {
		m.Corrections.Add(ctx, 1, attrs)
	}
}
