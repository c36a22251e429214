package schemas

import "time"

// -- Delivery Schemas --

// DeliveryMode selects how a message reaches a channel.
type DeliveryMode string

const (
	// DeliveryInstant sends the whole message in one channel call.
	DeliveryInstant DeliveryMode = "instant"
	// DeliveryPaced streams the message keystroke by keystroke with human timing.
	DeliveryPaced DeliveryMode = "paced"
)

// KeystrokeEvent is a keystroke as observed by a channel during paced delivery.
// Sequence is strictly increasing and CumulativeTimeMs is non-decreasing within
// one delivery.
type KeystrokeEvent struct {
	Keystroke
	Sequence         int       `json:"sequence"`
	CumulativeTimeMs int64     `json:"cumulative_time_ms"`
	MessagePosition  int       `json:"message_position"`
	Delivered        bool      `json:"delivered"`
	DeliveredAt      time.Time `json:"delivered_at,omitempty"`
}

// DeliveryResult is the outcome of a delivery attempt.
type DeliveryResult struct {
	Success         bool      `json:"success"`
	Timestamp       time.Time `json:"timestamp"`
	Channel         string    `json:"channel"`
	DeliveryID      string    `json:"delivery_id,omitempty"`
	Error           string    `json:"error,omitempty"`
	DurationMs      int64     `json:"duration_ms,omitempty"`
	Attempts        int       `json:"attempts,omitempty"`
	KeystrokeCount  int       `json:"keystroke_count,omitempty"`
	CorrectionCount int       `json:"correction_count,omitempty"`
}

// Progress reports how far a paced delivery has advanced.
type Progress struct {
	CharactersDelivered  int     `json:"characters_delivered"`
	TotalCharacters      int     `json:"total_characters"`
	Percent              float64 `json:"percent"`
	EstimatedRemainingMs int64   `json:"estimated_remaining_ms"`
}
