package delivery

import (
	"context"

	"github.com/xkilldash9x/cadence/api/schemas"
)

// Channel is a delivery target supplied by the host application. The manager
// never assumes a specific transport.
type Channel interface {
	// Name identifies the channel in the registry. It must be stable.
	Name() string
	Description() string
	IsAvailable(ctx context.Context) bool
	// Send delivers a complete message at once. A nil error with
	// Success=false is treated as a failed attempt.
	Send(ctx context.Context, message string) (schemas.DeliveryResult, error)
	// SendKeystroke delivers one step of a paced trace, pauses included.
	// Keystrokes arrive in Sequence order.
	SendKeystroke(ctx context.Context, event schemas.KeystrokeEvent) error
}

// Preparer is implemented by channels that need setup before a paced
// delivery, such as focusing an input box.
type Preparer interface {
	PrepareForDelivery(ctx context.Context) error
}

// Finalizer is implemented by channels that need to commit a paced delivery,
// such as pressing enter. FinalizeDelivery runs once per paced delivery that
// got past preparation, even if the consumer stops early.
type Finalizer interface {
	FinalizeDelivery(ctx context.Context) error
}

// Closer is implemented by channels holding resources released by Manager.Close.
type Closer interface {
	Close() error
}
