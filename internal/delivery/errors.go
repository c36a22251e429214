package delivery

import "errors"

var (
	// ErrNoChannel is returned when no channel name was given and no default is registered.
	ErrNoChannel = errors.New("no delivery channel available")
	// ErrChannelNotFound is returned when the requested channel is not registered.
	ErrChannelNotFound = errors.New("delivery channel not found")
	// ErrChannelUnavailable is returned when a channel reports itself unavailable.
	ErrChannelUnavailable = errors.New("delivery channel unavailable")
	// ErrKeystrokeRejected wraps a failed SendKeystroke call.
	ErrKeystrokeRejected = errors.New("keystroke rejected by channel")
	// ErrSendFailed wraps a failed or unsuccessful Send call.
	ErrSendFailed = errors.New("send failed")
	// ErrRateLimited is returned when the rate limiter cannot admit a delivery
	// before the context ends.
	ErrRateLimited = errors.New("delivery rate limited")
	// ErrManagerClosed is returned by every operation after Close.
	ErrManagerClosed = errors.New("delivery manager is closed")
)
