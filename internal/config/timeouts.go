package config

import "time"

// Indicator timing
const (
	// ClearDelay is how long a clearable state must persist before the
	// indicator is removed.
	ClearDelay = 3 * time.Second
)

// Signal sources
const (
	// DefaultPollInterval is how often the nmcli source samples device state.
	DefaultPollInterval = 2 * time.Second

	// CommandTimeout bounds a single nmcli invocation.
	CommandTimeout = 5 * time.Second
)

// Shutdown
const (
	// ShutdownTimeout is the maximum time for the whole shutdown sequence.
	ShutdownTimeout = 10 * time.Second

	// ShutdownHandlerTimeout is the default budget of one shutdown handler.
	ShutdownHandlerTimeout = 5 * time.Second
)

// Status server
const (
	// StatusReadHeaderTimeout prevents slow header attacks on the status server.
	StatusReadHeaderTimeout = 10 * time.Second

	// StatusShutdownTimeout is the graceful shutdown budget of the status server.
	StatusShutdownTimeout = 5 * time.Second
)

// Event Bus Buffer Sizes
const (
	// EventChannelBufferSize is the buffer size for individual event subscriptions
	EventChannelBufferSize = 100

	// EventChannelBufferSizeAll is the buffer size for subscribing to all events
	EventChannelBufferSizeAll = 500
)
