package interfaces

import "pulseroom/pkg/types"

// Connection is the opaque handle the Room Channel Registry tracks.
// Implementations must make Send safe for concurrent use.
type Connection interface {
	// ID uniquely identifies the connection for its whole lifetime.
	ID() string

	// Credential is the identity bound at admission. It never changes.
	Credential() types.Credential

	// Send queues one event for delivery. It never blocks on the network.
	Send(event types.Outbound) error

	// Close forcibly terminates the connection after flushing queued events.
	// Safe to call more than once.
	Close() error
}
