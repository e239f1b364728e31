// Package metrics provides interfaces and implementations for collecting
// mail server metrics. This package defines the Collector interface for
// recording metrics and the Server interface for exposing them.
package metrics

import "context"

// Protocol labels used by collectors.
const (
	ProtoPop3 = "pop3"
	ProtoSmtp = "smtp"
)

// Collector defines the interface for recording mail server metrics.
type Collector interface {
	// Connection metrics
	ConnectionOpened(proto string)
	ConnectionClosed(proto string)
	TLSConnectionEstablished(proto string)

	// POP3 authentication metrics
	AuthAttempt(success bool)

	// Command metrics
	CommandProcessed(proto, command string)

	// POP3 message metrics
	MessageRetrieved(mbox string, sizeBytes int64)
	MessageDeleted(mbox string)

	// SMTP delivery metrics
	MessageDelivered(mbox string, sizeBytes int64)
	MessageDropped()
}

// Server defines the interface for a metrics HTTP server.
type Server interface {
	// Start begins serving metrics. It blocks until the context is
	// canceled or an error occurs.
	Start(ctx context.Context) error

	// Shutdown gracefully stops the metrics server.
	Shutdown(ctx context.Context) error
}
