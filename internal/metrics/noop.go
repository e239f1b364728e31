package metrics

// NoopCollector is a no-op implementation of the Collector interface.
// All methods are empty stubs that do nothing.
type NoopCollector struct{}

// ConnectionOpened is a no-op.
func (n *NoopCollector) ConnectionOpened(proto string) {}

// ConnectionClosed is a no-op.
func (n *NoopCollector) ConnectionClosed(proto string) {}

// TLSConnectionEstablished is a no-op.
func (n *NoopCollector) TLSConnectionEstablished(proto string) {}

// AuthAttempt is a no-op.
func (n *NoopCollector) AuthAttempt(success bool) {}

// CommandProcessed is a no-op.
func (n *NoopCollector) CommandProcessed(proto, command string) {}

// MessageRetrieved is a no-op.
func (n *NoopCollector) MessageRetrieved(mbox string, sizeBytes int64) {}

// MessageDeleted is a no-op.
func (n *NoopCollector) MessageDeleted(mbox string) {}

// MessageDelivered is a no-op.
func (n *NoopCollector) MessageDelivered(mbox string, sizeBytes int64) {}

// MessageDropped is a no-op.
func (n *NoopCollector) MessageDropped() {}
