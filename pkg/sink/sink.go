// Package sink persists extracted records. Streams emit generic JSON
// objects; a sink serializes them somewhere durable without interpreting
// the fields.
package sink

import "context"

// Sink receives extracted records, one stream at a time.
type Sink interface {
	// Write persists one record for the named stream.
	Write(ctx context.Context, stream string, record map[string]any) error

	// Close flushes and releases the sink.
	Close() error
}
