package sink

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// JSONLSink writes records as newline-delimited JSON with the stream name
// attached, one object per line. Safe for concurrent writers.
type JSONLSink struct {
	mu     sync.Mutex
	writer *bufio.Writer
	closer io.Closer
}

// NewJSONLSink wraps w. If w is also an io.Closer it is closed with the
// sink.
func NewJSONLSink(w io.Writer) *JSONLSink {
	closer, _ := w.(io.Closer)
	return &JSONLSink{
		writer: bufio.NewWriter(w),
		closer: closer,
	}
}

// Write implements Sink.
func (s *JSONLSink) Write(ctx context.Context, stream string, record map[string]any) error {
	line := map[string]any{
		"stream": stream,
		"record": record,
	}

	data, err := json.Marshal(line)
	if err != nil {
		return fmt.Errorf("encode record for stream %s: %w", stream, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.writer.Write(data); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := s.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	return nil
}

// Close implements Sink.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writer.Flush(); err != nil {
		return fmt.Errorf("flush sink: %w", err)
	}
	if s.closer != nil {
		return s.closer.Close()
	}
	return nil
}
