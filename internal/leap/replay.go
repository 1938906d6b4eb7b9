package leap

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"time"
)

// maxLineSize bounds a single recorded message.
const maxLineSize = 1 << 20

// ReplaySource plays back newline-delimited JSON messages recorded from the
// tracking service. When paced, frames are delivered at their recorded timing.
type ReplaySource struct {
	r      io.Reader
	closer io.Closer
	paced  bool
}

// NewReplaySource creates a source reading recorded messages from r.
func NewReplaySource(r io.Reader, paced bool) *ReplaySource {
	return &ReplaySource{r: r, paced: paced}
}

// OpenReplay opens a recording file.
func OpenReplay(path string, paced bool) (*ReplaySource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open recording: %w", err)
	}
	return &ReplaySource{r: f, closer: f, paced: paced}, nil
}

// Run delivers every recorded message to l and returns at end of input.
func (s *ReplaySource) Run(ctx context.Context, l Listener) error {
	l.OnConnection()

	scanner := bufio.NewScanner(s.r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lastTimestamp int64
	line := 0
	for scanner.Scan() {
		line++
		if err := ctx.Err(); err != nil {
			return nil
		}

		data := scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		m, err := decodeMessage(data)
		if err != nil {
			log.Printf("Skipping recording line %d: %v", line, err)
			continue
		}

		if m.kind == kindFrame && s.paced {
			if lastTimestamp != 0 && m.frame.Timestamp > lastTimestamp {
				wait := time.Duration(m.frame.Timestamp-lastTimestamp) * time.Microsecond
				select {
				case <-ctx.Done():
					return nil
				case <-time.After(wait):
				}
			}
			lastTimestamp = m.frame.Timestamp
		}

		dispatch(m, l)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read recording: %w", err)
	}
	return nil
}

// Close closes the underlying file, if the source opened one.
func (s *ReplaySource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
