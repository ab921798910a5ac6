package trust

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/odavl/autopilot/internal/ndjson"
)

// Product identifies which subsystem a telemetry event describes.
type Product string

const (
	ProductAutopilot Product = "Autopilot"
	ProductDetector  Product = "Detector"
	ProductGuardian  Product = "Guardian"
)

// Event is one session-level telemetry record for a product.
type Event struct {
	Product    Product   `json:"product"`
	SessionID  string    `json:"session_id"`
	Timestamp  time.Time `json:"timestamp"`
	Successes  int       `json:"successes"`
	Failures   int       `json:"failures"`
	DurationMS int64     `json:"duration_ms"`
	Notes      string    `json:"notes,omitempty"`
}

// EventStream appends Event records to a per-product JSON-lines file
// (brain-history/telemetry/<product>/events.jsonl). Readers consume last-N
// events newest-last, so writes are strictly append-only.
type EventStream struct {
	mu   sync.Mutex
	file *os.File
	enc  *ndjson.Encoder
}

// OpenEventStream opens (creating if necessary) the telemetry stream file.
func OpenEventStream(path string, logger *slog.Logger) (*EventStream, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, err
	}
	return &EventStream{file: file, enc: ndjson.NewEncoder(file, logger)}, nil
}

// Append writes one telemetry event.
func (s *EventStream) Append(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enc.Encode(e)
}

// Close closes the underlying file.
func (s *EventStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// ReadLastN reads every event from path and returns the last n, newest-last
// (i.e. the tail of the file, in file order).
func ReadLastN(path string, n int, logger *slog.Logger) ([]Event, error) {
	file, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	all, err := ndjson.DecodeAll[Event](file, logger)
	if err != nil {
		return nil, err
	}
	if n <= 0 || len(all) <= n {
		return all, nil
	}
	return all[len(all)-n:], nil
}
