// Package summary records scalar training metrics keyed by global step.
package summary

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// EventsFile is the name of the scalar log inside a run directory.
const EventsFile = "scalars.jsonl"

// DefaultFlushInterval bounds how long a record may sit in the buffer.
const DefaultFlushInterval = 5 * time.Second

// Sink accepts scalar and grouped-scalar records.
type Sink interface {
	AddScalar(tag string, value float64, step int) error
	AddScalars(main string, values map[string]float64, step int) error
	Close() error
}

// Record is one line of the events file.
type Record struct {
	Tag      string  `json:"tag"`
	Value    float64 `json:"value"`
	Step     int     `json:"step"`
	WallTime float64 `json:"wall_time"`
}

// Writer appends JSON-lines records to dir/EventsFile.
type Writer struct {
	mu        sync.Mutex
	f         *os.File
	buf       *bufio.Writer
	enc       *json.Encoder
	interval  time.Duration
	lastFlush time.Time
	now       func() time.Time
}

// NewWriter creates dir if needed and opens the events file for appending.
func NewWriter(dir string, flushInterval time.Duration) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "summary: create log dir")
	}
	f, err := os.OpenFile(filepath.Join(dir, EventsFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, errors.Wrap(err, "summary: open events file")
	}
	if flushInterval <= 0 {
		flushInterval = DefaultFlushInterval
	}
	buf := bufio.NewWriter(f)
	return &Writer{
		f:         f,
		buf:       buf,
		enc:       json.NewEncoder(buf),
		interval:  flushInterval,
		lastFlush: time.Now(),
		now:       time.Now,
	}, nil
}

// AddScalar records value under tag.
func (w *Writer) AddScalar(tag string, value float64, step int) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.write(tag, value, step)
}

// AddScalars records each entry under main/key, in key order.
func (w *Writer) AddScalars(main string, values map[string]float64, step int) error {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, k := range keys {
		if err := w.write(main+"/"+k, values[k], step); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) write(tag string, value float64, step int) error {
	if w.f == nil {
		return errors.New("summary: writer closed")
	}
	now := w.now()
	rec := Record{Tag: tag, Value: value, Step: step, WallTime: float64(now.UnixNano()) / 1e9}
	if err := w.enc.Encode(rec); err != nil {
		return errors.Wrapf(err, "summary: write %s", tag)
	}
	if now.Sub(w.lastFlush) >= w.interval {
		w.lastFlush = now
		return errors.Wrap(w.buf.Flush(), "summary: flush")
	}
	return nil
}

// Flush writes buffered records to disk.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	w.lastFlush = w.now()
	return errors.Wrap(w.buf.Flush(), "summary: flush")
}

// Close flushes and closes the events file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	flushErr := w.buf.Flush()
	closeErr := w.f.Close()
	w.f = nil
	if flushErr != nil {
		return errors.Wrap(flushErr, "summary: flush")
	}
	return errors.Wrap(closeErr, "summary: close")
}
