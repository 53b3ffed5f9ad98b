package logging

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultRingSize is used when NewRing is given a non-positive size
const DefaultRingSize = 500

// Entry is one retained log line
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Fields  map[string]any `json:"fields,omitempty"`
}

// Ring is a bounded in-memory log sink. Past its capacity the oldest entry
// is dropped for every new one.
type Ring struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
	dropped uint64
}

// NewRing creates a ring holding at most size entries
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{entries: make([]Entry, size)}
}

// Write accepts one JSON-encoded zerolog event
func (r *Ring) Write(p []byte) (int, error) {
	var raw map[string]any
	if err := json.Unmarshal(p, &raw); err != nil {
		// not a structured event; keep it verbatim
		r.Add(Entry{Time: time.Now().UTC(), Message: string(p)})
		return len(p), nil
	}

	e := Entry{Fields: map[string]any{}}
	for k, v := range raw {
		switch k {
		case zerolog.LevelFieldName:
			e.Level, _ = v.(string)
		case zerolog.MessageFieldName:
			e.Message, _ = v.(string)
		case zerolog.TimestampFieldName:
			if s, ok := v.(string); ok {
				e.Time, _ = time.Parse(time.RFC3339, s)
			}
		default:
			e.Fields[k] = v
		}
	}
	if len(e.Fields) == 0 {
		e.Fields = nil
	}
	r.Add(e)
	return len(p), nil
}

// WriteLevel implements zerolog.LevelWriter
func (r *Ring) WriteLevel(_ zerolog.Level, p []byte) (int, error) {
	return r.Write(p)
}

// Add appends an entry, evicting the oldest when full
func (r *Ring) Add(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		r.dropped++
	}
	r.entries[r.next] = e
	r.next = (r.next + 1) % len(r.entries)
	if r.next == 0 {
		r.full = true
	}
}

// Entries returns the retained entries, oldest first
func (r *Ring) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.full {
		out := make([]Entry, r.next)
		copy(out, r.entries[:r.next])
		return out
	}
	out := make([]Entry, 0, len(r.entries))
	out = append(out, r.entries[r.next:]...)
	return append(out, r.entries[:r.next]...)
}

// Len is the number of retained entries
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Cap is the maximum number of retained entries
func (r *Ring) Cap() int {
	return len(r.entries)
}

// Dropped counts evicted entries
func (r *Ring) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Clear drops all retained entries
func (r *Ring) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = make([]Entry, len(r.entries))
	r.next = 0
	r.full = false
}
