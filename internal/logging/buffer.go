package logging

import (
	"sync"
	"time"
)

// LogEntry is one buffered log record, kept for /api/logs and for the
// replay at the start of a log stream.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// levelRank orders the level names LogEntry carries. Unknown names rank
// with debug.
var levelRank = map[string]int{"debug": 0, "info": 1, "warn": 2, "error": 3}

// AtLeast reports whether the entry's level is minLevel or more severe.
// An empty minLevel matches everything.
func (e LogEntry) AtLeast(minLevel string) bool {
	return levelRank[e.Level] >= levelRank[minLevel]
}

// RingBuffer keeps the most recent log entries, dropping the oldest once
// full. It is safe for concurrent use.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

// NewRingBuffer returns a buffer holding up to size entries.
func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(size, 1))}
}

// Write stores entry, replacing the oldest one when the buffer is full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

// each calls f on the stored entries, oldest first. The read lock is held.
func (rb *RingBuffer) each(f func(LogEntry)) {
	if rb.full {
		for _, e := range rb.entries[rb.next:] {
			f(e)
		}
	}
	for _, e := range rb.entries[:rb.next] {
		f(e)
	}
}

// ReadAll returns the stored entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Select("", "")
}

// Select returns the stored entries of module (all modules when empty)
// at minLevel or above, oldest first.
func (rb *RingBuffer) Select(module, minLevel string) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	var out []LogEntry
	rb.each(func(e LogEntry) {
		if module != "" && e.Module != module {
			return
		}
		if !e.AtLeast(minLevel) {
			return
		}
		out = append(out, e)
	})
	return out
}

// Count returns the number of stored entries.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}
