// ABOUTME: In-memory bounded conversation history keyed by user ID
// ABOUTME: Per-user append/snapshot/clear with a fixed cap and drop-oldest trimming

package history

import (
	"log/slog"
	"sort"
	"sync"
	"time"
)

// DefaultLimit is the number of messages retained per user.
const DefaultLimit = 50

// Sender labels used by the hub pipeline.
const (
	SenderUser = "User"
	SenderBot  = "Bot"
)

// Message is a single chat history entry. Messages are immutable once
// appended; they leave the table only by trimming or an explicit Clear.
type Message struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	SentAt time.Time `json:"sent_at"`
}

// entry holds one user's message sequence behind its own mutex so that
// append+trim stays atomic per key without serializing unrelated users.
type entry struct {
	mu       sync.Mutex
	messages []Message
}

// Table is the process-wide mapping from user ID to bounded history.
// The outer lock only guards the map itself; all sequence mutation happens
// under the per-entry lock.
type Table struct {
	mu      sync.RWMutex
	entries map[string]*entry
	limit   int
	logger  *slog.Logger
}

// NewTable creates a history table with the given per-user cap.
// A limit <= 0 falls back to DefaultLimit. Pass nil logger for default.
func NewTable(limit int, logger *slog.Logger) *Table {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Table{
		entries: make(map[string]*entry),
		limit:   limit,
		logger:  logger.With("component", "history"),
	}
}

// Limit returns the per-user cap.
func (t *Table) Limit() int {
	return t.limit
}

// Append inserts msg at the end of the user's sequence, creating it if
// absent, then trims the oldest entries so the sequence never exceeds the
// cap. Safe for concurrent use across and within keys.
func (t *Table) Append(userID string, msg Message) {
	e := t.getOrCreate(userID)

	e.mu.Lock()
	e.messages = append(e.messages, msg)
	if excess := len(e.messages) - t.limit; excess > 0 {
		// Copy rather than reslice so trimmed messages can be collected.
		kept := make([]Message, t.limit)
		copy(kept, e.messages[excess:])
		e.messages = kept
	}
	size := len(e.messages)
	e.mu.Unlock()

	t.logger.Debug("message appended",
		"user_id", userID,
		"sender", msg.Sender,
		"size", size)
}

// Snapshot returns a copy of the user's sequence ordered by SentAt
// ascending. Users with no history get an empty slice, never an error.
func (t *Table) Snapshot(userID string) []Message {
	t.mu.RLock()
	e, ok := t.entries[userID]
	t.mu.RUnlock()
	if !ok {
		return []Message{}
	}

	e.mu.Lock()
	out := make([]Message, len(e.messages))
	copy(out, e.messages)
	e.mu.Unlock()

	// Appends are chronological already; the sort tolerates any future
	// out-of-order writer.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].SentAt.Before(out[j].SentAt)
	})
	return out
}

// Clear removes the user's entire sequence. Clearing a user with no
// history is a no-op.
func (t *Table) Clear(userID string) {
	t.mu.Lock()
	_, existed := t.entries[userID]
	delete(t.entries, userID)
	t.mu.Unlock()

	if existed {
		t.logger.Debug("history cleared", "user_id", userID)
	}
}

// Len reports the current number of messages held for a user.
func (t *Table) Len(userID string) int {
	t.mu.RLock()
	e, ok := t.entries[userID]
	t.mu.RUnlock()
	if !ok {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.messages)
}

func (t *Table) getOrCreate(userID string) *entry {
	t.mu.RLock()
	e, ok := t.entries[userID]
	t.mu.RUnlock()
	if ok {
		return e
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok = t.entries[userID]; ok {
		return e
	}
	e = &entry{}
	t.entries[userID] = e
	return e
}
