package features

import (
	"context"
	"sync"
	"time"
)

// HistoryCapacity bounds the per-context sliding window. Appending past the
// bound evicts the oldest entry first.
const HistoryCapacity = 50

// HistoryEntry is a transaction recorded with its admission time.
type HistoryEntry struct {
	Transaction
	Timestamp time.Time `json:"timestamp"`
}

// HistoryStore tracks recent admitted transactions per context. Only
// admitted transactions are ever appended; rejected ones leave no trace.
type HistoryStore interface {
	// Append records tx for the context, evicting the oldest entry at capacity.
	Append(ctx context.Context, contextID string, tx Transaction) error
	// Recent returns up to n entries, oldest first, insertion order preserved.
	Recent(ctx context.Context, contextID string, n int) ([]HistoryEntry, error)
}

// MemoryHistoryStore keeps per-context windows in process memory.
// Appends for the same context serialize on the context's lock; different
// contexts never contend.
type MemoryHistoryStore struct {
	windows sync.Map // map[string]*contextWindow
	clock   Clock
}

type contextWindow struct {
	mu      sync.Mutex
	entries []HistoryEntry
}

// NewMemoryHistoryStore creates an in-memory history store.
func NewMemoryHistoryStore(clock Clock) *MemoryHistoryStore {
	if clock == nil {
		clock = SystemClock
	}
	return &MemoryHistoryStore{clock: clock}
}

func (s *MemoryHistoryStore) window(contextID string) *contextWindow {
	if w, ok := s.windows.Load(contextID); ok {
		return w.(*contextWindow)
	}
	w, _ := s.windows.LoadOrStore(contextID, &contextWindow{})
	return w.(*contextWindow)
}

// Append records a timestamped entry for the context.
func (s *MemoryHistoryStore) Append(_ context.Context, contextID string, tx Transaction) error {
	w := s.window(contextID)
	w.mu.Lock()
	defer w.mu.Unlock()

	w.entries = append(w.entries, HistoryEntry{Transaction: tx, Timestamp: s.clock.Now()})
	if len(w.entries) > HistoryCapacity {
		w.entries = w.entries[len(w.entries)-HistoryCapacity:]
	}
	return nil
}

// Recent returns the most recent n entries in insertion order.
func (s *MemoryHistoryStore) Recent(_ context.Context, contextID string, n int) ([]HistoryEntry, error) {
	if n <= 0 {
		return nil, nil
	}
	w := s.window(contextID)
	w.mu.Lock()
	defer w.mu.Unlock()

	entries := w.entries
	if n < len(entries) {
		entries = entries[len(entries)-n:]
	}
	out := make([]HistoryEntry, len(entries))
	copy(out, entries)
	return out, nil
}
