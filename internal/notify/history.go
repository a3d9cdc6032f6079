package notify

import (
	"sync"

	"github.com/helpline/escalation-service/internal/domain"
)

// History keeps the most recent delivery attempts in a fixed-size ring.
type History struct {
	mu      sync.RWMutex
	entries []domain.NotificationRecord
	next    int
	full    bool
}

// NewHistory keeps at most size records; size <= 0 defaults to 1000.
func NewHistory(size int) *History {
	if size <= 0 {
		size = 1000
	}
	return &History{entries: make([]domain.NotificationRecord, size)}
}

// Record appends, overwriting the oldest entry once full.
func (h *History) Record(rec domain.NotificationRecord) {
	if h == nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[h.next] = rec
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// Recent returns up to limit records, newest first. limit <= 0 returns all.
func (h *History) Recent(limit int) []domain.NotificationRecord {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	size := h.next
	if h.full {
		size = len(h.entries)
	}
	if limit <= 0 || limit > size {
		limit = size
	}
	out := make([]domain.NotificationRecord, 0, limit)
	for i := 0; i < limit; i++ {
		idx := (h.next - 1 - i + len(h.entries)) % len(h.entries)
		out = append(out, h.entries[idx])
	}
	return out
}
