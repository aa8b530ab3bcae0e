package orders

import (
	"encoding/json"
	"slices"
	"time"
)

const NotePlaced = "Order placed successfully"

type StatusEntry struct {
	Status    Status    `json:"status"`
	ChangedAt time.Time `json:"date"`
	Note      string    `json:"note,omitempty"`
	ActorID   string    `json:"actor_id,omitempty"`
}

// StatusHistory is an append-only log. The zero value is empty and every
// method leaves the receiver untouched.
type StatusHistory struct {
	entries []StatusEntry
}

func NewStatusHistory(entries ...StatusEntry) StatusHistory {
	return StatusHistory{entries: slices.Clone(entries)}
}

func (h StatusHistory) Append(e StatusEntry) StatusHistory {
	out := make([]StatusEntry, len(h.entries), len(h.entries)+1)
	copy(out, h.entries)
	return StatusHistory{entries: append(out, e)}
}

func (h StatusHistory) Len() int { return len(h.entries) }

func (h StatusHistory) Entries() []StatusEntry { return slices.Clone(h.entries) }

// Last returns the most recent entry.
func (h StatusHistory) Last() (StatusEntry, bool) {
	if len(h.entries) == 0 {
		return StatusEntry{}, false
	}
	return h.entries[len(h.entries)-1], true
}

func (h StatusHistory) MarshalJSON() ([]byte, error) {
	if h.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(h.entries)
}

func (h *StatusHistory) UnmarshalJSON(b []byte) error {
	var entries []StatusEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	h.entries = entries
	return nil
}
