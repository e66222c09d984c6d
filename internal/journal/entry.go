package journal

import (
	"time"
)

// Kind classifies a journal entry.
type Kind string

// Entry kinds.
const (
	KindLinkState          Kind = "link_state"
	KindLinkError          Kind = "link_error"
	KindReconnectExhausted Kind = "reconnect_exhausted"
	KindProfileChange      Kind = "profile_change"
	KindTierChange         Kind = "tier_change"
)

// ValidKinds lists every Kind in display order.
var ValidKinds = []Kind{
	KindLinkState,
	KindLinkError,
	KindReconnectExhausted,
	KindProfileChange,
	KindTierChange,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, v := range ValidKinds {
		if k == v {
			return true
		}
	}
	return false
}

// Entry is one journal row. Optional measurements are nil when the
// entry has none.
type Entry struct {
	ID          string    `json:"id"`
	RecordedAt  time.Time `json:"recorded_at"`
	Kind        Kind      `json:"kind"`
	ProfileID   string    `json:"profile_id,omitempty"`
	LinkState   string    `json:"link_state,omitempty"`
	Tier        string    `json:"tier,omitempty"`
	Stability   *int      `json:"stability,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	Humidity    *float64  `json:"humidity,omitempty"`
	Message     string    `json:"message"`
}

// Filter selects entries for List.
type Filter struct {
	Kind   Kind // optional
	Limit  int  // default 50, max 200
	Offset int
}

// Page size bounds for List.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ListResult is one page of entries, most recent first.
type ListResult struct {
	Entries []Entry `json:"entries"`
	Total   int     `json:"total"`
	Limit   int     `json:"limit"`
	Offset  int     `json:"offset"`
}
