package idempotency

import "time"

// Entry is a content hash addressed by "<processor>:<entityID>".
type Entry struct {
	Key  string
	Hash string
}

// Record is the persisted form of an entry.
type Record struct {
	Hash      string    `json:"hash"`
	UpdatedAt time.Time `json:"updated_at"`
}
