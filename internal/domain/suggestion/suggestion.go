package suggestion

import "time"

// Type names the kind of derived suggestion.
type Type string

const (
	TypeRelated   Type = "related-entities"
	TypeDuplicate Type = "duplicate"
	TypeLabel     Type = "label"
	TypeStatus    Type = "status"
)

// Suggestion is a derived artifact written to the suggestion store.
// RelatedID is empty for suggestions that do not point at another entity.
type Suggestion struct {
	Type      Type           `json:"type"`
	SourceID  string         `json:"source_id"`
	RelatedID string         `json:"related_id,omitempty"`
	Result    map[string]any `json:"result"`
	Active    bool           `json:"active"`
	Accepted  bool           `json:"accepted"`
	UpdatedAt time.Time      `json:"updated_at"`
}
