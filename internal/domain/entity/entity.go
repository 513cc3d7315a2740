package entity

import (
	"cmp"
	"slices"
	"strings"
	"time"
)

// Message is one turn of a support conversation.
type Message struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
}

// Entity is a support conversation, the unit of work of the pipeline.
type Entity struct {
	ID        string
	Title     string
	Status    string
	Labels    []string
	Messages  []Message
	Sequence  int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// OrderedMessages returns messages by creation time, falling back to id on ties.
func (e *Entity) OrderedMessages() []Message {
	out := slices.Clone(e.Messages)
	slices.SortStableFunc(out, func(a, b Message) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

// Transcript renders the conversation as "author: body" lines.
func (e *Entity) Transcript() string {
	var b strings.Builder
	for _, m := range e.OrderedMessages() {
		body := strings.TrimSpace(m.Body)
		if body == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(m.Author)
		b.WriteString(": ")
		b.WriteString(body)
	}
	return b.String()
}

// SortedLabels returns a sorted copy of labels.
func (e *Entity) SortedLabels() []string {
	out := slices.Clone(e.Labels)
	slices.Sort(out)
	return out
}

// Ref is the ordering key used to decide which of two entities came first.
type Ref struct {
	ID        string
	Sequence  int64
	CreatedAt time.Time
}

// RefOf builds the ordering key of e.
func RefOf(e *Entity) Ref {
	return Ref{ID: e.ID, Sequence: e.Sequence, CreatedAt: e.CreatedAt}
}

// CompareAge orders by sequence, then creation time. Entity id breaks ties
// when neither field distinguishes the two.
func CompareAge(a, b Ref) int {
	if a.Sequence != 0 && b.Sequence != 0 {
		if c := cmp.Compare(a.Sequence, b.Sequence); c != 0 {
			return c
		}
	}
	if !a.CreatedAt.IsZero() && !b.CreatedAt.IsZero() {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
	}
	return cmp.Compare(a.ID, b.ID)
}
