package db

// TagFilter restricts a search to documents whose TAG field matches any of Values.
// Negate inverts the match.
type TagFilter struct {
	Field  string
	Values []string
	Negate bool
}

// KNNQuery is the input for vector similarity search.
// Entry scores are raw distances as reported by the index.
type KNNQuery struct {
	IndexName    string
	Filters      []TagFilter
	Vector       []float32
	K            int
	ReturnFields []string
}

// TagQuery matches documents by TAG fields only.
type TagQuery struct {
	IndexName    string
	Filters      []TagFilter
	Limit        int
	ReturnFields []string
}

// SearchResult is the output of a search operation.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}

// SearchEntry is a single document hit from a search.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}
