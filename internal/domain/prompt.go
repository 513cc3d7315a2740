package domain

// Prompt is one structured-generation request. Schema names the JSON schema
// the answer must satisfy; it doubles as the metrics label.
type Prompt struct {
	Schema string
	System string
	User   string
}
