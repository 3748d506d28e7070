package store

// Message represents one turn of the conversation log. Rows are append-only:
// messages are never mutated or deleted once written.
type Message struct {
	Content    string
	Timestamp  string // RFC 3339
	ID         int64
	Importance float64
	IsUser     bool
}

// FindMessage specifies the conditions for finding messages.
// Results are always ordered newest-first.
type FindMessage struct {
	// ContentQuery matches messages whose content contains this substring.
	ContentQuery *string
	Limit        *int
}
