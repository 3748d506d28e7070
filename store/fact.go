package store

// Fact is a subject/predicate/object assertion extracted from conversation.
// Facts are append-only; contradicting facts coexist and are ranked by
// confidence at query time.
type Fact struct {
	Subject    string
	Predicate  string
	Object     string
	Timestamp  string // RFC 3339
	Source     *string
	ID         int64
	Confidence float64
}

// FindFact specifies the conditions for finding facts.
// Results are ordered by descending confidence.
type FindFact struct {
	Subject *string
	Limit   *int
}
