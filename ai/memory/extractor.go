package memory

import "strings"

// ExtractedFact is a subject-predicate-object statement pulled out of a
// conversation turn before it is persisted.
type ExtractedFact struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
	Source     string
}

// Extractor derives facts from a message. Implementations must return nil
// for messages that carry no extractable statements.
type Extractor interface {
	Extract(content string, isUser bool) []ExtractedFact
}

// preferenceVerbs maps first-person verbs to the predicate they produce.
var preferenceVerbs = []struct {
	verb      string
	predicate string
}{
	{"like", "likes"},
	{"love", "likes"},
	{"enjoy", "likes"},
	{"prefer", "likes"},
	{"hate", "dislikes"},
	{"dislike", "dislikes"},
	{"don't like", "dislikes"},
}

// RuleExtractor recognizes first-person preference statements such as
// "I love hiking". Only user messages are inspected; the companion's own
// replies never become facts about the user.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

func (e *RuleExtractor) Extract(content string, isUser bool) []ExtractedFact {
	if !isUser {
		return nil
	}

	lower := strings.ToLower(content)
	var facts []ExtractedFact
	for _, pv := range preferenceVerbs {
		pattern := "i " + pv.verb + " "
		idx := strings.Index(lower, pattern)
		if idx < 0 {
			continue
		}
		object := lower[idx+len(pattern):]
		if cut := strings.IndexAny(object, ".,"); cut >= 0 {
			object = object[:cut]
		}
		object = strings.TrimSpace(object)
		if object == "" {
			continue
		}
		facts = append(facts, ExtractedFact{
			Subject:    "user",
			Predicate:  pv.predicate,
			Object:     object,
			Confidence: 0.8,
			Source:     "conversation",
		})
	}
	return facts
}
