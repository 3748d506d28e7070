package memory

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuleExtractorPreferences(t *testing.T) {
	e := NewRuleExtractor()

	tests := []struct {
		name    string
		content string
		want    []ExtractedFact
	}{
		{
			name:    "like statement",
			content: "I love hiking.",
			want: []ExtractedFact{
				{Subject: "user", Predicate: "likes", Object: "hiking", Confidence: 0.8, Source: "conversation"},
			},
		},
		{
			name:    "dislike with trailing clause",
			content: "I dislike mornings, really.",
			want: []ExtractedFact{
				{Subject: "user", Predicate: "dislikes", Object: "mornings", Confidence: 0.8, Source: "conversation"},
			},
		},
		{
			name:    "negated like",
			content: "honestly I don't like loud music",
			want: []ExtractedFact{
				{Subject: "user", Predicate: "dislikes", Object: "loud music", Confidence: 0.8, Source: "conversation"},
			},
		},
		{
			name:    "multiple verbs",
			content: "I like coffee. I hate tea.",
			want: []ExtractedFact{
				{Subject: "user", Predicate: "likes", Object: "coffee", Confidence: 0.8, Source: "conversation"},
				{Subject: "user", Predicate: "dislikes", Object: "tea", Confidence: 0.8, Source: "conversation"},
			},
		},
		{
			name:    "prefer statement",
			content: "I prefer window seats.",
			want: []ExtractedFact{
				{Subject: "user", Predicate: "likes", Object: "window seats", Confidence: 0.8, Source: "conversation"},
			},
		},
		{
			name:    "no preference",
			content: "what time is it",
			want:    nil,
		},
		{
			name:    "verb with empty object",
			content: "I like ",
			want:    nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ElementsMatch(t, tt.want, e.Extract(tt.content, true))
		})
	}
}

func TestRuleExtractorIgnoresAIMessages(t *testing.T) {
	e := NewRuleExtractor()
	require.Nil(t, e.Extract("I love helping you with that.", false))
}
