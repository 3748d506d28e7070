package persona

import (
	"fmt"
	"strings"
)

// traitTerms maps each trait to its high/low descriptors used in prompt text.
var traitTerms = map[string][2]string{
	"openness":          {"curious", "conventional"},
	"conscientiousness": {"organized", "spontaneous"},
	"extraversion":      {"outgoing", "reserved"},
	"agreeableness":     {"friendly", "challenging"},
	"neuroticism":       {"sensitive", "resilient"},
}

func describeTrait(trait string, value float64) string {
	terms, ok := traitTerms[trait]
	if !ok {
		return ""
	}
	switch {
	case value > 0.7:
		return "very " + terms[0]
	case value > 0.5:
		return "somewhat " + terms[0]
	case value < 0.3:
		return "very " + terms[1]
	case value < 0.5:
		return "somewhat " + terms[1]
	default:
		return ""
	}
}

func describeEmotion(e EmotionState) string {
	switch {
	case e.Valence > 0.7:
		switch {
		case e.Arousal > 0.7:
			return "enthusiastic and excited"
		case e.Arousal > 0.3:
			return "happy and content"
		default:
			return "calm and peaceful"
		}
	case e.Valence > 0.3:
		switch {
		case e.Arousal > 0.7:
			return "alert and energetic"
		case e.Arousal > 0.3:
			return "neutral but attentive"
		default:
			return "relaxed and tranquil"
		}
	default:
		switch {
		case e.Arousal > 0.7:
			return "tense and nervous"
		case e.Arousal > 0.3:
			return "sad or disappointed"
		default:
			return "tired and lethargic"
		}
	}
}

// SystemPrompt renders the current personality and emotion into the system
// message sent to the language model. Traits are visited in a fixed order so
// identical state always yields an identical prompt.
func (s *State) SystemPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var descriptors []string
	for _, trait := range traitOrder {
		t, ok := s.personality[trait]
		if !ok {
			continue
		}
		if d := describeTrait(trait, t.Value); d != "" {
			descriptors = append(descriptors, d)
		}
	}

	return fmt.Sprintf(
		"You are a helpful AI companion with a distinct personality. "+
			"You are %s. Currently, you feel %s. "+
			"Respond in a way that reflects these traits and emotions, "+
			"while being helpful, ethical, and engaging. "+
			"Avoid explicitly mentioning your personality traits or emotional state.",
		strings.Join(descriptors, ", "),
		describeEmotion(s.emotion),
	)
}
