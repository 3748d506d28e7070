// Package persona manages the companion's personality traits and emotional
// state: a Big Five trait profile plus a PAD-style emotion vector, both
// persisted as whole JSON documents and rewritten on every update.
package persona

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
)

const (
	personalityDocKey = "personality"
	emotionDocKey     = "emotion"
)

// Trait is one personality dimension with a bounded value.
type Trait struct {
	Value       float64 `json:"value"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
}

// TraitProfile maps the five fixed trait keys to their current state.
type TraitProfile map[string]Trait

// EmotionState is the three-axis affect model. All axes stay in [0, 1].
type EmotionState struct {
	Valence   float64 `json:"valence"`
	Arousal   float64 `json:"arousal"`
	Dominance float64 `json:"dominance"`
}

// traitOrder fixes iteration order for prompt assembly and JSON round-trips.
var traitOrder = []string{"openness", "conscientiousness", "extraversion", "agreeableness", "neuroticism"}

func defaultPersonality() TraitProfile {
	return TraitProfile{
		"openness": {
			Value:       0.7,
			Name:        "Openness",
			Description: "Appreciation for art, emotion, adventure, unusual ideas, curiosity, and variety of experience.",
		},
		"conscientiousness": {
			Value:       0.8,
			Name:        "Conscientiousness",
			Description: "A tendency to be organized and dependable, show self-discipline, act dutifully, aim for achievement, and prefer planned rather than spontaneous behavior.",
		},
		"extraversion": {
			Value:       0.6,
			Name:        "Extraversion",
			Description: "Energy, positive emotions, assertiveness, sociability and the tendency to seek stimulation in the company of others, and talkativeness.",
		},
		"agreeableness": {
			Value:       0.75,
			Name:        "Agreeableness",
			Description: "A tendency to be compassionate and cooperative rather than suspicious and antagonistic towards others.",
		},
		"neuroticism": {
			Value:       0.4,
			Name:        "Neuroticism",
			Description: "The tendency to experience unpleasant emotions easily, such as anger, anxiety, depression, and vulnerability.",
		},
	}
}

func defaultEmotion() EmotionState {
	return EmotionState{Valence: 0.7, Arousal: 0.5, Dominance: 0.6}
}

// Keyword lists for the lexical message analysis.
var (
	positiveWords = []string{"happy", "good", "great", "excellent", "wonderful", "love", "like", "enjoy"}
	negativeWords = []string{"sad", "bad", "terrible", "awful", "hate", "dislike", "angry", "upset"}
	questionWords = []string{"what", "why", "how", "when", "where", "who", "which"}
)

// State holds the companion's mutable personality and emotion. It is a
// process-wide singleton shared across connections; every read-modify-write
// runs under a single mutex so concurrent turns cannot lose updates.
type State struct {
	mu          sync.Mutex
	docs        DocumentStore
	personality TraitProfile
	emotion     EmotionState
}

// NewState loads personality and emotion from the document store, falling
// back to built-in defaults (and immediately persisting them) when a
// document is absent or unreadable.
func NewState(docs DocumentStore) *State {
	s := &State{docs: docs}
	s.loadOrCreatePersonality()
	s.loadOrCreateEmotion()
	return s
}

func (s *State) loadOrCreatePersonality() {
	doc, err := s.docs.Load(personalityDocKey)
	if err == nil {
		var profile TraitProfile
		if err := json.Unmarshal(doc, &profile); err == nil && len(profile) > 0 {
			s.personality = profile
			slog.Info("loaded personality document")
			return
		}
		slog.Error("corrupt personality document, using defaults")
	}
	s.personality = defaultPersonality()
	if err := s.savePersonality(); err != nil {
		slog.Error("failed to persist default personality", "error", err)
	}
}

func (s *State) loadOrCreateEmotion() {
	doc, err := s.docs.Load(emotionDocKey)
	if err == nil {
		var emotion EmotionState
		if err := json.Unmarshal(doc, &emotion); err == nil {
			s.emotion = emotion
			slog.Info("loaded emotion document")
			return
		}
		slog.Error("corrupt emotion document, using defaults")
	}
	s.emotion = defaultEmotion()
	if err := s.saveEmotion(); err != nil {
		slog.Error("failed to persist default emotion", "error", err)
	}
}

func (s *State) savePersonality() error {
	doc, err := json.MarshalIndent(s.personality, "", "  ")
	if err != nil {
		return err
	}
	return s.docs.Save(personalityDocKey, doc)
}

func (s *State) saveEmotion() error {
	doc, err := json.MarshalIndent(s.emotion, "", "  ")
	if err != nil {
		return err
	}
	return s.docs.Save(emotionDocKey, doc)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Personality returns a copy of the current trait profile.
func (s *State) Personality() TraitProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.personalityLocked()
}

func (s *State) personalityLocked() TraitProfile {
	profile := make(TraitProfile, len(s.personality))
	for k, v := range s.personality {
		profile[k] = v
	}
	return profile
}

// Emotion returns the current emotion state.
func (s *State) Emotion() EmotionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emotion
}

// UpdatePersonality overwrites the supplied traits, clamped to [0, 1].
// Unknown trait keys are silently ignored; the trait set is fixed. The full
// profile is rewritten to the document store afterward.
func (s *State) UpdatePersonality(traits map[string]float64) (TraitProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updatePersonalityLocked(traits)
}

func (s *State) updatePersonalityLocked(traits map[string]float64) (TraitProfile, error) {
	for trait, value := range traits {
		current, ok := s.personality[trait]
		if !ok {
			continue
		}
		current.Value = clamp(value)
		s.personality[trait] = current
	}
	if err := s.savePersonality(); err != nil {
		return nil, err
	}
	return s.personalityLocked(), nil
}

// UpdateEmotion overwrites the supplied axes, clamped to [0, 1], and
// rewrites the emotion document.
func (s *State) UpdateEmotion(values map[string]float64) (EmotionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateEmotionLocked(values)
}

func (s *State) updateEmotionLocked(values map[string]float64) (EmotionState, error) {
	for axis, value := range values {
		switch axis {
		case "valence":
			s.emotion.Valence = clamp(value)
		case "arousal":
			s.emotion.Arousal = clamp(value)
		case "dominance":
			s.emotion.Dominance = clamp(value)
		}
	}
	if err := s.saveEmotion(); err != nil {
		return EmotionState{}, err
	}
	return s.emotion, nil
}

// AnalyzeMessage derives personality and emotion adjustments from a message
// using fixed keyword lists. The returned maps hold the resulting target
// values, ready to feed UpdatePersonality/UpdateEmotion.
func (s *State) AnalyzeMessage(message string) (map[string]float64, map[string]float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.analyzeMessageLocked(message)
}

func (s *State) analyzeMessageLocked(message string) (map[string]float64, map[string]float64) {
	lower := strings.ToLower(message)

	var positiveCount, negativeCount, questionCount int
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			positiveCount++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			negativeCount++
		}
	}
	for _, w := range questionWords {
		if strings.Contains(lower, w) {
			questionCount++
		}
	}

	sentiment := 0.0
	if total := positiveCount + negativeCount; total > 0 {
		sentiment = float64(positiveCount-negativeCount) / float64(total)
	}

	// Personality shifts are reserved for a future model; the profile only
	// changes through explicit updates for now.
	personalityAdjustments := map[string]float64{}

	arousal := s.emotion.Arousal
	if questionCount > 0 {
		arousal += 0.05
	}
	emotionAdjustments := map[string]float64{
		"valence":   clamp(s.emotion.Valence + sentiment*0.1),
		"arousal":   clamp(arousal),
		"dominance": s.emotion.Dominance,
	}

	return personalityAdjustments, emotionAdjustments
}

// UpdateFromMessage analyzes a user message and applies the resulting
// adjustments atomically. This is the sole state-mutating entry point
// invoked per conversation turn.
func (s *State) UpdateFromMessage(message string) (TraitProfile, EmotionState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	personalityAdjustments, emotionAdjustments := s.analyzeMessageLocked(message)

	if len(personalityAdjustments) > 0 {
		if _, err := s.updatePersonalityLocked(personalityAdjustments); err != nil {
			return nil, EmotionState{}, err
		}
	}
	emotion, err := s.updateEmotionLocked(emotionAdjustments)
	if err != nil {
		return nil, EmotionState{}, err
	}

	return s.personalityLocked(), emotion, nil
}
