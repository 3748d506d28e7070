package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/companion/ai/persona"
)

type fakeSender struct {
	envelopes []any
	failAfter int // fail on the nth Send, 0 means never
}

func (f *fakeSender) Send(v any) error {
	f.envelopes = append(f.envelopes, v)
	if f.failAfter > 0 && len(f.envelopes) >= f.failAfter {
		return errors.New("connection gone")
	}
	return nil
}

func streamResult(chunks []string, streamErr error) *Result {
	content := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(content)
		if streamErr != nil {
			errs <- streamErr
			return
		}
		for _, c := range chunks {
			content <- c
		}
	}()
	return &Result{
		Chunks:      content,
		Errs:        errs,
		Personality: persona.TraitProfile{},
		Emotion:     persona.EmotionState{Valence: 0.7, Arousal: 0.5, Dominance: 0.6},
	}
}

func TestDispatcherDeliveryOrder(t *testing.T) {
	sender := &fakeSender{}
	var persisted string
	d := NewDispatcher(func(ctx context.Context, full string) error {
		persisted = full
		return nil
	})
	d.ChunkDelay = 0

	err := d.Run(context.Background(), sender, streamResult([]string{"Hel", "lo"}, nil))
	require.NoError(t, err)
	require.Len(t, sender.envelopes, 5)

	assert.Equal(t, TypingEnvelope{Type: "typing_indicator", IsTyping: true}, sender.envelopes[0])
	assert.Equal(t, ChunkEnvelope{Type: "response_chunk", Content: "Hel", FullResponse: "Hel"}, sender.envelopes[1])
	assert.Equal(t, ChunkEnvelope{Type: "response_chunk", Content: "lo", FullResponse: "Hello"}, sender.envelopes[2])

	complete, ok := sender.envelopes[3].(CompleteEnvelope)
	require.True(t, ok)
	assert.Equal(t, "response_complete", complete.Type)
	assert.Equal(t, "Hello", complete.Content)

	assert.Equal(t, TypingEnvelope{Type: "typing_indicator", IsTyping: false}, sender.envelopes[4])
	assert.Equal(t, "Hello", persisted)
}

func TestDispatcherEmptyStreamKeepsConcatenationInvariant(t *testing.T) {
	sender := &fakeSender{}
	var persisted string
	d := NewDispatcher(func(ctx context.Context, full string) error {
		persisted = full
		return nil
	})
	d.ChunkDelay = 0

	err := d.Run(context.Background(), sender, streamResult(nil, nil))
	require.NoError(t, err)

	// No chunks were emitted, so the completion must carry exactly their
	// concatenation: the empty string, with no substitute text.
	require.Len(t, sender.envelopes, 3)
	complete, ok := sender.envelopes[1].(CompleteEnvelope)
	require.True(t, ok)
	assert.Equal(t, "", complete.Content)
	assert.Equal(t, "", persisted)
}

func TestDispatcherCompletionMatchesChunkConcatenation(t *testing.T) {
	for _, chunks := range [][]string{
		{"one"},
		{"a", "b", "c"},
		{"", "x", ""},
	} {
		sender := &fakeSender{}
		d := NewDispatcher(nil)
		d.ChunkDelay = 0

		require.NoError(t, d.Run(context.Background(), sender, streamResult(chunks, nil)))

		var concatenated string
		var complete CompleteEnvelope
		for _, envelope := range sender.envelopes {
			switch e := envelope.(type) {
			case ChunkEnvelope:
				concatenated += e.Content
			case CompleteEnvelope:
				complete = e
			}
		}
		assert.Equal(t, concatenated, complete.Content, "chunks %q", chunks)
	}
}

func TestDispatcherBackendErrorEnvelope(t *testing.T) {
	sender := &fakeSender{}
	persistCalled := false
	d := NewDispatcher(func(ctx context.Context, full string) error {
		persistCalled = true
		return nil
	})
	d.ChunkDelay = 0

	err := d.Run(context.Background(), sender, streamResult(nil, errors.New("backend down")))
	require.Error(t, err)

	// typing on, error envelope, typing off
	require.Len(t, sender.envelopes, 3)
	errEnv, ok := sender.envelopes[1].(ErrorEnvelope)
	require.True(t, ok)
	assert.Equal(t, "error", errEnv.Type)
	assert.Equal(t, "Error streaming response: backend down", errEnv.Message)
	assert.False(t, persistCalled)
}

func TestDispatcherSendFailureAborts(t *testing.T) {
	sender := &fakeSender{failAfter: 2}
	d := NewDispatcher(nil)
	d.ChunkDelay = 0

	err := d.Run(context.Background(), sender, streamResult([]string{"a", "b", "c"}, nil))
	require.Error(t, err)
}

func TestDispatcherContextCancellation(t *testing.T) {
	sender := &fakeSender{}
	d := NewDispatcher(nil)
	d.ChunkDelay = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())

	content := make(chan string)
	result := &Result{Chunks: content, Errs: make(chan error, 1)}
	go func() {
		content <- "first"
		cancel()
	}()

	err := d.Run(ctx, sender, result)
	require.ErrorIs(t, err, context.Canceled)
}
