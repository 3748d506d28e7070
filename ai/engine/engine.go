// Package engine orchestrates a conversation turn: persist the user message,
// shift the companion's emotional state, assemble the prompt from memory, and
// run the generation backend.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/companion/ai/llm"
	"github.com/hrygo/companion/ai/memory"
	"github.com/hrygo/companion/ai/metrics"
	"github.com/hrygo/companion/ai/persona"
)

const (
	// ApologyResponse is returned when the generation backend fails mid-turn.
	ApologyResponse = "I'm having trouble processing that right now. Could you try again?"

	// EmptyFallbackResponse is returned when the backend yields no text.
	EmptyFallbackResponse = "I'm not sure how to respond to that."

	defaultMessageImportance = 0.5
	imageMemoryImportance    = 0.7
)

// ErrEmptyMessage rejects blank chat input before any state changes.
var ErrEmptyMessage = errors.New("message must not be empty")

// Config tunes the engine.
type Config struct {
	// TextModel is the default text generation model.
	TextModel string
	// ImageModel is the default image generation model.
	ImageModel string
	// ContextWindow is how many prior turns feed the prompt.
	ContextWindow int
	// IncludeCurrentTurn keeps the just-persisted user message inside the
	// context window, so the model sees it both in context and as the
	// current message.
	IncludeCurrentTurn bool
	// DefaultTemperature applies when a request does not set one.
	DefaultTemperature float32
	// MaxConcurrentGenerations bounds in-flight backend calls.
	MaxConcurrentGenerations int
	// BackendTimeout bounds one backend call, in seconds.
	BackendTimeout int
}

func (c *Config) applyDefaults() {
	if c.ContextWindow <= 0 {
		c.ContextWindow = 5
	}
	if c.DefaultTemperature <= 0 {
		c.DefaultTemperature = 0.7
	}
	if c.MaxConcurrentGenerations <= 0 {
		c.MaxConcurrentGenerations = 4
	}
	if c.BackendTimeout <= 0 {
		c.BackendTimeout = 120
	}
}

// ChatRequest is one conversation turn.
type ChatRequest struct {
	Message     string
	Model       string
	Temperature float32
	Stream      bool
}

// Result is the outcome of a turn. For streaming turns Chunks and Errs are
// set instead of Response; the caller drains Chunks and persists the full
// reply via RecordReply.
type Result struct {
	Response       string
	Chunks         <-chan string
	Errs           <-chan error
	Personality    persona.TraitProfile
	Emotion        persona.EmotionState
	ProcessingTime float64
	ModelUsed      string
	Err            error
}

// ImageResult is the outcome of an image generation request.
type ImageResult struct {
	ImageB64       string
	Prompt         string
	ModelUsed      string
	Width          int
	Height         int
	GenerationTime float64
}

// Engine wires the backend, persona state, and memory into conversation turns.
type Engine struct {
	backend llm.Service
	persona *persona.State
	memory  *memory.Memory
	metrics *metrics.PrometheusExporter
	sem     *semaphore.Weighted
	cfg     Config
}

func New(backend llm.Service, state *persona.State, mem *memory.Memory, exporter *metrics.PrometheusExporter, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{
		backend: backend,
		persona: state,
		memory:  mem,
		metrics: exporter,
		sem:     semaphore.NewWeighted(int64(cfg.MaxConcurrentGenerations)),
		cfg:     cfg,
	}
}

// SystemPrompt exposes the current persona-derived system prompt.
func (e *Engine) SystemPrompt() string {
	return e.persona.SystemPrompt()
}

// Backend returns the generation backend for direct queries.
func (e *Engine) Backend() llm.Service {
	return e.backend
}

// Persona returns the engine's persona state for direct reads and updates.
func (e *Engine) Persona() *persona.State {
	return e.persona
}

// Memory returns the engine's memory for direct reads.
func (e *Engine) Memory() *memory.Memory {
	return e.memory
}

func (e *Engine) model(requested string) string {
	if requested != "" {
		return requested
	}
	return e.cfg.TextModel
}

func (e *Engine) temperature(requested float32) float32 {
	if requested > 0 {
		return requested
	}
	return e.cfg.DefaultTemperature
}

// buildPrompt renders the full user prompt from recent history. currentID is
// the just-persisted user message, dropped from the window when the engine is
// configured to exclude the current turn.
func (e *Engine) buildPrompt(ctx context.Context, message string, currentID int64) string {
	convContext := memory.NoContextSentinel
	window := e.cfg.ContextWindow
	limit := window
	if !e.cfg.IncludeCurrentTurn {
		// Fetch one extra row so dropping the current message still leaves a
		// full window of prior turns.
		limit = window + 1
	}
	recent := e.memory.RecentMessages(ctx, limit)
	if !e.cfg.IncludeCurrentTurn {
		filtered := recent[:0]
		for _, m := range recent {
			if m.ID != currentID {
				filtered = append(filtered, m)
			}
		}
		if len(filtered) > window {
			filtered = filtered[:window]
		}
		recent = filtered
	}
	if len(recent) > 0 {
		lines := make([]string, 0, len(recent))
		for i := len(recent) - 1; i >= 0; i-- {
			speaker := "AI"
			if recent[i].IsUser {
				speaker = "User"
			}
			lines = append(lines, fmt.Sprintf("%s: %s", speaker, recent[i].Content))
		}
		convContext = strings.Join(lines, "\n")
	}

	return fmt.Sprintf(
		"\nPrevious conversation:\n%s\n\nUser: %s\n\nRemember any facts or preferences the user has shared. Respond in a helpful, engaging, and natural way.\n",
		convContext, message,
	)
}

// beginTurn runs the shared front half of a turn: validation, persistence of
// the user message, persona update, and prompt assembly.
func (e *Engine) beginTurn(ctx context.Context, req *ChatRequest) (*llm.GenerateRequest, *Result, error) {
	if strings.TrimSpace(req.Message) == "" {
		return nil, nil, ErrEmptyMessage
	}

	// The snapshot captured here is what the response carries, even when the
	// backend call that follows takes a long time.
	personality, emotion, err := e.persona.UpdateFromMessage(req.Message)
	if err != nil {
		// State stayed consistent in memory; only the persisted document is
		// behind. The turn continues.
		slog.Warn("failed to persist persona update", "error", err)
		personality = e.persona.Personality()
		emotion = e.persona.Emotion()
	}

	processed, err := e.memory.ProcessMessage(ctx, req.Message, true, defaultMessageImportance)
	if err != nil {
		return nil, nil, errors.Wrap(err, "failed to store user message")
	}
	if e.metrics != nil {
		e.metrics.RecordFactsExtracted(len(processed.ExtractedFacts))
	}

	gen := &llm.GenerateRequest{
		Model:        e.model(req.Model),
		Prompt:       e.buildPrompt(ctx, req.Message, processed.MessageID),
		SystemPrompt: e.persona.SystemPrompt(),
		Temperature:  e.temperature(req.Temperature),
	}
	result := &Result{
		Personality: personality,
		Emotion:     emotion,
		ModelUsed:   gen.Model,
	}
	return gen, result, nil
}

// ProcessMessage runs one complete conversation turn. Backend failures are
// recovered into an apology response (recorded in Result.Err); validation and
// persistence failures propagate.
func (e *Engine) ProcessMessage(ctx context.Context, req *ChatRequest) (*Result, error) {
	if req.Stream {
		return e.processStreaming(ctx, req)
	}

	start := time.Now()
	gen, result, err := e.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "generation slot unavailable")
	}
	var done func()
	if e.metrics != nil {
		done = e.metrics.ChatStarted()
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.BackendTimeout)*time.Second)
	response, genErr := e.backend.Generate(genCtx, gen)
	cancel()
	e.sem.Release(1)
	if done != nil {
		done()
	}

	if genErr != nil {
		slog.Error("generation failed", "model", gen.Model, "error", genErr)
		response = ApologyResponse
		result.Err = genErr
	} else if strings.TrimSpace(response) == "" {
		response = EmptyFallbackResponse
	}

	if _, err := e.memory.ProcessMessage(ctx, response, false, defaultMessageImportance); err != nil {
		return nil, errors.Wrap(err, "failed to store reply")
	}

	result.Response = response
	result.ProcessingTime = time.Since(start).Seconds()
	if e.metrics != nil {
		e.metrics.RecordChatRequest(gen.Model, "sync", time.Since(start), genErr == nil)
	}
	return result, nil
}

// processStreaming starts a streaming turn. The returned Chunks channel is
// closed on end-of-stream; the generation slot is held until the stream
// drains or the context ends.
func (e *Engine) processStreaming(ctx context.Context, req *ChatRequest) (*Result, error) {
	start := time.Now()
	gen, result, err := e.beginTurn(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "generation slot unavailable")
	}
	var done func()
	if e.metrics != nil {
		done = e.metrics.ChatStarted()
	}

	genCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.BackendTimeout)*time.Second)
	chunks, errs := e.backend.GenerateStream(genCtx, gen)

	out := make(chan string)
	outErrs := make(chan error, 1)
	go func() {
		defer close(out)
		defer cancel()
		defer e.sem.Release(1)
		if done != nil {
			defer done()
		}
		for {
			select {
			case chunk, ok := <-chunks:
				if !ok {
					if e.metrics != nil {
						e.metrics.RecordChatRequest(gen.Model, "stream", time.Since(start), true)
					}
					return
				}
				select {
				case out <- chunk:
					if e.metrics != nil {
						e.metrics.RecordStreamChunk()
					}
				case <-genCtx.Done():
					if e.metrics != nil {
						e.metrics.RecordStreamAborted()
					}
					return
				}
			case err, ok := <-errs:
				if !ok {
					errs = nil
					continue
				}
				slog.Error("stream generation failed", "model", gen.Model, "error", err)
				outErrs <- err
				if e.metrics != nil {
					e.metrics.RecordChatRequest(gen.Model, "stream", time.Since(start), false)
				}
				return
			case <-genCtx.Done():
				if e.metrics != nil {
					e.metrics.RecordStreamAborted()
				}
				return
			}
		}
	}()

	result.Chunks = out
	result.Errs = outErrs
	result.ProcessingTime = time.Since(start).Seconds()
	return result, nil
}

// RecordReply persists a completed streamed reply as the companion's turn.
func (e *Engine) RecordReply(ctx context.Context, content string) error {
	if strings.TrimSpace(content) == "" {
		return nil
	}
	_, err := e.memory.ProcessMessage(ctx, content, false, defaultMessageImportance)
	return errors.Wrap(err, "failed to store reply")
}

// GenerateImage runs an image generation and, on success, records the event
// in conversation memory. Failures leave memory untouched.
func (e *Engine) GenerateImage(ctx context.Context, req *llm.ImageRequest) (*ImageResult, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("prompt must not be empty")
	}
	if req.Model == "" {
		req.Model = e.cfg.ImageModel
	}

	if err := e.sem.Acquire(ctx, 1); err != nil {
		return nil, errors.Wrap(err, "generation slot unavailable")
	}
	defer e.sem.Release(1)

	start := time.Now()
	genCtx, cancel := context.WithTimeout(ctx, time.Duration(e.cfg.BackendTimeout)*time.Second)
	defer cancel()

	img, err := e.backend.GenerateImage(genCtx, req)
	elapsed := time.Since(start)
	if e.metrics != nil {
		e.metrics.RecordImageRequest(req.Model, elapsed, err == nil)
	}
	if err != nil {
		return &ImageResult{Prompt: req.Prompt, ModelUsed: req.Model, GenerationTime: elapsed.Seconds()}, errors.Wrap(err, "image generation failed")
	}

	note := fmt.Sprintf("Generated image with prompt: %s", req.Prompt)
	if _, err := e.memory.AddMessage(ctx, note, false, imageMemoryImportance); err != nil {
		slog.Warn("failed to record image generation in memory", "error", err)
	}

	return &ImageResult{
		ImageB64:       img.ImageB64,
		Prompt:         req.Prompt,
		ModelUsed:      req.Model,
		Width:          req.Width,
		Height:         req.Height,
		GenerationTime: elapsed.Seconds(),
	}, nil
}

// Stats merges memory counts with the current persona state.
func (e *Engine) Stats(ctx context.Context) map[string]any {
	stats := make(map[string]any)
	for k, v := range e.memory.Summary(ctx) {
		stats[k] = v
	}
	stats["personality"] = e.persona.Personality()
	stats["emotion"] = e.persona.Emotion()
	return stats
}
