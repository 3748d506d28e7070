package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

const defaultChunkDelay = 50 * time.Millisecond

// Sender delivers one envelope to the client. Implementations are a single
// websocket connection or an SSE response writer.
type Sender interface {
	Send(v any) error
}

// TypingEnvelope toggles the client's typing indicator.
type TypingEnvelope struct {
	Type     string `json:"type"`
	IsTyping bool   `json:"is_typing"`
}

// ChunkEnvelope carries one response fragment plus the text so far.
type ChunkEnvelope struct {
	Type         string `json:"type"`
	Content      string `json:"content"`
	FullResponse string `json:"full_response"`
}

// CompleteEnvelope closes a streamed turn with the final state.
type CompleteEnvelope struct {
	Type        string `json:"type"`
	Content     string `json:"content"`
	Personality any    `json:"personality"`
	Emotion     any    `json:"emotion"`
}

// ErrorEnvelope reports a failure without closing the channel.
type ErrorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Dispatcher drains a streaming Result and delivers paced envelopes to a
// Sender. Delivery order is fixed: typing on, chunks, completion, typing off.
type Dispatcher struct {
	// ChunkDelay paces consecutive chunk envelopes.
	ChunkDelay time.Duration

	// OnComplete receives the assembled reply after the completion envelope
	// is sent. The engine's RecordReply is the usual callback.
	OnComplete func(ctx context.Context, full string) error
}

func NewDispatcher(onComplete func(ctx context.Context, full string) error) *Dispatcher {
	return &Dispatcher{
		ChunkDelay: defaultChunkDelay,
		OnComplete: onComplete,
	}
}

// Run delivers one streamed turn. A backend error becomes an error envelope;
// send failures and context cancellation abort the stream. The accumulated
// reply is persisted through OnComplete only when the stream completed.
func (d *Dispatcher) Run(ctx context.Context, sender Sender, result *Result) error {
	if err := sender.Send(TypingEnvelope{Type: "typing_indicator", IsTyping: true}); err != nil {
		return err
	}
	// Typing is switched off no matter how the stream ends.
	defer func() {
		if err := sender.Send(TypingEnvelope{Type: "typing_indicator", IsTyping: false}); err != nil {
			slog.Debug("failed to clear typing indicator", "error", err)
		}
	}()

	var full strings.Builder
	first := true
	errs := result.Errs
	for {
		select {
		case chunk, ok := <-result.Chunks:
			if !ok {
				// An error may have been buffered right before the chunk
				// channel closed; it must win over a normal completion.
				if errs != nil {
					select {
					case err := <-errs:
						if err != nil {
							return d.fail(sender, err)
						}
					default:
					}
				}
				return d.complete(ctx, sender, result, full.String())
			}
			if !first && d.ChunkDelay > 0 {
				select {
				case <-time.After(d.ChunkDelay):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			first = false
			full.WriteString(chunk)
			if err := sender.Send(ChunkEnvelope{
				Type:         "response_chunk",
				Content:      chunk,
				FullResponse: full.String(),
			}); err != nil {
				return err
			}
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			return d.fail(sender, err)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (d *Dispatcher) fail(sender Sender, err error) error {
	if sendErr := sender.Send(ErrorEnvelope{
		Type:    "error",
		Message: fmt.Sprintf("Error streaming response: %v", err),
	}); sendErr != nil {
		return sendErr
	}
	return err
}

// complete sends the final envelope carrying exactly the accumulated chunk
// text, so concatenating the chunk increments always reproduces it, empty
// streams included.
func (d *Dispatcher) complete(ctx context.Context, sender Sender, result *Result, full string) error {
	if err := sender.Send(CompleteEnvelope{
		Type:        "response_complete",
		Content:     full,
		Personality: result.Personality,
		Emotion:     result.Emotion,
	}); err != nil {
		return err
	}
	if d.OnComplete != nil {
		if err := d.OnComplete(ctx, full); err != nil {
			return err
		}
	}
	return nil
}
