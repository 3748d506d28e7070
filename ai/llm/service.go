// Package llm provides the model-inference backend used for text and image
// generation. All providers speak the OpenAI-compatible protocol, which the
// default local provider (Ollama) exposes under /v1.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// Model describes one generation model offered by the backend.
type Model struct {
	ID      string `json:"id"`
	Type    string `json:"type"` // "text" or "image"
	OwnedBy string `json:"owned_by,omitempty"`
}

// GenerateRequest is a single text generation call.
type GenerateRequest struct {
	Model        string
	Prompt       string
	SystemPrompt string
	Temperature  float32
}

// ImageRequest is a single image generation call.
type ImageRequest struct {
	Model          string
	Prompt         string
	NegativePrompt string
	Width          int
	Height         int
}

// ImageResult carries the generated image as base64-encoded bytes.
type ImageResult struct {
	ImageB64 string
}

// Service is the generation backend interface.
type Service interface {
	// ListModels lists the models the backend offers, tagged text/image.
	ListModels(ctx context.Context) ([]Model, error)

	// Generate performs a synchronous text generation and returns the full text.
	Generate(ctx context.Context, req *GenerateRequest) (string, error)

	// GenerateStream performs a streaming text generation. The content channel
	// is closed on end-of-stream; at most one error is sent on the error channel.
	GenerateStream(ctx context.Context, req *GenerateRequest) (<-chan string, <-chan error)

	// GenerateImage performs a synchronous image generation.
	GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error)
}

// Config represents backend service configuration.
type Config struct {
	Provider string // ollama, openai, deepseek, siliconflow
	APIKey   string
	BaseURL  string
	Timeout  int // Request timeout in seconds (default: 120)
}

type service struct {
	client   *openai.Client
	provider string
	timeout  int
}

// Model names that identify diffusion/image models when classifying the
// backend's model list.
var imageModelMarkers = []string{"stable-diffusion", "sdxl", "dall-e", "imagen", "flux"}

// NewService creates a new generation backend service.
func NewService(cfg *Config) (Service, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "http://localhost:11434/v1"
	}

	apiKey := cfg.APIKey
	if apiKey == "" {
		// Local OpenAI-compatible servers ignore the key but the client
		// requires a non-empty value.
		apiKey = "unused"
	}

	clientConfig := openai.DefaultConfig(apiKey)
	clientConfig.BaseURL = baseURL
	clientConfig.HTTPClient = newHTTPClient()
	client := openai.NewClientWithConfig(clientConfig)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120
	}

	slog.Info("generation backend initialized", "provider", cfg.Provider, "base_url", baseURL)

	return &service{
		client:   client,
		provider: cfg.Provider,
		timeout:  timeout,
	}, nil
}

func (s *service) ListModels(ctx context.Context) ([]Model, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	resp, err := s.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list models failed: %w", err)
	}

	models := make([]Model, 0, len(resp.Models))
	for _, m := range resp.Models {
		models = append(models, Model{
			ID:      m.ID,
			Type:    ClassifyModel(m.ID),
			OwnedBy: m.OwnedBy,
		})
	}
	return models, nil
}

// ClassifyModel tags a model name as "text" or "image" by a simple name
// heuristic, matching how the model list is presented to clients.
func ClassifyModel(name string) string {
	lower := strings.ToLower(name)
	for _, marker := range imageModelMarkers {
		if strings.Contains(lower, marker) {
			return "image"
		}
	}
	return "text"
}

func (s *service) Generate(ctx context.Context, req *GenerateRequest) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	slog.Debug("backend: generate request",
		"model", req.Model,
		"prompt_length", len(req.Prompt),
	)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		Messages:    buildMessages(req),
	})
	if err != nil {
		slog.Error("backend: generate request failed", "model", req.Model, "error", err)
		return "", fmt.Errorf("generation failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty response from backend")
	}

	return resp.Choices[0].Message.Content, nil
}

func (s *service) GenerateStream(ctx context.Context, req *GenerateRequest) (<-chan string, <-chan error) {
	contentChan := make(chan string, 10)
	errChan := make(chan error, 1)

	go func() {
		defer close(contentChan)
		defer close(errChan)

		ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
		defer cancel()

		stream, err := s.client.CreateChatCompletionStream(ctx, openai.ChatCompletionRequest{
			Model:       req.Model,
			Temperature: req.Temperature,
			Messages:    buildMessages(req),
		})
		if err != nil {
			slog.Error("backend: stream create failed", "model", req.Model, "error", err)
			select {
			case errChan <- fmt.Errorf("create stream failed: %w", err):
			case <-ctx.Done():
			}
			return
		}
		defer func() { _ = stream.Close() }()

		chunkCount := 0
		for {
			response, err := stream.Recv()
			if err != nil {
				if strings.Contains(err.Error(), "EOF") {
					slog.Debug("backend: stream completed", "model", req.Model, "chunks", chunkCount)
					return
				}
				slog.Error("backend: stream recv error", "error", err, "chunks_so_far", chunkCount)
				select {
				case errChan <- fmt.Errorf("stream recv failed: %w", err):
				case <-ctx.Done():
				}
				return
			}

			if len(response.Choices) == 0 {
				continue
			}

			delta := response.Choices[0].Delta.Content
			if delta != "" {
				chunkCount++
				select {
				case contentChan <- delta:
				case <-ctx.Done():
					slog.Warn("backend: stream context cancelled during send", "chunks", chunkCount)
					return
				}
			}

			if response.Choices[0].FinishReason != "" {
				slog.Debug("backend: stream finished",
					"reason", response.Choices[0].FinishReason,
					"chunks", chunkCount,
				)
				return
			}
		}
	}()

	return contentChan, errChan
}

func (s *service) GenerateImage(ctx context.Context, req *ImageRequest) (*ImageResult, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Duration(s.timeout)*time.Second)
	defer cancel()

	prompt := req.Prompt
	if req.NegativePrompt != "" {
		// OpenAI-compatible image endpoints carry no negative-prompt field;
		// fold it into the prompt text.
		prompt = fmt.Sprintf("%s. Avoid: %s", prompt, req.NegativePrompt)
	}

	slog.Debug("backend: image request", "model", req.Model, "width", req.Width, "height", req.Height)

	resp, err := s.client.CreateImage(ctx, openai.ImageRequest{
		Model:          req.Model,
		Prompt:         prompt,
		N:              1,
		Size:           fmt.Sprintf("%dx%d", req.Width, req.Height),
		ResponseFormat: openai.CreateImageResponseFormatB64JSON,
	})
	if err != nil {
		slog.Error("backend: image request failed", "model", req.Model, "error", err)
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty image response from backend")
	}

	return &ImageResult{ImageB64: resp.Data[0].B64JSON}, nil
}

func buildMessages(req *GenerateRequest) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})
	return messages
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          100,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
}
