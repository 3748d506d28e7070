package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService(t *testing.T) {
	tests := []struct {
		name string
		cfg  *Config
	}{
		{
			name: "ollama defaults",
			cfg:  &Config{Provider: "ollama"},
		},
		{
			name: "hosted provider with key",
			cfg: &Config{
				Provider: "deepseek",
				APIKey:   "test-key",
				BaseURL:  "https://api.deepseek.com",
				Timeout:  30,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, err := NewService(tt.cfg)
			require.NoError(t, err)
			assert.NotNil(t, svc)
		})
	}
}

func TestClassifyModel(t *testing.T) {
	tests := []struct {
		name     string
		expected string
	}{
		{"llama3.1", "text"},
		{"deepseek-chat", "text"},
		{"stable-diffusion-v2", "image"},
		{"SDXL-turbo", "image"},
		{"dall-e-3", "image"},
		{"flux-schnell", "image"},
		{"qwen2.5-72b", "text"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ClassifyModel(tt.name))
		})
	}
}

func TestBuildMessages(t *testing.T) {
	withSystem := buildMessages(&GenerateRequest{
		Prompt:       "hello",
		SystemPrompt: "you are terse",
	})
	require.Len(t, withSystem, 2)
	assert.Equal(t, "system", withSystem[0].Role)
	assert.Equal(t, "you are terse", withSystem[0].Content)
	assert.Equal(t, "user", withSystem[1].Role)

	withoutSystem := buildMessages(&GenerateRequest{Prompt: "hello"})
	require.Len(t, withoutSystem, 1)
	assert.Equal(t, "user", withoutSystem[0].Role)
}
