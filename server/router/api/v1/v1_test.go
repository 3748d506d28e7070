package v1

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/companion/ai/engine"
	"github.com/hrygo/companion/ai/llm"
	"github.com/hrygo/companion/ai/memory"
	"github.com/hrygo/companion/ai/persona"
	"github.com/hrygo/companion/internal/profile"
	"github.com/hrygo/companion/store"
	"github.com/hrygo/companion/store/db/sqlite"
)

type fakeBackend struct {
	response string
}

func (f *fakeBackend) ListModels(context.Context) ([]llm.Model, error) {
	return []llm.Model{
		{ID: "llama3.1", Type: "text"},
		{ID: "stable-diffusion", Type: "image"},
	}, nil
}

func (f *fakeBackend) Generate(context.Context, *llm.GenerateRequest) (string, error) {
	return f.response, nil
}

func (f *fakeBackend) GenerateStream(ctx context.Context, req *llm.GenerateRequest) (<-chan string, <-chan error) {
	content := make(chan string)
	errs := make(chan error, 1)
	go func() {
		defer close(content)
		for _, c := range []string{f.response} {
			select {
			case content <- c:
			case <-ctx.Done():
			}
		}
	}()
	return content, errs
}

func (f *fakeBackend) GenerateImage(context.Context, *llm.ImageRequest) (*llm.ImageResult, error) {
	return &llm.ImageResult{ImageB64: "aGVsbG8="}, nil
}

func newTestService(t *testing.T) (*APIV1Service, *echo.Echo) {
	t.Helper()

	p := &profile.Profile{
		Mode:   "dev",
		Driver: "sqlite",
		DSN:    filepath.Join(t.TempDir(), "companion_test.db"),
	}
	driver, err := sqlite.NewDB(p)
	require.NoError(t, err)
	t.Cleanup(func() { _ = driver.Close() })
	require.NoError(t, driver.Migrate(context.Background()))

	docs, err := persona.NewFileDocumentStore(t.TempDir())
	require.NoError(t, err)

	eng := engine.New(
		&fakeBackend{response: "hello!"},
		persona.NewState(docs),
		memory.New(store.New(driver, p), memory.NewRuleExtractor()),
		nil,
		engine.Config{TextModel: "llama3.1", ImageModel: "stable-diffusion", ContextWindow: 5, IncludeCurrentTurn: true},
	)

	service := NewAPIV1Service(p, eng)
	e := echo.New()
	require.NoError(t, service.RegisterRoutes(e))
	return service, e
}

func doJSON(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestChatSync(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hi there"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ChatResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hello!", resp.Response)
	assert.Equal(t, "llama3.1", resp.ModelUsed)
	assert.Empty(t, resp.Error)
}

func TestChatValidation(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hi","temperature":1.5}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/chat", `{"message":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/chat", `{"message":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListModels(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodGet, "/api/models", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Models []llm.Model `json:"models"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Models, 2)
}

func TestGenerateImageValidation(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/images/generate", `{"prompt":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/images/generate", `{"prompt":"a cat","width":32}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodPost, "/api/images/generate", `{"prompt":"a cat","height":2048}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGenerateImageDefaults(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/images/generate", `{"prompt":"a quiet forest"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ImageResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "aGVsbG8=", resp.ImageBase64)
	assert.Equal(t, "a quiet forest", resp.Prompt)
}

func TestPersonalityRoundTrip(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/personality/update", `{"traits":{"openness":5}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Personality persona.TraitProfile `json:"personality"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1.0, resp.Personality["openness"].Value)

	rec = doJSON(e, http.MethodPost, "/api/personality/update", `{"traits":{}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/personality/current", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestEmotionRoundTrip(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/emotions/update", `{"values":{"valence":0.2}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Emotion persona.EmotionState `json:"emotion"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 0.2, resp.Emotion.Valence)
}

func TestListMessagesValidation(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodGet, "/api/messages?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/messages?limit=500", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/messages", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMessagesAfterChat(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"I love hiking"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(e, http.MethodGet, "/api/messages", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []*MessageView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &views))
	require.Len(t, views, 2)
	assert.Equal(t, "sent", views[0].Status)
	assert.False(t, views[0].IsUser)
	assert.True(t, views[1].IsUser)

	rec = doJSON(e, http.MethodGet, "/api/memory/facts", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var facts struct {
		Facts []*FactView `json:"facts"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &facts))
	require.Len(t, facts.Facts, 1)
	assert.Equal(t, "likes", facts.Facts[0].Predicate)

	rec = doJSON(e, http.MethodGet, "/api/memory/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 2, stats["message_count"])
	assert.Contains(t, stats, "personality")
}

func TestSystemPrompt(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodGet, "/api/system/prompt", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		SystemPrompt string `json:"system_prompt"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Contains(t, resp.SystemPrompt, "AI companion")
}

func TestChatStreamSSE(t *testing.T) {
	_, e := newTestService(t)

	rec := doJSON(e, http.MethodPost, "/api/chat", `{"message":"hi","stream":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/event-stream")

	body := rec.Body.String()
	assert.Contains(t, body, `"type":"typing_indicator"`)
	assert.Contains(t, body, `"type":"response_chunk"`)
	assert.Contains(t, body, `"type":"response_complete"`)
	assert.True(t, strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]"))
}
