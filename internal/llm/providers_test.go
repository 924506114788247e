package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/angelmondragon/symmetri/pkg/config"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

var noWait = WithRetryPolicies(RetryPolicy{Attempts: 3}, RetryPolicy{Attempts: 3})

func decodeBody(t *testing.T, r *http.Request) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	return body
}

func TestOpenAIResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))

		body := decodeBody(t, r)
		assert.Equal(t, "gpt-4o", body["model"])
		assert.Equal(t, float64(0), body["temperature"])
		messages := body["messages"].([]any)
		require.Len(t, messages, 3)
		assert.Equal(t, "system", messages[0].(map[string]any)["role"])
		assert.Equal(t, "user", messages[2].(map[string]any)["role"])

		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"ok\": true}"}}],"usage":{"prompt_tokens":12,"completion_tokens":3}}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI("sk-test", "gpt-4o", "text-embedding-3-small", WithBaseURL(srv.URL+"/v1"), noWait)
	require.NoError(t, err)

	resp, err := JSON(context.Background(), c, []string{"a", "b"}, []string{"sys"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"ok": true}, resp.Content)
	assert.Equal(t, 12, resp.InputTokens)
	assert.Equal(t, 3, resp.OutputTokens)
}

func TestOpenAIEmbeddingsOrderedByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/embeddings", r.URL.Path)
		body := decodeBody(t, r)
		assert.Equal(t, []any{"line one line two", "x"}, body["input"])
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0.3]},{"index":0,"embedding":[0.1,0.2]}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI("sk-test", "gpt-4o", "text-embedding-3-small", WithBaseURL(srv.URL), noWait)
	require.NoError(t, err)

	vectors, err := c.Embeddings(context.Background(), []string{"line one\nline two", "x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.1, 0.2}, {0.3}}, vectors)
}

func TestOpenAIRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"done"}}]}`))
	}))
	defer srv.Close()

	c, err := NewOpenAI("sk-test", "gpt-4o", "", WithBaseURL(srv.URL), noWait)
	require.NoError(t, err)

	resp, err := c.Response(context.Background(), []string{"hi"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Content)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOpenAIDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	c, err := NewOpenAI("sk-test", "gpt-4o", "", WithBaseURL(srv.URL), noWait)
	require.NoError(t, err)

	_, err = c.Response(context.Background(), []string{"hi"}, nil)
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Equal(t, int32(1), calls.Load())
}

func TestAnthropicResponseJoinsPromptsAndText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/messages", r.URL.Path)
		assert.Equal(t, "key", r.Header.Get("x-api-key"))
		assert.Equal(t, anthropicAPIVersion, r.Header.Get("anthropic-version"))

		body := decodeBody(t, r)
		assert.Equal(t, "one\ntwo", body["system"])
		assert.Equal(t, float64(anthropicMaxTokens), body["max_tokens"])
		assert.Len(t, body["messages"], 1)

		_, _ = w.Write([]byte(`{"content":[{"type":"text","text":"first"},{"type":"tool_use"},{"type":"text","text":"second"}],"usage":{"input_tokens":7,"output_tokens":2}}`))
	}))
	defer srv.Close()

	c, err := NewAnthropic("key", "claude-3-5-haiku-latest", "voyage-3", nil, WithBaseURL(srv.URL), noWait)
	require.NoError(t, err)

	resp, err := c.Response(context.Background(), []string{"u"}, []string{"one", "two"})
	require.NoError(t, err)
	assert.Equal(t, "first\nsecond", resp.Content)
	assert.Equal(t, 7, resp.InputTokens)
	assert.Equal(t, 2, resp.OutputTokens)
}

func TestAnthropicEmbeddingsThroughVoyage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer vk", r.Header.Get("Authorization"))
		body := decodeBody(t, r)
		assert.Equal(t, "voyage-3", body["model"])
		assert.Equal(t, voyageInputDocument, body["input_type"])
		_, _ = w.Write([]byte(`{"data":[{"embedding":[1,2,3]}]}`))
	}))
	defer srv.Close()

	voyage, err := NewVoyage("vk", WithBaseURL(srv.URL), noWait)
	require.NoError(t, err)
	c, err := NewAnthropic("key", "claude-3-5-haiku-latest", "voyage-3", voyage)
	require.NoError(t, err)

	vectors, err := c.Embeddings(context.Background(), []string{"doc"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{1, 2, 3}}, vectors)
}

func TestAnthropicEmbeddingsWithoutVoyage(t *testing.T) {
	c, err := NewAnthropic("key", "claude-3-5-haiku-latest", "voyage-3", nil)
	require.NoError(t, err)

	_, err = c.Embeddings(context.Background(), []string{"doc"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
}

type fakeModels struct {
	system    *genai.Content
	contents  int
	embedTask string
}

func (f *fakeModels) GenerateContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.system = cfg.SystemInstruction
	f.contents = len(contents)
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: genai.NewContentFromText(`{"name": "t"}`, genai.RoleModel),
		}},
		UsageMetadata: &genai.GenerateContentResponseUsageMetadata{PromptTokenCount: 9, CandidatesTokenCount: 4},
	}, nil
}

func (f *fakeModels) EmbedContent(_ context.Context, _ string, contents []*genai.Content, cfg *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	f.embedTask = cfg.TaskType
	out := &genai.EmbedContentResponse{}
	for range contents {
		out.Embeddings = append(out.Embeddings, &genai.ContentEmbedding{Values: []float32{0.5, 0.25}})
	}
	return out, nil
}

func TestGoogleResponseAndEmbeddings(t *testing.T) {
	models := &fakeModels{}
	c := newGoogle(models, "gemini-2.5-flash", "text-embedding-004", buildOptions("", 0, []Option{noWait}))

	resp, err := JSON(context.Background(), c, []string{"u1", "u2"}, []string{"s1", "s2"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"name": "t"}, resp.Content)
	assert.Equal(t, 9, resp.InputTokens)
	assert.Equal(t, 4, resp.OutputTokens)
	assert.Equal(t, 2, models.contents)
	require.NotNil(t, models.system)
	assert.Equal(t, "s1\ns2", models.system.Parts[0].Text)

	vectors, err := c.Embeddings(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float64{{0.5, 0.25}, {0.5, 0.25}}, vectors)
	assert.Equal(t, googleEmbeddingTask, models.embedTask)
}

func TestFactoryLookup(t *testing.T) {
	entry, err := Lookup(ProviderAnthropic, "claude-3-7-sonnet-latest")
	require.NoError(t, err)
	assert.Equal(t, "voyage-3", entry.Embedding.Model)
	assert.Equal(t, 1024, entry.Embedding.VectorLength)

	_, err = Lookup("mistral", "large")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = Lookup(ProviderOpenAI, "gpt-3")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	assert.Equal(t, []string{"anthropic", "google", "openai"}, Providers())
}

func TestFactoryNew(t *testing.T) {
	cfg := config.LLMConfig{OpenAIAPIKey: "sk", AnthropicAPIKey: "ak"}

	m, err := New(context.Background(), ProviderOpenAI, "gpt-4o-mini", cfg)
	require.NoError(t, err)
	assert.Equal(t, "openai", m.Name())
	assert.Equal(t, "gpt-4o-mini", m.Model())
	assert.Equal(t, "text-embedding-3-small", m.EmbeddingModel())

	m, err = New(context.Background(), ProviderAnthropic, "claude-3-5-haiku-latest", cfg)
	require.NoError(t, err)
	assert.Equal(t, "anthropic", m.Name())

	_, err = New(context.Background(), ProviderGoogle, "gemini-2.5-pro", cfg)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
}
