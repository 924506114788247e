package llm

import (
	"context"
	"sort"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// OpenAI talks to the chat completions and embeddings endpoints.
type OpenAI struct {
	apiKey         string
	model          string
	embeddingModel string
	opts           options
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// NewOpenAI builds the OpenAI provider.
func NewOpenAI(apiKey, model, embeddingModel string, opts ...Option) (*OpenAI, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "openai api key is required")
	}
	o := buildOptions(defaultOpenAIBaseURL, 0, opts)
	return &OpenAI{apiKey: key, model: model, embeddingModel: embeddingModel, opts: o}, nil
}

func (c *OpenAI) Name() string           { return ProviderOpenAI }
func (c *OpenAI) Model() string          { return c.model }
func (c *OpenAI) EmbeddingModel() string { return c.embeddingModel }

func (c *OpenAI) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + c.apiKey}
}

// Response sends system prompts first, then user prompts, at temperature 0.
func (c *OpenAI) Response(ctx context.Context, userPrompts, systemPrompts []string) (Response, error) {
	messages := make([]openAIMessage, 0, len(systemPrompts)+len(userPrompts))
	for _, p := range systemPrompts {
		messages = append(messages, openAIMessage{Role: "system", Content: p})
	}
	for _, p := range userPrompts {
		messages = append(messages, openAIMessage{Role: "user", Content: p})
	}
	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": 0,
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	err := withRetry(ctx, c.opts.responseRetry, func(ctx context.Context) error {
		return postJSON(ctx, c.opts.httpClient, joinURL(c.opts.baseURL, "chat/completions"), c.headers(), body, &out)
	})
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "openai completion failed")
	}
	if len(out.Choices) == 0 {
		return Response{}, pkgerrors.New(pkgerrors.CodeDependency, "openai returned no choices")
	}
	return Response{
		Content:      out.Choices[0].Message.Content,
		InputTokens:  out.Usage.PromptTokens,
		OutputTokens: out.Usage.CompletionTokens,
	}, nil
}

// Embeddings returns one vector per text in input order.
func (c *OpenAI) Embeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model": c.embeddingModel,
		"input": flattenNewlines(texts),
	}

	var out struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	err := withRetry(ctx, c.opts.embeddingRetry, func(ctx context.Context) error {
		return postJSON(ctx, c.opts.httpClient, joinURL(c.opts.baseURL, "embeddings"), c.headers(), body, &out)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "openai embeddings failed")
	}
	sort.SliceStable(out.Data, func(i, j int) bool { return out.Data[i].Index < out.Data[j].Index })
	vectors := make([][]float64, 0, len(out.Data))
	for _, d := range out.Data {
		vectors = append(vectors, d.Embedding)
	}
	return vectors, nil
}
