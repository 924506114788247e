package llm

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	defaultVoyageBaseURL    = "https://api.voyageai.com/v1"
)

// Anthropic answers prompts with Claude and embeds text through Voyage.
type Anthropic struct {
	apiKey         string
	model          string
	embeddingModel string
	opts           options
	voyage         *Voyage
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	Messages  []anthropicMessage `json:"messages"`
	System    string             `json:"system,omitempty"`
}

// NewAnthropic builds the Claude provider. voyage may be nil, in which case
// Embeddings fails.
func NewAnthropic(apiKey, model, embeddingModel string, voyage *Voyage, opts ...Option) (*Anthropic, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "anthropic api key is required")
	}
	o := buildOptions(defaultAnthropicBaseURL, 0, opts)
	return &Anthropic{apiKey: key, model: model, embeddingModel: embeddingModel, opts: o, voyage: voyage}, nil
}

func (c *Anthropic) Name() string           { return ProviderAnthropic }
func (c *Anthropic) Model() string          { return c.model }
func (c *Anthropic) EmbeddingModel() string { return c.embeddingModel }

// Response joins system prompts with newlines and text blocks of the answer
// the same way.
func (c *Anthropic) Response(ctx context.Context, userPrompts, systemPrompts []string) (Response, error) {
	req := anthropicRequest{
		Model:     c.model,
		MaxTokens: anthropicMaxTokens,
		Messages:  make([]anthropicMessage, 0, len(userPrompts)),
		System:    strings.Join(systemPrompts, "\n"),
	}
	for _, p := range userPrompts {
		req.Messages = append(req.Messages, anthropicMessage{Role: "user", Content: p})
	}
	headers := map[string]string{
		"x-api-key":         c.apiKey,
		"anthropic-version": anthropicAPIVersion,
	}

	var out struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		Usage struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	}
	err := withRetry(ctx, c.opts.responseRetry, func(ctx context.Context) error {
		return postJSON(ctx, c.opts.httpClient, joinURL(c.opts.baseURL, "messages"), headers, req, &out)
	})
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "anthropic completion failed")
	}

	texts := make([]string, 0, len(out.Content))
	for _, block := range out.Content {
		if block.Type == "text" {
			texts = append(texts, block.Text)
		}
	}
	return Response{
		Content:      strings.Join(texts, "\n"),
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
	}, nil
}

func (c *Anthropic) Embeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if c.voyage == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "voyage api key is required for anthropic embeddings")
	}
	return c.voyage.Embed(ctx, c.embeddingModel, texts)
}

// Voyage is the embeddings API paired with Claude.
type Voyage struct {
	apiKey string
	opts   options
}

// NewVoyage builds the Voyage embeddings client.
func NewVoyage(apiKey string, opts ...Option) (*Voyage, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "voyage api key is required")
	}
	return &Voyage{apiKey: key, opts: buildOptions(defaultVoyageBaseURL, 0, opts)}, nil
}

// Embed embeds texts as documents.
func (v *Voyage) Embed(ctx context.Context, model string, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	body := map[string]any{
		"model":      model,
		"input":      flattenNewlines(texts),
		"input_type": voyageInputDocument,
	}
	headers := map[string]string{"Authorization": "Bearer " + v.apiKey}

	var out struct {
		Data []struct {
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	err := withRetry(ctx, v.opts.embeddingRetry, func(ctx context.Context) error {
		return postJSON(ctx, v.opts.httpClient, joinURL(v.opts.baseURL, "embeddings"), headers, body, &out)
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "voyage embeddings failed")
	}
	vectors := make([][]float64, 0, len(out.Data))
	for _, d := range out.Data {
		vectors = append(vectors, d.Embedding)
	}
	return vectors, nil
}
