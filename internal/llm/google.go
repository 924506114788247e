package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

const googleEmbeddingTask = "RETRIEVAL_DOCUMENT"

type genaiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Google serves Gemini completions and embeddings through the genai SDK.
type Google struct {
	models         genaiModels
	model          string
	embeddingModel string
	opts           options
}

// NewGoogle builds the Gemini provider against the Gemini API backend.
func NewGoogle(ctx context.Context, apiKey, model, embeddingModel string, opts ...Option) (*Google, error) {
	key := strings.TrimSpace(apiKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "gemini api key is required")
	}
	o := buildOptions("", 0, opts)
	cc := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: o.httpClient,
	}
	if o.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: o.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create genai client")
	}
	return newGoogle(client.Models, model, embeddingModel, o), nil
}

func newGoogle(models genaiModels, model, embeddingModel string, o options) *Google {
	return &Google{models: models, model: model, embeddingModel: embeddingModel, opts: o}
}

func (c *Google) Name() string           { return ProviderGoogle }
func (c *Google) Model() string          { return c.model }
func (c *Google) EmbeddingModel() string { return c.embeddingModel }

func (c *Google) Response(ctx context.Context, userPrompts, systemPrompts []string) (Response, error) {
	contents := make([]*genai.Content, 0, len(userPrompts))
	for _, p := range userPrompts {
		contents = append(contents, genai.NewContentFromText(p, genai.RoleUser))
	}
	cfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr[float32](0),
		MaxOutputTokens: anthropicMaxTokens,
	}
	if len(systemPrompts) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(systemPrompts, "\n"), genai.RoleUser)
	}

	var out *genai.GenerateContentResponse
	err := withRetry(ctx, c.opts.responseRetry, func(ctx context.Context) error {
		var err error
		out, err = c.models.GenerateContent(ctx, c.model, contents, cfg)
		return err
	})
	if err != nil {
		return Response{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gemini completion failed")
	}
	if out == nil {
		return Response{}, pkgerrors.New(pkgerrors.CodeDependency, "gemini returned no content")
	}

	resp := Response{Content: out.Text()}
	if out.UsageMetadata != nil {
		resp.InputTokens = int(out.UsageMetadata.PromptTokenCount)
		resp.OutputTokens = int(out.UsageMetadata.CandidatesTokenCount)
	}
	return resp, nil
}

func (c *Google) Embeddings(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, t := range flattenNewlines(texts) {
		contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
	}

	var out *genai.EmbedContentResponse
	err := withRetry(ctx, c.opts.embeddingRetry, func(ctx context.Context) error {
		var err error
		out, err = c.models.EmbedContent(ctx, c.embeddingModel, contents, &genai.EmbedContentConfig{TaskType: googleEmbeddingTask})
		return err
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gemini embeddings failed")
	}
	if out == nil {
		return nil, nil
	}

	vectors := make([][]float64, 0, len(out.Embeddings))
	for _, e := range out.Embeddings {
		vec := make([]float64, len(e.Values))
		for i, v := range e.Values {
			vec[i] = float64(v)
		}
		vectors = append(vectors, vec)
	}
	return vectors, nil
}
