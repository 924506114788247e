package llm

import (
	"context"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// Response is the raw completion returned by a provider.
type Response struct {
	Content      string
	InputTokens  int
	OutputTokens int
}

// JSONResponse is a completion decoded into a JSON document (an object or a list).
type JSONResponse struct {
	Content      any
	InputTokens  int
	OutputTokens int
}

// LLM is a chat completion and embedding provider.
type LLM interface {
	Name() string
	Model() string
	EmbeddingModel() string
	Response(ctx context.Context, userPrompts, systemPrompts []string) (Response, error)
	Embeddings(ctx context.Context, texts []string) ([][]float64, error)
}

// JSON asks the model for a completion and decodes it with SanitizeJSON.
func JSON(ctx context.Context, model LLM, userPrompts, systemPrompts []string) (JSONResponse, error) {
	if model == nil {
		return JSONResponse{}, pkgerrors.New(pkgerrors.CodeConfig, "llm is required")
	}
	resp, err := model.Response(ctx, userPrompts, systemPrompts)
	if err != nil {
		return JSONResponse{}, err
	}
	content, err := SanitizeJSON(strings.TrimSpace(resp.Content))
	if err != nil {
		return JSONResponse{}, err
	}
	return JSONResponse{
		Content:      content,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}

func flattenNewlines(texts []string) []string {
	out := make([]string, len(texts))
	for i, t := range texts {
		out[i] = strings.ReplaceAll(t, "\n", " ")
	}
	return out
}
