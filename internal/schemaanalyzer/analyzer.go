package schemaanalyzer

import (
	"context"
	"fmt"

	"github.com/angelmondragon/symmetri/internal/catalog"
	"github.com/angelmondragon/symmetri/internal/llm"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// Usage counts the tokens spent on one analysis.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// TableAnalyzer classifies the columns of one table.
type TableAnalyzer interface {
	AnalyzeTable(ctx context.Context, table catalog.Table) (TableMetadata, Usage, error)
}

// LLMAnalyzer asks a language model to classify columns.
type LLMAnalyzer struct {
	model llm.LLM
}

func NewLLMAnalyzer(model llm.LLM) (*LLMAnalyzer, error) {
	if model == nil {
		return nil, pkgerrors.New(pkgerrors.CodeConfig, "llm is required")
	}
	return &LLMAnalyzer{model: model}, nil
}

func (a *LLMAnalyzer) AnalyzeTable(ctx context.Context, table catalog.Table) (TableMetadata, Usage, error) {
	resp, err := a.model.Response(ctx, []string{TablePrompt(table.Name, table.Columns)}, SystemPrompts)
	if err != nil {
		return TableMetadata{}, Usage{}, err
	}
	usage := Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens}
	meta, err := ParseAnalysis(resp.Content, table)
	return meta, usage, err
}

// ParseAnalysis turns a model answer into metadata. Only columns present in
// the catalog are kept and their type and nullability come from the catalog.
func ParseAnalysis(content string, table catalog.Table) (TableMetadata, error) {
	decoded, err := llm.SanitizeJSON(content)
	if err != nil {
		return TableMetadata{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalid json in llm response")
	}
	doc, ok := decoded.(map[string]any)
	if !ok {
		return TableMetadata{}, pkgerrors.New(pkgerrors.CodeDependency, "llm response is not a json object")
	}

	byName := make(map[string]catalog.Column, len(table.Columns))
	for _, c := range table.Columns {
		byName[c.Name] = c
	}

	meta := TableMetadata{
		Name:                table.Name,
		Description:         fmt.Sprintf("Table %s", table.Name),
		Columns:             []ColumnMetadata{},
		PrimaryKeys:         stringList(doc["primary_keys"]),
		SegmentationColumns: stringList(doc["segmentation_columns"]),
		MetricColumns:       stringList(doc["metric_columns"]),
		IdentifierColumns:   stringList(doc["identifier_columns"]),
		TimestampColumns:    stringList(doc["timestamp_columns"]),
	}
	if d, ok := doc["description"].(string); ok {
		meta.Description = d
	}

	cols, _ := doc["columns"].([]any)
	for _, raw := range cols {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := entry["name"].(string)
		column, ok := byName[name]
		if !ok {
			continue
		}
		description, _ := entry["description"].(string)
		role, _ := entry["segmentation_role"].(string)
		meta.Columns = append(meta.Columns, ColumnMetadata{
			Name:             name,
			Type:             column.DataType,
			Nullable:         column.Nullable,
			Description:      description,
			SegmentationRole: ParseRole(role),
		})
	}
	return meta, nil
}

func stringList(v any) []string {
	items, _ := v.([]any)
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
