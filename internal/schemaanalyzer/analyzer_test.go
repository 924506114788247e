package schemaanalyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/symmetri/internal/catalog"
	"github.com/angelmondragon/symmetri/internal/llm"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

type fakeLLM struct {
	content string
	err     error
	user    []string
	system  []string
}

func (f *fakeLLM) Name() string           { return "fake" }
func (f *fakeLLM) Model() string          { return "fake-1" }
func (f *fakeLLM) EmbeddingModel() string { return "fake-embed" }

func (f *fakeLLM) Response(_ context.Context, user, system []string) (llm.Response, error) {
	f.user, f.system = user, system
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content, InputTokens: 120, OutputTokens: 40}, nil
}

func (f *fakeLLM) Embeddings(context.Context, []string) ([][]float64, error) {
	return nil, errors.New("not used")
}

func strPtr(s string) *string { return &s }

func ordersTable() catalog.Table {
	return catalog.Table{
		Name: "orders",
		Columns: []catalog.Column{
			{Name: "order_id", DataType: "INT64", PrimaryKey: true},
			{Name: "status", DataType: "STRING", Nullable: true, DefaultValue: strPtr("'new'")},
			{Name: "created_at", DataType: "TIMESTAMP", Nullable: true},
		},
	}
}

const ordersAnswer = "```json\n" + `{
  "description": "Orders placed by customers",
  "columns": [
    {"name": "order_id", "type": "STRING", "description": "Order key", "segmentation_role": "identifier"},
    {"name": "status", "description": "Order state", "segmentation_role": "FILTER"},
    {"name": "ghost", "description": "Not in the table", "segmentation_role": "metric"},
    {"name": "created_at", "description": "Placed at", "segmentation_role": "when"}
  ],
  "primary_keys": ["order_id"],
  "segmentation_columns": ["status"],
  "metric_columns": [],
  "identifier_columns": ["order_id"],
  "timestamp_columns": ["created_at"]
}` + "\n```"

func TestParseAnalysisKeepsCatalogColumns(t *testing.T) {
	meta, err := ParseAnalysis(ordersAnswer, ordersTable())
	require.NoError(t, err)

	assert.Equal(t, "orders", meta.Name)
	assert.Equal(t, "Orders placed by customers", meta.Description)
	require.Len(t, meta.Columns, 3)
	assert.Equal(t, ColumnMetadata{Name: "order_id", Type: "INT64", Description: "Order key", SegmentationRole: RoleIdentifier}, meta.Columns[0])
	assert.Equal(t, RoleFilter, meta.Columns[1].SegmentationRole)
	assert.True(t, meta.Columns[1].Nullable)
	assert.Equal(t, RoleOther, meta.Columns[2].SegmentationRole)
	assert.Equal(t, []string{"status"}, meta.SegmentationColumns)
	assert.Equal(t, []string{}, meta.MetricColumns)
}

func TestParseAnalysisDefaults(t *testing.T) {
	meta, err := ParseAnalysis(`{"columns": "nope"}`, ordersTable())
	require.NoError(t, err)
	assert.Equal(t, "Table orders", meta.Description)
	assert.Empty(t, meta.Columns)
	assert.Equal(t, []string{}, meta.PrimaryKeys)
}

func TestParseAnalysisRejectsNonObjects(t *testing.T) {
	_, err := ParseAnalysis(`["a", "b"]`, ordersTable())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = ParseAnalysis(`this is not json`, ordersTable())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

func TestLLMAnalyzerSendsTablePrompt(t *testing.T) {
	model := &fakeLLM{content: ordersAnswer}
	analyzer, err := NewLLMAnalyzer(model)
	require.NoError(t, err)

	meta, usage, err := analyzer.AnalyzeTable(context.Background(), ordersTable())
	require.NoError(t, err)
	assert.Equal(t, Usage{InputTokens: 120, OutputTokens: 40}, usage)
	assert.Len(t, meta.Columns, 3)

	require.Len(t, model.user, 1)
	assert.Contains(t, model.user[0], "Table Name: orders")
	assert.Contains(t, model.user[0], "- order_id: INT64 (PRIMARY KEY, NOT NULL)\n- status: STRING (DEFAULT: 'new')\n- created_at: TIMESTAMP")
	assert.Equal(t, SystemPrompts, model.system)
}

func TestLLMAnalyzerPropagatesModelErrors(t *testing.T) {
	analyzer, err := NewLLMAnalyzer(&fakeLLM{err: pkgerrors.New(pkgerrors.CodeDependency, "boom")})
	require.NoError(t, err)
	_, _, err = analyzer.AnalyzeTable(context.Background(), ordersTable())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	_, err = NewLLMAnalyzer(nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConfig))
}
