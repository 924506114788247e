package schemaanalyzer

import (
	"encoding/json"
	"fmt"
	"strings"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

// Role is how a column takes part in audience segmentation.
type Role string

const (
	RoleFilter     Role = "filter"
	RoleMetric     Role = "metric"
	RoleIdentifier Role = "identifier"
	RoleAttribute  Role = "attribute"
	RoleTimestamp  Role = "timestamp"
	RoleOther      Role = "other"
)

var knownRoles = map[Role]bool{
	RoleFilter:     true,
	RoleMetric:     true,
	RoleIdentifier: true,
	RoleAttribute:  true,
	RoleTimestamp:  true,
	RoleOther:      true,
}

// ParseRole maps a model answer onto a known role. Unknown values become other.
func ParseRole(value string) Role {
	r := Role(strings.ToLower(strings.TrimSpace(value)))
	if knownRoles[r] {
		return r
	}
	return RoleOther
}

type ColumnMetadata struct {
	Name             string `json:"name"`
	Type             string `json:"type"`
	Nullable         bool   `json:"nullable"`
	Description      string `json:"description"`
	SegmentationRole Role   `json:"segmentation_role"`

	// SampleValues are collected locally and never sent to the model.
	SampleValues []any `json:"sample_values"`
}

type TableMetadata struct {
	Name                string           `json:"name"`
	Description         string           `json:"description"`
	Columns             []ColumnMetadata `json:"columns"`
	PrimaryKeys         []string         `json:"primary_keys"`
	SegmentationColumns []string         `json:"segmentation_columns"`
	MetricColumns       []string         `json:"metric_columns"`
	IdentifierColumns   []string         `json:"identifier_columns"`
	TimestampColumns    []string         `json:"timestamp_columns"`
}

// KeyColumns is the short column preview shown on table cards.
type KeyColumns struct {
	Metrics     []string `json:"metrics"`
	Timestamps  []string `json:"timestamps"`
	Identifiers []string `json:"identifiers"`
}

// TableSummary is the lightweight form of TableMetadata used by list views.
type TableSummary struct {
	Name         string     `json:"name"`
	Description  string     `json:"description"`
	ColumnCount  int        `json:"column_count"`
	MetricCount  int        `json:"metric_count"`
	HasTimestamp bool       `json:"has_timestamp"`
	PrimaryKeys  []string   `json:"primary_keys"`
	KeyColumns   KeyColumns `json:"key_columns"`
}

// Summary keeps the first three metrics, the first timestamp and the first
// two identifiers.
func (t TableMetadata) Summary() TableSummary {
	return TableSummary{
		Name:         t.Name,
		Description:  t.Description,
		ColumnCount:  len(t.Columns),
		MetricCount:  len(t.MetricColumns),
		HasTimestamp: len(t.TimestampColumns) > 0,
		PrimaryKeys:  nonNil(t.PrimaryKeys),
		KeyColumns: KeyColumns{
			Metrics:     head(t.MetricColumns, 3),
			Timestamps:  head(t.TimestampColumns, 1),
			Identifiers: head(t.IdentifierColumns, 2),
		},
	}
}

func (t TableMetadata) ToJSON() ([]byte, error) {
	return json.Marshal(t.normalized())
}

func (t TableMetadata) ToSummaryJSON() ([]byte, error) {
	return json.Marshal(t.Summary())
}

// FromJSON decodes a document written by ToJSON. name and columns are required.
func FromJSON(data []byte) (TableMetadata, error) {
	var raw struct {
		TableMetadata
		Name    *string           `json:"name"`
		Columns *[]ColumnMetadata `json:"columns"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return TableMetadata{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode table metadata")
	}
	if raw.Name == nil || raw.Columns == nil {
		return TableMetadata{}, pkgerrors.New(pkgerrors.CodeValidation, "table metadata requires name and columns")
	}
	out := raw.TableMetadata
	out.Name = *raw.Name
	out.Columns = *raw.Columns
	return out.normalized(), nil
}

// String renders the metadata for terminal output.
func (t TableMetadata) String() string {
	out := []string{
		"Table: " + t.Name,
		"Description: " + t.Description,
		"\nColumns:",
	}
	for _, c := range t.Columns {
		out = append(out,
			"  - "+c.Name,
			"    Type: "+c.Type,
			"    Nullable: "+yesNo(c.Nullable),
			"    Role: "+string(c.SegmentationRole),
			"    Description: "+c.Description,
		)
		if len(c.SampleValues) > 0 {
			out = append(out, fmt.Sprintf("    Sample Values: %v", head(c.SampleValues, 3)))
		}
	}
	if len(t.PrimaryKeys) > 0 {
		out = append(out, "\nPrimary Keys: "+strings.Join(t.PrimaryKeys, ", "))
	}
	if len(t.SegmentationColumns) > 0 {
		out = append(out, "Segmentation Columns: "+strings.Join(t.SegmentationColumns, ", "))
	}
	if len(t.MetricColumns) > 0 {
		out = append(out, "Metric Columns: "+strings.Join(t.MetricColumns, ", "))
	}
	if len(t.IdentifierColumns) > 0 {
		out = append(out, "Identifier Columns: "+strings.Join(t.IdentifierColumns, ", "))
	}
	if len(t.TimestampColumns) > 0 {
		out = append(out, "Timestamp Columns: "+strings.Join(t.TimestampColumns, ", "))
	}
	return strings.Join(out, "\n")
}

// normalized replaces nil lists so they encode as [] rather than null.
func (t TableMetadata) normalized() TableMetadata {
	if t.Columns == nil {
		t.Columns = []ColumnMetadata{}
	}
	t.PrimaryKeys = nonNil(t.PrimaryKeys)
	t.SegmentationColumns = nonNil(t.SegmentationColumns)
	t.MetricColumns = nonNil(t.MetricColumns)
	t.IdentifierColumns = nonNil(t.IdentifierColumns)
	t.TimestampColumns = nonNil(t.TimestampColumns)
	return t
}

func head[T any](values []T, n int) []T {
	if len(values) < n {
		n = len(values)
	}
	return append(make([]T, 0, n), values[:n]...)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}
