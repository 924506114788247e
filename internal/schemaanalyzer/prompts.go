package schemaanalyzer

import (
	"fmt"
	"strings"

	"github.com/angelmondragon/symmetri/internal/catalog"
)

const systemPrompt = `You are an expert database schema analyst specializing in audience segmentation.
Your task is to analyze database tables and their columns to identify their roles in audience segmentation.

For each column, you must assign exactly one of these roles:
- 'filter': Used in WHERE clauses to filter audiences (e.g., gender, loyalty_tier, product_category)
- 'metric': Used for aggregations or thresholds (e.g., purchase_amount, visit_count)
- 'identifier': Identifies entities like users or sessions (e.g., user_id, session_id)
- 'attribute': Additional attributes that might be useful but aren't primary filters
- 'timestamp': Used for time-based filtering
- 'other': Not directly relevant for audience segmentation

When analyzing columns, consider:
1. Column name and type
2. Common naming patterns (e.g., '_id' suffix for identifiers)
3. Typical audience segment requirements
4. Common filtering patterns
5. Business context
6. Data type appropriateness for each role

Your response must be in JSON format with these exact keys:
` + responseShape

const responseShape = `{
    "description": "Overall table description focusing on audience segmentation use cases",
    "columns": [
        {
            "name": "column_name",
            "description": "Column description and typical usage",
            "segmentation_role": "role from the list above",
            "examples": ["Example usage in audience segments"]
        }
    ],
    "primary_keys": ["list of primary key columns"],
    "segmentation_columns": ["columns good for WHERE clauses"],
    "metric_columns": ["columns good for aggregations"],
    "identifier_columns": ["columns that identify entities"],
    "timestamp_columns": ["columns for time-based filtering"]
}`

const examplesPrompt = `Here are examples of correct schema analysis responses:

Example 1 - User Table:
{
    "description": "Contains user profile data including loyalty status and demographic information",
    "columns": [
        {
            "name": "user_id",
            "description": "Unique identifier for each user",
            "segmentation_role": "identifier",
            "examples": ["Used as join key for user-related queries"]
        },
        {
            "name": "email",
            "description": "User's email address",
            "segmentation_role": "attribute",
            "examples": ["Used for user identification but not for segmentation"]
        },
        {
            "name": "created_at",
            "description": "Timestamp when the user account was created",
            "segmentation_role": "timestamp",
            "examples": ["Used for cohort analysis and time-based filtering"]
        },
        {
            "name": "loyalty_tier",
            "description": "User's current loyalty program tier",
            "segmentation_role": "filter",
            "examples": ["Filter users by loyalty status"]
        }
    ],
    "primary_keys": ["user_id"],
    "segmentation_columns": ["loyalty_tier"],
    "metric_columns": [],
    "identifier_columns": ["user_id"],
    "timestamp_columns": ["created_at"]
}

Example 2 - Purchase Table:
{
    "description": "Records of user purchases including transaction details and amounts",
    "columns": [
        {
            "name": "transaction_id",
            "description": "Unique identifier for each transaction",
            "segmentation_role": "identifier",
            "examples": ["Primary key for purchase records"]
        },
        {
            "name": "user_id",
            "description": "Reference to the user who made the purchase",
            "segmentation_role": "identifier",
            "examples": ["Join key to user table"]
        },
        {
            "name": "amount",
            "description": "Total purchase amount",
            "segmentation_role": "metric",
            "examples": ["Calculate total spend, average order value"]
        },
        {
            "name": "product_category",
            "description": "Category of the purchased product",
            "segmentation_role": "filter",
            "examples": ["Filter by product interests"]
        }
    ],
    "primary_keys": ["transaction_id"],
    "segmentation_columns": ["product_category"],
    "metric_columns": ["amount"],
    "identifier_columns": ["transaction_id", "user_id"],
    "timestamp_columns": []
}`

// SystemPrompts are sent with every table analysis.
var SystemPrompts = []string{systemPrompt, examplesPrompt}

const tablePromptFormat = `
Analyze the following database table and its columns in the context of audience segmentation.
The goal is to identify which columns are useful for defining audience segments and how they should be used.

Table Name: %s

Columns:
%s

For each column, determine its role in audience segmentation based on the column name and type:
- 'filter': Used in WHERE clauses to filter audiences (e.g., gender, loyalty_tier, product_category)
- 'metric': Used for aggregations or thresholds (e.g., purchase_amount, visit_count)
- 'identifier': Identifies entities like users or sessions (e.g., user_id, session_id)
- 'attribute': Additional attributes that might be useful but aren't primary filters
- 'timestamp': Used for time-based filtering
- 'other': Not directly relevant for audience segmentation

Consider:
1. Column name and type
2. Common naming patterns (e.g., '_id' suffix for identifiers)
3. Typical audience segment requirements
4. Common filtering patterns
5. Business context
6. Data type appropriateness for each role

Return the analysis in JSON format:
%s
`

// TablePrompt is the user prompt describing one table.
func TablePrompt(table string, columns []catalog.Column) string {
	return fmt.Sprintf(tablePromptFormat, table, FormatColumns(columns), responseShape)
}

// FormatColumns renders one line per column, for example
// "- id: INTEGER (PRIMARY KEY, NOT NULL, DEFAULT: 0)".
func FormatColumns(columns []catalog.Column) string {
	lines := make([]string, 0, len(columns))
	for _, c := range columns {
		var constraints []string
		if c.PrimaryKey {
			constraints = append(constraints, "PRIMARY KEY")
		}
		if !c.Nullable {
			constraints = append(constraints, "NOT NULL")
		}
		if c.DefaultValue != nil && *c.DefaultValue != "" {
			constraints = append(constraints, "DEFAULT: "+*c.DefaultValue)
		}
		line := fmt.Sprintf("- %s: %s", c.Name, c.DataType)
		if len(constraints) > 0 {
			line += " (" + strings.Join(constraints, ", ") + ")"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
