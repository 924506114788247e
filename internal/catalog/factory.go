package catalog

import (
	"strings"

	"github.com/angelmondragon/symmetri/pkg/db"
)

// Deps carries the connections a provider may need.
type Deps struct {
	DB       *db.Client
	Schema   string
	BigQuery Querier
	Project  string
	Dataset  string
}

// NewProvider returns the catalog provider registered under name.
func NewProvider(name string, deps Deps) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case ProviderBigQuery:
		p, err := NewBigQuery(deps.BigQuery, deps.Project, deps.Dataset)
		if err != nil {
			return nil, err
		}
		return p, nil
	case ProviderPostgres:
		p, err := NewPostgres(deps.DB, deps.Schema)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, unknownProvider(name)
	}
}
