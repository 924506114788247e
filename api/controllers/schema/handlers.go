package schema

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/symmetri/api/responses"
	"github.com/angelmondragon/symmetri/api/validators"
	"github.com/angelmondragon/symmetri/internal/schemaanalyzer"
	"github.com/angelmondragon/symmetri/pkg/db/models"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// OrganizationGetter confirms the organization in the path exists.
type OrganizationGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Organization, error)
}

type tablesResponse struct {
	OrganizationID uuid.UUID                     `json:"organization_id"`
	Tables         []schemaanalyzer.TableSummary `json:"tables"`
}

// Tables lists the analyzed table summaries of an organization.
func Tables(orgs OrganizationGetter, svc schemaanalyzer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, err := organization(r, orgs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		summaries, err := svc.TableSummaries(r.Context(), org.ID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, tablesResponse{OrganizationID: org.ID, Tables: summaries})
	}
}

// Table returns the full analyzed metadata of one table.
func Table(orgs OrganizationGetter, svc schemaanalyzer.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		org, err := organization(r, orgs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		table, err := validators.PathString(r, "table")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		meta, err := svc.TableMetadata(r.Context(), org.ID, table)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, meta)
	}
}

func organization(r *http.Request, orgs OrganizationGetter) (*models.Organization, error) {
	id, err := validators.PathUUID(r, "orgID")
	if err != nil {
		return nil, err
	}
	return orgs.Get(r.Context(), id)
}
