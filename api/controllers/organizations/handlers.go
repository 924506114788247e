package organizations

import (
	"net/http"

	"github.com/angelmondragon/symmetri/api/responses"
	"github.com/angelmondragon/symmetri/api/validators"
	"github.com/angelmondragon/symmetri/internal/organizations"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

type createRequest struct {
	Code string `json:"code" validate:"required,max=64"`
	Name string `json:"name" validate:"required,max=255"`
}

type updateRequest struct {
	Code *string `json:"code,omitempty" validate:"omitempty,min=1,max=64"`
	Name *string `json:"name,omitempty" validate:"omitempty,min=1,max=255"`
}

// Create registers an organization. Repeating a code returns the existing row.
func Create(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req createRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Create(r.Context(), organizations.CreateInput{Code: req.Code, Name: req.Name})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, org)
	}
}

func List(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, result)
	}
}

func Get(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orgID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, org)
	}
}

func Update(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orgID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req updateRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		org, err := svc.Update(r.Context(), id, organizations.UpdateInput{Code: req.Code, Name: req.Name})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccess(w, org)
	}
}

// Delete removes an organization together with its stored schema metadata.
func Delete(svc organizations.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.PathUUID(r, "orgID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		deleted, err := svc.Delete(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if !deleted {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "organization not found"))
			return
		}

		responses.WriteSuccess(w, map[string]any{"id": id, "deleted": true})
	}
}
