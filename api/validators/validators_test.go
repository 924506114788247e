package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
)

type createBody struct {
	Code string `json:"code" validate:"required,max=8"`
	Name string `json:"name" validate:"required"`
}

func TestDecodeJSONBody(t *testing.T) {
	var body createBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":"acme","name":"Acme"}`))
	require.NoError(t, DecodeJSONBody(req, &body))
	assert.Equal(t, "acme", body.Code)
}

func TestDecodeJSONBodyRejectsBadInput(t *testing.T) {
	cases := map[string]string{
		"unknown field": `{"code":"a","name":"b","extra":1}`,
		"trailing data": `{"code":"a","name":"b"}{"code":"c"}`,
		"not json":      `code=a`,
		"missing field": `{"code":"a"}`,
		"too long":      `{"code":"abcdefghij","name":"b"}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			var body createBody
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload))
			err := DecodeJSONBody(req, &body)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestValidationDetailsUseJSONNames(t *testing.T) {
	var body createBody
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"code":""}`))
	err := DecodeJSONBody(req, &body)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	details, ok := typed.Details().(map[string]string)
	require.True(t, ok)
	assert.Equal(t, "is required", details["code"])
	assert.Equal(t, "is required", details["name"])
}

func TestParsePagination(t *testing.T) {
	params, err := ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=10&cursor=abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 10, params.Limit)
	assert.Equal(t, "abc", params.Cursor)

	_, err = ParsePagination(httptest.NewRequest(http.MethodGet, "/?limit=1000", nil))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orgID", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := PathUUID(req, "orgID")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = PathUUID(req, "missing")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}
