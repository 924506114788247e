package middleware

import (
	"fmt"
	"net/http"

	"github.com/angelmondragon/symmetri/api/responses"
	pkgerrors "github.com/angelmondragon/symmetri/pkg/errors"
	"github.com/angelmondragon/symmetri/pkg/logger"
)

// Recoverer turns a handler panic into an INTERNAL_ERROR response.
func Recoverer(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				err := fmt.Errorf("panic: %v", rec)
				ctx := r.Context()
				if logg != nil {
					ctx = logg.WithFields(ctx, map[string]any{"panic": rec})
				}
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "panic"))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
