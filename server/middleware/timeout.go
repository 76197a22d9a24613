package middleware

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/teilomillet/promptgate/errors"
)

// Timeout bounds the request with a context deadline. The handler runs on the
// calling goroutine; if the deadline has passed when it returns and nothing was
// written, a 504 timeout_error is sent. Handlers must stop writing once the
// context is done.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			if ww.Status() != 0 || !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return
			}
			apierrors.WriteError(ww, apierrors.NewTimeoutError(
				GetRequestID(r.Context()),
				timeout,
				ctx.Err(),
			))
		})
	}
}
