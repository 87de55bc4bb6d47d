package inspector

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	ferrors "git.home.luguber.info/inful/sitegraph/internal/foundation/errors"
	"git.home.luguber.info/inful/sitegraph/internal/logfields"
)

// chain wraps next with request logging and panic recovery.
func chain(logger *slog.Logger, adapter *ferrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return logging(logger, recovery(logger, adapter, next))
}

func logging(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)
		logger.Debug("Inspector request",
			slog.String("method", r.Method),
			logfields.Path(r.URL.Path),
			slog.Int("status", wrapped.status),
			logfields.DurationMS(float64(time.Since(start).Microseconds())/1000))
	})
}

func recovery(logger *slog.Logger, adapter *ferrors.HTTPErrorAdapter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Inspector handler panic", logfields.Path(r.URL.Path), slog.Any("panic", rec))
				err := ferrors.InternalError("internal server error").
					WithCause(fmt.Errorf("panic: %v", rec)).
					WithContext("path", r.URL.Path).
					Build()
				adapter.WriteErrorResponse(w, r, err)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
