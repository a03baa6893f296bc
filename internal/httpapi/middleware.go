package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const requestIDHeader = "X-Request-Id"

type requestObserver interface {
	ObserveRequest(method string, status int, elapsed time.Duration)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// requestLogger logs every request and feeds the request metrics. A client
// supplied X-Request-Id is echoed back, otherwise a new one is generated.
func requestLogger(next http.Handler, observer requestObserver) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		sr := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sr, r)

		elapsed := time.Since(start)
		if observer != nil {
			observer.ObserveRequest(r.Method, sr.status, elapsed)
		}
		slog.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sr.status,
			"duration_ms", elapsed.Milliseconds(),
			"request_id", requestID,
		)
	})
}

// recoveryLogger adapts slog to the Println logger gorilla's RecoveryHandler expects.
type recoveryLogger struct{}

func (recoveryLogger) Println(v ...any) {
	slog.Error("panic recovered", "panic", fmt.Sprint(v...))
}
