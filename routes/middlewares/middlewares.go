package middlewares

import (
	"net/http"

	"github.com/felixge/httpsnoop"

	"github.com/mbolis/quick-forms/log"
)

// Metrics logs one line per request with status, size and duration,
// measured around the whole downstream chain.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m := httpsnoop.CaptureMetrics(next, w, r)
		log.Infof("%s %s %d %dB %s", r.Method, r.URL.Path, m.Code, m.Written, m.Duration)
	})
}
