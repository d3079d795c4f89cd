package http

import (
	"net/http"

	"github.com/aussiebroadwan/keystone/internal/keystone/domain"
	"github.com/aussiebroadwan/keystone/internal/keystone/session"
	"github.com/aussiebroadwan/keystone/pkg/idx"
	"github.com/aussiebroadwan/keystone/pkg/slogx"
)

const unmatchedRoute = "unmatched"

// observe feeds every request into the Prometheus metrics and the request
// log. The route is the mux pattern, so path parameters do not explode the
// label space. Auth details come from the Trace the adapter reports into.
func (r *Router) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := r.clock.Now()
		ctx, tr := session.WithTrace(req.Context())
		rw := slogx.NewResponseWriter(w)

		req = req.WithContext(ctx)
		next.ServeHTTP(rw, req)

		elapsed := r.clock.Since(start)
		route := req.Pattern
		if route == "" {
			route = unmatchedRoute
		}

		if r.Metrics != nil {
			r.Metrics.ObserveRequest(req.Method, route, rw.Status(), elapsed)
		}
		if r.Recorder == nil {
			return
		}

		entry := domain.RequestLog{
			ID:         idx.NewAt(start).String(),
			Method:     req.Method,
			Route:      route,
			Status:     rw.Status(),
			DurationMS: elapsed.Milliseconds(),
			CreatedAt:  start.UTC(),
		}
		if ac, ok := tr.Get(); ok {
			entry.UserID = ac.UserID()
			entry.Transport = ac.Transport
			entry.AuthState = string(ac.Outcome.State)
		}
		r.Recorder.Record(entry)
	})
}
