package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/wxalerts/internal/api"
)

// instrumenter wraps handlers with request metrics.
type instrumenter interface {
	Middleware(next http.Handler) http.Handler
}

type handlerDeps struct {
	logger      log.Logger
	metrics     instrumenter
	api         *api.API
	healthz     http.HandlerFunc
	readyz      http.HandlerFunc
	trustedHops int
}

func isProbe(r *http.Request) bool {
	return r.URL.Path == "/-/healthy" || r.URL.Path == "/-/ready"
}

// newHandler builds the public listener. Wrappers are applied inside out, so
// the last one added sees the request first.
func newHandler(d handlerDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Compress(5, "application/json"))
	// the route pattern also labels DB query metrics
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(httpmw.AccessLog())
	r.Use(httpmw.MaxBody(16 << 10))

	r.Get("/-/healthy", d.healthz)
	r.Get("/-/ready", d.readyz)
	d.api.RegisterRoutes(r)

	var h http.Handler = r
	h = httpmw.WithLogger(d.logger)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)
	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool { return !isProbe(r) }),
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
	)
	if d.metrics != nil {
		h = d.metrics.Middleware(h)
	}
	h = httpmw.ClientIPWithOptions(httpmw.ClientIPOptions{TrustedHops: d.trustedHops})(h)
	h = httpmw.RequestID("X-Request-Id")(h)
	h = httpmw.Recover(d.logger, nil)(h)
	return httpmw.SecurityHeaders(h)
}
