package observability

import (
	"fmt"
	"net/http"

	"github.com/openzipkin/zipkin-go"
	zipkinhttp "github.com/openzipkin/zipkin-go/middleware/http"
	"github.com/openzipkin/zipkin-go/reporter"
	httpreporter "github.com/openzipkin/zipkin-go/reporter/http"
)

// Tracing owns a Zipkin tracer and its span reporter.
type Tracing struct {
	tracer   *zipkin.Tracer
	reporter reporter.Reporter
}

// NewTracing reports spans to endpoint (a Zipkin /api/v2/spans URL). An empty
// endpoint yields a tracer with a no-op reporter so the middleware can stay
// installed unconditionally.
func NewTracing(serviceName, hostPort, endpoint string) (*Tracing, error) {
	var rep reporter.Reporter
	if endpoint == "" {
		rep = reporter.NewNoopReporter()
	} else {
		rep = httpreporter.NewReporter(endpoint)
	}
	local, err := zipkin.NewEndpoint(serviceName, hostPort)
	if err != nil {
		_ = rep.Close()
		return nil, fmt.Errorf("create local endpoint: %w", err)
	}
	tracer, err := zipkin.NewTracer(rep, zipkin.WithLocalEndpoint(local))
	if err != nil {
		_ = rep.Close()
		return nil, fmt.Errorf("create tracer: %w", err)
	}
	return &Tracing{tracer: tracer, reporter: rep}, nil
}

// Tracer exposes the underlying tracer.
func (t *Tracing) Tracer() *zipkin.Tracer { return t.tracer }

// Middleware starts a server span per request.
func (t *Tracing) Middleware(next http.Handler) http.Handler {
	return zipkinhttp.NewServerMiddleware(t.tracer, zipkinhttp.TagResponseSize(true))(next)
}

// Close flushes pending spans.
func (t *Tracing) Close() error { return t.reporter.Close() }
