package observability

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// NewHTTPClient wraps base's transport with OTel instrumentation so every
// outbound call to an LLM provider, data collector, or entity index
// produces a span. base may be nil, in which case http.DefaultTransport
// is wrapped.
func NewHTTPClient(base *http.Client) *http.Client {
	if base == nil {
		base = &http.Client{}
	}
	transport := base.Transport
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &http.Client{
		Transport: otelhttp.NewTransport(transport),
		Timeout:   base.Timeout,
	}
}
