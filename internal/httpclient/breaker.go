package httpclient

import (
	"fmt"
	"net/http"
	"time"

	triageerrors "github.com/mhokchuekchuek/support-ticket-triage-agent/internal/errors"
	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

// Upstream describes one HTTP dependency of the triage service.
type Upstream struct {
	Name         string
	Timeout      time.Duration
	Breaker      triageerrors.CircuitBreakerConfig
	MaxBodyBytes int64
}

// LangfuseUpstream is the prompt-management API. Template fetches fall back
// to the embedded set, so the breaker trips early and stays open a minute.
func LangfuseUpstream(timeout time.Duration) Upstream {
	return Upstream{
		Name:    "langfuse",
		Timeout: timeout,
		Breaker: triageerrors.CircuitBreakerConfig{
			FailureThreshold: 3,
			SuccessThreshold: 1,
			Timeout:          time.Minute,
		},
		MaxBodyBytes: 1 << 20,
	}
}

// NewUpstreamClient returns a logging client whose transport fails fast
// while the upstream's breaker is open.
func NewUpstreamClient(up Upstream, logger logging.Logger) *http.Client {
	client := New(up.Timeout, logger)
	client.Transport = &breakerTransport{
		base:    client.Transport,
		breaker: triageerrors.NewCircuitBreaker(up.Name, up.Breaker),
	}
	return client
}

type breakerTransport struct {
	base    http.RoundTripper
	breaker *triageerrors.CircuitBreaker
}

func (t *breakerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.breaker.Allow(); err != nil {
		return nil, err
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.breaker.Mark(err)
		return nil, err
	}
	if unhealthy(resp.StatusCode) {
		t.breaker.Mark(triageerrors.NewTransientError(fmt.Errorf("status %d", resp.StatusCode), "upstream unhealthy"))
	} else {
		t.breaker.Mark(nil)
	}
	return resp, nil
}

// unhealthy statuses count against the breaker; 4xx other than 429 are the
// caller's fault.
func unhealthy(status int) bool {
	return status >= http.StatusInternalServerError || status == http.StatusTooManyRequests
}
