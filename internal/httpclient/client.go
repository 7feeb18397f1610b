package httpclient

import (
	"net/http"
	"time"

	"github.com/mhokchuekchuek/support-ticket-triage-agent/internal/logging"
)

const defaultTimeout = 30 * time.Second

// New returns an http.Client for outbound calls to prompt and tracing
// backends. Proxy settings come from the environment.
func New(timeout time.Duration, logger logging.Logger) *http.Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: &loggingRoundTripper{base: transport(), logger: logging.OrNop(logger)},
	}
}

func transport() http.RoundTripper {
	base, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return &http.Transport{Proxy: http.ProxyFromEnvironment}
	}
	return base.Clone()
}

type loggingRoundTripper struct {
	base   http.RoundTripper
	logger logging.Logger
}

func (t *loggingRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := t.base.RoundTrip(req)
	if err != nil {
		t.logger.Debug("%s %s failed after %s: %v", req.Method, req.URL.Redacted(), time.Since(start), err)
		return nil, err
	}
	t.logger.Debug("%s %s -> %d (%s)", req.Method, req.URL.Redacted(), resp.StatusCode, time.Since(start))
	return resp, nil
}
