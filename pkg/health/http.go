package health

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"
)

// HTTPChecker requests a public URL and reports the status code and, for
// HTTPS, how long the served certificate has left.
type HTTPChecker struct {
	URL string

	// ExpectedStatusMin and ExpectedStatusMax bound an acceptable response (default: 200-499)
	ExpectedStatusMin int
	ExpectedStatusMax int

	Client *http.Client
}

// NewHTTPChecker creates a new HTTP health checker. Redirects are not
// followed so an HTTP-to-HTTPS redirect counts as a response.
func NewHTTPChecker(url string) *HTTPChecker {
	return &HTTPChecker{
		URL:               url,
		ExpectedStatusMin: 200,
		ExpectedStatusMax: 499,
		Client: &http.Client{
			Timeout: 10 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Check performs one GET request
func (h *HTTPChecker) Check(ctx context.Context) Result {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.URL, nil)
	if err != nil {
		return result(start, false, fmt.Sprintf("failed to create request: %v", err))
	}
	req.Header.Set("User-Agent", "burrow-check")

	resp, err := h.Client.Do(req)
	if err != nil {
		return result(start, false, fmt.Sprintf("request failed: %v", err))
	}
	defer resp.Body.Close()

	healthy := resp.StatusCode >= h.ExpectedStatusMin && resp.StatusCode <= h.ExpectedStatusMax

	message := fmt.Sprintf("HTTP %d %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	if !healthy {
		message = fmt.Sprintf("%s (expected %d-%d)", message, h.ExpectedStatusMin, h.ExpectedStatusMax)
	}
	if days, ok := servedCertDays(resp.TLS, start); ok {
		message = fmt.Sprintf("%s, certificate valid for %d more days", message, days)
	}

	return result(start, healthy, message)
}

// Type returns the health check type
func (h *HTTPChecker) Type() CheckType {
	return CheckTypeHTTP
}

// WithStatusRange sets the expected status code range
func (h *HTTPChecker) WithStatusRange(min, max int) *HTTPChecker {
	h.ExpectedStatusMin = min
	h.ExpectedStatusMax = max
	return h
}

// WithTLSConfig replaces the client's TLS configuration
func (h *HTTPChecker) WithTLSConfig(cfg *tls.Config) *HTTPChecker {
	h.Client.Transport = &http.Transport{TLSClientConfig: cfg}
	return h
}

func servedCertDays(state *tls.ConnectionState, now time.Time) (int, bool) {
	if state == nil || len(state.PeerCertificates) == 0 {
		return 0, false
	}
	return int(state.PeerCertificates[0].NotAfter.Sub(now).Hours() / 24), true
}
