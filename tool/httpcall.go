package tool

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

// CallSpec describes one upstream HTTP operation. Specs are constructed per
// invocation from resolved config and validated arguments, never persisted.
type CallSpec struct {
	// Tool labels the call for logs and observations.
	Tool    string
	Method  string
	URL     string
	Query   url.Values
	Header  http.Header
	Body    []byte
	Timeout time.Duration
}

// CallResult is a successful upstream exchange: 2xx status and raw body.
// Decoding the body into the expected shape is the caller's concern.
type CallResult struct {
	Status int
	Header http.Header
	Body   []byte
}

// Caller executes CallSpecs under one retry policy. Every adapter shares this
// path, so retry correctness lives in exactly one place.
type Caller struct {
	policy RetryPolicy
}

// NewCaller creates a caller with the given policy. Zero policy fields take
// package defaults.
func NewCaller(policy RetryPolicy) *Caller {
	return &Caller{policy: normalizeRetryPolicy(policy)}
}

// Do validates the call description, then runs the request with per-attempt
// timeouts, exponential backoff, and an overall deadline. On success the raw
// body is returned; failures come back as AdapterErrors.
func (c *Caller) Do(ctx context.Context, spec CallSpec) (CallResult, error) {
	if err := validateCallSpec(spec); err != nil {
		return CallResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.policy.Deadline)
	defer cancel()

	timeout := callTimeout(spec, c.policy)
	result, _, err := callWithRetry(ctx, c.policy, spec.Tool, func(ctx context.Context, attempt int) (CallResult, error) {
		return attemptCall(ctx, spec, timeout)
	})
	return result, err
}

func validateCallSpec(spec CallSpec) error {
	if strings.TrimSpace(spec.Method) == "" {
		return InvalidInputError("call method is empty")
	}
	if strings.TrimSpace(spec.URL) == "" {
		return InvalidInputError("call URL is empty")
	}
	parsed, err := url.Parse(spec.URL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return InvalidInputError("call URL %q is not absolute", spec.URL)
	}
	return nil
}

func attemptCall(ctx context.Context, spec CallSpec, timeout time.Duration) (CallResult, error) {
	target := spec.URL
	if len(spec.Query) > 0 {
		sep := "?"
		if strings.Contains(target, "?") {
			sep = "&"
		}
		target += sep + spec.Query.Encode()
	}

	var body io.Reader
	if len(spec.Body) > 0 {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, target, body)
	if err != nil {
		return CallResult{}, InvalidInputError("build request: %v", err)
	}
	for key, values := range spec.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	client := sharedHTTPClientPool.client(timeout)
	resp, err := client.Do(req)
	if err != nil {
		return CallResult{}, classifyTransportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return CallResult{}, transientError(codeTransport, "read response body failed", resp.StatusCode, err)
	}

	return classifyResponse(resp, respBody)
}

// classifyTransportError sorts request failures into retryable causes.
// Messages stay generic: transport error strings embed the full request URL,
// which can carry credentials in query parameters.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) {
		// Not the raw client error: its string embeds the request URL.
		return context.Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return transientError(codeTimeout, "request timed out", 0, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return transientError(codeTimeout, "request timed out", 0, err)
	}
	return transientError(codeTransport, "connection failed", 0, err)
}

func classifyResponse(resp *http.Response, body []byte) (CallResult, error) {
	status := resp.StatusCode
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return CallResult{Status: status, Header: resp.Header, Body: body}, nil
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		// Retrying with the same credential cannot succeed.
		return CallResult{}, RejectedError("authentication rejected by upstream", status)
	case status == http.StatusTooManyRequests:
		rateErr := transientError(codeRateLimited, "upstream rate limited", status, nil)
		rateErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return CallResult{}, rateErr
	case status >= http.StatusInternalServerError:
		return CallResult{}, transientError(codeUpstream, http.StatusText(status), status, nil)
	default:
		return CallResult{}, RejectedError(rejectionMessage(status, body), status)
	}
}

func rejectionMessage(status int, body []byte) string {
	message := strings.TrimSpace(string(body))
	if message == "" {
		return http.StatusText(status)
	}
	const maxMessageLen = 200
	if len(message) > maxMessageLen {
		message = message[:maxMessageLen]
	}
	return message
}

// parseRetryAfter reads the integer-seconds form of the header. The HTTP-date
// form is rare on the APIs this package targets and is ignored.
func parseRetryAfter(value string) time.Duration {
	seconds, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil || seconds <= 0 {
		return 0
	}
	return time.Duration(seconds) * time.Second
}

// callTimeout resolves the per-attempt timeout: a spec override wins, then
// the caller's policy. NewCaller normalizes the policy, so Timeout is set.
func callTimeout(spec CallSpec, policy RetryPolicy) time.Duration {
	if spec.Timeout > 0 {
		return spec.Timeout
	}
	return policy.Timeout
}

type httpClientPool struct {
	mu      sync.Mutex
	clients map[time.Duration]*http.Client
}

// sharedHTTPClientPool reuses one client per distinct attempt timeout so
// connection pools are shared across tools hitting the same upstream.
var sharedHTTPClientPool = &httpClientPool{
	clients: map[time.Duration]*http.Client{},
}

func (p *httpClientPool) client(timeout time.Duration) *http.Client {
	p.mu.Lock()
	defer p.mu.Unlock()

	if existing, ok := p.clients[timeout]; ok {
		return existing
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          200,
		MaxIdleConnsPerHost:   50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
	p.clients[timeout] = client
	return client
}
