package tool

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"
)

func testCaller(maxAttempts int) *Caller {
	return NewCaller(fastPolicy(maxAttempts))
}

func TestCallerRecoversWithinRetryBudget(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	result, err := testCaller(3).Do(context.Background(), CallSpec{
		Tool:   "weather",
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if hits.Load() != 3 {
		t.Fatalf("upstream hits = %d, want 3", hits.Load())
	}
	if result.Status != http.StatusOK || string(result.Body) != `{"ok":true}` {
		t.Fatalf("result = %d %q, want 200 with body", result.Status, result.Body)
	}
}

func TestCallerNeverRetriesAuthFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := testCaller(5).Do(context.Background(), CallSpec{
		Tool:   "slack_post_message",
		Method: http.MethodPost,
		URL:    srv.URL,
	})
	adapterErr, ok := adapterErrorFrom(err)
	if !ok || adapterErr.Code != CodeRejected {
		t.Fatalf("error = %v, want REJECTED", err)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want exactly 1 for a credential rejection", hits.Load())
	}
}

func TestCallerExhaustsOnPersistentServerErrors(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := testCaller(3).Do(context.Background(), CallSpec{
		Tool:   "weather",
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	adapterErr, ok := adapterErrorFrom(err)
	if !ok || adapterErr.Code != CodeUnavailable {
		t.Fatalf("error = %v, want UNAVAILABLE", err)
	}
	if adapterErr.Attempts != 3 || hits.Load() != 3 {
		t.Fatalf("attempts = %d (hits %d), want 3", adapterErr.Attempts, hits.Load())
	}
	if adapterErr.Status != http.StatusBadGateway {
		t.Fatalf("Status = %d, want 502 from the last attempt", adapterErr.Status)
	}
}

func TestCallerRejectsClientErrorsWithoutRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "city not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testCaller(3).Do(context.Background(), CallSpec{
		Tool:   "weather",
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	adapterErr, ok := adapterErrorFrom(err)
	if !ok || adapterErr.Code != CodeRejected {
		t.Fatalf("error = %v, want REJECTED", err)
	}
	if adapterErr.Status != http.StatusNotFound {
		t.Fatalf("Status = %d, want 404", adapterErr.Status)
	}
	if hits.Load() != 1 {
		t.Fatalf("upstream hits = %d, want 1", hits.Load())
	}
}

func TestCallerRetriesRateLimiting(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := testCaller(2).Do(context.Background(), CallSpec{
		Tool:   "github_issues",
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want recovery after rate limit", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits = %d, want 2", hits.Load())
	}
}

func TestCallerInvalidSpecSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	specs := []CallSpec{
		{Tool: "weather", Method: http.MethodGet, URL: ""},
		{Tool: "weather", Method: "", URL: srv.URL},
		{Tool: "weather", Method: http.MethodGet, URL: "/relative/path"},
	}
	for _, spec := range specs {
		_, err := testCaller(3).Do(context.Background(), spec)
		adapterErr, ok := adapterErrorFrom(err)
		if !ok || adapterErr.Code != CodeInvalidInput {
			t.Fatalf("Do(%+v) error = %v, want INVALID_INPUT", spec, err)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("upstream hits = %d, want 0 for invalid specs", hits.Load())
	}
}

func TestCallerAttemptTimeoutIsRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	_, err := testCaller(2).Do(context.Background(), CallSpec{
		Tool:    "weather",
		Method:  http.MethodGet,
		URL:     srv.URL,
		Timeout: 30 * time.Millisecond,
	})
	adapterErr, ok := adapterErrorFrom(err)
	if !ok || adapterErr.Code != CodeUnavailable {
		t.Fatalf("error = %v, want UNAVAILABLE after timeout exhaustion", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits = %d, want 2 (timeouts are retried)", hits.Load())
	}
	if cause := adapterErrorCode(adapterErr.Cause); cause != codeTimeout {
		t.Fatalf("last cause = %q, want %q", cause, codeTimeout)
	}
}

func TestCallerPolicyTimeoutAppliesWithoutSpecOverride(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	policy := fastPolicy(2)
	policy.Timeout = 30 * time.Millisecond
	_, err := NewCaller(policy).Do(context.Background(), CallSpec{
		Tool:   "weather",
		Method: http.MethodGet,
		URL:    srv.URL,
	})
	adapterErr, ok := adapterErrorFrom(err)
	if !ok || adapterErr.Code != CodeUnavailable {
		t.Fatalf("error = %v, want UNAVAILABLE after timeout exhaustion", err)
	}
	if hits.Load() != 2 {
		t.Fatalf("upstream hits = %d, want 2 (policy timeout bounds each attempt)", hits.Load())
	}
}

func TestCallerSendsQueryHeadersAndBody(t *testing.T) {
	var (
		gotQuery  url.Values
		gotAuth   string
		gotAccept string
		gotBody   string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		gotAuth = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		body := make([]byte, r.ContentLength)
		_, _ = r.Body.Read(body)
		gotBody = string(body)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	header := http.Header{}
	header.Set("Authorization", "Bearer token-123")
	query := url.Values{}
	query.Set("q", "Lisbon")

	_, err := testCaller(1).Do(context.Background(), CallSpec{
		Tool:   "weather",
		Method: http.MethodPost,
		URL:    srv.URL,
		Query:  query,
		Header: header,
		Body:   []byte(`{"k":"v"}`),
	})
	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if gotQuery.Get("q") != "Lisbon" {
		t.Errorf("query q = %q, want Lisbon", gotQuery.Get("q"))
	}
	if gotAuth != "Bearer token-123" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if gotAccept != "application/json" {
		t.Errorf("Accept = %q, want default application/json", gotAccept)
	}
	if gotBody != `{"k":"v"}` {
		t.Errorf("body = %q, want request payload", gotBody)
	}
}
