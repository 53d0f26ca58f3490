package httpcache

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func TestTransport_CachesFreshResponse(t *testing.T) {
	calls := 0
	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		rec := httptest.NewRecorder()
		rec.Header().Set("Cache-Control", "max-age=3600")
		rec.WriteHeader(http.StatusOK)
		rec.Write([]byte("body"))
		return rec.Result(), nil
	})

	tr, err := NewTransport(next, "")
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.test/a", nil)

	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("first RoundTrip: %v", err)
	}
	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("second RoundTrip: %v", err)
	}

	if calls != 1 {
		t.Errorf("upstream called %d times, want 1 (second request should hit cache)", calls)
	}
}

func TestTransport_RevalidatesStaleResponse(t *testing.T) {
	calls := 0
	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		rec := httptest.NewRecorder()
		if req.Header.Get("If-None-Match") == `"v1"` {
			rec.WriteHeader(http.StatusNotModified)
			return rec.Result(), nil
		}
		rec.Header().Set("ETag", `"v1"`)
		rec.WriteHeader(http.StatusOK)
		rec.Write([]byte("body"))
		return rec.Result(), nil
	})

	tr, err := NewTransport(next, "")
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.test/b", nil)

	if _, err := tr.RoundTrip(req); err != nil {
		t.Fatalf("first RoundTrip: %v", err)
	}
	resp, err := tr.RoundTrip(req)
	if err != nil {
		t.Fatalf("second RoundTrip: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 (revalidated cache hit served to caller)", resp.StatusCode)
	}
	if calls != 2 {
		t.Errorf("upstream called %d times, want 2 (stale response must revalidate)", calls)
	}
}

func TestTransport_DoesNotCacheNoStore(t *testing.T) {
	calls := 0
	next := roundTripFunc(func(req *http.Request) (*http.Response, error) {
		calls++
		rec := httptest.NewRecorder()
		rec.Header().Set("Cache-Control", "no-store")
		rec.WriteHeader(http.StatusOK)
		rec.Write([]byte("body"))
		return rec.Result(), nil
	})

	tr, err := NewTransport(next, "")
	if err != nil {
		t.Fatalf("NewTransport: %v", err)
	}

	req, _ := http.NewRequest(http.MethodGet, "https://example.test/c", nil)
	tr.RoundTrip(req)
	tr.RoundTrip(req)

	if calls != 2 {
		t.Errorf("upstream called %d times, want 2 (no-store must never be cached)", calls)
	}
}
