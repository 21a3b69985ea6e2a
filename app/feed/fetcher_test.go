package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestFetcher_Run(t *testing.T) {
	var gotUserAgent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserAgent = r.Header.Get("User-Agent")
		w.Header().Set("ETag", `"abc"`)
		w.Header().Set("Last-Modified", "Mon, 02 Jan 2006 15:04:05 GMT")
		w.Write([]byte("<rss/>"))
	}))
	defer server.Close()

	fetcher := NewFetcher(&http.Client{Timeout: 5 * time.Second}, "test-agent/1.0")

	result, err := fetcher.Run(context.Background(), server.URL, "", "")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if gotUserAgent != "test-agent/1.0" {
		t.Errorf("Expected configured user agent, got %q", gotUserAgent)
	}
	if result.NotModified {
		t.Error("Fresh fetch must not report NotModified")
	}
	if string(result.Data) != "<rss/>" {
		t.Errorf("Expected body, got %q", result.Data)
	}
	if result.ETag != `"abc"` {
		t.Errorf("Expected ETag to be captured, got %q", result.ETag)
	}
	if result.LastModified == "" {
		t.Error("Expected Last-Modified to be captured")
	}
}

func TestFetcher_ConditionalGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"abc"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		t.Errorf("Expected If-None-Match header, got %q", r.Header.Get("If-None-Match"))
	}))
	defer server.Close()

	fetcher := NewFetcher(&http.Client{Timeout: 5 * time.Second}, "test-agent/1.0")

	result, err := fetcher.Run(context.Background(), server.URL, `"abc"`, "yesterday")
	if err != nil {
		t.Fatalf("Conditional fetch failed: %v", err)
	}
	if !result.NotModified {
		t.Error("Expected NotModified for a 304")
	}
	// Stored validators stay valid.
	if result.ETag != `"abc"` {
		t.Errorf("Expected ETag kept on 304, got %q", result.ETag)
	}
	if result.LastModified != "yesterday" {
		t.Errorf("Expected Last-Modified kept on 304, got %q", result.LastModified)
	}
}

func TestFetcher_HTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer server.Close()

	fetcher := NewFetcher(&http.Client{Timeout: 5 * time.Second}, "test-agent/1.0")

	if _, err := fetcher.Run(context.Background(), server.URL, "", ""); err == nil {
		t.Error("Expected error for HTTP 410")
	}
}
