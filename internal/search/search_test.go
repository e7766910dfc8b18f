package search

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"insight/internal/config"
)

// result markup must stay on one line: the parser's patterns do not span
// newlines, matching how the live endpoint renders.
const duckHTML = `<html><body>
<div class="result results_links"><a class="result__a" href="/l/?uddg=https%3A%2F%2Fexample.com%2Fpaper&amp;rut=abc">Sparse <b>Attention</b> Survey</a> <a class="result__snippet" href="/l/?uddg=x">A survey of &amp; about sparse attention.</a></div>
<div class="result results_links"><a class="result__a" href="https://direct.example/post">Direct Link</a></div>
</body></html>`

func TestDuckDuckGoParsesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if q := r.URL.Query().Get("q"); q != "sparse attention" {
			t.Errorf("unexpected query %q", q)
		}
		_, _ = w.Write([]byte(duckHTML))
	}))
	defer server.Close()

	p := NewDuckDuckGoProvider(5, 5*time.Second)
	p.rateLimit = 0
	p.SetBaseURL(server.URL)

	results, err := p.Search(context.Background(), "sparse attention")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}

	first := results[0]
	if first.URL != "https://example.com/paper" {
		t.Errorf("Redirect URL should be decoded, got %q", first.URL)
	}
	if first.Title != "Sparse Attention Survey" {
		t.Errorf("Title should be cleaned, got %q", first.Title)
	}
	if first.Snippet != "A survey of & about sparse attention." {
		t.Errorf("Entities should be decoded, got %q", first.Snippet)
	}
	if first.Domain != "example.com" {
		t.Errorf("Unexpected domain %q", first.Domain)
	}

	if results[1].URL != "https://direct.example/post" {
		t.Errorf("Plain URLs should pass through, got %q", results[1].URL)
	}
}

func TestDuckDuckGoMaxResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(duckHTML))
	}))
	defer server.Close()

	p := NewDuckDuckGoProvider(1, 5*time.Second)
	p.rateLimit = 0
	p.SetBaseURL(server.URL)

	results, err := p.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("Expected 1 result, got %d", len(results))
	}
}

func TestDuckDuckGoCaptchaDetected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>please solve this captcha</html>"))
	}))
	defer server.Close()

	p := NewDuckDuckGoProvider(5, 5*time.Second)
	p.rateLimit = 0
	p.SetBaseURL(server.URL)

	if _, err := p.Search(context.Background(), "q"); err == nil {
		t.Fatal("CAPTCHA page should surface an error")
	}
}

func TestTavilySearch(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"Result A","url":"https://a.example/x","content":"snippet a","score":0.9},
			{"title":"Result B","url":"https://www.b.example/y","content":"snippet b","score":0.5}
		]}`))
	}))
	defer server.Close()

	p := NewTavilyProvider("key", 5, 5*time.Second)
	p.SetEndpoint(server.URL)

	results, err := p.Search(context.Background(), "anything")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Expected 2 results, got %d", len(results))
	}
	if results[1].Domain != "b.example" {
		t.Errorf("www prefix should be stripped, got %q", results[1].Domain)
	}
	if results[0].Rank != 1 || results[1].Rank != 2 {
		t.Errorf("Ranks should be positional: %+v", results)
	}
}

func TestTavilyErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"detail":"bad key"}`))
	}))
	defer server.Close()

	p := NewTavilyProvider("bad", 5, 5*time.Second)
	p.SetEndpoint(server.URL)

	if _, err := p.Search(context.Background(), "q"); err == nil {
		t.Fatal("Non-200 should surface an error")
	}
}

func TestNewProvider(t *testing.T) {
	if _, err := NewProvider(config.Search{API: "tavily"}); !errors.Is(err, ErrMissingAPIKey) {
		t.Errorf("Tavily without key should fail, got %v", err)
	}
	if p, err := NewProvider(config.Search{API: "tavily", TavilyAPIKey: "k"}); err != nil || p.Name() != "Tavily" {
		t.Errorf("Tavily provider: %v %v", p, err)
	}
	if p, err := NewProvider(config.Search{API: "duckduckgo"}); err != nil || p.Name() != "DuckDuckGo" {
		t.Errorf("DuckDuckGo provider: %v %v", p, err)
	}
	if _, err := NewProvider(config.Search{API: "bing"}); !errors.Is(err, ErrUnsupportedProvider) {
		t.Errorf("Unknown API should fail, got %v", err)
	}
}
