package arxiv

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"insight/internal/config"
)

func testClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	c := NewClient(config.Arxiv{MaxResults: 2, MaxPages: 3, RequestDelay: 0, Timeout: 5})
	c.SetAPIBase(server.URL)
	c.SetRateLimitWait(10 * time.Millisecond)
	return c
}

func atomEntryXML(id string, published time.Time, primary string) string {
	ts := published.UTC().Format(time.RFC3339)
	return fmt.Sprintf(`<entry>
  <id>http://arxiv.org/abs/%s</id>
  <title>Paper %s</title>
  <summary>  An abstract
  spanning lines.  </summary>
  <published>%s</published>
  <updated>%s</updated>
  <author><name>Ada Lovelace</name></author>
  <arxiv:primary_category xmlns:arxiv="http://arxiv.org/schemas/atom" term="%s"/>
  <category term="%s"/>
  <category term="cs.LG"/>
</entry>`, id, id, ts, ts, primary, primary)
}

func atomFeedXML(entries ...string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">` + strings.Join(entries, "\n") + `</feed>`
}

func TestFetchRecentFiltersAndDedups(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-72 * time.Hour)

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("search_query")
		switch query {
		case "cat:cs.AI":
			_, _ = w.Write([]byte(atomFeedXML(
				atomEntryXML("2501.00001v1", now, "cs.AI"),
				atomEntryXML("2501.00002v2", now, "cs.CL"), // foreign primary, dropped
				atomEntryXML("2501.00003v1", old, "cs.AI"), // outside window, dropped
			)))
		case "cat:cs.LG":
			_, _ = w.Write([]byte(atomFeedXML(
				atomEntryXML("2501.00001v1", now, "cs.AI"), // duplicate across categories
				atomEntryXML("2501.00004v1", now, "cs.LG"),
			)))
		default:
			t.Errorf("unexpected query %q", query)
		}
	})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI", "cs.LG"}, 25)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}

	if len(papers) != 2 {
		t.Fatalf("Expected 2 papers, got %d", len(papers))
	}
	ids := map[string]bool{}
	for _, p := range papers {
		ids[p.ID] = true
	}
	if !ids["2501.00001"] || !ids["2501.00004"] {
		t.Errorf("Unexpected paper set: %v", ids)
	}
}

func TestFetchRecentEmptyCategories(t *testing.T) {
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for empty category list")
	})

	papers, err := client.FetchRecent(context.Background(), nil, 25)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}
	if len(papers) != 0 {
		t.Errorf("Expected empty result, got %d", len(papers))
	}
}

func TestPaginationStopsOnShortPage(t *testing.T) {
	now := time.Now().UTC()
	var requests []string

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		requests = append(requests, r.URL.Query().Get("start"))
		switch start {
		case 0:
			// full page of max_results=2
			_, _ = w.Write([]byte(atomFeedXML(
				atomEntryXML("2501.00001v1", now, "cs.AI"),
				atomEntryXML("2501.00002v1", now, "cs.AI"),
			)))
		case 2:
			// short page ends pagination
			_, _ = w.Write([]byte(atomFeedXML(
				atomEntryXML("2501.00003v1", now, "cs.AI"),
			)))
		default:
			t.Errorf("unexpected start %d", start)
		}
	})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 25)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}
	if len(papers) != 3 {
		t.Errorf("Expected 3 papers, got %d", len(papers))
	}
	if len(requests) != 2 {
		t.Errorf("Expected 2 page requests, got %d: %v", len(requests), requests)
	}
}

func TestPaginationStopsOnOldPage(t *testing.T) {
	now := time.Now().UTC()
	old := now.Add(-100 * time.Hour)
	requestCount := 0

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		requestCount++
		// Full page whose oldest item is beyond the cutoff
		_, _ = w.Write([]byte(atomFeedXML(
			atomEntryXML("2501.00001v1", now, "cs.AI"),
			atomEntryXML("2501.00002v1", old, "cs.AI"),
		)))
	})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 25)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}
	if requestCount != 1 {
		t.Errorf("Expected pagination to stop after 1 page, got %d", requestCount)
	}
	if len(papers) != 1 {
		t.Errorf("Expected 1 paper inside the window, got %d", len(papers))
	}
}

func TestRateLimitRetry(t *testing.T) {
	now := time.Now().UTC()
	attempts := 0

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(atomFeedXML(atomEntryXML("2501.00001v1", now, "cs.AI"))))
	})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 25)
	if err != nil {
		t.Fatalf("FetchRecent failed: %v", err)
	}
	if attempts != 2 {
		t.Errorf("Expected 2 attempts, got %d", attempts)
	}
	if len(papers) != 1 {
		t.Errorf("Expected 1 paper after retry, got %d", len(papers))
	}
}

func TestNonRetryableStatusFailsCategory(t *testing.T) {
	attempts := 0
	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
	})

	papers, err := client.FetchRecent(context.Background(), []string{"cs.AI"}, 25)
	if err != nil {
		t.Fatalf("FetchRecent should isolate category failures: %v", err)
	}
	if attempts != 1 {
		t.Errorf("4xx must not be retried, got %d attempts", attempts)
	}
	if len(papers) != 0 {
		t.Errorf("Expected empty result, got %d", len(papers))
	}
}

func TestFetchByIDs(t *testing.T) {
	now := time.Now().UTC()

	client := testClient(t, func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("id_list"); got != "2501.00001,2501.00002" {
			t.Errorf("unexpected id_list %q", got)
		}
		_, _ = w.Write([]byte(atomFeedXML(
			atomEntryXML("2501.00001v3", now, "cs.AI"),
			atomEntryXML("2501.00002v1", now, "cs.CL"),
		)))
	})

	papers, err := client.FetchByIDs(context.Background(), []string{"2501.00001", "2501.00002"})
	if err != nil {
		t.Fatalf("FetchByIDs failed: %v", err)
	}
	if len(papers) != 2 {
		t.Fatalf("Expected 2 papers, got %d", len(papers))
	}
	if papers[0].ID != "2501.00001" {
		t.Errorf("Version suffix should be stripped, got %s", papers[0].ID)
	}
	if papers[0].Abstract != "An abstract spanning lines." {
		t.Errorf("Whitespace should be normalized, got %q", papers[0].Abstract)
	}
	if papers[0].AbsURL != "https://arxiv.org/abs/2501.00001" {
		t.Errorf("Unexpected abs URL %s", papers[0].AbsURL)
	}
	if papers[0].PDFURL != "https://arxiv.org/pdf/2501.00001.pdf" {
		t.Errorf("Unexpected pdf URL %s", papers[0].PDFURL)
	}
}

func TestCanonicalIDAndVersion(t *testing.T) {
	cases := []struct {
		in      string
		id      string
		version string
	}{
		{"http://arxiv.org/abs/2501.12345v2", "2501.12345", "v2"},
		{"http://arxiv.org/abs/2501.12345", "2501.12345", ""},
		{"2501.12345v10", "2501.12345", "v10"},
		{"2501.12345", "2501.12345", ""},
	}
	for _, c := range cases {
		if got := CanonicalID(c.in); got != c.id {
			t.Errorf("CanonicalID(%q) = %q, want %q", c.in, got, c.id)
		}
		if got := EntryVersion(c.in); got != c.version {
			t.Errorf("EntryVersion(%q) = %q, want %q", c.in, got, c.version)
		}
	}
}

func TestGateEnforcesSpacing(t *testing.T) {
	gate := newRequestGate(30 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := gate.acquire(context.Background()); err != nil {
			t.Fatalf("acquire failed: %v", err)
		}
		gate.release()
	}
	elapsed := time.Since(start)

	// Two gaps of at least the configured delay
	if elapsed < 60*time.Millisecond {
		t.Errorf("Gate should enforce spacing, elapsed only %v", elapsed)
	}
}
