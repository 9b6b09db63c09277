package input

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/vitrinehq/vitrine/internal/log"
	"github.com/vitrinehq/vitrine/internal/security"
)

func testFetcher(maxBytes int64) *PageFetcher {
	return NewPageFetcher(security.NewGuardForTesting(), 5*time.Second, maxBytes, log.NewNop())
}

func articleHTML(title string, paragraphs ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<html><head><title>%s</title></head><body><article><h1>%s</h1>", title, title)
	for _, p := range paragraphs {
		fmt.Fprintf(&b, "<p>%s</p>", p)
	}
	b.WriteString("</article></body></html>")
	return b.String()
}

func TestPageFetcher_Fetch_Article(t *testing.T) {
	page := articleHTML("Signals of Spring",
		strings.Repeat("Migration patterns shift earlier each decade as winters shorten. ", 5),
		strings.Repeat("Ringing stations along the coast report first arrivals in February now. ", 5),
		strings.Repeat("The dataset spans forty years of standardized observation effort. ", 5),
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	att, err := testFetcher(testMaxBytes).Fetch(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if att.Kind != KindPage {
		t.Errorf("Kind = %q, want %q", att.Kind, KindPage)
	}
	if att.Name != "Signals of Spring" {
		t.Errorf("Name = %q, want page title", att.Name)
	}
	if !strings.Contains(att.Text, "Migration patterns") {
		t.Errorf("Text does not contain article body: %q", att.Text)
	}
	if att.MIME != "text/plain" {
		t.Errorf("MIME = %q, want text/plain", att.MIME)
	}
}

func TestPageFetcher_Fetch_MinimalPageFallsBack(t *testing.T) {
	// Too little markup for a readability article; the goquery scrape still
	// has to produce the title and body words.
	page := `<html><head><title>Tiny</title><meta name="description" content="A very small page."></head><body>welcome aboard</body></html>`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	att, err := testFetcher(testMaxBytes).Fetch(t.Context(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch() failed: %v", err)
	}
	if att.Name != "Tiny" {
		t.Errorf("Name = %q, want Tiny", att.Name)
	}
	if !strings.Contains(att.Text, "welcome aboard") {
		t.Errorf("Text = %q, want body words", att.Text)
	}
}

func TestPageFetcher_Fetch_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testFetcher(testMaxBytes).Fetch(t.Context(), srv.URL)
	if !errors.Is(err, ErrPageFetch) {
		t.Errorf("Fetch() error = %v, want ErrPageFetch", err)
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("Fetch() error = %v, want status in message", err)
	}
}

func TestPageFetcher_Fetch_TooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>" + strings.Repeat("x", 4096) + "</body></html>"))
	}))
	defer srv.Close()

	_, err := testFetcher(512).Fetch(t.Context(), srv.URL)
	if !errors.Is(err, ErrTooLarge) {
		t.Errorf("Fetch() error = %v, want ErrTooLarge", err)
	}
}

func TestPageFetcher_Fetch_NoReadableText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><head></head><body><script>void(0)</script></body></html>"))
	}))
	defer srv.Close()

	_, err := testFetcher(testMaxBytes).Fetch(t.Context(), srv.URL)
	if !errors.Is(err, ErrPageFetch) {
		t.Errorf("Fetch() error = %v, want ErrPageFetch", err)
	}
}

func TestPageFetcher_Fetch_BlockedTarget(t *testing.T) {
	// Production guard: metadata endpoint is rejected before any dial.
	f := NewPageFetcher(security.NewGuard(), time.Second, testMaxBytes, log.NewNop())

	_, err := f.Fetch(t.Context(), "http://169.254.169.254/latest/meta-data/")
	if !errors.Is(err, ErrPageFetch) {
		t.Errorf("Fetch() error = %v, want ErrPageFetch", err)
	}
	if !strings.Contains(err.Error(), "link-local") {
		t.Errorf("Fetch() error = %v, want link-local rejection", err)
	}
}

func TestTruncateRunes(t *testing.T) {
	tests := []struct {
		s    string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"", 4, ""},
	}
	for _, tt := range tests {
		if got := truncateRunes(tt.s, tt.max); got != tt.want {
			t.Errorf("truncateRunes(%q, %d) = %q, want %q", tt.s, tt.max, got, tt.want)
		}
	}
}

func TestCollapseWhitespace(t *testing.T) {
	got := collapseWhitespace("  a\n\n b\t\tc  ")
	if got != "a b c" {
		t.Errorf("collapseWhitespace() = %q, want %q", got, "a b c")
	}
}
