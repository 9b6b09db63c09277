package input

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/vitrinehq/vitrine/internal/security"
)

const (
	// maxPageTextRunes caps extracted page text folded into the prompt.
	maxPageTextRunes = 48_000

	// fetchUserAgent identifies the fetcher to origin servers.
	fetchUserAgent = "Mozilla/5.0 (compatible; vitrine/1.0; +https://github.com/vitrinehq/vitrine)"
)

// ErrPageFetch indicates a webpage attachment could not be retrieved or
// yielded no readable text.
var ErrPageFetch = errors.New("page fetch failed")

// PageFetcher retrieves a user-supplied URL and reduces it to readable text.
// Extraction uses go-readability first and falls back to a goquery
// title+body scrape when the readability pass finds nothing.
type PageFetcher struct {
	guard    *security.Guard
	client   *http.Client
	maxBytes int64
	logger   *slog.Logger
}

// NewPageFetcher creates a PageFetcher. All requests go through the guard's
// SSRF-validating client; maxBytes caps the raw HTML read.
func NewPageFetcher(guard *security.Guard, timeout time.Duration, maxBytes int64, logger *slog.Logger) *PageFetcher {
	return &PageFetcher{
		guard:    guard,
		client:   guard.Client(timeout),
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Fetch retrieves rawURL and returns a KindPage attachment whose Text is the
// readable content and whose Name is the page title (the URL when no title
// was found).
func (f *PageFetcher) Fetch(ctx context.Context, rawURL string) (*Attachment, error) {
	if err := f.guard.ValidateURL(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	pageURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPageFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("%w: %s returned status %d", ErrPageFetch, rawURL, resp.StatusCode)
	}

	body, err := f.readCapped(resp.Body)
	if err != nil {
		return nil, err
	}

	title, text := f.extract(body, pageURL)
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: no readable text at %s", ErrPageFetch, rawURL)
	}
	text = truncateRunes(text, maxPageTextRunes)

	name := strings.TrimSpace(title)
	if name == "" {
		name = rawURL
	}

	f.logger.Debug("fetched page attachment", "url", rawURL, "title", name, "text_len", len(text))
	return &Attachment{Kind: KindPage, Name: name, MIME: "text/plain", Text: text}, nil
}

// readCapped reads at most maxBytes and errors when the body has more.
func (f *PageFetcher) readCapped(r io.Reader) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %v", ErrPageFetch, err)
	}
	if int64(len(body)) == f.maxBytes {
		extra := make([]byte, 1)
		if n, _ := r.Read(extra); n > 0 {
			return nil, fmt.Errorf("%w: page exceeds %d bytes", ErrTooLarge, f.maxBytes)
		}
	}
	return body, nil
}

// extract runs the readability pass with a goquery fallback.
func (f *PageFetcher) extract(body []byte, pageURL *url.URL) (title, text string) {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err == nil && strings.TrimSpace(article.TextContent) != "" {
		return article.Title, article.TextContent
	}
	if err != nil {
		f.logger.Debug("readability extraction failed, falling back", "url", pageURL.String(), "error", err)
	}
	return scrapeFallback(body)
}

// scrapeFallback pulls title, meta description, and body text with goquery.
// Used when readability cannot find an article body (landing pages, SPAs
// with minimal markup, plain documents).
func scrapeFallback(body []byte) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())
	desc := strings.TrimSpace(doc.Find(`meta[name="description"]`).AttrOr("content", ""))

	doc.Find("script, style, noscript, template").Remove()
	bodyText := collapseWhitespace(doc.Find("body").Text())

	var sb strings.Builder
	if desc != "" {
		sb.WriteString(desc)
	}
	if bodyText != "" {
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(bodyText)
	}
	return title, sb.String()
}

// collapseWhitespace squeezes runs of whitespace into single spaces.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncateRunes cuts s to at most max runes.
func truncateRunes(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
