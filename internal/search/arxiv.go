// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pdiddy/research-agent/internal/httputil"
	"github.com/pdiddy/research-agent/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// defaultArxivRate follows the arXiv API guideline of one request every
// three seconds.
const defaultArxivRate = 1.0 / 3.0

// ArxivBackend queries the arXiv API.
type ArxivBackend struct {
	Client     *http.Client
	Limiter    *rate.Limiter
	UserAgent  string
	MaxRetries int
	Log        *zap.Logger
}

// NewArxivBackend builds an arXiv backend from the search configuration.
func NewArxivBackend(cfg types.SearchConfig, log *zap.Logger) *ArxivBackend {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultArxivRate
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &ArxivBackend{
		Client:     &http.Client{Timeout: cfg.Timeout},
		Limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		UserAgent:  cfg.UserAgent,
		MaxRetries: cfg.MaxRetries,
		Log:        log.Named("arxiv"),
	}
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Fetch searches arXiv for the topic, sorted by relevance, and returns up
// to maxResults records.
func (b *ArxivBackend) Fetch(ctx context.Context, topic string, maxResults int) ([]types.PaperRecord, error) {
	q := buildArxivQuery(topic)
	if q == "" {
		return nil, fmt.Errorf("empty arXiv query")
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	params := url.Values{}
	params.Set("search_query", q)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if b.UserAgent != "" {
		req.Header.Set("User-Agent", b.UserAgent)
	}

	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for arXiv rate limit: %w", err)
		}
	}

	client := b.Client
	if client == nil {
		client = http.DefaultClient
	}

	b.logger().Debug("querying arXiv", zap.String("query", q), zap.Int("max_results", maxResults))
	resp, err := httputil.DoWithRetry(ctx, client, req, b.MaxRetries, b.logger())
	if err != nil {
		return nil, fmt.Errorf("arXiv API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("arXiv API returned HTTP %d", resp.StatusCode)
	}

	var feed arxivFeed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("parsing arXiv response: %w", err)
	}

	var records []types.PaperRecord
	for _, entry := range feed.Entries {
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		r := types.PaperRecord{
			ID:        arxivID,
			Title:     collapseSpace(entry.Title),
			Summary:   strings.TrimSpace(entry.Summary),
			PDFURL:    entry.pdfURL(),
			Published: publishedDate(entry.Published),
			Authors:   make([]string, 0, len(entry.Authors)),
		}
		for _, a := range entry.Authors {
			r.Authors = append(r.Authors, strings.TrimSpace(a.Name))
		}
		records = append(records, r)
	}
	return records, nil
}

func (b *ArxivBackend) logger() *zap.Logger {
	if b.Log == nil {
		return zap.NewNop()
	}
	return b.Log
}

// buildArxivQuery turns a free-text topic into an all-fields search.
func buildArxivQuery(topic string) string {
	terms := strings.Fields(topic)
	if len(terms) == 0 {
		return ""
	}
	return "all:" + strings.Join(terms, " ")
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Summary   string        `xml:"summary"`
	Published string        `xml:"published"`
	Authors   []arxivAuthor `xml:"author"`
	Links     []arxivLink   `xml:"link"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

type arxivLink struct {
	Href  string `xml:"href,attr"`
	Title string `xml:"title,attr"`
	Type  string `xml:"type,attr"`
}

// pdfURL returns the entry's PDF link, derived from the abstract URL when
// the feed omits it.
func (e arxivEntry) pdfURL() string {
	for _, l := range e.Links {
		if l.Title == "pdf" || l.Type == "application/pdf" {
			return l.Href
		}
	}
	if strings.Contains(e.ID, "/abs/") {
		return strings.Replace(e.ID, "/abs/", "/pdf/", 1)
	}
	return ""
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/2301.07041v1" -> "2301.07041").
func extractArxivID(idURL string) string {
	const prefix = "/abs/"
	idx := strings.Index(idURL, prefix)
	if idx < 0 {
		return ""
	}
	id := idURL[idx+len(prefix):]

	// Strip version suffix (e.g. "v1", "v2").
	if vIdx := strings.LastIndex(id, "v"); vIdx > 0 {
		if _, err := strconv.Atoi(id[vIdx+1:]); err == nil {
			id = id[:vIdx]
		}
	}
	return id
}

// publishedDate normalizes an Atom timestamp to YYYY-MM-DD.
func publishedDate(s string) string {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC().Format(types.PublishedLayout)
	}
	if len(s) >= len(types.PublishedLayout) {
		return s[:len(types.PublishedLayout)]
	}
	return s
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
