// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-agent/internal/httputil"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// arxivAPIBase is the arXiv search endpoint. Declared as a var so tests
// can substitute an httptest server.
var arxivAPIBase = "https://export.arxiv.org/api/query"

// ArxivBackend resolves titles against the arXiv API.
type ArxivBackend struct {
	Client     *http.Client
	UserAgent  string
	MaxResults int
	Limiter    *rate.Limiter
}

// NewArxivBackend returns a backend honoring the resolve configuration.
func NewArxivBackend(client *http.Client, cfg types.ResolveConfig) *ArxivBackend {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &ArxivBackend{
		Client:     client,
		UserAgent:  cfg.UserAgent,
		MaxResults: cfg.MaxResults,
		Limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name returns the backend identifier.
func (b *ArxivBackend) Name() string { return "arxiv" }

// Resolve searches arXiv by title and returns the first entry whose title
// matches the query. Requests are paced by the limiter and retried on 429.
func (b *ArxivBackend) Resolve(ctx context.Context, title string) (*types.PaperDetails, error) {
	if b.Limiter != nil {
		if err := b.Limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	maxResults := b.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}

	params := url.Values{
		"search_query": {`ti:"` + title + `"`},
		"start":        {"0"},
		"max_results":  {strconv.Itoa(maxResults)},
		"sortBy":       {"relevance"},
		"sortOrder":    {"descending"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, arxivAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", b.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
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

	for _, entry := range feed.Entries {
		candidate := strings.TrimSpace(entry.Title)
		if !titlesMatch(title, candidate) {
			continue
		}
		arxivID := extractArxivID(entry.ID)
		if arxivID == "" {
			continue
		}

		details := &types.PaperDetails{
			Title:        candidate,
			ArxivID:      arxivID,
			PDFURL:       arxivPDFURL(arxivID),
			SearchEngine: "arxiv",
		}
		for _, a := range entry.Authors {
			details.Authors = append(details.Authors, strings.TrimSpace(a.Name))
		}
		if t, parseErr := time.Parse(time.RFC3339, entry.Published); parseErr == nil {
			details.PublicationYear = t.Year()
		}
		if entry.DOI != "" {
			details.DOI = strings.TrimPrefix(entry.DOI, "https://doi.org/")
		}
		return details, nil
	}

	return nil, ErrNotFound
}

// arXiv Atom feed XML structures.
type arxivFeed struct {
	Entries []arxivEntry `xml:"entry"`
}

type arxivEntry struct {
	ID        string        `xml:"id"`
	Title     string        `xml:"title"`
	Published string        `xml:"published"`
	DOI       string        `xml:"doi"`
	Authors   []arxivAuthor `xml:"author"`
}

type arxivAuthor struct {
	Name string `xml:"name"`
}

// extractArxivID pulls the arXiv ID from the entry's <id> URL
// (e.g. "http://arxiv.org/abs/1706.03762v5" becomes "1706.03762").
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
