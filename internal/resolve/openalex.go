// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-agent/internal/httputil"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// openAlexAPIBase is the OpenAlex Works endpoint. Declared as a var so
// tests can substitute an httptest server.
var openAlexAPIBase = "https://api.openalex.org/works"

// OpenAlexBackend resolves titles against the OpenAlex API.
type OpenAlexBackend struct {
	Client     *http.Client
	UserAgent  string
	MaxResults int
	// Email is sent as the mailto parameter for polite pool access.
	Email   string
	Limiter *rate.Limiter
}

// NewOpenAlexBackend returns a backend honoring the resolve configuration.
func NewOpenAlexBackend(client *http.Client, cfg types.ResolveConfig) *OpenAlexBackend {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	return &OpenAlexBackend{
		Client:     client,
		UserAgent:  cfg.UserAgent,
		MaxResults: cfg.MaxResults,
		Email:      cfg.OpenAlexEmail,
		Limiter:    rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Name returns the backend identifier.
func (b *OpenAlexBackend) Name() string { return "openalex" }

// Resolve searches OpenAlex by title and returns the first work whose
// title matches the query. A matched work without an open-access PDF still
// resolves; the missing PDF surfaces later when analysis needs the file.
func (b *OpenAlexBackend) Resolve(ctx context.Context, title string) (*types.PaperDetails, error) {
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
		"search":   {title},
		"per_page": {strconv.Itoa(maxResults)},
		"page":     {"1"},
	}
	if b.Email != "" {
		params.Set("mailto", b.Email)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexAPIBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", b.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, b.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex API request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex API returned HTTP %d", resp.StatusCode)
	}

	var oar openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&oar); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	for _, work := range oar.Results {
		if !titlesMatch(title, work.Title) {
			continue
		}

		details := &types.PaperDetails{
			Title:           work.Title,
			PublicationYear: work.PublicationYear,
			SearchEngine:    "openalex",
		}
		if work.DOI != "" {
			details.DOI = strings.TrimPrefix(work.DOI, "https://doi.org/")
		}
		for _, authorship := range work.Authorships {
			if authorship.Author.DisplayName != "" {
				details.Authors = append(details.Authors, authorship.Author.DisplayName)
			}
		}

		if work.BestOALocation.PDFURL != "" {
			details.PDFURL = work.BestOALocation.PDFURL
		} else if work.OpenAccess.OAURL != "" {
			details.PDFURL = work.OpenAccess.OAURL
		}

		// OpenAlex sometimes points at an arXiv PDF; recover the ID so
		// downstream naming stays stable across resolution paths.
		if m := arxivPDFRe.FindStringSubmatch(details.PDFURL); m != nil {
			details.ArxivID = m[1]
		}

		return details, nil
	}

	return nil, ErrNotFound
}

// OpenAlex API JSON structures.
type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	ID              string               `json:"id"`
	Title           string               `json:"title"`
	DOI             string               `json:"doi"`
	PublicationYear int                  `json:"publication_year"`
	Authorships     []openAlexAuthorship `json:"authorships"`
	OpenAccess      openAlexOpenAccess   `json:"open_access"`
	BestOALocation  openAlexLocation     `json:"best_oa_location"`
}

type openAlexAuthorship struct {
	Author openAlexAuthor `json:"author"`
}

type openAlexAuthor struct {
	DisplayName string `json:"display_name"`
}

type openAlexOpenAccess struct {
	IsOA  bool   `json:"is_oa"`
	OAURL string `json:"oa_url"`
}

type openAlexLocation struct {
	PDFURL string `json:"pdf_url"`
}
