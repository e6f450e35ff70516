// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package resolve

import (
	"regexp"
	"strings"

	"github.com/pdiddy/paper-agent/pkg/types"
)

const providedURLEngine = "provided_url"

var (
	arxivAbsRe = regexp.MustCompile(`arxiv\.org/abs/(\d{4}\.\d{4,5})(v\d+)?`)
	arxivPDFRe = regexp.MustCompile(`arxiv\.org/pdf/(\d{4}\.\d{4,5})(v\d+)?`)
)

// FromURL resolves a reference from its user-supplied URL without touching
// any search API. It recognizes arXiv abstract and PDF pages and direct
// .pdf links; anything else reports false and falls through to search.
func FromURL(ref types.PaperRef) (*types.PaperDetails, bool) {
	url := strings.TrimSpace(ref.URL)
	if url == "" {
		return nil, false
	}

	if m := arxivAbsRe.FindStringSubmatch(url); m != nil {
		return arxivDetails(ref.Title, m[1]), true
	}
	if m := arxivPDFRe.FindStringSubmatch(url); m != nil {
		return arxivDetails(ref.Title, m[1]), true
	}
	if strings.HasSuffix(strings.ToLower(url), ".pdf") {
		return &types.PaperDetails{
			Title:        ref.Title,
			PDFURL:       url,
			SearchEngine: providedURLEngine,
		}, true
	}

	return nil, false
}

func arxivDetails(title, arxivID string) *types.PaperDetails {
	return &types.PaperDetails{
		Title:        title,
		ArxivID:      arxivID,
		PDFURL:       arxivPDFURL(arxivID),
		SearchEngine: providedURLEngine,
	}
}

func arxivPDFURL(arxivID string) string {
	return "https://arxiv.org/pdf/" + arxivID + ".pdf"
}
