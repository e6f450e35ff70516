// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// PaperRef is one paper reference produced by the format stage: a title
// and, when the user supplied one, a source URL.
type PaperRef struct {
	Title string `json:"title"`
	URL   string `json:"url,omitempty"`
}

// PaperDetails holds the canonical record a reference resolves to.
type PaperDetails struct {
	// Title is the canonical paper title as reported by the source.
	Title string `json:"title"`

	// Authors lists the paper authors in source order.
	Authors []string `json:"authors,omitempty"`

	// PublicationYear is the year of publication, 0 if unknown.
	PublicationYear int `json:"publication_year,omitempty"`

	// DOI is the bare DOI without the https://doi.org/ prefix.
	DOI string `json:"doi,omitempty"`

	// PDFURL is the direct download URL for the paper PDF.
	PDFURL string `json:"pdf_url,omitempty"`

	// ArxivID is the arXiv identifier (e.g. "1706.03762") if known.
	ArxivID string `json:"arxiv_id,omitempty"`

	// SearchEngine identifies which resolution path produced the record
	// (e.g. "arxiv", "openalex", "provided_url").
	SearchEngine string `json:"search_engine,omitempty"`
}

// CacheEntry is the long-lived record for one resolved paper, keyed by
// normalized title in the result cache. It outlives any batch: entries are
// created when a paper is first resolved and analyzed, consulted on every
// later run to skip repeated work, and read by downstream consumers as the
// published result set.
type CacheEntry struct {
	PaperDetails

	// SummaryPath is the path to the persisted summary text, relative to
	// the storage root. Empty until the analyze stage has run.
	SummaryPath string `json:"summary_path,omitempty"`

	// CollectedAt is when the entry was last written.
	CollectedAt time.Time `json:"collected_at"`
}
