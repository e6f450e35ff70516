// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package library

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"go.yaml.in/yaml/v3"
)

// CSLItem is a bibliographic entry in CSL (Citation Style Language)
// format. Field names follow the CSL-JSON/CSL-YAML schema so exports are
// consumable by Pandoc and reference managers.
type CSLItem struct {
	ID     string    `json:"id" yaml:"id"`
	Type   string    `json:"type" yaml:"type"`
	Title  string    `json:"title" yaml:"title"`
	Author []CSLName `json:"author,omitempty" yaml:"author,omitempty"`
	Issued *CSLDate  `json:"issued,omitempty" yaml:"issued,omitempty"`
	DOI    string    `json:"DOI,omitempty" yaml:"DOI,omitempty"`
	URL    string    `json:"URL,omitempty" yaml:"URL,omitempty"`
}

// CSLName is a person's name in CSL format.
type CSLName struct {
	Family  string `json:"family,omitempty" yaml:"family,omitempty"`
	Given   string `json:"given,omitempty" yaml:"given,omitempty"`
	Literal string `json:"literal,omitempty" yaml:"literal,omitempty"`
}

// CSLDate is a date in CSL date-parts format.
type CSLDate struct {
	DateParts [][]int `json:"date-parts" yaml:"date-parts"`
}

// ExportCSL writes every indexed paper as a CSL bibliography to w, in
// YAML by default or JSON when format is "json".
func (s *Store) ExportCSL(ctx context.Context, w io.Writer, format string) error {
	papers, err := s.List(ctx)
	if err != nil {
		return err
	}

	items := make([]CSLItem, len(papers))
	for i, p := range papers {
		items[i] = toCSLItem(p)
	}

	switch format {
	case "", "yaml":
		enc := yaml.NewEncoder(w)
		defer enc.Close()
		return enc.Encode(items)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(items)
	default:
		return fmt.Errorf("unknown export format %q (want yaml or json)", format)
	}
}

func toCSLItem(p Paper) CSLItem {
	id := p.ArxivID
	if id == "" {
		id = p.Key
	}
	item := CSLItem{
		ID:    id,
		Type:  "article",
		Title: p.Title,
		DOI:   p.DOI,
		URL:   p.PDFURL,
	}

	for _, a := range p.Authors {
		item.Author = append(item.Author, parseAuthorName(a))
	}

	if p.PublicationYear > 0 {
		item.Issued = &CSLDate{DateParts: [][]int{{p.PublicationYear}}}
	}

	return item
}

// parseAuthorName splits a full name on the last space: everything before
// is given, the last token is family. Single-token names use the literal
// field.
func parseAuthorName(name string) CSLName {
	name = strings.TrimSpace(name)
	if name == "" {
		return CSLName{}
	}
	idx := strings.LastIndex(name, " ")
	if idx < 0 {
		return CSLName{Literal: name}
	}
	return CSLName{
		Given:  name[:idx],
		Family: name[idx+1:],
	}
}
