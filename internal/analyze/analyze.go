// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package analyze produces a structured summary for a resolved paper:
// download the PDF, extract its text, and ask the model for a summary.
// Failures are split into permanent ones (bad URL, not a PDF, oversized
// file) that retrying cannot fix, and transient ones that can.
package analyze

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/time/rate"

	"github.com/pdiddy/paper-agent/internal/httputil"
	"github.com/pdiddy/paper-agent/pkg/types"
)

// PermanentError wraps a failure that will recur on every attempt, so the
// retry pass skips the item.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// permanent wraps err as non-retryable.
func permanent(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err is a failure retrying cannot fix.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}

// Summarizer abstracts the model call so tests can supply a mock.
type Summarizer interface {
	Summarize(ctx context.Context, title, text string) (string, error)
}

// Analyzer runs the download, extract, summarize sequence for one paper.
type Analyzer struct {
	Client       *http.Client
	Summarizer   Summarizer
	UserAgent    string
	MaxPDFBytes  int64
	MaxTextChars int
	Limiter      *rate.Limiter
}

// New returns an Analyzer honoring the analysis configuration.
func New(client *http.Client, summarizer Summarizer, cfg types.AnalysisConfig) *Analyzer {
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 0.5
	}
	return &Analyzer{
		Client:       client,
		Summarizer:   summarizer,
		UserAgent:    cfg.UserAgent,
		MaxPDFBytes:  cfg.MaxPDFBytes,
		MaxTextChars: cfg.MaxTextChars,
		Limiter:      rate.NewLimiter(rate.Limit(rps), 1),
	}
}

// Summarize fetches the paper's PDF and returns the model summary.
func (a *Analyzer) Summarize(ctx context.Context, details *types.PaperDetails) (string, error) {
	if details.PDFURL == "" {
		return "", permanent("paper %q has no PDF URL", details.Title)
	}

	data, err := a.download(ctx, details.PDFURL)
	if err != nil {
		return "", err
	}

	text, err := extractText(data)
	if err != nil {
		return "", permanent("extracting text from %s: %v", details.PDFURL, err)
	}
	if a.MaxTextChars > 0 && len(text) > a.MaxTextChars {
		text = text[:a.MaxTextChars]
	}
	if strings.TrimSpace(text) == "" {
		return "", permanent("PDF at %s contains no extractable text", details.PDFURL)
	}

	if a.Limiter != nil {
		if err := a.Limiter.Wait(ctx); err != nil {
			return "", err
		}
	}

	summary, err := a.Summarizer.Summarize(ctx, details.Title, text)
	if err != nil {
		return "", fmt.Errorf("summarizing %q: %w", details.Title, err)
	}
	return summary, nil
}

// download fetches the PDF, enforcing the size bound and verifying that the
// payload actually is a PDF. A 404 or non-PDF content type is permanent.
func (a *Analyzer) download(ctx context.Context, pdfURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pdfURL, nil)
	if err != nil {
		return nil, permanent("invalid PDF URL %q: %v", pdfURL, err)
	}
	req.Header.Set("User-Agent", a.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, a.Client, req, 0)
	if err != nil {
		return nil, fmt.Errorf("downloading %s: %w", pdfURL, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, permanent("PDF at %s returned HTTP %d", pdfURL, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("PDF at %s returned HTTP %d", pdfURL, resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if !strings.Contains(ct, "pdf") && !strings.Contains(ct, "octet-stream") {
			return nil, permanent("%s served content type %q, not a PDF", pdfURL, ct)
		}
	}

	maxBytes := a.MaxPDFBytes
	if maxBytes <= 0 {
		maxBytes = 10 * 1024 * 1024
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading PDF from %s: %w", pdfURL, err)
	}
	if int64(len(data)) > maxBytes {
		return nil, permanent("PDF at %s exceeds the %d byte limit", pdfURL, maxBytes)
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return nil, permanent("%s did not return a PDF document", pdfURL)
	}
	return data, nil
}

// extractText pulls plain text out of the PDF bytes.
func extractText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening PDF: %w", err)
	}

	textReader, err := reader.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting text: %w", err)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(textReader); err != nil {
		return "", fmt.Errorf("reading extracted text: %w", err)
	}
	return buf.String(), nil
}
