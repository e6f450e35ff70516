// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-agent/internal/httputil"
	"github.com/pdiddy/paper-agent/pkg/types"
)

func init() {
	httputil.RetryBaseDelay = time.Millisecond
}

// stubSummarizer records its input and returns a canned summary.
type stubSummarizer struct {
	summary string
	err     error
	gotText string
}

func (s *stubSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	s.gotText = text
	return s.summary, s.err
}

func pdfServer(t *testing.T, contentType string, status int, body []byte) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if contentType != "" {
			w.Header().Set("Content-Type", contentType)
		}
		w.WriteHeader(status)
		w.Write(body)
	}))
	t.Cleanup(server.Close)
	return server
}

func testAnalyzer(server *httptest.Server, s Summarizer) *Analyzer {
	return New(server.Client(), s, types.AnalysisConfig{
		HTTPConfig:  types.HTTPConfig{UserAgent: "test-agent"},
		MaxPDFBytes: 1024,
	})
}

func TestSummarizeNoPDFURL(t *testing.T) {
	a := New(http.DefaultClient, &stubSummarizer{}, types.AnalysisConfig{})
	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "No PDF"})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestDownloadNotFoundIsPermanent(t *testing.T) {
	server := pdfServer(t, "application/pdf", http.StatusNotFound, nil)
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Gone", PDFURL: server.URL})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestDownloadServerErrorIsTransient(t *testing.T) {
	server := pdfServer(t, "application/pdf", http.StatusInternalServerError, nil)
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Flaky", PDFURL: server.URL})
	require.Error(t, err)
	assert.False(t, IsPermanent(err))
}

func TestDownloadRejectsWrongContentType(t *testing.T) {
	server := pdfServer(t, "text/html", http.StatusOK, []byte("<html>paywall</html>"))
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Paywalled", PDFURL: server.URL})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "not a PDF")
}

func TestDownloadRejectsNonPDFPayload(t *testing.T) {
	server := pdfServer(t, "application/pdf", http.StatusOK, []byte("<html>not really</html>"))
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Fake", PDFURL: server.URL})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestDownloadEnforcesSizeLimit(t *testing.T) {
	big := append([]byte("%PDF-1.4\n"), make([]byte, 2048)...)
	server := pdfServer(t, "application/pdf", http.StatusOK, big)
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Huge", PDFURL: server.URL})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
	assert.Contains(t, err.Error(), "byte limit")
}

func TestMalformedPDFIsPermanent(t *testing.T) {
	server := pdfServer(t, "application/pdf", http.StatusOK, []byte("%PDF-1.4\nthis is not a real document"))
	a := testAnalyzer(server, &stubSummarizer{})

	_, err := a.Summarize(context.Background(), &types.PaperDetails{Title: "Corrupt", PDFURL: server.URL})
	require.Error(t, err)
	assert.True(t, IsPermanent(err))
}

func TestIsPermanentUnwraps(t *testing.T) {
	inner := permanent("root cause")
	wrapped := fmt.Errorf("processing item: %w", inner)
	assert.True(t, IsPermanent(wrapped))
	assert.False(t, IsPermanent(fmt.Errorf("plain failure")))
}

func TestClaudeSummarizer(t *testing.T) {
	var captured claudeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		assert.Equal(t, "2023-06-01", r.Header.Get("anthropic-version"))
		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "## Problem\nSequence transduction is slow.\n"},
			},
		})
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	s := &ClaudeSummarizer{APIKey: "test-key", Model: "claude-sonnet-4-20250514"}
	summary, err := s.Summarize(context.Background(), "Attention Is All You Need", "paper text here")
	require.NoError(t, err)

	assert.Contains(t, summary, "## Problem")
	require.Len(t, captured.Messages, 1)
	assert.Contains(t, captured.Messages[0].Content, "Attention Is All You Need")
	assert.Contains(t, captured.Messages[0].Content, "paper text here")
}

func TestClaudeSummarizerRetriesRateLimit(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		// The retried request must carry the prompt again.
		var req claudeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Messages)
		assert.Contains(t, req.Messages[0].Content, "paper text here")

		json.NewEncoder(w).Encode(map[string]any{
			"content": []map[string]any{
				{"type": "text", "text": "## Problem\nstill here\n"},
			},
		})
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	s := &ClaudeSummarizer{APIKey: "k", Model: "m", MaxRetries: 3}
	summary, err := s.Summarize(context.Background(), "t", "paper text here")
	require.NoError(t, err)
	assert.Contains(t, summary, "## Problem")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestClaudeSummarizerServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	oldURL := claudeAPIURL
	claudeAPIURL = server.URL
	defer func() { claudeAPIURL = oldURL }()

	s := &ClaudeSummarizer{APIKey: "k", Model: "m"}
	_, err := s.Summarize(context.Background(), "t", "text")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
}
