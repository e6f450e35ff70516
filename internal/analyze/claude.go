// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package analyze

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"text/template"

	"github.com/rs/zerolog"

	"github.com/pdiddy/paper-agent/internal/httputil"
)

// summaryPromptTmpl asks the model for a structured Markdown summary of the
// paper text. The sections mirror what researchers skim for first.
var summaryPromptTmpl = template.Must(template.New("summary").Parse(`You are a research assistant. Summarize the following academic paper as Markdown with these sections:

## Problem
What problem does the paper address and why does it matter?

## Approach
The key technique or method, in enough detail to understand the contribution.

## Results
The main quantitative and qualitative findings.

## Limitations
Stated or evident limitations of the work.

Be factual and specific. Use only information from the paper text. Respond with the Markdown summary and nothing else.

Paper title: {{.Title}}

Paper text:
{{.Text}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeSummarizer produces summaries via the Claude Messages API.
type ClaudeSummarizer struct {
	APIKey     string
	Model      string
	MaxTokens  int
	MaxRetries int
	Client     *http.Client
	Logger     zerolog.Logger
}

type claudeRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	Messages  []claudeMessage `json:"messages"`
}

type claudeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type claudeResponse struct {
	Content []claudeContent `json:"content"`
	Usage   claudeUsage     `json:"usage"`
}

type claudeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type claudeContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Summarize sends the paper text to the Claude API and returns the summary
// Markdown.
func (c *ClaudeSummarizer) Summarize(ctx context.Context, title, text string) (string, error) {
	var buf bytes.Buffer
	err := summaryPromptTmpl.Execute(&buf, struct{ Title, Text string }{Title: title, Text: text})
	if err != nil {
		return "", fmt.Errorf("rendering prompt: %w", err)
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: buf.String()},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := httputil.DoWithRetry(ctx, client, req, c.MaxRetries)
	if err != nil {
		return "", fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return "", fmt.Errorf("decoding Claude response: %w", err)
	}
	c.Logger.Debug().
		Int("input_tokens", cResp.Usage.InputTokens).
		Int("output_tokens", cResp.Usage.OutputTokens).
		Msg("summary call token usage")

	for _, block := range cResp.Content {
		if block.Type == "text" && block.Text != "" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("no text content in Claude API response")
}
