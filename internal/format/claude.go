// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package format

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
	"github.com/pdiddy/paper-agent/pkg/types"
)

// formatPromptTmpl instructs the model to pull paper references out of
// arbitrary user text. Titles must be verbatim; URLs only when the user
// supplied one next to the reference.
var formatPromptTmpl = template.Must(template.New("format").Parse(`You are a research assistant. The user has pasted text that mentions one or more academic papers. Extract every distinct paper reference.

For each paper, identify:
- title: the paper title exactly as written (fix only obvious truncation, never paraphrase)
- url: a URL for the paper if one appears next to the reference, otherwise omit it

Respond with a JSON object containing a "papers" array. Do not include any text outside the JSON object.

Example response:
{"papers": [{"title": "Attention Is All You Need", "url": "https://arxiv.org/abs/1706.03762"}, {"title": "Deep Residual Learning for Image Recognition"}]}

User input:
{{.Input}}
`))

// claudeAPIURL is the Claude API endpoint. Package-level var for test substitution.
var claudeAPIURL = "https://api.anthropic.com/v1/messages"

// ClaudeBackend formats input via the Claude Messages API.
type ClaudeBackend struct {
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

// formatResponse is the JSON document the prompt asks the model to return.
type formatResponse struct {
	Papers []types.PaperRef `json:"papers"`
}

// FormatInput sends the user input to the Claude API and parses the
// returned reference list. Transport and HTTP-level failures come back as
// plain errors; a 200 response whose body cannot be interpreted comes back
// as a ParseError.
func (c *ClaudeBackend) FormatInput(ctx context.Context, input string) ([]types.PaperRef, error) {
	prompt, err := renderPrompt(input)
	if err != nil {
		return nil, fmt.Errorf("rendering prompt: %w", err)
	}

	maxTokens := c.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	reqBody := claudeRequest{
		Model:     c.Model,
		MaxTokens: maxTokens,
		Messages: []claudeMessage{
			{Role: "user", Content: prompt},
		},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, claudeAPIURL, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
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
		return nil, fmt.Errorf("calling Claude API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Claude API returned %d: %s", resp.StatusCode, string(body))
	}

	var cResp claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&cResp); err != nil {
		return nil, fmt.Errorf("decoding Claude response: %w", err)
	}
	c.Logger.Debug().
		Int("input_tokens", cResp.Usage.InputTokens).
		Int("output_tokens", cResp.Usage.OutputTokens).
		Msg("format call token usage")

	for _, block := range cResp.Content {
		if block.Type != "text" {
			continue
		}
		var parsed formatResponse
		if err := json.Unmarshal([]byte(stripCodeFence(block.Text)), &parsed); err != nil {
			return nil, &ParseError{Reason: err.Error()}
		}
		return CleanRefs(parsed.Papers), nil
	}

	return nil, &ParseError{Reason: "no text content in response"}
}

func renderPrompt(input string) (string, error) {
	var buf bytes.Buffer
	if err := formatPromptTmpl.Execute(&buf, struct{ Input string }{Input: input}); err != nil {
		return "", err
	}
	return buf.String(), nil
}
