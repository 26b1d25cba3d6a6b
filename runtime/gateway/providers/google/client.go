// Package google provides a model.Client implementation for Google's
// generative language REST endpoint. No Google generative-AI SDK appears
// anywhere in the reference corpus this module was built from, so the
// transport is a small hand-rolled client over net/http, matching the only
// precedent available in the corpus for Gemini-style endpoints.
package google

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cellmind/agentcore/runtime/gateway"
	"github.com/cellmind/agentcore/runtime/model"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// Config configures the Google provider adapter.
type Config struct {
	Keys         []string
	Cooldown     time.Duration
	BaseURL      string
	DefaultModel string
	HighModel    string
	SmallModel   string
	HTTPClient   *http.Client
}

// Client implements model.Client against the Google generative language
// REST API, rotating across a ring of API keys on rate limits and auth
// failures.
type Client struct {
	keys       *KeyRing
	baseURL    string
	defaultMdl string
	highMdl    string
	smallMdl   string
	http       *http.Client
}

// New builds a Google-backed client from the given configuration.
func New(cfg Config) (*Client, error) {
	keys, err := NewKeyRing(cfg.Keys, cfg.Cooldown)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(cfg.DefaultModel) == "" {
		return nil, fmt.Errorf("google: default model is required")
	}
	base := cfg.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		keys:       keys,
		baseURL:    strings.TrimRight(base, "/"),
		defaultMdl: cfg.DefaultModel,
		highMdl:    cfg.HighModel,
		smallMdl:   cfg.SmallModel,
		http:       httpClient,
	}, nil
}

type genContent struct {
	Role  string    `json:"role,omitempty"`
	Parts []genPart `json:"parts"`
}

type genPart struct {
	Text string `json:"text"`
}

type generateRequest struct {
	Contents          []genContent      `json:"contents"`
	SystemInstruction *genContent       `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generationConfig struct {
	Temperature     float32 `json:"temperature,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateCandidate struct {
	Content      genContent `json:"content"`
	FinishReason string     `json:"finishReason"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []generateCandidate `json:"candidates"`
	UsageMetadata usageMetadata       `json:"usageMetadata"`
}

func (c *Client) resolveModel(req *model.Request) string {
	if req.Model != "" {
		return req.Model
	}
	switch req.Class {
	case model.ClassHighReasoning:
		if c.highMdl != "" {
			return c.highMdl
		}
	case model.ClassSmall:
		if c.smallMdl != "" {
			return c.smallMdl
		}
	}
	return c.defaultMdl
}

func buildRequest(req *model.Request) (generateRequest, error) {
	if len(req.Messages) == 0 {
		return generateRequest{}, fmt.Errorf("google: messages are required")
	}
	contents := make([]genContent, 0, len(req.Messages))
	for _, m := range req.Messages {
		role := "user"
		if m.Role == model.RoleAssistant {
			role = "model"
		}
		contents = append(contents, genContent{Role: role, Parts: []genPart{{Text: m.Content}}})
	}
	gr := generateRequest{Contents: contents}
	if req.System != "" {
		gr.SystemInstruction = &genContent{Parts: []genPart{{Text: req.System}}}
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		gr.GenerationConfig = &generationConfig{
			Temperature:     req.Temperature,
			MaxOutputTokens: req.MaxTokens,
		}
	}
	return gr, nil
}

// withKey performs fn, rotating through available keys on rate-limit/auth
// failures until one succeeds or every key has been tried.
func (c *Client) withKey(ctx context.Context, fn func(ctx context.Context, key string) error) error {
	attempts := c.keys.Len()
	var lastErr error
	for i := 0; i < attempts; i++ {
		idx, key, err := c.keys.Acquire()
		if err != nil {
			return err
		}
		err = fn(ctx, key)
		if err == nil {
			c.keys.MarkSucceeded(idx)
			return nil
		}
		lastErr = err
		var se *gateway.StatusError
		if errors.As(err, &se) && (se.StatusCode == http.StatusTooManyRequests || se.StatusCode == http.StatusUnauthorized) {
			c.keys.MarkFailed(idx)
			continue
		}
		return err
	}
	return lastErr
}

// Generate issues a non-streaming generateContent request.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:generateContent", c.baseURL, c.resolveModel(req))

	var result generateResponse
	err = c.withKey(ctx, func(ctx context.Context, key string) error {
		resp, err := c.doRequest(ctx, url, key, payload)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		return json.NewDecoder(resp.Body).Decode(&result)
	})
	if err != nil {
		return nil, err
	}
	return translateResponse(result), nil
}

// Stream issues a streamGenerateContent request and decodes the
// server-sent-events body as it arrives.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	body, err := buildRequest(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("google: marshal request: %w", err)
	}
	url := fmt.Sprintf("%s/models/%s:streamGenerateContent?alt=sse", c.baseURL, c.resolveModel(req))

	var resp *http.Response
	err = c.withKey(ctx, func(ctx context.Context, key string) error {
		r, err := c.doRequest(ctx, url, key, payload)
		if err != nil {
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &streamer{body: resp.Body, scanner: bufio.NewScanner(resp.Body)}, nil
}

// Close releases no persistent resources; each request uses a fresh HTTP
// round trip on the shared http.Client.
func (c *Client) Close() error { return nil }

func (c *Client) doRequest(ctx context.Context, url, key string, payload []byte) (*http.Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("google: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", key)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("google: request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &gateway.StatusError{StatusCode: resp.StatusCode, Message: string(data)}
	}
	return resp, nil
}

type streamer struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	usage   *model.TokenUsage
}

func (s *streamer) Recv() (model.Chunk, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			return model.Chunk{Done: true, Usage: s.usage}, io.EOF
		}
		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if chunk.UsageMetadata.TotalTokenCount > 0 {
			s.usage = &model.TokenUsage{
				InputTokens:  chunk.UsageMetadata.PromptTokenCount,
				OutputTokens: chunk.UsageMetadata.CandidatesTokenCount,
				TotalTokens:  chunk.UsageMetadata.TotalTokenCount,
			}
		}
		var delta string
		if len(chunk.Candidates) > 0 && len(chunk.Candidates[0].Content.Parts) > 0 {
			delta = chunk.Candidates[0].Content.Parts[0].Text
		}
		return model.Chunk{Delta: delta}, nil
	}
	if err := s.scanner.Err(); err != nil {
		return model.Chunk{}, fmt.Errorf("google: stream: %w", err)
	}
	return model.Chunk{Done: true, Usage: s.usage}, io.EOF
}

func (s *streamer) Close() error { return s.body.Close() }

func translateResponse(r generateResponse) *model.Response {
	var text strings.Builder
	var finish string
	if len(r.Candidates) > 0 {
		finish = r.Candidates[0].FinishReason
		for _, p := range r.Candidates[0].Content.Parts {
			text.WriteString(p.Text)
		}
	}
	return &model.Response{
		Text:       text.String(),
		StopReason: finish,
		Usage: model.TokenUsage{
			InputTokens:  r.UsageMetadata.PromptTokenCount,
			OutputTokens: r.UsageMetadata.CandidatesTokenCount,
			TotalTokens:  r.UsageMetadata.TotalTokenCount,
		},
	}
}
