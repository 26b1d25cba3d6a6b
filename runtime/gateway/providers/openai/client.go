// Package openai provides a model.Client implementation backed by the
// OpenAI Chat Completions API, using github.com/openai/openai-go.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/openai/openai-go/shared"

	"github.com/cellmind/agentcore/runtime/model"
)

// ChatService captures the subset of the openai-go client used by the
// adapter, so tests can substitute a fake.
type ChatService interface {
	New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error)
	NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk]
}

// Options configures the adapter.
type Options struct {
	Chat         ChatService
	DefaultModel string
	HighModel    string
	SmallModel   string
}

// Client implements model.Client via OpenAI Chat Completions.
type Client struct {
	chat       ChatService
	defaultMdl string
	highMdl    string
	smallMdl   string
}

// New builds an OpenAI-backed client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Chat == nil {
		return nil, errors.New("openai: chat service is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("openai: default model is required")
	}
	return &Client{
		chat:       opts.Chat,
		defaultMdl: opts.DefaultModel,
		highMdl:    opts.HighModel,
		smallMdl:   opts.SmallModel,
	}, nil
}

// NewFromAPIKey constructs a client using the default openai-go HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("openai: api key is required")
	}
	sdkClient := oai.NewClient(option.WithAPIKey(apiKey))
	opts.Chat = sdkClient.Chat.Completions
	return New(opts)
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

func (c *Client) buildParams(req *model.Request) (oai.ChatCompletionNewParams, error) {
	if len(req.Messages) == 0 {
		return oai.ChatCompletionNewParams{}, errors.New("openai: messages are required")
	}
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, oai.SystemMessage(req.System))
	}
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleUser:
			messages = append(messages, oai.UserMessage(m.Content))
		case model.RoleAssistant:
			messages = append(messages, oai.AssistantMessage(m.Content))
		case model.RoleSystem:
			messages = append(messages, oai.SystemMessage(m.Content))
		default:
			return oai.ChatCompletionNewParams{}, fmt.Errorf("openai: unsupported role %q", m.Role)
		}
	}
	params := oai.ChatCompletionNewParams{
		Model:    c.resolveModel(req),
		Messages: messages,
	}
	if req.Temperature > 0 {
		params.Temperature = oai.Float(float64(req.Temperature))
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = oai.Int(int64(req.MaxTokens))
	}
	return params, nil
}

// Generate issues a non-streaming chat completion.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.chat.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(resp), nil
}

// Stream issues a streaming chat completion.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.chat.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return &streamer{stream: stream}, nil
}

// Close releases no persistent resources; openai-go clients are stateless
// HTTP wrappers.
func (c *Client) Close() error { return nil }

type streamer struct {
	stream *ssestream.Stream[oai.ChatCompletionChunk]
	usage  *model.TokenUsage
}

func (s *streamer) Recv() (model.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return model.Chunk{}, translateError(err)
		}
		return model.Chunk{Done: true, Usage: s.usage}, io.EOF
	}
	chunk := s.stream.Current()
	if u := chunk.Usage; u.TotalTokens != 0 {
		s.usage = &model.TokenUsage{
			InputTokens:  int(u.PromptTokens),
			OutputTokens: int(u.CompletionTokens),
			TotalTokens:  int(u.TotalTokens),
		}
	}
	var delta string
	if len(chunk.Choices) > 0 {
		delta = chunk.Choices[0].Delta.Content
	}
	return model.Chunk{Delta: delta}, nil
}

func (s *streamer) Close() error { return s.stream.Close() }

func translateError(err error) error {
	var apiErr *shared.ErrorObject
	if errors.As(err, &apiErr) && apiErr.Code == "rate_limit_exceeded" {
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	}
	return fmt.Errorf("openai: %w", err)
}

func translateResponse(resp *oai.ChatCompletion) *model.Response {
	var text, stop string
	if len(resp.Choices) > 0 {
		text = resp.Choices[0].Message.Content
		stop = string(resp.Choices[0].FinishReason)
	}
	return &model.Response{
		Text:       text,
		StopReason: stop,
		Usage: model.TokenUsage{
			InputTokens:  int(resp.Usage.PromptTokens),
			OutputTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
	}
}
