// Package anthropic provides a model.Client implementation backed by the
// Anthropic Claude Messages API, using github.com/anthropics/anthropic-sdk-go.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/cellmind/agentcore/runtime/model"
)

// MessagesService captures the subset of the Anthropic SDK client used by
// this adapter, so tests can substitute a fake.
type MessagesService interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
	NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion]
}

// Options configures the adapter.
type Options struct {
	Messages     MessagesService
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
}

// Client implements model.Client on top of Anthropic Claude Messages.
type Client struct {
	msg        MessagesService
	defaultMdl string
	highMdl    string
	smallMdl   string
	maxTok     int
}

// New builds an Anthropic-backed client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Messages == nil {
		return nil, errors.New("anthropic: messages service is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("anthropic: default model is required")
	}
	maxTok := opts.MaxTokens
	if maxTok <= 0 {
		maxTok = 4096
	}
	return &Client{
		msg:        opts.Messages,
		defaultMdl: opts.DefaultModel,
		highMdl:    opts.HighModel,
		smallMdl:   opts.SmallModel,
		maxTok:     maxTok,
	}, nil
}

// NewFromAPIKey constructs a client using the default Anthropic HTTP client.
func NewFromAPIKey(apiKey string, opts Options) (*Client, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("anthropic: api key is required")
	}
	sdkClient := sdk.NewClient(option.WithAPIKey(apiKey))
	opts.Messages = &sdkClient.Messages
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

func (c *Client) buildParams(req *model.Request) (sdk.MessageNewParams, error) {
	if len(req.Messages) == 0 {
		return sdk.MessageNewParams{}, errors.New("anthropic: messages are required")
	}
	msgs := make([]sdk.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, sdk.NewUserMessage(sdk.NewTextBlock(m.Content)))
		case model.RoleAssistant:
			msgs = append(msgs, sdk.NewAssistantMessage(sdk.NewTextBlock(m.Content)))
		default:
			return sdk.MessageNewParams{}, fmt.Errorf("anthropic: unsupported message role %q", m.Role)
		}
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.resolveModel(req)),
		MaxTokens: int64(maxTokens),
		Messages:  msgs,
	}
	if req.System != "" {
		params.System = []sdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = sdk.Float(float64(req.Temperature))
	}
	return params, nil
}

// Generate issues a non-streaming Messages.New request.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return nil, translateError(err)
	}
	return translateResponse(msg), nil
}

// Stream issues a Messages.NewStreaming request.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	stream := c.msg.NewStreaming(ctx, params)
	if err := stream.Err(); err != nil {
		return nil, translateError(err)
	}
	return &streamer{stream: stream}, nil
}

// Close releases no persistent resources.
func (c *Client) Close() error { return nil }

type streamer struct {
	stream *ssestream.Stream[sdk.MessageStreamEventUnion]
	usage  *model.TokenUsage
}

func (s *streamer) Recv() (model.Chunk, error) {
	if !s.stream.Next() {
		if err := s.stream.Err(); err != nil {
			return model.Chunk{}, translateError(err)
		}
		return model.Chunk{Done: true, Usage: s.usage}, io.EOF
	}
	event := s.stream.Current()
	var delta string
	if event.Type == "content_block_delta" {
		delta = event.Delta.Text
	}
	if u := event.Message.Usage; u.InputTokens != 0 || u.OutputTokens != 0 {
		s.usage = &model.TokenUsage{
			InputTokens:  int(u.InputTokens),
			OutputTokens: int(u.OutputTokens),
			TotalTokens:  int(u.InputTokens + u.OutputTokens),
		}
	}
	return model.Chunk{Delta: delta}, nil
}

func (s *streamer) Close() error { return s.stream.Close() }

func isRateLimited(err error) bool {
	var apiErr *sdk.Error
	return errors.As(err, &apiErr) && apiErr.StatusCode == 429
}

func translateError(err error) error {
	if isRateLimited(err) {
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	}
	return fmt.Errorf("anthropic: %w", err)
}

func translateResponse(msg *sdk.Message) *model.Response {
	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &model.Response{
		Text:       text.String(),
		StopReason: string(msg.StopReason),
		Usage: model.TokenUsage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
			TotalTokens:  int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}
}
