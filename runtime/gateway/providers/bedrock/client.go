// Package bedrock provides a model.Client implementation backed by the AWS
// Bedrock Converse API, reached through aws-sdk-go-v2's bedrockruntime
// service client.
package bedrock

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	smithy "github.com/aws/smithy-go"

	"github.com/cellmind/agentcore/runtime/model"
)

// RuntimeClient mirrors the subset of the AWS Bedrock runtime client used by
// the adapter, matched by *bedrockruntime.Client.
type RuntimeClient interface {
	Converse(ctx context.Context, params *bedrockruntime.ConverseInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error)
	ConverseStream(ctx context.Context, params *bedrockruntime.ConverseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error)
}

// Options configures the adapter.
type Options struct {
	Runtime      RuntimeClient
	DefaultModel string
	HighModel    string
	SmallModel   string
	MaxTokens    int
}

// Client implements model.Client on top of AWS Bedrock Converse.
type Client struct {
	runtime    RuntimeClient
	defaultMdl string
	highMdl    string
	smallMdl   string
	maxTok     int
}

// New builds a Bedrock-backed client from the given options.
func New(opts Options) (*Client, error) {
	if opts.Runtime == nil {
		return nil, errors.New("bedrock: runtime client is required")
	}
	if strings.TrimSpace(opts.DefaultModel) == "" {
		return nil, errors.New("bedrock: default model is required")
	}
	return &Client{
		runtime:    opts.Runtime,
		defaultMdl: opts.DefaultModel,
		highMdl:    opts.HighModel,
		smallMdl:   opts.SmallModel,
		maxTok:     opts.MaxTokens,
	}, nil
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

func (c *Client) encodeMessages(req *model.Request) ([]brtypes.Message, []brtypes.SystemContentBlock, error) {
	if len(req.Messages) == 0 {
		return nil, nil, errors.New("bedrock: messages are required")
	}
	msgs := make([]brtypes.Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := &brtypes.ContentBlockMemberText{Value: m.Content}
		switch m.Role {
		case model.RoleUser:
			msgs = append(msgs, brtypes.Message{Role: brtypes.ConversationRoleUser, Content: []brtypes.ContentBlock{block}})
		case model.RoleAssistant:
			msgs = append(msgs, brtypes.Message{Role: brtypes.ConversationRoleAssistant, Content: []brtypes.ContentBlock{block}})
		default:
			return nil, nil, fmt.Errorf("bedrock: unsupported message role %q", m.Role)
		}
	}
	var system []brtypes.SystemContentBlock
	if req.System != "" {
		system = []brtypes.SystemContentBlock{&brtypes.SystemContentBlockMemberText{Value: req.System}}
	}
	return msgs, system, nil
}

func (c *Client) inferenceConfig(req *model.Request) *brtypes.InferenceConfiguration {
	cfg := &brtypes.InferenceConfiguration{}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTok
	}
	if maxTokens > 0 {
		v := int32(maxTokens)
		cfg.MaxTokens = &v
	}
	if req.Temperature > 0 {
		cfg.Temperature = aws.Float32(req.Temperature)
	}
	return cfg
}

// Generate issues a non-streaming Converse request.
func (c *Client) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	msgs, system, err := c.encodeMessages(req)
	if err != nil {
		return nil, err
	}
	modelID := c.resolveModel(req)
	out, err := c.runtime.Converse(ctx, &bedrockruntime.ConverseInput{
		ModelId:         &modelID,
		Messages:        msgs,
		System:          system,
		InferenceConfig: c.inferenceConfig(req),
	})
	if err != nil {
		return nil, translateError(err)
	}
	return translateOutput(out), nil
}

// Stream issues a ConverseStream request.
func (c *Client) Stream(ctx context.Context, req *model.Request) (model.Streamer, error) {
	msgs, system, err := c.encodeMessages(req)
	if err != nil {
		return nil, err
	}
	modelID := c.resolveModel(req)
	out, err := c.runtime.ConverseStream(ctx, &bedrockruntime.ConverseStreamInput{
		ModelId:         &modelID,
		Messages:        msgs,
		System:          system,
		InferenceConfig: c.inferenceConfig(req),
	})
	if err != nil {
		return nil, translateError(err)
	}
	return &streamer{events: out.GetStream()}, nil
}

// Close releases no persistent resources; the AWS SDK client owns its own
// HTTP transport lifecycle.
func (c *Client) Close() error { return nil }

type streamer struct {
	events *bedrockruntime.ConverseStreamEventStream
	usage  *model.TokenUsage
}

func (s *streamer) Recv() (model.Chunk, error) {
	event, ok := <-s.events.Events()
	if !ok {
		if err := s.events.Err(); err != nil {
			return model.Chunk{}, translateError(err)
		}
		return model.Chunk{Done: true, Usage: s.usage}, io.EOF
	}
	switch v := event.(type) {
	case *brtypes.ConverseStreamOutputMemberContentBlockDelta:
		if text, ok := v.Value.Delta.(*brtypes.ContentBlockDeltaMemberText); ok {
			return model.Chunk{Delta: text.Value}, nil
		}
	case *brtypes.ConverseStreamOutputMemberMetadata:
		if u := v.Value.Usage; u != nil {
			s.usage = &model.TokenUsage{
				InputTokens:  int(aws.ToInt32(u.InputTokens)),
				OutputTokens: int(aws.ToInt32(u.OutputTokens)),
				TotalTokens:  int(aws.ToInt32(u.TotalTokens)),
			}
		}
	}
	return model.Chunk{}, nil
}

func (s *streamer) Close() error { return nil }

func translateError(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "ThrottlingException" {
		return fmt.Errorf("%w: %w", model.ErrRateLimited, err)
	}
	return fmt.Errorf("bedrock: %w", err)
}

func translateOutput(out *bedrockruntime.ConverseOutput) *model.Response {
	var text strings.Builder
	if msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage); ok {
		for _, block := range msg.Value.Content {
			if t, ok := block.(*brtypes.ContentBlockMemberText); ok {
				text.WriteString(t.Value)
			}
		}
	}
	resp := &model.Response{
		Text:       text.String(),
		StopReason: string(out.StopReason),
	}
	if out.Usage != nil {
		resp.Usage = model.TokenUsage{
			InputTokens:  int(aws.ToInt32(out.Usage.InputTokens)),
			OutputTokens: int(aws.ToInt32(out.Usage.OutputTokens)),
			TotalTokens:  int(aws.ToInt32(out.Usage.TotalTokens)),
		}
	}
	return resp
}
