package openai_test

import (
	"context"
	"testing"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway/providers/openai"
	"github.com/cellmind/agentcore/runtime/model"
)

type fakeChat struct {
	resp *oai.ChatCompletion
	err  error
}

func (f *fakeChat) New(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) (*oai.ChatCompletion, error) {
	return f.resp, f.err
}

func (f *fakeChat) NewStreaming(ctx context.Context, body oai.ChatCompletionNewParams, opts ...option.RequestOption) *ssestream.Stream[oai.ChatCompletionChunk] {
	return nil
}

func TestNewRequiresChatService(t *testing.T) {
	_, err := openai.New(openai.Options{DefaultModel: "gpt-4o-mini"})
	assert.Error(t, err)
}

func TestNewRequiresDefaultModel(t *testing.T) {
	_, err := openai.New(openai.Options{Chat: &fakeChat{}})
	assert.Error(t, err)
}

func TestGenerateTranslatesResponse(t *testing.T) {
	resp := &oai.ChatCompletion{
		Choices: []oai.ChatCompletionChoice{
			{
				Message:      oai.ChatCompletionMessage{Content: "hello there"},
				FinishReason: "stop",
			},
		},
		Usage: oai.CompletionUsage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}
	c, err := openai.New(openai.Options{Chat: &fakeChat{resp: resp}, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	got, err := c.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", got.Text)
	assert.Equal(t, "stop", got.StopReason)
	assert.Equal(t, 15, got.Usage.TotalTokens)
}

func TestGenerateRequiresMessages(t *testing.T) {
	c, err := openai.New(openai.Options{Chat: &fakeChat{}, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestCloseIsNoop(t *testing.T) {
	c, err := openai.New(openai.Options{Chat: &fakeChat{}, DefaultModel: "gpt-4o-mini"})
	require.NoError(t, err)
	assert.NoError(t, c.Close())
}
