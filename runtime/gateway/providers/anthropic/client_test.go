package anthropic_test

import (
	"context"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/packages/ssestream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cellmind/agentcore/runtime/gateway/providers/anthropic"
	"github.com/cellmind/agentcore/runtime/model"
)

type fakeMessages struct {
	resp *sdk.Message
	err  error
}

func (f *fakeMessages) New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error) {
	return f.resp, f.err
}

func (f *fakeMessages) NewStreaming(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) *ssestream.Stream[sdk.MessageStreamEventUnion] {
	return nil
}

func TestNewRequiresMessagesService(t *testing.T) {
	_, err := anthropic.New(anthropic.Options{DefaultModel: "claude-sonnet-4-5"})
	assert.Error(t, err)
}

func TestGenerateRequiresMessages(t *testing.T) {
	c, err := anthropic.New(anthropic.Options{Messages: &fakeMessages{}, DefaultModel: "claude-sonnet-4-5"})
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), &model.Request{})
	assert.Error(t, err)
}

func TestGenerateTranslatesResponse(t *testing.T) {
	resp := &sdk.Message{
		Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hi there"}},
		StopReason: "end_turn",
		Usage:      sdk.Usage{InputTokens: 3, OutputTokens: 7},
	}
	c, err := anthropic.New(anthropic.Options{Messages: &fakeMessages{resp: resp}, DefaultModel: "claude-sonnet-4-5"})
	require.NoError(t, err)

	got, err := c.Generate(context.Background(), &model.Request{
		Messages: []model.Message{{Role: model.RoleUser, Content: "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "hi there", got.Text)
	assert.Equal(t, "end_turn", got.StopReason)
	assert.Equal(t, 10, got.Usage.TotalTokens)
}
