// Package compatible adapts any OpenAI-compatible chat completions endpoint
// (self-hosted gateways, local inference servers) into a model.Client by
// reusing the openai-go SDK against a configurable base URL.
package compatible

import (
	"errors"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/cellmind/agentcore/runtime/gateway/providers/openai"
)

// Config describes a remote OpenAI-compatible endpoint.
type Config struct {
	BaseURL      string
	APIKey       string
	DefaultModel string
	HighModel    string
	SmallModel   string
}

// New builds a model.Client pointed at a non-OpenAI endpoint that speaks the
// same Chat Completions wire protocol.
func New(cfg Config) (*openai.Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("compatible: base url is required")
	}
	opts := []option.RequestOption{option.WithBaseURL(cfg.BaseURL)}
	if cfg.APIKey != "" {
		opts = append(opts, option.WithAPIKey(cfg.APIKey))
	}
	sdkClient := oai.NewClient(opts...)
	return openai.New(openai.Options{
		Chat:         sdkClient.Chat.Completions,
		DefaultModel: cfg.DefaultModel,
		HighModel:    cfg.HighModel,
		SmallModel:   cfg.SmallModel,
	})
}
