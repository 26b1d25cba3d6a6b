package gateway

import (
	"context"
	"errors"
	"io"

	"github.com/cellmind/agentcore/runtime/model"
)

type (
	// GenerateHandler processes a single non-streaming completion request.
	GenerateHandler func(ctx context.Context, req *model.Request) (*model.Response, error)

	// StreamHandler processes a streaming completion request, invoking send
	// for each chunk in order.
	StreamHandler func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error

	// GenerateMiddleware wraps a GenerateHandler with cross-cutting behavior
	// (retry, rate limiting, logging).
	GenerateMiddleware func(next GenerateHandler) GenerateHandler

	// StreamMiddleware wraps a StreamHandler.
	StreamMiddleware func(next StreamHandler) StreamHandler

	// Option configures a Server.
	Option func(*serverConfig)

	serverConfig struct {
		provider   model.Client
		generateMW []GenerateMiddleware
		streamMW   []StreamMiddleware
	}

	// Server adapts a model.Client into a request handler with a composable
	// middleware chain covering retry and rate limiting. Key rotation is not
	// part of the chain; the google provider rotates keys inside its client.
	// Middleware is applied in registration order: the first middleware
	// registered is the outermost layer.
	Server struct {
		provider model.Client
		generate GenerateHandler
		stream   StreamHandler
	}
)

// WithProvider sets the underlying model.Client. Required.
func WithProvider(p model.Client) Option { return func(c *serverConfig) { c.provider = p } }

// WithGenerate appends GenerateMiddleware to the non-streaming chain.
func WithGenerate(mw ...GenerateMiddleware) Option {
	return func(c *serverConfig) { c.generateMW = append(c.generateMW, mw...) }
}

// WithStream appends StreamMiddleware to the streaming chain.
func WithStream(mw ...StreamMiddleware) Option {
	return func(c *serverConfig) { c.streamMW = append(c.streamMW, mw...) }
}

// ErrProviderRequired is returned by NewServer when no provider was configured.
var ErrProviderRequired = errNew("gateway: a provider is required")

// NewServer builds a Server from the given options.
func NewServer(opts ...Option) (*Server, error) {
	var cfg serverConfig
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.provider == nil {
		return nil, ErrProviderRequired
	}

	baseGenerate := func(ctx context.Context, req *model.Request) (*model.Response, error) {
		return cfg.provider.Generate(ctx, req)
	}
	baseStream := func(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
		st, err := cfg.provider.Stream(ctx, req)
		if err != nil {
			return err
		}
		defer func() { _ = st.Close() }()
		for {
			ch, err := st.Recv()
			if errors.Is(err, io.EOF) {
				ch.Done = true
				return send(ch)
			}
			if err != nil {
				return err
			}
			if err := send(ch); err != nil {
				return err
			}
			if ch.Done {
				return nil
			}
		}
	}

	generate := baseGenerate
	for i := len(cfg.generateMW) - 1; i >= 0; i-- {
		generate = cfg.generateMW[i](generate)
	}
	stream := baseStream
	for i := len(cfg.streamMW) - 1; i >= 0; i-- {
		stream = cfg.streamMW[i](stream)
	}

	return &Server{provider: cfg.provider, generate: generate, stream: stream}, nil
}

// Generate runs a non-streaming request through the middleware chain.
func (s *Server) Generate(ctx context.Context, req *model.Request) (*model.Response, error) {
	return s.generate(ctx, req)
}

// Stream runs a streaming request through the middleware chain.
func (s *Server) Stream(ctx context.Context, req *model.Request, send func(model.Chunk) error) error {
	return s.stream(ctx, req, send)
}

// Close releases the underlying provider's resources.
func (s *Server) Close() error { return s.provider.Close() }

// RetryGenerate returns GenerateMiddleware that retries per cfg.
func RetryGenerate(cfg RetryConfig) GenerateMiddleware {
	return func(next GenerateHandler) GenerateHandler {
		return func(ctx context.Context, req *model.Request) (*model.Response, error) {
			var resp *model.Response
			err := Retry(ctx, cfg, func(ctx context.Context) error {
				r, err := next(ctx, req)
				if err != nil {
					return err
				}
				resp = r
				return nil
			})
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}
