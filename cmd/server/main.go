// Command server runs the agent orchestration core's HTTP API: the four
// stateless agent endpoints, chat, session history, and live configuration.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"goa.design/clue/log"

	"github.com/cellmind/agentcore/api"
	"github.com/cellmind/agentcore/config"
	"github.com/cellmind/agentcore/runtime/classifier"
	"github.com/cellmind/agentcore/runtime/gateway"
	gwmiddleware "github.com/cellmind/agentcore/runtime/gateway/middleware"
	"github.com/cellmind/agentcore/runtime/gateway/providers/anthropic"
	"github.com/cellmind/agentcore/runtime/gateway/providers/bedrock"
	"github.com/cellmind/agentcore/runtime/gateway/providers/compatible"
	"github.com/cellmind/agentcore/runtime/gateway/providers/google"
	"github.com/cellmind/agentcore/runtime/gateway/providers/openai"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/orchestrator"
	"github.com/cellmind/agentcore/runtime/session"
	"github.com/cellmind/agentcore/runtime/telemetry"
	"github.com/cellmind/agentcore/runtime/validator"
)

func main() {
	configPathF := flag.String("config", "config.yaml", "path to the configuration file")
	dbgF := flag.Bool("debug", false, "log request and response bodies")
	flag.Parse()

	format := log.FormatJSON
	if log.IsTerminal() {
		format = log.FormatTerminal
	}
	ctx := log.Context(context.Background(), log.WithFormat(format))
	if *dbgF {
		ctx = log.Context(ctx, log.WithDebug())
	}

	cfg, err := config.Load(*configPathF)
	if err != nil {
		log.Fatalf(ctx, err, "failed to load configuration from %s", *configPathF)
	}

	provider, err := buildProvider(cfg)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build LLM provider %q", cfg.Provider)
	}

	logger := telemetry.NewClueLogger()
	metrics := telemetry.NewClueMetrics()
	tracer := telemetry.NewClueTracer()
	tel := gwmiddleware.Telemetry{Logger: logger, Metrics: metrics, Tracer: tracer}

	gw, err := gateway.NewServer(
		gateway.WithProvider(provider),
		gateway.WithGenerate(tel.Generate(), gateway.RetryGenerate(gateway.DefaultRetryConfig())),
		gateway.WithStream(tel.Stream()),
	)
	if err != nil {
		log.Fatalf(ctx, err, "failed to build LLM gateway")
	}

	orch := &orchestrator.Orchestrator{
		LLM:        gw,
		Validator:  validator.New(),
		InstallCmd: classifier.InstallCommand(cfg.InstallerCommand),
		Config: orchestrator.Config{
			MaxRefinePerStep: cfg.MaxRefinePerStep,
			MaxReplansPerRun: cfg.MaxReplansPerRun,
		},
		Audit:   orchestrator.NewAuditLog(),
		Logger:  logger,
		Metrics: metrics,
		Tracer:  tracer,
	}

	deps := &api.Deps{
		Orchestrator: orch,
		Chat:         gw,
		Sessions:     session.New(cfg.SessionStorePath),
		Config:       api.NewConfigStore(*configPathF, cfg),
		Logger:       logger,
	}

	srv := api.NewServer(cfg.ListenAddr, api.NewMux(deps))

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Print(runCtx, log.KV{K: "addr", V: cfg.ListenAddr}, log.KV{K: "provider", V: cfg.Provider})
	if err := srv.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf(ctx, err, "server exited with error")
	}
}

// buildProvider selects and constructs the model.Client for cfg.Provider
// from cfg.Providers, matching the entry's Model to every model class this
// system's config schema does not yet distinguish between.
func buildProvider(cfg config.Config) (model.Client, error) {
	pc, ok := cfg.Providers[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("no configuration found for provider %q", cfg.Provider)
	}

	switch cfg.Provider {
	case "anthropic":
		return anthropic.NewFromAPIKey(pc.APIKey, anthropic.Options{
			DefaultModel: pc.Model,
			HighModel:    pc.Model,
			SmallModel:   pc.Model,
		})
	case "openai":
		return openai.NewFromAPIKey(pc.APIKey, openai.Options{
			DefaultModel: pc.Model,
			HighModel:    pc.Model,
			SmallModel:   pc.Model,
		})
	case "compatible":
		return compatible.New(compatible.Config{
			BaseURL:      pc.Endpoint,
			APIKey:       pc.APIKey,
			DefaultModel: pc.Model,
			HighModel:    pc.Model,
			SmallModel:   pc.Model,
		})
	case "google":
		return google.New(google.Config{
			Keys:         []string{pc.APIKey},
			BaseURL:      pc.Endpoint,
			DefaultModel: pc.Model,
			HighModel:    pc.Model,
			SmallModel:   pc.Model,
		})
	case "bedrock":
		awsCfg, err := awsconfig.LoadDefaultConfig(context.Background())
		if err != nil {
			return nil, fmt.Errorf("loading AWS credentials: %w", err)
		}
		return bedrock.New(bedrock.Options{
			Runtime:      bedrockruntime.NewFromConfig(awsCfg),
			DefaultModel: pc.Model,
			HighModel:    pc.Model,
			SmallModel:   pc.Model,
		})
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}
