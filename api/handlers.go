package api

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cellmind/agentcore/config"
	"github.com/cellmind/agentcore/runtime/librarydetect"
	"github.com/cellmind/agentcore/runtime/model"
	"github.com/cellmind/agentcore/runtime/notebook"
	"github.com/cellmind/agentcore/runtime/orchestrator"
	"github.com/cellmind/agentcore/runtime/prompt"
	"github.com/cellmind/agentcore/runtime/session"
	"github.com/cellmind/agentcore/runtime/telemetry"
)

// availableGuides restricts the Library Detector's picks to libraries the
// Prompt Assembler actually has an API guide for.
var availableGuides = func() map[string]bool {
	m := make(map[string]bool, len(prompt.Guides))
	for lib := range prompt.Guides {
		m[lib] = true
	}
	return m
}()

// Version is the build version reported by /health. Overridden at link time
// in production builds; a fixed string keeps tests deterministic.
var Version = "dev"

// ConfigStore guards the live operator configuration with a mutex, the same
// single-logical-object-serialized-writes shape the Session Store uses for
// its own mutable state.
type ConfigStore struct {
	mu   sync.Mutex
	cfg  config.Config
	path string
}

// NewConfigStore wraps an already-loaded configuration for concurrent access.
func NewConfigStore(path string, cfg config.Config) *ConfigStore {
	return &ConfigStore{cfg: cfg, path: path}
}

// Get returns a masked copy safe to serialize in an HTTP response.
func (c *ConfigStore) Get() config.Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	return config.Mask(c.cfg)
}

// Update merges incoming over the stored configuration (preserving secrets
// behind masked fields) and persists the result to disk.
func (c *ConfigStore) Update(incoming config.Config) (config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	merged := config.ApplyUpdate(c.cfg, incoming)
	if c.path != "" {
		if err := config.Save(c.path, merged); err != nil {
			return config.Config{}, err
		}
	}
	c.cfg = merged
	return config.Mask(merged), nil
}

// ChatClient is the minimal surface /chat/message and /chat/stream need from
// the LLM Gateway.
type ChatClient interface {
	Generate(ctx context.Context, req *model.Request) (*model.Response, error)
	Stream(ctx context.Context, req *model.Request, send func(model.Chunk) error) error
}

// Deps wires every component the HTTP handlers call into. Handlers contain
// no business logic themselves; they decode, delegate to one of these, and
// encode.
type Deps struct {
	Orchestrator *orchestrator.Orchestrator
	Chat         ChatClient
	Sessions     *session.Store
	Config       *ConfigStore

	// Logger observes the HTTP layer itself (request completion, decode
	// failures surfaced as 4xx/5xx). Defaults to the no-op Logger when unset.
	Logger telemetry.Logger
}

func (d *Deps) logger() telemetry.Logger {
	if d.Logger == nil {
		return telemetry.NewNoopLogger()
	}
	return d.Logger
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   Version,
		"timestamp": time.Now().UTC(),
	})
}

func (d *Deps) configHandler(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, d.Config.Get())
	case http.MethodPost:
		var incoming config.Config
		if err := decodeJSON(r, &incoming); err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		updated, err := d.Config.Update(incoming)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	default:
		writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
	}
}

type planRequest struct {
	RequestText       string       `json:"requestText"`
	Notebook          wireNotebook `json:"notebookContext"`
	InstalledPackages []string     `json:"installedPackages"`
}

type wireNotebook struct {
	CellCount         int              `json:"cellCount"`
	ImportedLibraries []string         `json:"importedLibraries"`
	DefinedVariables  []string         `json:"definedVariables"`
	RecentCells       []wireRecentCell `json:"recentCells"`
}

type wireRecentCell struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
}

func (n wireNotebook) toDomain() notebook.Context {
	cells := make([]notebook.RecentCell, 0, len(n.RecentCells))
	for _, c := range n.RecentCells {
		cells = append(cells, notebook.RecentCell{Kind: notebook.CellKind(c.Kind), Source: c.Source})
	}
	return notebook.Context{
		CellCount:         n.CellCount,
		ImportedLibraries: n.ImportedLibraries,
		DefinedVariables:  n.DefinedVariables,
		RecentCells:       cells,
	}
}

func (d *Deps) planHandler(w http.ResponseWriter, r *http.Request) {
	var req planRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.RequestText == "" {
		writeError(w, http.StatusBadRequest, errors.Join(errInvalidInput, errors.New("requestText is required")))
		return
	}

	nb := req.Notebook.toDomain()
	libraries := librarydetect.Detect(librarydetect.Input{
		RequestText:       req.RequestText,
		ImportedLibraries: nb.ImportedLibraries,
		AvailableGuides:   availableGuides,
	})

	p, reasoning, err := d.Orchestrator.PlanRequest(r.Context(), req.RequestText, nb, req.InstalledPackages, libraries)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"plan":      encodePlan(p),
		"reasoning": reasoning,
	})
}

type refineRequest struct {
	OriginalCode      string   `json:"originalCode"`
	ErrorKind         string   `json:"errorKind"`
	ErrorMessage      string   `json:"errorMessage"`
	Traceback         []string `json:"traceback"`
	Attempt           int      `json:"attempt"`
	MaxAttempts       int      `json:"maxAttempts"`
	InstalledPackages []string `json:"installedPackages"`
}

func (d *Deps) refineHandler(w http.ResponseWriter, r *http.Request) {
	var req refineRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	calls, reasoning, err := d.Orchestrator.RefineStep(r.Context(), prompt.RefineInput{
		OriginalCode:      req.OriginalCode,
		ErrorKind:         req.ErrorKind,
		ErrorMessage:      req.ErrorMessage,
		Traceback:         req.Traceback,
		Attempt:           req.Attempt,
		MaxAttempts:       req.MaxAttempts,
		InstalledPackages: req.InstalledPackages,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	wireCalls := make([]wireToolCall, 0, len(calls))
	for _, c := range calls {
		wireCalls = append(wireCalls, encodeToolCall(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"toolCalls": wireCalls,
		"reasoning": reasoning,
	})
}

type replanRequest struct {
	OriginalRequest   string             `json:"originalRequest"`
	ExecutedSteps     []wireExecutedStep `json:"executedSteps"`
	FailedStepNumber  int                `json:"failedStepNumber"`
	FailedStepCode    string             `json:"failedStepCode"`
	ErrorKind         string             `json:"errorKind"`
	ErrorMessage      string             `json:"errorMessage"`
	Output            string             `json:"output"`
	InstalledPackages []string           `json:"installedPackages"`
}

func (d *Deps) replanHandler(w http.ResponseWriter, r *http.Request) {
	var req replanRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	executed := make([]prompt.ExecutedStep, 0, len(req.ExecutedSteps))
	for _, s := range req.ExecutedSteps {
		executed = append(executed, prompt.ExecutedStep{
			StepNumber:  s.StepNumber,
			Description: s.Description,
			Succeeded:   s.Succeeded,
		})
	}
	analysis, reasoning, err := d.Orchestrator.ReplanRun(r.Context(), prompt.ReplanInput{
		OriginalRequest:   req.OriginalRequest,
		ExecutedSteps:     executed,
		FailedStepNumber:  req.FailedStepNumber,
		FailedStepCode:    req.FailedStepCode,
		ErrorKind:         req.ErrorKind,
		ErrorMessage:      req.ErrorMessage,
		Output:            req.Output,
		InstalledPackages: req.InstalledPackages,
	})
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"decision":  analysis.Decision,
		"analysis":  analysis.RootCause,
		"reasoning": reasoning,
		"changes":   encodeChanges(analysis.Changes),
	})
}

func (d *Deps) verifyStateHandler(w http.ResponseWriter, r *http.Request) {
	var req verifyStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.Join(errInvalidInput, err))
		return
	}
	sv := d.Orchestrator.VerifyState(r.Context(), in)
	writeJSON(w, http.StatusOK, encodeStateVerification(sv))
}

func (d *Deps) reportExecutionHandler(w http.ResponseWriter, r *http.Request) {
	var req reportExecutionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, statusFor(err), err)
		return
	}
	if req.StepNumber <= 0 {
		writeError(w, http.StatusBadRequest, errors.Join(errInvalidInput, errors.New("stepNumber is required")))
		return
	}
	_ = req.toReport()
	writeJSON(w, http.StatusOK, map[string]any{"acknowledged": true})
}
