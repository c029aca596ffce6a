package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"aeval/internal/chat"
	"aeval/internal/domain"
	"aeval/internal/engine"
	"aeval/internal/fixtures"
	"aeval/internal/metadata"
	"aeval/internal/onboarding"
	"aeval/internal/ratelimit"
	"aeval/internal/recommend"
	"aeval/internal/repo"
	"aeval/internal/session"
	"aeval/internal/wizard"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	// Limiter throttles chat turns per client IP; nil disables throttling.
	Limiter ratelimit.Limiter
	Logger  *slog.Logger
	// SessionTTL bounds how long idle chat and wizard sessions are kept.
	SessionTTL time.Duration
	// MCPServer, when set, is mounted at /mcp over streamable HTTP.
	MCPServer *mcpserver.MCPServer
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"turn_in_flight"`
	Message string         `json:"message" example:"a response is already pending"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"session_id\":\"4f1c\"}"`
}

// apiError is the {"error":{code,message}} body every failure returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// state is what the handlers share beyond the engine.
type state struct {
	engine  engine.Engine
	chats   *session.Store[*chat.Session]
	wizards *session.Store[*wizard.Session]
	// profile is the cached onboarding answers; nil until onboarded.
	profile atomic.Pointer[domain.OnboardingAnswers]
}

// New returns an HTTP handler exposing the aeval API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := cfg.SessionTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	st := &state{
		engine:  cfg.Engine,
		chats:   session.NewStore[*chat.Session](ttl),
		wizards: session.NewStore[*wizard.Session](ttl),
	}
	profile, err := cfg.Engine.Profile(context.Background())
	if err != nil {
		return nil, fmt.Errorf("load onboarding profile: %w", err)
	}
	st.profile.Store(profile)

	huma.DefaultArrayNullable = false
	// Every huma error goes out as an apiError.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// request validation failures map to 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	chatPrefix := path.Join(basePath, "chat")
	router := chi.NewRouter()
	router.Use(requestIDMiddleware)
	router.Use(tracingMiddleware)
	router.Use(loggingMiddleware(logger))
	router.Use(rateLimitMiddleware(cfg.Limiter, logger, func(r *http.Request) bool {
		return r.Method == http.MethodPost && strings.HasPrefix(r.URL.Path, chatPrefix)
	}))
	hcfg := huma.DefaultConfig("aeval API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group, st)
	registerCatalog(group, cfg.Engine)
	registerRules(group, cfg.Engine)
	registerMetadata(group, cfg.Engine)
	registerChat(group, st)
	registerWizard(group, st)
	registerOnboarding(group, st)
	registerEvents(group, cfg.Engine)
	registerEvaluations(group, cfg.Engine)
	if err := registerOpenAPI(router, api, basePath); err != nil {
		return nil, err
	}
	if cfg.MCPServer != nil {
		router.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case errors.Is(err, repo.ErrNotFound),
		errors.Is(err, fixtures.ErrNotFound),
		errors.Is(err, session.ErrNotFound),
		errors.Is(err, chat.ErrMessageNotFound):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case errors.Is(err, chat.ErrTurnInFlight):
		return newAPIError(http.StatusConflict, "turn_in_flight", msg, nil)
	case errors.Is(err, chat.ErrSessionReset),
		errors.Is(err, wizard.ErrNotActive),
		errors.Is(err, wizard.ErrAtLastStep):
		return newAPIError(http.StatusConflict, "conflict", msg, nil)
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, wizard.ErrUnknownDataset),
		errors.Is(err, wizard.ErrUnknownMetric),
		errors.Is(err, wizard.ErrUnknownScenario),
		errors.Is(err, wizard.ErrInvalidMode),
		errors.Is(err, onboarding.ErrAnswerRequired),
		errors.Is(err, onboarding.ErrIncomplete),
		errors.Is(err, metadata.ErrUnknownField),
		errors.Is(err, metadata.ErrUnsupportedFormat),
		errors.Is(err, metadata.ErrMalformedContent):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	case errors.Is(err, wizard.ErrNameRequired),
		errors.Is(err, metadata.ErrNameRequired),
		errors.Is(err, wizard.ErrDatasetRequired),
		errors.Is(err, wizard.ErrCannotSubmit),
		errors.Is(err, wizard.ErrNotAtReview),
		errors.Is(err, recommend.ErrEmptyMetrics),
		errors.Is(err, chat.ErrNoRecommendation):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newAPIError(http.StatusServiceUnavailable, "canceled", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

// registerOpenAPI must run after every operation is registered: the document
// is patched and marshalled once, before the router serves anything.
func registerOpenAPI(r chi.Router, api huma.API, basePath string) error {
	oas := api.OpenAPI()
	ensureDefaultErrorResponses(oas)
	spec, err := json.Marshal(oas)
	if err != nil {
		return fmt.Errorf("marshal openapi: %w", err)
	}
	r.Get(path.Join(basePath, "openapi.json"), func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
	return nil
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil {
		return
	}
	for _, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if op.Responses == nil {
				op.Responses = map[string]*huma.Response{}
			}
			op.Responses["default"] = &huma.Response{
				Description: "Error",
				Content: map[string]*huma.MediaType{
					"application/json": {
						Schema: &huma.Schema{Ref: "#/components/schemas/ApiError"},
					},
				},
			}
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>aeval API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
  </body>
</html>`, specURL)
}

type healthBody struct {
	Status         string `json:"status" example:"ok"`
	ChatSessions   int    `json:"chat_sessions" doc:"Live chat sessions"`
	WizardSessions int    `json:"wizard_sessions" doc:"Live wizard sessions"`
}

func registerHealth(api huma.API, st *state) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body healthBody `json:"body"`
	}, error) {
		return &struct {
			Body healthBody `json:"body"`
		}{Body: healthBody{Status: "ok", ChatSessions: st.chats.Len(), WizardSessions: st.wizards.Len()}}, nil
	})
}

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
