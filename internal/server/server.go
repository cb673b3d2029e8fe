package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"reflect"
	"strings"
	"sync"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"frameforge/internal/domain"
	"frameforge/internal/events"
	"frameforge/internal/notify"
	"frameforge/internal/pipeline"
	"frameforge/internal/schema"
)

// Config for the HTTP API handler.
type Config struct {
	Pipeline *pipeline.Pipeline
	BasePath string
	Logger   *zap.Logger
	// Registry backs GET /metrics. HTTP metrics are registered on it too.
	Registry *prometheus.Registry
	// WebhookStats feeds the health response.
	WebhookStats func() notify.Stats
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_state"`
	Message string         `json:"message" example:"plan_scenes: session is QUESTIONS_ISSUED, requires NARRATIVE_ANALYZED"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the FrameForge API.
func New(cfg Config) (http.Handler, error) {
	if cfg.Pipeline == nil {
		return nil, errors.New("server: pipeline is required")
	}
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	stats := cfg.WebhookStats
	if stats == nil {
		stats = func() notify.Stats { return notify.Stats{} }
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Request schema errors are the caller's input, not a phase result.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger(logger.Named("http")))
	if cfg.Registry != nil {
		router.Use(newHTTPMetrics(cfg.Registry).middleware)
		router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	hcfg := huma.DefaultConfig("FrameForge API", "1.0.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	p := cfg.Pipeline
	registerDocs(router, basePath)
	registerHealth(group, p, stats)
	registerSessions(group, p)
	registerRefinement(group, p)
	registerQuestions(group, p)
	registerNarrative(group, p)
	registerPlan(group, p)
	registerWebhook(group, p)
	registerExecution(group, p)
	registerEvents(group, p)
	registerOpenAPI(router, api, basePath)

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
	var verr *schema.ValidationError
	if errors.As(err, &verr) {
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", err.Error(), map[string]any{
			"kind":       verr.Kind,
			"violations": verr.Violations,
		})
	}
	var ise *pipeline.InvalidStateError
	if errors.As(err, &ise) {
		return newAPIError(http.StatusConflict, "invalid_state", err.Error(), map[string]any{
			"operation":      ise.Op,
			"current_phase":  ise.Current,
			"allowed_phases": ise.Allowed,
		})
	}
	var pe *pipeline.PreconditionError
	if errors.As(err, &pe) {
		details := map[string]any{"condition": pe.Condition}
		for k, v := range pe.Details {
			details[k] = v
		}
		return newAPIError(http.StatusPreconditionFailed, "precondition_failed", err.Error(), details)
	}
	var rle *pipeline.RevisionLimitError
	if errors.As(err, &rle) {
		return newAPIError(http.StatusTooManyRequests, "revision_limit_exceeded", err.Error(), map[string]any{"limit": rle.Limit})
	}
	if errors.Is(err, pipeline.ErrSessionNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "invalid_state"
	case http.StatusPreconditionFailed:
		return "precondition_failed"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusTooManyRequests:
		return "revision_limit_exceeded"
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

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var (
		once sync.Once
		spec []byte
	)
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		once.Do(func() {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			spec, _ = json.Marshal(oas)
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func ensureDefaultErrorResponses(oas *huma.OpenAPI) {
	if oas == nil || oas.Paths == nil || oas.Components == nil || oas.Components.Schemas == nil {
		return
	}
	errSchema := oas.Components.Schemas.Schema(reflect.TypeOf(apiError{}), true, "ApiError")
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
					"application/json": {Schema: errSchema},
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
    <title>FrameForge API Docs</title>
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

func registerHealth(api huma.API, p *pipeline.Pipeline, stats func() notify.Stats) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body HealthResponse `json:"body"`
	}, error) {
		return &struct {
			Body HealthResponse `json:"body"`
		}{Body: HealthResponse{Status: "ok", Sessions: len(p.Sessions()), Webhooks: stats()}}, nil
	})
}

type sessionOutput struct {
	Body domain.SessionView `json:"body"`
}

func registerSessions(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "create-session",
		Method:      http.MethodPost,
		Path:        "/sessions",
		Summary:     "Create a session",
	}, func(ctx context.Context, input *struct {
		Body *CreateSessionRequest `json:"body,omitempty"`
	}) (*sessionOutput, error) {
		id := ""
		if input.Body != nil {
			id = input.Body.ID
		}
		view, err := p.CreateSession(ctx, id)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/sessions",
		Summary:     "List sessions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body SessionListResponse `json:"body"`
	}, error) {
		return &struct {
			Body SessionListResponse `json:"body"`
		}{Body: SessionListResponse{Items: p.Sessions()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-session",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}",
		Summary:     "Get session status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*sessionOutput, error) {
		view, err := p.Status(input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionOutput{Body: view}, nil
	})
}

func phaseOf(p *pipeline.Pipeline, id string) domain.SessionView {
	view, _ := p.Status(id)
	return view
}

type refinementOutput struct {
	Body RefinementResponse `json:"body"`
}

func refinementResponse(p *pipeline.Pipeline, id string, res domain.RefinementResult) *refinementOutput {
	view := phaseOf(p, id)
	return &refinementOutput{Body: RefinementResponse{
		SessionID:     id,
		Phase:         view.Phase,
		RevisionCount: view.RevisionCount,
		Refinement:    res,
	}}
}

func registerRefinement(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "refine-prompt",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/refine",
		Summary:     "Refine the original prompt",
		Errors:      []int{http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" maxLength:"128"`
		Body      RefineRequest
	}) (*refinementOutput, error) {
		res, err := p.Refine(ctx, input.SessionID, input.Body.Prompt)
		if err != nil {
			return nil, handleError(err)
		}
		return refinementResponse(p, input.SessionID, res), nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "approve-prompt",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/approve",
		Summary:     "Approve or reject the refined prompt",
		Errors: []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed,
			http.StatusUnprocessableEntity, http.StatusTooManyRequests},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		Body      ApproveRequest
	}) (*refinementOutput, error) {
		res, err := p.Approve(ctx, input.SessionID, input.Body.Approved, input.Body.Feedback)
		if err != nil {
			return nil, handleError(err)
		}
		return refinementResponse(p, input.SessionID, res), nil
	})
}

type progressOutput struct {
	Body ProgressResponse `json:"body"`
}

func registerQuestions(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "issue-questions",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/questions",
		Summary:     "Issue clarifying questions",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body QuestionsResponse `json:"body"`
	}, error) {
		qs, err := p.IssueQuestions(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body QuestionsResponse `json:"body"`
		}{Body: QuestionsResponse{
			SessionID: input.SessionID,
			Phase:     phaseOf(p, input.SessionID).Phase,
			Questions: qs.Questions,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "record-answer",
		Method:      http.MethodPut,
		Path:        "/sessions/{session_id}/answers/{question_id}",
		Summary:     "Record an answer",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID  string `path:"session_id"`
		QuestionID string `path:"question_id"`
		Body       AnswerRequest
	}) (*progressOutput, error) {
		prog, err := p.RecordAnswer(ctx, input.SessionID, input.QuestionID, input.Body.Answer)
		if err != nil {
			return nil, handleError(err)
		}
		return &progressOutput{Body: ProgressResponse{
			SessionID: input.SessionID,
			Phase:     phaseOf(p, input.SessionID).Phase,
			Progress:  prog,
		}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "submit-answers",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/answers/submit",
		Summary:     "Close questioning",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*progressOutput, error) {
		prog, err := p.SubmitAnswers(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &progressOutput{Body: ProgressResponse{
			SessionID: input.SessionID,
			Phase:     phaseOf(p, input.SessionID).Phase,
			Progress:  prog,
		}}, nil
	})
}

func registerNarrative(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "analyze-narrative",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/narrative",
		Summary:     "Analyze the narrative",
		Description: "Only the narrative arc and dominant tone are returned.",
		Errors: []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed,
			http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body NarrativeResponse `json:"body"`
	}, error) {
		summary, err := p.AnalyzeNarrative(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body NarrativeResponse `json:"body"`
		}{Body: NarrativeResponse{
			SessionID: input.SessionID,
			Phase:     phaseOf(p, input.SessionID).Phase,
			Narrative: summary,
		}}, nil
	})
}

func registerPlan(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "plan-scenes",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/plan",
		Summary:     "Plan scenes",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		plan, err := p.PlanScenes(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: PlanResponse{
			SessionID: input.SessionID,
			Phase:     phaseOf(p, input.SessionID).Phase,
			Plan:      plan,
		}}, nil
	})
}

func registerWebhook(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "configure-webhook",
		Method:      http.MethodPut,
		Path:        "/sessions/{session_id}/webhook",
		Summary:     "Configure the session webhook",
		Errors:      []int{http.StatusBadRequest, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id" maxLength:"128"`
		Body      WebhookRequest
	}) (*struct {
		Body WebhookResponse `json:"body"`
	}, error) {
		view, err := p.ConfigureWebhook(ctx, input.SessionID, domain.WebhookConfig{
			URL:     input.Body.URL,
			Enabled: input.Body.Enabled,
			Events:  input.Body.Events,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body WebhookResponse `json:"body"`
		}{Body: WebhookResponse{SessionID: input.SessionID, Webhook: view}}, nil
	})
}

func registerExecution(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "record-execution-step",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/execution/{step}",
		Summary:     "Record an execution step",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		Step      string `path:"step" enum:"cuts,voice_over,subtitles,render"`
	}) (*sessionOutput, error) {
		view, err := p.RecordExecutionStep(ctx, input.SessionID, domain.ExecutionStep(input.Step))
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionOutput{Body: view}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-execution",
		Method:      http.MethodPost,
		Path:        "/sessions/{session_id}/complete",
		Summary:     "Mark the final render complete",
		Errors:      []int{http.StatusNotFound, http.StatusConflict, http.StatusPreconditionFailed},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
	}) (*sessionOutput, error) {
		view, err := p.CompleteExecution(ctx, input.SessionID)
		if err != nil {
			return nil, handleError(err)
		}
		return &sessionOutput{Body: view}, nil
	})
}

func registerEvents(api huma.API, p *pipeline.Pipeline) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/sessions/{session_id}/events",
		Summary:     "List recent session events",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		SessionID string `path:"session_id"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		items, err := p.Events(ctx, input.SessionID, normalizeLimit(input.Limit))
		if err != nil {
			return nil, handleError(err)
		}
		resp := EventListResponse{Items: items}
		if resp.Items == nil {
			resp.Items = []events.Event{}
		}
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: resp}, nil
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
