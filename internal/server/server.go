package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strconv"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"sntplan/internal/domain"
	"sntplan/internal/engine"
	"sntplan/internal/engine/auth"
	"sntplan/internal/repo"
	"sntplan/internal/tailoring"
	"sntplan/internal/workflow"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"not_found"`
	Message string         `json:"message" example:"project missing not found"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type requestKey struct{}
type bodyBytesKey struct{}

// apiError is the error envelope every endpoint returns.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the planning API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bodyBytes, _ := io.ReadAll(r.Body)
			r.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
			ctx := context.WithValue(r.Context(), requestKey{}, r)
			ctx = context.WithValue(ctx, bodyBytesKey{}, bodyBytes)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("SNT Planning API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerProjects(group, cfg.Engine)
	registerStatus(group, cfg.Engine)
	registerWorkflow(group, cfg.Engine)
	registerDataSources(group, cfg.Engine)
	registerStratification(group, cfg.Engine)
	registerScenarios(group, cfg.Engine)
	registerForecasts(group, cfg.Engine)
	registerTailoring(group, cfg.Engine)
	registerReports(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerMe(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	startWebhookDispatcher(cfg.Engine)

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
	var fe auth.ForbiddenError
	if errors.As(err, &fe) {
		return newAPIError(http.StatusForbidden, "forbidden", err.Error(), map[string]any{"role": fe.Role})
	}
	if errors.Is(err, repo.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "cannot be completed"):
		return newAPIError(http.StatusUnprocessableEntity, "validation_failed", msg, nil)
	case strings.Contains(lowered, "no decision tree"):
		return newAPIError(http.StatusNotFound, "not_found", msg, nil)
	case strings.Contains(lowered, "invalid"),
		strings.Contains(lowered, "unknown"),
		strings.Contains(lowered, "required"),
		strings.Contains(lowered, "missing"),
		strings.Contains(lowered, "must be"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
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
	case http.StatusForbidden:
		return "forbidden"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func principalFromRequest(ctx context.Context) (Principal, huma.StatusError) {
	if p, ok := principalFromContext(ctx); ok && p.ActorID != "" {
		return p, nil
	}
	return Principal{}, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
}

// requireRole admits the request when the principal carries a strong
// enough JWT role or holds minRole or stronger on the project.
func requireRole(ctx context.Context, e engine.Engine, projectID, minRole string) error {
	principal, authErr := principalFromRequest(ctx)
	if authErr != nil {
		return authErr
	}
	for _, r := range principal.Roles {
		if auth.Stronger(r, minRole) {
			return nil
		}
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	svc := auth.Service{DB: e.DB}
	return svc.RequireRole(ctx, tx, projectID, principal.ActorID, minRole)
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			ensureDefaultErrorResponses(oas)
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
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

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	oas.Components.SecuritySchemes["apiKeyAuth"] = &huma.SecurityScheme{
		Type: "apiKey",
		In:   "header",
		Name: "X-Api-Key",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
		{"apiKeyAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
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
    <title>SNT Planning API Docs</title>
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
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt; or X-Api-Key.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusUnauthorized,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.ProjectCreateOptions{
			ID:          stringOrEmpty(input.Body.ID),
			Name:        input.Body.Name,
			Description: stringOrEmpty(input.Body.Description),
			Country:     input.Body.Country,
			ActorID:     actorID,
		}
		if input.Body.AdminLevel != nil {
			opts.AdminLevel = *input.Body.AdminLevel
		}
		if input.Body.Year != nil {
			opts.Year = *input.Body.Year
		}
		p, err := e.CreateProject(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects",
	}, func(ctx context.Context, input *struct {
		IncludeArchived bool `query:"include_archived"`
	}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		items, err := e.Repo.ListProjects(ctx, input.IncludeArchived)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleManager); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.UpdateProject(ctx, engine.ProjectUpdateOptions{
			ID:          input.ProjectID,
			Name:        input.Body.Name,
			Description: input.Body.Description,
			Status:      input.Body.Status,
			ActorID:     actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "archive-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/archive",
		Summary:     "Archive project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleManager); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.ArchiveProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/restore",
		Summary:     "Restore archived project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleManager); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.RestoreProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add project member",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleManager); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.AddMember(ctx, input.ProjectID, input.Body.ActorID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List project members",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})
}

func registerStatus(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "project-status",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/status",
		Summary:     "Project status",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body map[string]any `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		p, err := e.Repo.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		wf, err := e.GetWorkflow(ctx, p.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body map[string]any `json:"body"`
		}{Body: map[string]any{
			"project_id":       p.ID,
			"name":             p.Name,
			"status":           p.Status,
			"is_archived":      p.IsArchived,
			"overall_progress": wf.OverallProgress,
			"current_step":     wf.CurrentStep,
		}}, nil
	})
}

func registerWorkflow(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-workflow",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workflow",
		Summary:     "Workflow state",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.WorkflowView `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		wf, err := e.GetWorkflow(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.WorkflowView `json:"body"`
		}{Body: wf}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-workflow-step",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/workflow/{step}",
		Summary:     "Workflow step detail",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Step      string `path:"step"`
	}) (*struct {
		Body engine.StepView `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		sv, err := e.GetStep(ctx, input.ProjectID, workflow.Step(input.Step))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StepView `json:"body"`
		}{Body: sv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-workflow-step",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/workflow/{step}",
		Summary:     "Update workflow step",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Step      string            `path:"step"`
		Body      UpdateStepRequest `json:"body"`
	}) (*struct {
		Body engine.StepView `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sv, err := e.UpdateStep(ctx, input.ProjectID, workflow.Step(input.Step), engine.StepUpdateOptions{
			Notes:      input.Body.Notes,
			Completion: input.Body.Completion,
			Data:       input.Body.Data,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StepView `json:"body"`
		}{Body: sv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "validate-workflow-step",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/workflow/{step}/validate",
		Summary:     "Validate workflow step",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Step      string `path:"step"`
	}) (*struct {
		Body engine.StepValidation `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		v, err := e.ValidateStep(ctx, input.ProjectID, workflow.Step(input.Step))
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StepValidation `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-workflow-step",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/workflow/{step}/complete",
		Summary:     "Complete workflow step",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusUnprocessableEntity,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Step      string `path:"step"`
	}) (*struct {
		Body engine.StepView `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sv, err := e.CompleteStep(ctx, input.ProjectID, workflow.Step(input.Step), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StepView `json:"body"`
		}{Body: sv}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reopen-workflow-step",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/workflow/{step}/reopen",
		Summary:     "Reopen workflow step",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Step      string `path:"step"`
	}) (*struct {
		Body engine.StepView `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sv, err := e.ReopenStep(ctx, input.ProjectID, workflow.Step(input.Step), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StepView `json:"body"`
		}{Body: sv}, nil
	})
}

func registerDataSources(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "register-data-source",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/data-sources",
		Summary:       "Register data source",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		Body      CreateDataSourceRequest `json:"body"`
	}) (*struct {
		Body domain.DataSource `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		opts := engine.DataSourceCreateOptions{
			ProjectID:      input.ProjectID,
			Name:           input.Body.Name,
			Description:    stringOrEmpty(input.Body.Description),
			SourceType:     input.Body.SourceType,
			FileFormat:     stringOrEmpty(input.Body.FileFormat),
			YearStart:      input.Body.YearStart,
			YearEnd:        input.Body.YearEnd,
			Disaggregation: input.Body.Disaggregation,
			ActorID:        actorID,
		}
		if input.Body.CSVContent != nil {
			opts.CSV = []byte(*input.Body.CSVContent)
		}
		ds, err := e.RegisterDataSource(ctx, opts)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.DataSource `json:"body"`
		}{Body: ds}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-data-sources",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/data-sources",
		Summary:     "List data sources",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.DataSource `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListDataSources(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.DataSource `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-data-source",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/data-sources/{id}",
		Summary:     "Get data source",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.DataSource `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		ds, err := e.Repo.GetDataSource(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if ds.ProjectID != input.ProjectID {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body domain.DataSource `json:"body"`
		}{Body: ds}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-data-source",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/data-sources/{id}",
		Summary:     "Delete data source",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteDataSource(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "run-quality-checks",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/data-sources/{id}/quality-checks",
		Summary:     "Run data quality checks",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		ID        string              `path:"id"`
		Body      QualityCheckRequest `json:"body"`
	}) (*struct {
		Body engine.QualityReport `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := e.RunQualityChecks(ctx, input.ID, []byte(input.Body.CSVContent), actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.QualityReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-quality-report",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/data-sources/{id}/quality-report",
		Summary:     "Stored quality report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body engine.QualityReport `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		rep, err := e.GetQualityReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.QualityReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerStratification(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-stratification-config",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/stratifications",
		Summary:       "Create stratification config",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		Body      CreateStratConfigRequest `json:"body"`
	}) (*struct {
		Body StratConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.CreateStratConfig(ctx, engine.StratConfigCreateOptions{
			ProjectID:  input.ProjectID,
			Name:       input.Body.Name,
			Metric:     input.Body.Metric,
			Thresholds: input.Body.Thresholds,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StratConfigResponse `json:"body"`
		}{Body: stratConfigResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stratification-configs",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stratifications",
		Summary:     "List stratification configs",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []StratConfigResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListStratConfigs(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StratConfigResponse, 0, len(items))
		for _, c := range items {
			res = append(res, stratConfigResponse(c))
		}
		return &struct {
			Body []StratConfigResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-stratification-config",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/stratifications/{id}",
		Summary:     "Update stratification config",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                   `path:"project_id"`
		ID        string                   `path:"id"`
		Body      UpdateStratConfigRequest `json:"body"`
	}) (*struct {
		Body StratConfigResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, err := e.UpdateStratConfig(ctx, engine.StratConfigUpdateOptions{
			ID:         input.ID,
			Name:       input.Body.Name,
			Thresholds: input.Body.Thresholds,
			IsActive:   input.Body.IsActive,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body StratConfigResponse `json:"body"`
		}{Body: stratConfigResponse(c)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "calculate-stratification",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/stratifications/{id}/calculate",
		Summary:     "Calculate stratification",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		ID        string                `path:"id"`
		Body      CalculateStratRequest `json:"body"`
	}) (*struct {
		Body []StratResultResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		results, err := e.CalculateStratification(ctx, input.ID, input.Body.Units, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StratResultResponse, 0, len(results))
		for _, r := range results {
			res = append(res, stratResultResponse(r))
		}
		return &struct {
			Body []StratResultResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-stratification-results",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stratifications/{id}/results",
		Summary:     "Stratification results",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body []StratResultResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		results, err := e.Repo.ListStratResults(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]StratResultResponse, 0, len(results))
		for _, r := range results {
			res = append(res, stratResultResponse(r))
		}
		return &struct {
			Body []StratResultResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stratification-summary",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stratifications/{id}/summary",
		Summary:     "Stratification summary",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body engine.StratSummary `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		sum, err := e.StratificationSummary(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.StratSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "stratification-geojson",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/stratifications/{id}/geojson",
		Summary:     "Stratification map layer",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body engine.GeoJSONFeatureCollection `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		fc, err := e.StratificationGeoJSON(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.GeoJSONFeatureCollection `json:"body"`
		}{Body: fc}, nil
	})
}

func registerScenarios(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-scenario",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/scenarios",
		Summary:       "Create scenario",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      CreateScenarioRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.CreateScenario(ctx, engine.ScenarioCreateOptions{
			ProjectID:     input.ProjectID,
			Name:          input.Body.Name,
			Description:   stringOrEmpty(input.Body.Description),
			ScenarioType:  input.Body.ScenarioType,
			Interventions: input.Body.Interventions,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-scenarios",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/scenarios",
		Summary:     "List scenarios",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []ScenarioResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListScenarios(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ScenarioResponse, 0, len(items))
		for _, s := range items {
			res = append(res, scenarioResponse(s))
		}
		return &struct {
			Body []ScenarioResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compare-scenarios",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/scenarios/compare",
		Summary:     "Compare scenarios",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.ScenarioComparison `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		cmp, err := e.CompareScenarios(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ScenarioComparison `json:"body"`
		}{Body: cmp}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-scenario",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/scenarios/{id}",
		Summary:     "Get scenario",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		s, err := e.Repo.GetScenario(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if s.ProjectID != input.ProjectID {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-scenario",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/scenarios/{id}",
		Summary:     "Update scenario",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		ID        string                `path:"id"`
		Body      UpdateScenarioRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.UpdateScenario(ctx, engine.ScenarioUpdateOptions{
			ID:            input.ID,
			Name:          input.Body.Name,
			Description:   input.Body.Description,
			Interventions: input.Body.Interventions,
			IsSelected:    input.Body.IsSelected,
			ActorID:       actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-scenario",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/scenarios/{id}",
		Summary:     "Delete scenario",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeleteScenario(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "cost-scenario",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/scenarios/{id}/cost",
		Summary:     "Calculate scenario cost",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		ID        string              `path:"id"`
		Body      CostScenarioRequest `json:"body"`
	}) (*struct {
		Body engine.CostSummary `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		sum, err := e.CalculateScenarioCost(ctx, input.ID, input.Body.Populations, input.Body.UnitCosts, input.Body.Years, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CostSummary `json:"body"`
		}{Body: sum}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "optimize-scenario",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/scenarios/{id}/optimize",
		Summary:     "Optimize scenario under budget",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                  `path:"project_id"`
		ID        string                  `path:"id"`
		Body      OptimizeScenarioRequest `json:"body"`
	}) (*struct {
		Body ScenarioResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		s, err := e.OptimizeScenario(ctx, input.ID, input.Body.Budget, input.Body.Populations, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ScenarioResponse `json:"body"`
		}{Body: scenarioResponse(s)}, nil
	})
}

func registerForecasts(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "run-forecast",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/scenarios/{id}/forecasts",
		Summary:       "Run forecast",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		ID        string             `path:"id"`
		Body      RunForecastRequest `json:"body"`
	}) (*struct {
		Body ForecastResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		f, err := e.RunForecast(ctx, engine.ForecastRunOptions{
			ScenarioID: input.ID,
			ModelType:  input.Body.ModelType,
			Years:      input.Body.Years,
			Baseline:   input.Body.Baseline,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body ForecastResponse `json:"body"`
		}{Body: forecastResponse(f)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-forecasts",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/scenarios/{id}/forecasts",
		Summary:     "List scenario forecasts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body []ForecastResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListForecasts(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]ForecastResponse, 0, len(items))
		for _, f := range items {
			res = append(res, forecastResponse(f))
		}
		return &struct {
			Body []ForecastResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "compare-forecasts",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/forecasts/compare",
		Summary:     "Compare scenario forecasts",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body engine.ForecastComparison `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		cmp, err := e.CompareForecasts(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ForecastComparison `json:"body"`
		}{Body: cmp}, nil
	})
}

func registerTailoring(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-decision-trees",
		Method:      http.MethodGet,
		Path:        "/tailoring/trees",
		Summary:     "List tailoring decision trees",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []tailoring.Tree `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body []tailoring.Tree `json:"body"`
		}{Body: tailoring.AllTrees()}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-decision-tree",
		Method:      http.MethodGet,
		Path:        "/tailoring/trees/{code}",
		Summary:     "Get tailoring decision tree",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Code string `path:"code"`
	}) (*struct {
		Body tailoring.Tree `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		tree, err := tailoring.GetTree(input.Code)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tailoring.Tree `json:"body"`
		}{Body: tree}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "recommend-intervention",
		Method:      http.MethodPost,
		Path:        "/tailoring/recommendations",
		Summary:     "Tailoring recommendation for one unit",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Body RecommendRequest `json:"body"`
	}) (*struct {
		Body tailoring.Recommendation `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		rec, err := e.Recommend(input.Body.InterventionCode, input.Body.RiskLevel, input.Body.Context)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body tailoring.Recommendation `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-plan",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/plans",
		Summary:       "Create intervention plan",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreatePlanRequest `json:"body"`
	}) (*struct {
		Body PlanResponse `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreatePlan(ctx, engine.PlanCreateOptions{
			ProjectID:        input.ProjectID,
			AdminUnitName:    input.Body.AdminUnitName,
			AdminUnitCode:    stringOrEmpty(input.Body.AdminUnitCode),
			InterventionCode: input.Body.InterventionCode,
			Decisions:        input.Body.Decisions,
			CoverageTarget:   input.Body.CoverageTarget,
			DeliveryStrategy: stringOrEmpty(input.Body.DeliveryStrategy),
			TargetPopulation: input.Body.TargetPopulation,
			Notes:            stringOrEmpty(input.Body.Notes),
			ActorID:          actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body PlanResponse `json:"body"`
		}{Body: planResponse(p)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-plans",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/plans",
		Summary:     "List intervention plans",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []PlanResponse `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListPlans(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		res := make([]PlanResponse, 0, len(items))
		for _, p := range items {
			res = append(res, planResponse(p))
		}
		return &struct {
			Body []PlanResponse `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-plan",
		Method:      http.MethodDelete,
		Path:        "/projects/{project_id}/plans/{id}",
		Summary:     "Delete intervention plan",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct{}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := e.DeletePlan(ctx, input.ID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerReports(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "generate-report",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/reports",
		Summary:       "Generate report",
		DefaultStatus: http.StatusCreated,
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string                `path:"project_id"`
		Body      GenerateReportRequest `json:"body"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		if len(bodyBytes(ctx)) == 0 {
			return nil, newAPIError(http.StatusBadRequest, "bad_request", "body required", nil)
		}
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleAnalyst); err != nil {
			return nil, handleError(err)
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := e.GenerateReport(ctx, engine.ReportGenerateOptions{
			ProjectID:  input.ProjectID,
			Title:      stringOrEmpty(input.Body.Title),
			ReportType: input.Body.ReportType,
			Format:     input.Body.Format,
			Parameters: input.Body.Parameters,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/reports",
		Summary:     "List reports",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
	}) (*struct {
		Body []domain.Report `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		items, err := e.Repo.ListReports(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Report `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/reports/{id}",
		Summary:     "Get report",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		ID        string `path:"id"`
	}) (*struct {
		Body domain.Report `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		rec, err := e.Repo.GetReport(ctx, input.ID)
		if err != nil {
			return nil, handleError(err)
		}
		if rec.ProjectID != input.ProjectID {
			return nil, handleError(repo.ErrNotFound)
		}
		return &struct {
			Body domain.Report `json:"body"`
		}{Body: rec}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		ProjectID  string `path:"project_id"`
		Type       string `query:"type"`
		EntityKind string `query:"entity_kind"`
		EntityID   string `query:"entity_id"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if err := requireRole(ctx, e, input.ProjectID, domain.RoleViewer); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEventsFrom(ctx, limit+1, cursorID, input.ProjectID, input.Type, input.EntityKind, input.EntityID)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit].ID)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		ProjectID string `query:"project_id"`
	}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		principal, authErr := principalFromRequest(ctx)
		if authErr != nil {
			return nil, authErr
		}
		res := MeResponse{ActorID: principal.ActorID, Source: principal.Source}
		projectID := input.ProjectID
		if projectID == "" && e.Config != nil {
			projectID = e.Config.Project.ID
		}
		if projectID != "" {
			if role, err := e.Repo.MemberRole(ctx, projectID, principal.ActorID); err == nil {
				res.Role = role
			}
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: res}, nil
	})
}

func bodyBytes(ctx context.Context) []byte {
	if buf, ok := ctx.Value(bodyBytesKey{}).([]byte); ok {
		return buf
	}
	req, ok := ctx.Value(requestKey{}).(*http.Request)
	if !ok || req == nil {
		return nil
	}
	data, _ := io.ReadAll(req.Body)
	return data
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
