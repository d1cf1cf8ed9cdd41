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
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"

	"workhub/internal/domain"
	"workhub/internal/engine"
	"workhub/internal/lifecycle"
	"workhub/internal/repo"
)

// Config for the HTTP API handler.
type Config struct {
	Engine      engine.Engine
	BasePath    string
	Auth        AuthConfig
	CORSOrigins []string
	Logger      *slog.Logger
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"restore_blocked"`
	Message string         `json:"message" example:"restore blocked: parent inactive (task t1 is inactive)"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true" example:"{\"ref_type\":\"task\",\"ref_id\":\"t1\"}"`
}

// apiError models the error envelope returned by every endpoint.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the workhub API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v1"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Auth.Logger == nil {
		cfg.Auth.Logger = logger
	}
	huma.DefaultArrayNullable = false
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors are 400 bad_request.
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	if len(cfg.CORSOrigins) > 0 {
		router.Use(cors.New(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
			AllowedHeaders: []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Api-Key", "X-Actor-Id"},
		}).Handler)
	}
	router.Use(requestLogger(logger))
	router.Use(newAuthMiddleware(basePath, cfg.Auth, cfg.Engine.Repo))
	hcfg := huma.DefaultConfig("Workhub API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerDirectory(group, cfg.Engine)
	registerWork(group, cfg.Engine)
	registerEntities(group, cfg.Engine)
	registerAdmin(group, cfg.Engine)
	registerEvents(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "status", rec.status, "duration", time.Since(start))
		})
	}
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
	var blocked *lifecycle.RestoreBlockedError
	if errors.As(err, &blocked) {
		return newAPIError(http.StatusConflict, "restore_blocked", err.Error(), map[string]any{
			"reason":   blocked.Reason,
			"ref_type": blocked.RefType,
			"ref_id":   blocked.RefID,
			"missing":  blocked.Missing,
		})
	}
	var depth *lifecycle.DepthExceededError
	if errors.As(err, &depth) {
		return newAPIError(http.StatusUnprocessableEntity, "depth_exceeded", err.Error(), map[string]any{"max_depth": depth.MaxDepth})
	}
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, domain.ErrConflict):
		return newAPIError(http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, domain.ErrInactiveParent):
		return newAPIError(http.StatusConflict, "inactive_parent", err.Error(), nil)
	case errors.Is(err, domain.ErrValidation):
		return newAPIError(http.StatusBadRequest, "validation_failed", err.Error(), nil)
	case errors.Is(err, domain.ErrInvalidRef):
		return newAPIError(http.StatusBadRequest, "invalid_ref", err.Error(), nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": err.Error()})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
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
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		})
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
	healthPath := path.Join("/", basePath, "health")
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
    <title>Workhub API Docs</title>
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

var createErrors = []int{
	http.StatusBadRequest,
	http.StatusUnauthorized,
	http.StatusNotFound,
	http.StatusConflict,
	http.StatusInternalServerError,
}

func registerDirectory(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-organization",
		Method:        http.MethodPost,
		Path:          "/organizations",
		Summary:       "Create organization",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateOrganizationRequest `json:"body"`
	}) (*struct {
		Body domain.Organization `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		o, err := e.CreateOrganization(ctx, engine.OrganizationCreateOptions{ID: input.Body.ID, Name: input.Body.Name, ActorID: actorID})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Organization `json:"body"`
		}{Body: o}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-department",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/departments",
		Summary:       "Create department",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		OrganizationID string                  `path:"org_id"`
		Body           CreateDepartmentRequest `json:"body"`
	}) (*struct {
		Body domain.Department `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		d, err := e.CreateDepartment(ctx, engine.DepartmentCreateOptions{
			ID:             input.Body.ID,
			OrganizationID: input.OrganizationID,
			Name:           input.Body.Name,
			HeadID:         input.Body.HeadID,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Department `json:"body"`
		}{Body: d}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		OrganizationID string            `path:"org_id"`
		Body           CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		u, err := e.CreateUser(ctx, engine.UserCreateOptions{
			ID:             input.Body.ID,
			OrganizationID: input.OrganizationID,
			DepartmentID:   input.Body.DepartmentID,
			Name:           input.Body.Name,
			Email:          input.Body.Email,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-vendor",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/vendors",
		Summary:       "Create vendor",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		OrganizationID string              `path:"org_id"`
		Body           CreateVendorRequest `json:"body"`
	}) (*struct {
		Body domain.Vendor `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		v, err := e.CreateVendor(ctx, engine.VendorCreateOptions{
			ID:             input.Body.ID,
			OrganizationID: input.OrganizationID,
			Name:           input.Body.Name,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Vendor `json:"body"`
		}{Body: v}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-material",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/materials",
		Summary:       "Create material",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		OrganizationID string                `path:"org_id"`
		Body           CreateMaterialRequest `json:"body"`
	}) (*struct {
		Body domain.Material `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		m, err := e.CreateMaterial(ctx, engine.MaterialCreateOptions{
			ID:             input.Body.ID,
			OrganizationID: input.OrganizationID,
			DepartmentID:   input.Body.DepartmentID,
			VendorID:       input.Body.VendorID,
			Name:           input.Body.Name,
			UnitPrice:      input.Body.UnitPrice,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Material `json:"body"`
		}{Body: m}, nil
	})
}

func registerWork(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/organizations/{org_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		OrganizationID string            `path:"org_id"`
		Body           CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ID:             input.Body.ID,
			OrganizationID: input.OrganizationID,
			DepartmentID:   input.Body.DepartmentID,
			Kind:           input.Body.Kind,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			VendorID:       input.Body.VendorID,
			WatcherIDs:     input.Body.WatcherIDs,
			AssigneeIDs:    input.Body.AssigneeIDs,
			MaterialIDs:    input.Body.MaterialIDs,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-activity",
		Method:        http.MethodPost,
		Path:          "/tasks/{task_id}/activities",
		Summary:       "Log activity on a task",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		TaskID string                `path:"task_id"`
		Body   CreateActivityRequest `json:"body"`
	}) (*struct {
		Body domain.Activity `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateActivity(ctx, engine.ActivityCreateOptions{
			ID:      input.Body.ID,
			TaskID:  input.TaskID,
			Summary: input.Body.Summary,
			ActorID: actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Activity `json:"body"`
		}{Body: a}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-comment",
		Method:        http.MethodPost,
		Path:          "/comments",
		Summary:       "Comment on a task, activity or comment",
		DefaultStatus: http.StatusCreated,
		Errors:        append([]int{http.StatusUnprocessableEntity}, createErrors...),
	}, func(ctx context.Context, input *struct {
		Body CreateCommentRequest `json:"body"`
	}) (*struct {
		Body CommentResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		c, notes, err := e.CreateComment(ctx, engine.CommentCreateOptions{
			ID:         input.Body.ID,
			ParentID:   input.Body.ParentID,
			ParentType: input.Body.ParentType,
			Body:       input.Body.Body,
			MentionIDs: input.Body.MentionIDs,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CommentResponse `json:"body"`
		}{Body: CommentResponse{Comment: c, Notifications: nonNil(notes)}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-attachment",
		Method:        http.MethodPost,
		Path:          "/attachments",
		Summary:       "Attach a file reference",
		DefaultStatus: http.StatusCreated,
		Errors:        createErrors,
	}, func(ctx context.Context, input *struct {
		Body CreateAttachmentRequest `json:"body"`
	}) (*struct {
		Body domain.Attachment `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		a, err := e.CreateAttachment(ctx, engine.AttachmentCreateOptions{
			ID:         input.Body.ID,
			ParentID:   input.Body.ParentID,
			ParentType: input.Body.ParentType,
			FileName:   input.Body.FileName,
			URL:        input.Body.URL,
			ActorID:    actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Attachment `json:"body"`
		}{Body: a}, nil
	})
}

type entityPath struct {
	Type string `path:"type" enum:"organization,department,user,vendor,material,task,activity,comment,attachment,notification"`
	ID   string `path:"id"`
}

func (p entityPath) ref() (domain.Ref, error) {
	t, err := domain.ParseEntityType(p.Type)
	if err != nil {
		return domain.Ref{}, err
	}
	return domain.Ref{Type: t, ID: p.ID}, nil
}

func registerEntities(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "get-entity",
		Method:      http.MethodGet,
		Path:        "/entities/{type}/{id}",
		Summary:     "Get any entity, inactive included",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body EntityResponse `json:"body"`
	}, error) {
		ref, err := input.ref()
		if err != nil {
			return nil, handleError(err)
		}
		ent, err := e.Get(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body EntityResponse `json:"body"`
		}{Body: EntityResponse{Type: ref.Type, Entity: ent}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-entity",
		Method:      http.MethodDelete,
		Path:        "/entities/{type}/{id}",
		Summary:     "Soft-delete an entity and everything it owns",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusInternalServerError},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body CascadeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := input.ref()
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Delete(ctx, ref, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body CascadeResponse `json:"body"`
		}{Body: cascadeResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-entity",
		Method:      http.MethodPost,
		Path:        "/entities/{type}/{id}/restore",
		Summary:     "Restore a single entity",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body RestoreResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		ref, err := input.ref()
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.Restore(ctx, ref, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RestoreResponse `json:"body"`
		}{Body: restoreResponse(res)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "grouping-root",
		Method:      http.MethodGet,
		Path:        "/entities/{type}/{id}/root",
		Summary:     "Resolve the task an entity belongs to",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *entityPath) (*struct {
		Body RootResponse `json:"body"`
	}, error) {
		ref, err := input.ref()
		if err != nil {
			return nil, handleError(err)
		}
		taskID, ok, err := e.GroupingRoot(ctx, ref)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body RootResponse `json:"body"`
		}{Body: RootResponse{Ref: refResponse(ref), Found: ok, TaskID: taskID}}, nil
	})
}

func registerAdmin(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "purge-expired",
		Method:      http.MethodPost,
		Path:        "/admin/purge",
		Summary:     "Physically remove records past their grace window",
		Errors:      []int{http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		DryRun bool `query:"dry_run"`
	}) (*struct {
		Body PurgeResponse `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		report, err := e.PurgeExpired(ctx, input.DryRun)
		if err != nil {
			return nil, handleError(err)
		}
		e.Logger.Info("purge requested", "actor", actorID, "dry_run", input.DryRun, "purged", len(report.Purged))
		return &struct {
			Body PurgeResponse `json:"body"`
		}{Body: purgeResponse(report)}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		OrganizationID string `query:"organization_id"`
		Type           string `query:"type"`
		EntityKind     string `query:"entity_kind"`
		EntityID       string `query:"entity_id"`
		Limit          int    `query:"limit" default:"50"`
		Cursor         string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, cursorID, repo.EventFilter{
			OrganizationID: input.OrganizationID,
			Type:           input.Type,
			EntityKind:     input.EntityKind,
			EntityID:       input.EntityID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
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

func normalizeLimit(in int) int {
	if in <= 0 {
		return 50
	}
	if in > 200 {
		return 200
	}
	return in
}
