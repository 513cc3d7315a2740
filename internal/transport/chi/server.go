package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/supportgraph/internal/domain"
	domentity "github.com/kailas-cloud/supportgraph/internal/domain/entity"
	domjob "github.com/kailas-cloud/supportgraph/internal/domain/job"
	domsim "github.com/kailas-cloud/supportgraph/internal/domain/similarity"
	domsug "github.com/kailas-cloud/supportgraph/internal/domain/suggestion"
	healthuc "github.com/kailas-cloud/supportgraph/internal/usecase/health"
	"github.com/kailas-cloud/supportgraph/internal/usecase/pipeline"
	"github.com/kailas-cloud/supportgraph/internal/usecase/similarity"
)

// maxJobEntities bounds synchronous submissions; larger batches go through the queue.
const maxJobEntities = 500

// JobRunner runs a pipeline job synchronously.
type JobRunner interface {
	Run(ctx context.Context, ids []string, opts domjob.Options) (*pipeline.Report, error)
}

// JobReader loads persisted jobs.
type JobReader interface {
	Get(ctx context.Context, id openapi_types.UUID) (*domjob.Job, error)
}

// EntityReader loads a single entity.
type EntityReader interface {
	Get(ctx context.Context, id string) (*domentity.Entity, error)
}

// SimilarityFinder ranks neighbours of a query.
type SimilarityFinder interface {
	FindSimilar(ctx context.Context, q similarity.Query, o domsim.Overrides) ([]domsim.Candidate, error)
}

// SuggestionLister lists suggestions derived for an entity.
type SuggestionLister interface {
	ListBySource(ctx context.Context, sourceID string) ([]domsug.Suggestion, error)
}

// HealthChecker reports component health.
type HealthChecker interface {
	Check(ctx context.Context) healthuc.Report
}

// Deps groups the use cases served over HTTP.
type Deps struct {
	Jobs        JobRunner
	JobStore    JobReader
	Entities    EntityReader
	Similarity  SimilarityFinder
	Suggestions SuggestionLister
	Health      HealthChecker
}

// Server serves the operational HTTP API.
type Server struct {
	deps          Deps
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		deps:   deps,
		logger: logger,
		errorHandlers: []errorHandler{
			sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
			sentinelHandler(domain.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited),
			sentinelHandler(domain.ErrProviderUnavailable, http.StatusBadGateway, CodeProviderUnavailable),
			sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderUnavailable),
			sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
		},
	}
}

// Routes mounts the API on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/health", s.GetHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Post("/jobs", s.CreateJob)
	r.Get("/jobs/{jobID}", s.GetJob)
	r.Get("/entities/{entityID}/similar", s.GetSimilar)
	r.Get("/entities/{entityID}/suggestions", s.ListSuggestions)
}

// CreateJobRequest is the body of POST /jobs and of queue messages.
type CreateJobRequest struct {
	EntityIDs []string       `json:"entity_ids"`
	Options   domjob.Options `json:"options"`
}

// Validate checks ids and similarity overrides.
func (r CreateJobRequest) Validate() error {
	if len(r.EntityIDs) == 0 {
		return errors.New("entity_ids is required")
	}
	if len(r.EntityIDs) > maxJobEntities {
		return errors.New("too many entity_ids")
	}
	for _, id := range r.EntityIDs {
		if strings.TrimSpace(id) == "" {
			return errors.New("entity_ids must not contain empty values")
		}
	}
	if r.Options.Concurrency < 0 {
		return errors.New("options.concurrency must be non-negative")
	}
	if err := r.Options.Similarity.Apply(domsim.DefaultOptions()).Validate(); err != nil {
		return err
	}
	return nil
}

// CreateJob handles POST /jobs. The job runs synchronously and its report is returned.
func (s *Server) CreateJob(w http.ResponseWriter, r *http.Request) {
	var req CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	report, err := s.deps.Jobs.Run(r.Context(), req.EntityIDs, req.Options)
	if err != nil {
		if report == nil {
			s.handleDomainError(w, err)
			return
		}
		// The job record carries the failure; the report is still useful to the caller.
		writeJSON(w, http.StatusUnprocessableEntity, report)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// JobResponse is the persisted view of a job.
type JobResponse struct {
	ID        openapi_types.UUID   `json:"id"`
	EntityIDs []string             `json:"entity_ids"`
	Options   domjob.Options       `json:"options"`
	Status    domjob.Status        `json:"status"`
	Turns     []domjob.TurnSummary `json:"turns,omitempty"`
	Summary   *domjob.Summary      `json:"summary,omitempty"`
	Error     string               `json:"error,omitempty"`
	CreatedAt string               `json:"created_at"`
	UpdatedAt string               `json:"updated_at"`
}

// GetJob handles GET /jobs/{jobID}.
func (s *Server) GetJob(w http.ResponseWriter, r *http.Request) {
	var jobID openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "jobID", chi.URLParam(r, "jobID"), &jobID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter jobID")
		return
	}

	j, err := s.deps.JobStore.Get(r.Context(), jobID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, jobToResponse(j))
}

// SimilarResponse lists ranked neighbours of an entity.
type SimilarResponse struct {
	EntityID   string             `json:"entity_id"`
	Candidates []domsim.Candidate `json:"candidates"`
}

// GetSimilar handles GET /entities/{entityID}/similar.
// Query parameters: limit, keyword (repeatable), min_score.
func (s *Server) GetSimilar(w http.ResponseWriter, r *http.Request) {
	entityID, ok := bindEntityID(w, r)
	if !ok {
		return
	}

	var (
		limit    *int
		minScore *float64
		keywords []string
	)
	q := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "limit", q, &limit); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter limit")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "min_score", q, &minScore); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter min_score")
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "keyword", q, &keywords); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter keyword")
		return
	}

	var opts domsim.Overrides
	if limit != nil {
		if *limit < 1 || *limit > 100 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "limit must be between 1 and 100")
			return
		}
		opts.Limit = limit
	}
	if minScore != nil {
		if *minScore < 0 || *minScore > 1 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, "min_score must be between 0 and 1")
			return
		}
		opts.MinScore = minScore
	}

	e, err := s.deps.Entities.Get(r.Context(), entityID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	cands, err := s.deps.Similarity.FindSimilar(r.Context(), similarity.Query{
		EntityID: e.ID,
		Text:     queryText(e),
		Keywords: keywords,
	}, opts)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if cands == nil {
		cands = []domsim.Candidate{}
	}

	writeJSON(w, http.StatusOK, SimilarResponse{EntityID: e.ID, Candidates: cands})
}

// SuggestionsResponse lists suggestions derived for an entity.
type SuggestionsResponse struct {
	EntityID    string               `json:"entity_id"`
	Suggestions []domsug.Suggestion `json:"suggestions"`
}

// ListSuggestions handles GET /entities/{entityID}/suggestions.
func (s *Server) ListSuggestions(w http.ResponseWriter, r *http.Request) {
	entityID, ok := bindEntityID(w, r)
	if !ok {
		return
	}

	items, err := s.deps.Suggestions.ListBySource(r.Context(), entityID)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if items == nil {
		items = []domsug.Suggestion{}
	}

	writeJSON(w, http.StatusOK, SuggestionsResponse{EntityID: entityID, Suggestions: items})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status healthuc.Status                 `json:"status"`
	Checks map[string]healthuc.CheckResult `json:"checks"`
}

// GetHealth handles GET /health.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	report := s.deps.Health.Check(r.Context())

	status := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, HealthResponse{Status: report.Status, Checks: report.Checks})
}

func bindEntityID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var entityID string
	err := runtime.BindStyledParameterWithOptions("simple", "entityID", chi.URLParam(r, "entityID"), &entityID,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil || strings.TrimSpace(entityID) == "" {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid format for parameter entityID")
		return "", false
	}
	return entityID, true
}

func queryText(e *domentity.Entity) string {
	transcript := e.Transcript()
	if e.Title == "" {
		return transcript
	}
	if transcript == "" {
		return e.Title
	}
	return e.Title + "\n\n" + transcript
}

func jobToResponse(j *domjob.Job) JobResponse {
	const layout = "2006-01-02T15:04:05.000Z07:00"
	return JobResponse{
		ID:        j.ID,
		EntityIDs: j.EntityIDs,
		Options:   j.Options,
		Status:    j.Status,
		Turns:     j.Turns,
		Summary:   j.Summary,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.UTC().Format(layout),
		UpdatedAt: j.UpdatedAt.UTC().Format(layout),
	}
}
