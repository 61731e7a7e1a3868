package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"

	"github.com/robfig/cron/v3"
	"github.com/samber/lo"

	"shopify-catalog-scraper/adapters"
	"shopify-catalog-scraper/internal/store"
	"shopify-catalog-scraper/internal/types"
	"shopify-catalog-scraper/orchestrator"
)

const statusRuns = 10

var errUnknownCategory = errors.New("unknown category")

// APIResponse represents the response from the API
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ReprocessRequest is the body of a reprocess call. Both fields are optional.
type ReprocessRequest struct {
	Statuses []string            `json:"statuses"`
	Options  types.ScrapeOptions `json:"options"`
}

// StatusResponse is the stored state of a supplier
type StatusResponse struct {
	Supplier  string                  `json:"supplier"`
	Summary   *store.Summary          `json:"summary"`
	Runs      []store.Run             `json:"runs"`
	ActiveJob *orchestrator.JobStatus `json:"active_job,omitempty"`
}

// Server exposes the orchestrator over HTTP. Crawls run as background jobs
// polled through /jobs.
type Server struct {
	orch   *orchestrator.Orchestrator
	jobs   *orchestrator.Jobs
	logger types.Logger
}

// NewServer creates a new API server
func NewServer(orch *orchestrator.Orchestrator, jobs *orchestrator.Jobs, logger types.Logger) *Server {
	return &Server{orch: orch, jobs: jobs, logger: logger}
}

// Handler returns the routes of the server
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /suppliers", s.handleSuppliers)
	mux.HandleFunc("GET /suppliers/{supplier}/categories", s.handleCategories)
	mux.HandleFunc("GET /suppliers/{supplier}/subcategories", s.handleSubcategories)
	mux.HandleFunc("GET /suppliers/{supplier}/status", s.handleStatus)
	mux.HandleFunc("POST /suppliers/{supplier}/scrape", s.handleScrape)
	mux.HandleFunc("POST /suppliers/{supplier}/reprocess", s.handleReprocess)
	mux.HandleFunc("GET /jobs", s.handleJobs)
	mux.HandleFunc("GET /jobs/{id}", s.handleJob)
	mux.HandleFunc("POST /jobs/{id}/cancel", s.handleCancel)
	mux.HandleFunc("GET /jobs/{id}/output", s.handleOutput)
	return withCORS(mux)
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleHealth handles the health check endpoint
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleSuppliers(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.orch.Suppliers())
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := s.orch.GetCategories(r.Context(), r.PathValue("supplier"), types.Callbacks{})
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, categories)
}

// handleSubcategories takes the category as ?url= or ?name=
func (s *Server) handleSubcategories(w http.ResponseWriter, r *http.Request) {
	supplier := r.PathValue("supplier")
	category := types.Category{Name: r.URL.Query().Get("name"), URL: r.URL.Query().Get("url")}
	if category.URL == "" && category.Name == "" {
		s.sendError(w, "Either url or name is required", http.StatusBadRequest)
		return
	}

	if category.URL == "" {
		req := types.ScrapeRequest{Categories: []types.Category{category}}
		if err := s.resolveCategories(r.Context(), supplier, &req, types.Callbacks{}); err != nil {
			s.sendFailure(w, err)
			return
		}
		category = req.Categories[0]
	} else if category.Name == "" {
		category.Name = category.URL
	}

	subs, err := s.orch.GetSubcategories(r.Context(), supplier, category, types.Callbacks{})
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, subs)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	supplier := r.PathValue("supplier")
	summary, err := s.orch.Summary(r.Context(), supplier)
	if err != nil {
		s.sendFailure(w, err)
		return
	}
	runs, err := s.orch.Runs(r.Context(), supplier, statusRuns)
	if err != nil {
		s.sendFailure(w, err)
		return
	}

	response := StatusResponse{Supplier: supplier, Summary: summary, Runs: runs}
	if job, ok := s.jobs.Active(supplier); ok {
		response.ActiveJob = lo.ToPtr(job.Status())
	}
	s.sendJSON(w, http.StatusOK, response)
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	supplier := r.PathValue("supplier")
	if !s.startable(w, supplier) {
		return
	}

	var req types.ScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Categories) == 0 && req.Options.CollectionURL == "" {
		s.sendError(w, "No category selected", http.StatusBadRequest)
		return
	}

	s.logger.Infof("API scrape request for %s: %d categories", supplier, len(req.Categories))
	job, started := s.jobs.StartExclusive(supplier, func(ctx context.Context, cb types.Callbacks) (string, error) {
		if err := s.resolveCategories(ctx, supplier, &req, cb); err != nil {
			return "", err
		}
		return s.orch.Scrape(ctx, supplier, req, cb)
	})
	s.sendStarted(w, job, started)
}

func (s *Server) handleReprocess(w http.ResponseWriter, r *http.Request) {
	supplier := r.PathValue("supplier")
	if !s.startable(w, supplier) {
		return
	}

	var req ReprocessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.sendError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	statuses, err := parseStatuses(req.Statuses)
	if err != nil {
		s.sendError(w, err.Error(), http.StatusBadRequest)
		return
	}

	job, started := s.startReprocess(supplier, statuses, req.Options)
	s.sendStarted(w, job, started)
}

func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, s.jobs.List())
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	s.sendJSON(w, http.StatusOK, job.Status())
}

// handleCancel asks the job to stop after its current product
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	job.Cancel()
	s.logger.Infof("Cancel requested for job %s", job.ID())
	s.sendJSON(w, http.StatusAccepted, job.Status())
}

// handleOutput serves the import file of a finished job
func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	job, ok := s.job(w, r)
	if !ok {
		return
	}
	status := job.Status()
	if status.OutputPath == "" {
		s.sendError(w, "No import file for this job", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(status.OutputPath)))
	http.ServeFile(w, r, status.OutputPath)
}

func (s *Server) job(w http.ResponseWriter, r *http.Request) (*orchestrator.Job, bool) {
	job, ok := s.jobs.Get(r.PathValue("id"))
	if !ok {
		s.sendError(w, "Job not found", http.StatusNotFound)
	}
	return job, ok
}

// startable refuses a job for a supplier that can't be crawled or is busy
func (s *Server) startable(w http.ResponseWriter, supplier string) bool {
	if _, err := s.orch.Scraper(supplier); err != nil {
		s.sendFailure(w, err)
		return false
	}
	if job, busy := s.jobs.Active(supplier); busy {
		s.sendBusy(w, job)
		return false
	}
	return true
}

// sendStarted answers with the new job, or with the job that kept it from starting
func (s *Server) sendStarted(w http.ResponseWriter, job *orchestrator.Job, started bool) {
	if !started {
		s.sendBusy(w, job)
		return
	}
	s.sendJSON(w, http.StatusAccepted, job.Status())
}

func (s *Server) sendBusy(w http.ResponseWriter, job *orchestrator.Job) {
	s.sendError(w, fmt.Sprintf("Job %s is already running for %s", job.ID(), job.Status().Supplier), http.StatusConflict)
}

func (s *Server) startReprocess(supplier string, statuses []types.Status, opts types.ScrapeOptions) (*orchestrator.Job, bool) {
	return s.jobs.StartExclusive(supplier, func(ctx context.Context, cb types.Callbacks) (string, error) {
		return s.orch.Reprocess(ctx, supplier, statuses, opts, cb)
	})
}

// resolveCategories fills in the URL of categories given by name only
func (s *Server) resolveCategories(ctx context.Context, supplier string, req *types.ScrapeRequest, cb types.Callbacks) error {
	if !lo.SomeBy(req.Categories, func(c types.Category) bool { return c.URL == "" }) {
		return nil
	}
	available, err := s.orch.GetCategories(ctx, supplier, cb)
	if err != nil {
		return err
	}
	for i, category := range req.Categories {
		if category.URL != "" {
			continue
		}
		found, ok := lo.Find(available, func(c types.Category) bool {
			return adapters.SameName(c.Name, category.Name) || (c.Code != "" && c.Code == category.Name)
		})
		if !ok {
			return fmt.Errorf("%s %q: %w", supplier, category.Name, errUnknownCategory)
		}
		req.Categories[i] = found
	}
	return nil
}

// ScheduleReprocess reprocesses the errored products of every available
// supplier on a cron schedule.
func (s *Server) ScheduleReprocess(spec string) (*cron.Cron, error) {
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(spec, func() { s.reprocessAll() }); err != nil {
		return nil, fmt.Errorf("invalid reprocess schedule %q: %w", spec, err)
	}
	scheduler.Start()
	return scheduler, nil
}

func (s *Server) reprocessAll() []*orchestrator.Job {
	var started []*orchestrator.Job
	for _, supplier := range s.orch.Suppliers() {
		if supplier.Error != "" {
			continue
		}
		job, ok := s.startReprocess(supplier.Name, []types.Status{types.StatusError}, types.ScrapeOptions{})
		if !ok {
			s.logger.Infof("Scheduled reprocess of %s skipped, job %s is running", supplier.Name, job.ID())
			continue
		}
		s.logger.Infof("Scheduled reprocess of %s errored products", supplier.Name)
		started = append(started, job)
	}
	return started
}

func parseStatuses(values []string) ([]types.Status, error) {
	known := []types.Status{types.StatusPending, types.StatusProcessing, types.StatusCompleted, types.StatusError}
	var statuses []types.Status
	for _, value := range values {
		status := types.ParseStatus(value)
		if !lo.Contains(known, status) {
			return nil, fmt.Errorf("unknown status %q", value)
		}
		statuses = append(statuses, status)
	}
	return lo.Uniq(statuses), nil
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, types.ErrUnknownSupplier), errors.Is(err, errUnknownCategory):
		return http.StatusNotFound
	case errors.Is(err, types.ErrMissingCredentials):
		return http.StatusServiceUnavailable
	case errors.Is(err, types.ErrAlreadyRunning):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) sendFailure(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Errorf("API request failed: %v", err)
	}
	s.sendError(w, err.Error(), status)
}

func (s *Server) sendJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(APIResponse{Success: true, Data: data}); err != nil {
		s.logger.Errorf("Failed to encode response: %v", err)
	}
}

// sendError sends an error response
func (s *Server) sendError(w http.ResponseWriter, message string, statusCode int) {
	response := APIResponse{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Errorf("Failed to encode error response: %v", err)
	}
}
