package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/docutag/productmeta"
	"github.com/docutag/productmeta/cache"
	"github.com/docutag/productmeta/models"
	"github.com/docutag/productmeta/slug"
	"github.com/docutag/productmeta/storage"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline is the part of *productmeta.Extractor the server uses
type Pipeline interface {
	Extract(ctx context.Context, pageURL string, opts productmeta.Options) (*models.Report, error)
	QuickAdd(ctx context.Context, pageURL string, budget time.Duration) (*models.Report, error)
}

// Server represents the API server
type Server struct {
	pipeline Pipeline
	cache    cache.Cache         // may be nil
	images   storage.ImageStore  // may be nil, images are then returned inline
	gatherer prometheus.Gatherer // may be nil
	logger   *slog.Logger
	config   Config
	server   *http.Server
	mux      *http.ServeMux
}

// Config contains server configuration
type Config struct {
	Addr           string
	AllowedOrigins []string      // CORS origins, "*" allows any; empty disables CORS
	RequestTimeout time.Duration // Upper bound for a single /api/metadata extraction
	CacheTTL       time.Duration
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AllowedOrigins: []string{"*"},
		RequestTimeout: 90 * time.Second,
		CacheTTL:       6 * time.Hour,
	}
}

// Dependencies are the collaborators a Server is built from. Only Pipeline
// is required.
type Dependencies struct {
	Pipeline Pipeline
	Cache    cache.Cache
	Images   storage.ImageStore
	Gatherer prometheus.Gatherer
	Logger   *slog.Logger
}

// NewServer creates a new API server
func NewServer(config Config, deps Dependencies) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		pipeline: deps.Pipeline,
		cache:    deps.Cache,
		images:   deps.Images,
		gatherer: deps.Gatherer,
		logger:   logger,
		config:   config,
		mux:      http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: config.RequestTimeout + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/api/metadata", s.handleMetadata)
	s.mux.HandleFunc("/api/quick-add", s.handleQuickAdd)
	s.mux.HandleFunc("/api/title", s.handleTitle)
	s.mux.HandleFunc("/api/images/", s.handleImage) // Handles /api/images/{key}
	if s.gatherer != nil {
		s.mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
}

// Handler returns the root handler with middleware applied
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the API server
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.config.Addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.server.Shutdown(ctx)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowedOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Skip health checks and metric scrapes to reduce noise
		start := time.Now()
		next.ServeHTTP(w, r)
		if r.URL.Path != "/health" && r.URL.Path != "/metrics" {
			s.logger.Info("request completed",
				"method", r.Method,
				"path", r.URL.Path,
				"duration", time.Since(start).String(),
			)
		}
	})
}

func (s *Server) allowedOrigin(origin string) string {
	if slices.Contains(s.config.AllowedOrigins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.config.AllowedOrigins, origin) {
		return origin
	}
	return ""
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// handleMetadata runs the full extraction, serving repeated URLs from the cache
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.MetadataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	key := cache.MetadataKey(req.URL, req.Render)
	if !req.Force {
		if cached, ok := s.cachedResponse(r.Context(), key); ok {
			respondJSON(w, http.StatusOK, cached)
			return
		}
	}

	ctx := r.Context()
	if s.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.RequestTimeout)
		defer cancel()
	}

	report, err := s.pipeline.Extract(ctx, req.URL, productmeta.Options{Render: req.Render})
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	resp := s.buildResponse(r.Context(), report)
	s.storeResponse(r.Context(), key, resp)

	respondJSON(w, http.StatusOK, resp)
}

// handleQuickAdd runs the budgeted extraction. Results are never cached since
// a timed out run would otherwise hide a complete one.
func (s *Server) handleQuickAdd(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req models.QuickAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.URL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}
	if req.TimeoutMS < 0 {
		respondError(w, http.StatusBadRequest, "timeout_ms must not be negative")
		return
	}

	budget := time.Duration(req.TimeoutMS) * time.Millisecond
	report, err := s.pipeline.QuickAdd(r.Context(), req.URL, budget)
	if err != nil {
		s.respondPipelineError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, s.buildResponse(r.Context(), report))
}

// handleTitle derives a title from the URL alone without any network access
func (s *Server) handleTitle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	pageURL := r.URL.Query().Get("url")
	if pageURL == "" {
		respondError(w, http.StatusBadRequest, "url is required")
		return
	}

	respondJSON(w, http.StatusOK, models.TitleResponse{
		URL:   pageURL,
		Title: productmeta.TitleFromURL(pageURL),
	})
}

// handleImage serves and deletes stored images
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/images/")
	if key == "" {
		respondError(w, http.StatusBadRequest, "key is required")
		return
	}

	if s.images == nil {
		respondError(w, http.StatusNotFound, "image storage is not configured")
		return
	}

	if err := storage.ValidateKey(key); err != nil {
		respondError(w, http.StatusBadRequest, "invalid image key")
		return
	}

	switch r.Method {
	case http.MethodGet:
		data, err := s.images.ReadImage(r.Context(), key)
		if errors.Is(err, storage.ErrNotFound) {
			respondError(w, http.StatusNotFound, "image not found")
			return
		}
		if err != nil {
			s.logger.Error("failed to read image", "key", key, "error", err)
			respondError(w, http.StatusInternalServerError, "storage error")
			return
		}

		w.Header().Set("Content-Type", storage.ContentTypeFromKey(key))
		w.Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		w.WriteHeader(http.StatusOK)
		w.Write(data)

	case http.MethodDelete:
		if err := s.images.DeleteImage(r.Context(), key); err != nil {
			s.logger.Error("failed to delete image", "key", key, "error", err)
			respondError(w, http.StatusInternalServerError, "storage error")
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// buildResponse converts a report to its API form, writing the image to the
// image store when one is configured
func (s *Server) buildResponse(ctx context.Context, report *models.Report) *models.MetadataResponse {
	resp := &models.MetadataResponse{
		ID:             uuid.New().String(),
		URL:            report.URL,
		SourceImageURL: report.ImageURL,
		TitleSource:    report.TitleSource,
		PriceSource:    report.PriceSource,
		ImageSource:    report.ImageSource,
		Fetcher:        report.Fetcher,
		TimedOut:       report.TimedOut,
		ProcessingTime: report.ProcessingTime,
		Warnings:       report.Warnings,
	}

	meta := report.Metadata
	if meta.HasTitle() {
		resp.Title = *meta.Title
	}
	if meta.Price != nil {
		resp.Price = meta.Price.StringFixed(2)
	}

	if !meta.HasImage() {
		return resp
	}

	if s.images != nil {
		key, err := s.images.SaveImage(ctx, meta.Image, slug.ForProduct(resp.Title, report.URL), "image/jpeg")
		if err == nil {
			resp.ImageKey = key
			return resp
		}
		s.logger.Warn("failed to store image, returning it inline", "url", report.URL, "error", err)
		resp.Warnings = append(resp.Warnings, "Image could not be stored; returned inline")
	}

	resp.ImageBase64 = base64.StdEncoding.EncodeToString(meta.Image)
	return resp
}

func (s *Server) cachedResponse(ctx context.Context, key string) (*models.MetadataResponse, bool) {
	if s.cache == nil {
		return nil, false
	}

	data, err := s.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, cache.ErrCacheMiss) {
			s.logger.Warn("cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var resp models.MetadataResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		s.logger.Warn("discarding undecodable cache entry", "key", key, "error", err)
		return nil, false
	}
	resp.Cached = true
	return &resp, true
}

func (s *Server) storeResponse(ctx context.Context, key string, resp *models.MetadataResponse) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		s.logger.Warn("failed to encode cache entry", "key", key, "error", err)
		return
	}
	if err := s.cache.Set(ctx, key, data, s.config.CacheTTL); err != nil {
		s.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

// respondPipelineError maps the few errors the pipeline returns to statuses
func (s *Server) respondPipelineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, productmeta.ErrInvalidURL):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "extraction timed out")
	default:
		s.logger.Info("extraction aborted", "error", err)
		respondError(w, http.StatusServiceUnavailable, "extraction aborted")
	}
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError sends an error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
