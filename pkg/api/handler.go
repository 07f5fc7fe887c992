// Package api is the HTTP and WebSocket surface of the server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shirou/gopsutil/v3/disk"
	"go.opentelemetry.io/otel/attribute"

	"github.com/suzxlabs/ytserver/pkg/artifacts"
	"github.com/suzxlabs/ytserver/pkg/logging"
	"github.com/suzxlabs/ytserver/pkg/models"
	"github.com/suzxlabs/ytserver/pkg/session"
	"github.com/suzxlabs/ytserver/pkg/supervisor"
	"github.com/suzxlabs/ytserver/pkg/tracing"
	"github.com/suzxlabs/ytserver/pkg/worker"
)

const maxRequestBody = 1 << 20

// Jobs admits download jobs. *supervisor.Supervisor implements it.
type Jobs interface {
	Submit(ctx context.Context, req models.JobRequest) (*models.JobRun, error)
	Active() int
}

// Prober fetches format metadata. *worker.Adapter implements it.
type Prober interface {
	Probe(ctx context.Context, url string) (*worker.ProbeResult, error)
}

// Options tune the gateway
type Options struct {
	ProbeTimeout time.Duration
	StaticDir    string
	PongWait     time.Duration // read deadline extended by every pong
	PingInterval time.Duration // must be shorter than PongWait
	Metrics      http.Handler  // served at /metrics when set
}

// Handler serves every gateway route
type Handler struct {
	sessions *session.Registry
	jobs     Jobs
	prober   Prober
	store    *artifacts.Store
	opts     Options
	logger   *logging.Logger
	upgrader websocket.Upgrader
	started  time.Time
}

// NewHandler creates the gateway handler
func NewHandler(sessions *session.Registry, jobs Jobs, prober Prober, store *artifacts.Store, opts Options, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = time.Minute
	}
	if opts.PongWait <= 0 {
		opts.PongWait = 60 * time.Second
	}
	if opts.PingInterval <= 0 || opts.PingInterval >= opts.PongWait {
		opts.PingInterval = opts.PongWait * 9 / 10
	}

	return &Handler{
		sessions: sessions,
		jobs:     jobs,
		prober:   prober,
		store:    store,
		opts:     opts,
		logger:   logger.WithField("component", "api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
		started: time.Now(),
	}
}

// RegisterRoutes registers all gateway routes
func (h *Handler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/ws", h.ServeWS).Methods("GET")
	r.HandleFunc("/download", h.Download).Methods("POST")
	r.HandleFunc("/download-audio", h.DownloadAudio).Methods("POST")
	r.HandleFunc("/formats", h.Formats).Methods("POST")
	r.Handle(h.store.Prefix()+"/{name}", h.store.Handler()).Methods("GET", "HEAD")
	r.HandleFunc("/health", h.Health).Methods("GET")

	if h.opts.Metrics != nil {
		r.Handle("/metrics", h.opts.Metrics).Methods("GET")
	}

	// Static files go last so they never shadow an API route.
	if h.opts.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(h.opts.StaticDir))).Methods("GET", "HEAD")
	}
}

// NewRouter builds a router with the gateway routes and middlewares
func NewRouter(h *Handler, middlewares ...mux.MiddlewareFunc) *mux.Router {
	r := mux.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}
	h.RegisterRoutes(r)
	return r
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

type jobResponse struct {
	Success bool   `json:"success"`
	JobID   string `json:"jobId"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Error: message})
}

// Download admits a merged video+audio job
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.JobModeMedia)
}

// DownloadAudio admits an mp3 extraction job
func (h *Handler) DownloadAudio(w http.ResponseWriter, r *http.Request) {
	h.submit(w, r, models.JobModeAudio)
}

func (h *Handler) submit(w http.ResponseWriter, r *http.Request, mode models.JobMode) {
	var req models.JobRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body.")
		return
	}
	req.Mode = mode

	run, err := h.jobs.Submit(r.Context(), req)
	switch {
	case err == nil:
	case errors.Is(err, models.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, supervisor.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	default:
		h.logger.Error("Failed to admit job", logging.Fields{"error": err.Error(), "session": req.ClientID})
		writeError(w, http.StatusInternalServerError, "Failed to start download.")
		return
	}

	tracing.AddEvent(r.Context(), "job.admitted",
		attribute.String("job.id", run.ID),
		attribute.String("job.mode", string(mode)),
	)
	writeJSON(w, http.StatusOK, jobResponse{Success: true, JobID: run.ID})
}

type formatsRequest struct {
	URL string `json:"url"`
}

type formatsResponse struct {
	Success      bool                  `json:"success"`
	Title        string                `json:"title"`
	Thumbnail    string                `json:"thumbnail"`
	VideoID      string                `json:"videoId"`
	Duration     float64               `json:"duration"`
	Formats      []worker.FormatOption `json:"formats"`
	VideoFormats []worker.FormatOption `json:"videoFormats"`
	AudioFormats []worker.FormatOption `json:"audioFormats"`
}

// Formats lists the downloadable variants of a URL
func (h *Handler) Formats(w http.ResponseWriter, r *http.Request) {
	var req formatsRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil || req.URL == "" {
		writeError(w, http.StatusBadRequest, "URL is required.")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.ProbeTimeout)
	defer cancel()

	result, err := h.prober.Probe(ctx, req.URL)
	if err != nil {
		h.logger.Warn("Format lookup failed", logging.Fields{"url": req.URL, "error": err.Error()})
		tracing.SetError(r.Context(), err)
		writeError(w, http.StatusInternalServerError, "Failed to fetch video formats.")
		return
	}

	writeJSON(w, http.StatusOK, formatsResponse{
		Success:      true,
		Title:        result.Title,
		Thumbnail:    result.Thumbnail,
		VideoID:      result.ID,
		Duration:     result.Duration,
		Formats:      result.CombinedFormats(),
		VideoFormats: result.VideoFormats(),
		AudioFormats: result.AudioFormats(),
	})
}

type diskInfo struct {
	Path        string  `json:"path"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
	UsedPercent float64 `json:"used_percent"`
}

type healthResponse struct {
	Status     string    `json:"status"`
	Uptime     string    `json:"uptime"`
	Sessions   int       `json:"sessions"`
	ActiveJobs int       `json:"active_jobs"`
	Disk       *diskInfo `json:"disk,omitempty"`
}

// Health reports liveness plus session, job and disk figures
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:     "healthy",
		Uptime:     time.Since(h.started).Round(time.Second).String(),
		Sessions:   h.sessions.Count(),
		ActiveJobs: h.jobs.Active(),
	}

	if usage, err := disk.Usage(h.store.Dir()); err == nil {
		resp.Disk = &diskInfo{
			Path:        h.store.Dir(),
			TotalBytes:  usage.Total,
			FreeBytes:   usage.Free,
			UsedPercent: usage.UsedPercent,
		}
	} else {
		h.logger.Debug("Disk usage unavailable", logging.Fields{"error": err.Error()})
	}

	writeJSON(w, http.StatusOK, resp)
}
