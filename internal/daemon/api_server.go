package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"mixdown/internal/authz"
	"mixdown/internal/blob"
	"mixdown/internal/config"
	"mixdown/internal/ingress"
	"mixdown/internal/logging"
	"mixdown/internal/mq"
	"mixdown/internal/pipeline"
)

// maxUploadBytes bounds the multipart form held in memory per upload.
const maxUploadBytes = 2 << 30

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon
	auth   authz.Authorizer

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

type uploadResponse struct {
	JobID string `json:"job_id"`
}

type statusResponse struct {
	Running      bool                    `json:"running"`
	PID          int                     `json:"pid"`
	QueueDBPath  string                  `json:"queue_db_path"`
	BlobDBPath   string                  `json:"blob_db_path"`
	LockFilePath string                  `json:"lock_file_path"`
	Channels     map[string]channelStats `json:"channels"`
	BlobCount    int                     `json:"blob_count"`
}

type channelStats struct {
	Ready   int `json:"ready"`
	Unacked int `json:"unacked"`
}

type queueResponse struct {
	Channels map[string]channelStats `json:"channels"`
}

type purgeResponse struct {
	Purged int64 `json:"purged"`
}

type blobListResponse struct {
	Blobs []blobInfo `json:"blobs"`
}

type blobInfo struct {
	ID        string `json:"id"`
	MediaType string `json:"media_type"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at"`
}

func newAPIServer(cfg *config.Config, d *Daemon, auth authz.Authorizer, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api-server"),
		daemon: d,
		auth:   auth,
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Route("/api", func(r chi.Router) {
		r.Get("/status", srv.handleStatus)
		r.Group(func(r chi.Router) {
			r.Use(srv.requireAuth)
			r.Post("/upload", srv.handleUpload)
			r.Get("/download/{id}", srv.handleDownload)
			r.Get("/queue", srv.handleQueue)
			r.Delete("/queue", srv.handlePurge)
			r.Get("/blobs", srv.handleBlobs)
			r.Post("/notify/test", srv.handleTestNotify)
		})
	})

	srv.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// requireAuth resolves the caller identity and stashes it in the request
// context.
func (s *apiServer) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, err := s.auth.Authorize(r)
		if err != nil {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r.WithContext(authz.WithIdentity(r.Context(), identity)))
	})
}

// handleUpload accepts exactly one multipart file and enqueues its
// conversion for the authenticated user.
func (s *apiServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	var files []string
	for field, headers := range r.MultipartForm.File {
		for range headers {
			files = append(files, field)
		}
	}
	if len(files) != 1 {
		s.writeError(w, http.StatusBadRequest, "exactly one file is required")
		return
	}

	file, _, err := r.FormFile(files[0])
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "unreadable file payload")
		return
	}
	defer file.Close()

	owner := authz.IdentityFromContext(r.Context()).Username
	if owner == "" {
		owner = strings.TrimSpace(r.FormValue("username"))
	}

	jobID, err := s.daemon.Submit(r.Context(), file, owner)
	switch {
	case err == nil:
		s.writeJSON(w, http.StatusCreated, uploadResponse{JobID: jobID})
	case errors.Is(err, ingress.ErrInvalidOwner):
		s.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, pipeline.ErrPublish):
		s.writeError(w, http.StatusServiceUnavailable, "queue unavailable, upload discarded")
	default:
		s.logger.Error("upload failed", logging.Error(err))
		s.writeError(w, http.StatusInternalServerError, "upload failed")
	}
}

// handleDownload streams a stored blob.
func (s *apiServer) handleDownload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	info, err := s.daemon.blobs.Stat(r.Context(), id)
	if errors.Is(err, blob.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "no such file")
		return
	}
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	content, err := s.daemon.blobs.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	mediaType := info.MediaType
	if mediaType == "" {
		mediaType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", mediaType)
	if mediaType == "audio/mpeg" {
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".mp3"))
	}
	w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
	_, _ = w.Write(content)
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status := s.daemon.Status(r.Context())
	s.writeJSON(w, http.StatusOK, statusResponse{
		Running:      status.Running,
		PID:          status.PID,
		QueueDBPath:  status.QueueDBPath,
		BlobDBPath:   status.BlobDBPath,
		LockFilePath: status.LockFilePath,
		Channels:     convertStats(status.Channels),
		BlobCount:    status.BlobCount,
	})
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	stats, err := s.daemon.broker.Stats(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, queueResponse{Channels: convertStats(stats)})
}

func (s *apiServer) handlePurge(w http.ResponseWriter, r *http.Request) {
	if !authz.IdentityFromContext(r.Context()).Admin {
		s.writeError(w, http.StatusForbidden, "admin required")
		return
	}
	purged, err := s.daemon.PurgeQueue(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, purgeResponse{Purged: purged})
}

func (s *apiServer) handleBlobs(w http.ResponseWriter, r *http.Request) {
	infos, err := s.daemon.blobs.List(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := blobListResponse{Blobs: make([]blobInfo, 0, len(infos))}
	for _, info := range infos {
		resp.Blobs = append(resp.Blobs, blobInfo{
			ID:        info.ID,
			MediaType: info.MediaType,
			Size:      info.Size,
			CreatedAt: info.CreatedAt.Format(time.RFC3339),
		})
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleTestNotify(w http.ResponseWriter, r *http.Request) {
	recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
	if recipient == "" {
		recipient = authz.IdentityFromContext(r.Context()).Username
	}
	if recipient == "" {
		s.writeError(w, http.StatusBadRequest, "recipient required")
		return
	}
	if err := s.daemon.TestNotification(r.Context(), recipient); err != nil {
		s.writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"result": "test notification sent"})
}

func convertStats(stats map[string]mq.ChannelStats) map[string]channelStats {
	out := make(map[string]channelStats, len(stats))
	for name, s := range stats {
		out[name] = channelStats{Ready: s.Ready, Unacked: s.Unacked}
	}
	return out
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
