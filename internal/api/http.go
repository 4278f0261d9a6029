package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/your-org/segmentflow/internal/job"
	"github.com/your-org/segmentflow/internal/media"
	"github.com/your-org/segmentflow/internal/segment"
	"github.com/your-org/segmentflow/internal/upload"
)

// HTTPHandler exposes the chunk upload, status polling, and segment
// serving endpoints.
type HTTPHandler struct {
	chunks       *upload.ChunkStore
	assembler    *upload.Assembler
	segments     *segment.Service
	registry     *job.Registry
	guard        segment.AccessGuard
	logger       *zap.Logger
	maxSizeBytes int64
	formMemBytes int64
	router       chi.Router
}

type Params struct {
	Chunks       *upload.ChunkStore
	Assembler    *upload.Assembler
	Segments     *segment.Service
	Registry     *job.Registry
	Guard        segment.AccessGuard
	Logger       *zap.Logger
	MaxSizeBytes int64
	FormMemBytes int64
}

// NewHTTPHandler constructs the HTTP handler and wires routes.
func NewHTTPHandler(p Params) *HTTPHandler {
	h := &HTTPHandler{
		chunks:       p.Chunks,
		assembler:    p.Assembler,
		segments:     p.Segments,
		registry:     p.Registry,
		guard:        p.Guard,
		logger:       p.Logger,
		maxSizeBytes: p.MaxSizeBytes,
		formMemBytes: p.FormMemBytes,
	}
	h.buildRouter()
	return h
}

func (h *HTTPHandler) buildRouter() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(2 * time.Minute))

	r.Get("/healthz", h.handleHealth)
	r.Post("/api/v1/chunks", h.handleChunk)
	r.Get("/api/v1/status/{assetID}", h.handleStatus)
	r.Get("/{assetID}/"+media.SegmentPrefix+"{segment:[0-9]+}"+media.SegmentExt, h.handleSegment)

	h.router = r
}

// Router exposes the configured chi router.
func (h *HTTPHandler) Router() http.Handler {
	return h.router
}

func (h *HTTPHandler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// handleChunk accepts one uploaded chunk. The final chunk triggers
// synchronous assembly followed by an idempotent hand-off to the
// background segmentation pipeline; the response never waits for
// segmentation.
func (h *HTTPHandler) handleChunk(w http.ResponseWriter, r *http.Request) {
	if r.ContentLength > 0 && h.maxSizeBytes > 0 && r.ContentLength > h.maxSizeBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "chunk too large")
		return
	}
	if err := r.ParseMultipartForm(h.formMemBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	sessionID := r.FormValue("uploadId")
	assetID := r.FormValue("videoId")
	if sessionID == "" || assetID == "" {
		writeError(w, http.StatusBadRequest, "uploadId and videoId are required")
		return
	}
	if !media.ValidAssetID(assetID) {
		h.logger.Warn("rejected malformed asset id", zap.String("asset_id", assetID))
		writeError(w, http.StatusBadRequest, "invalid videoId format")
		return
	}

	chunkIndex, err := strconv.Atoi(r.FormValue("chunkIndex"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "chunkIndex must be an integer")
		return
	}
	totalChunks, err := strconv.Atoi(r.FormValue("totalChunks"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "totalChunks must be an integer")
		return
	}
	if totalChunks < 1 || chunkIndex < 0 || chunkIndex >= totalChunks {
		writeError(w, http.StatusBadRequest, "chunkIndex out of range")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	if err := h.chunks.SaveChunk(sessionID, chunkIndex, file); err != nil {
		h.logger.Error("save chunk failed",
			zap.String("session_id", sessionID), zap.Int("index", chunkIndex), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not store chunk")
		return
	}

	h.logger.Info("chunk received",
		zap.String("asset_id", assetID),
		zap.String("session_id", sessionID),
		zap.Int("index", chunkIndex),
		zap.Int("total", totalChunks))

	if chunkIndex != totalChunks-1 {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("chunk %d of %d received", chunkIndex+1, totalChunks),
		})
		return
	}

	statusPath := "/api/v1/status/" + assetID
	if _, ok := h.registry.Get(assetID); ok {
		// A retry of the final chunk must not rebuild the artifact or
		// start a second pipeline; reclaim the retry's scratch data.
		if err := h.chunks.RemoveSession(sessionID); err != nil {
			h.logger.Warn("could not remove retry scratch dir",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message":    "segmentation already in progress for this asset",
			"asset_id":   assetID,
			"status_url": statusPath,
		})
		return
	}

	assembledPath, err := h.assembler.Assemble(r.Context(), sessionID, assetID, totalChunks)
	if err != nil {
		h.logger.Error("assembly failed", zap.String("asset_id", assetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to assemble file chunks")
		return
	}

	if !h.registry.Begin(assetID) {
		// Lost a race with a concurrent duplicate between the check
		// above and here; its pipeline owns the asset now, so the
		// artifact we just rebuilt has no consumer.
		if err := os.Remove(assembledPath); err != nil {
			h.logger.Warn("could not remove orphaned artifact",
				zap.String("asset_id", assetID), zap.Error(err))
		}
		writeJSON(w, http.StatusAccepted, map[string]string{
			"message":    "segmentation already in progress for this asset",
			"asset_id":   assetID,
			"status_url": statusPath,
		})
		return
	}

	go h.segments.Process(assetID, assembledPath)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"message":    "file assembled, segmentation started",
		"asset_id":   assetID,
		"status_url": statusPath,
	})
}

func (h *HTTPHandler) handleStatus(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	if !media.ValidAssetID(assetID) {
		writeError(w, http.StatusBadRequest, "invalid videoId format")
		return
	}

	st, ok := h.registry.Get(assetID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{
			"status":  string(job.StateNotFound),
			"message": "no job registered for this asset",
		})
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (h *HTTPHandler) handleSegment(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "assetID")
	segmentNumber, err := strconv.Atoi(chi.URLParam(r, "segment"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid segment number")
		return
	}

	path, err := h.guard.Resolve(assetID, segmentNumber)
	switch {
	case err == nil:
	case errors.Is(err, segment.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, segment.ErrForbidden):
		h.logger.Error("forbidden segment access",
			zap.String("asset_id", assetID), zap.Int("segment", segmentNumber))
		writeError(w, http.StatusForbidden, "forbidden")
		return
	case errors.Is(err, segment.ErrSegmentNotFound):
		writeError(w, http.StatusNotFound, "segment not found")
		return
	default:
		h.logger.Error("segment lookup failed", zap.String("asset_id", assetID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "segment lookup failed")
		return
	}

	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, path)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{
		"error": msg,
	})
}
