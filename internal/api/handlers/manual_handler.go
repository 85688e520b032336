package handlers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/jobs"
	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/services"
	"github.com/markdave123-py/Homedex/internal/uploads"
)

const pdfMIME = "application/pdf"

// ManualOps is the manual workflow behind the handlers.
type ManualOps interface {
	Analyze(ctx context.Context, token string) (*models.ManualMetadata, error)
	ExtractEnglish(ctx context.Context, token string) (*services.EnglishResult, error)
	Commit(ctx context.Context, token string, meta models.ManualMetadata, manualFilename string) (*models.Device, error)
	AttachManual(ctx context.Context, deviceID, filename string, body io.Reader) (*models.Device, error)
}

// JobSubmitter queues a stored PDF for background processing.
type JobSubmitter interface {
	Submit(token, pdfPath string) error
}

type ManualHandler struct {
	uploads   *uploads.Store
	manuals   ManualOps
	processor JobSubmitter
	registry  *jobs.Registry
	maxBytes  int64
}

func NewManualHandler(store *uploads.Store, manuals ManualOps, processor JobSubmitter, registry *jobs.Registry, maxUploadMB int) *ManualHandler {
	return &ManualHandler{
		uploads:   store,
		manuals:   manuals,
		processor: processor,
		registry:  registry,
		maxBytes:  int64(maxUploadMB) << 20,
	}
}

type processResponse struct {
	Token            string   `json:"token"`
	DetectedLanguage string   `json:"detected_language"`
	Translated       bool     `json:"translated"`
	OutputFilename   string   `json:"output_filename"`
	Pages            []int    `json:"pages"`
	Logs             []string `json:"logs"`
}

// Process stores the upload and hands it to the worker pool. It answers
// before any processing happens.
func (h *ManualHandler) Process(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r, h.maxBytes, pdfMIME)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	meta, err := h.uploads.Register(name, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	pdfPath, err := h.uploads.FilePath(meta.Token, meta.StoredFilename)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if err := h.processor.Submit(meta.Token, pdfPath); err != nil {
		h.uploads.Cleanup(meta.Token)
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, processResponse{
		Token:            meta.Token,
		DetectedLanguage: "processing",
		Logs:             []string{"[INFO] Processing started in background. Poll /manuals/process/status/{token} for updates."},
	})
}

func (h *ManualHandler) Status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.registry.Poll(chi.URLParam(r, "token")))
}

func (h *ManualHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if err := h.registry.Cancel(token); err != nil {
		if errors.Is(err, jobs.ErrNotActive) {
			writeError(w, http.StatusNotFound, "Token not found or already completed")
			return
		}
		writeServiceError(w, err)
		return
	}
	log.Info().Str("token", token).Msg("cancellation requested")
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "cancelling",
		Message: "Cancellation requested. Processing will stop at next checkpoint.",
	})
}

// Extract stores the upload and cuts its English pages into a new PDF.
func (h *ManualHandler) Extract(w http.ResponseWriter, r *http.Request) {
	name, data, err := readUpload(w, r, h.maxBytes, pdfMIME)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	meta, err := h.uploads.Register(name, data)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	res, err := h.manuals.ExtractEnglish(r.Context(), meta.Token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type analyzeRequest struct {
	Token string `json:"token"`
}

type analyzeResponse struct {
	Token             string                 `json:"token"`
	SuggestedMetadata *models.ManualMetadata `json:"suggested_metadata"`
}

func (h *ManualHandler) Analyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := decodeJSON(r, &req); err != nil || req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	meta, err := h.manuals.Analyze(r.Context(), req.Token)
	if err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			log.Error().Err(err).Str("token", req.Token).Msg("analysis failed")
			writeError(w, http.StatusInternalServerError, "Analysis failed: "+err.Error())
			return
		}
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{Token: req.Token, SuggestedMetadata: meta})
}

type commitRequest struct {
	Token          string                `json:"token"`
	Metadata       models.ManualMetadata `json:"metadata"`
	ManualFilename string                `json:"manual_filename"`
}

func (h *ManualHandler) Commit(w http.ResponseWriter, r *http.Request) {
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if req.Token == "" || req.ManualFilename == "" {
		writeError(w, http.StatusBadRequest, "token and manual_filename are required")
		return
	}
	req.Metadata.ID = strings.TrimSpace(req.Metadata.ID)

	device, err := h.manuals.Commit(r.Context(), req.Token, req.Metadata, req.ManualFilename)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Device{"device": device})
}

// UploadManual attaches another file to an existing device.
func (h *ManualHandler) UploadManual(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("device_id")
	if deviceID == "" {
		writeError(w, http.StatusBadRequest, "device_id is required")
		return
	}
	name, data, err := readUpload(w, r, h.maxBytes, pdfMIME, "text/plain")
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if _, err := h.manuals.AttachManual(r.Context(), deviceID, name, bytes.NewReader(data)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"device_id": deviceID,
		"file":      uploads.SanitizeFilename(name),
	})
}
