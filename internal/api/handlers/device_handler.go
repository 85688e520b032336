package handlers

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/yuin/goldmark"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/models"
	"github.com/markdave123-py/Homedex/internal/services"
)

// DeviceOps is the catalog behind the device routes.
type DeviceOps interface {
	List(ctx context.Context) ([]models.Device, error)
	Get(ctx context.Context, id string) (*models.Device, error)
	Rooms(ctx context.Context) ([]string, error)
	Update(ctx context.Context, id string, meta models.DeviceMetadata) (*models.Device, error)
	RenameRoom(ctx context.Context, oldRoom, newRoom string) (int64, error)
	Delete(ctx context.Context, id string) error
	Replace(ctx context.Context, id string) error
	Markdown(ctx context.Context, id string) ([]byte, error)
	FilePath(id, rel string) (string, error)
}

type DeviceHandler struct {
	devices DeviceOps
	md      goldmark.Markdown
}

func NewDeviceHandler(devices DeviceOps) *DeviceHandler {
	return &DeviceHandler{devices: devices, md: goldmark.New()}
}

func (h *DeviceHandler) List(w http.ResponseWriter, r *http.Request) {
	devices, err := h.devices.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, devices)
}

func (h *DeviceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	device, err := h.devices.Get(r.Context(), id)
	if err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, device)
}

func (h *DeviceHandler) Rooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.devices.Rooms(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rooms)
}

type updateRequest struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Room     string `json:"room"`
	Category string `json:"category"`
}

func (h *DeviceHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req updateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	device, err := h.devices.Update(r.Context(), id, models.DeviceMetadata{
		Name:     req.Name,
		Brand:    req.Brand,
		Model:    req.Model,
		Room:     req.Room,
		Category: req.Category,
	})
	if err != nil {
		h.fail(w, id, err)
		return
	}
	log.Info().Str("device_id", id).Msg("device metadata updated")
	writeJSON(w, http.StatusOK, device)
}

type renameRoomRequest struct {
	OldRoom string `json:"old_room"`
	NewRoom string `json:"new_room"`
}

func (h *DeviceHandler) RenameRoom(w http.ResponseWriter, r *http.Request) {
	var req renameRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid body")
		return
	}
	n, err := h.devices.RenameRoom(r.Context(), req.OldRoom, req.NewRoom)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"message":         "Room renamed successfully",
		"devices_updated": n,
	})
}

func (h *DeviceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.devices.Delete(r.Context(), id); err != nil {
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Message: fmt.Sprintf("Device '%s' deleted successfully", id),
	})
}

func (h *DeviceHandler) Replace(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.devices.Replace(r.Context(), id); err != nil {
		if statusFor(err) == http.StatusInternalServerError {
			log.Error().Err(err).Str("device_id", id).Msg("replace failed")
			writeError(w, http.StatusInternalServerError, "Failed to replace manual: "+err.Error())
			return
		}
		h.fail(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{
		Status:  "ok",
		Message: fmt.Sprintf("Manual for device '%s' replaced successfully", id),
	})
}

// Markdown serves the reference markdown as text, or as HTML with ?format=html.
func (h *DeviceHandler) Markdown(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	src, err := h.devices.Markdown(r.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrNoMarkdown) {
			writeError(w, http.StatusNotFound, "No markdown file found for device "+id)
			return
		}
		h.fail(w, id, err)
		return
	}

	if r.URL.Query().Get("format") != "html" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write(src)
		return
	}

	var buf bytes.Buffer
	if err := h.md.Convert(src, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to render markdown: "+err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// File serves a file from inside the device directory.
func (h *DeviceHandler) File(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	rel, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}

	if _, err := h.devices.Get(r.Context(), id); err != nil {
		h.fail(w, id, err)
		return
	}

	path, err := h.devices.FilePath(id, rel)
	switch {
	case errors.Is(err, services.ErrForbiddenPath):
		writeError(w, http.StatusForbidden, "Access forbidden")
		return
	case errors.Is(err, services.ErrFileNotFound):
		writeError(w, http.StatusNotFound, "File not found: "+rel)
		return
	case err != nil:
		writeServiceError(w, err)
		return
	}

	f, err := os.Open(path)
	if err != nil {
		writeError(w, http.StatusNotFound, "File not found: "+rel)
		return
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		writeServiceError(w, err)
		return
	}
	http.ServeContent(w, r, filepath.Base(path), fi.ModTime(), f)
}

func (h *DeviceHandler) fail(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, core.ErrDeviceNotFound) {
		writeError(w, http.StatusNotFound, "Device not found: "+id)
		return
	}
	writeServiceError(w, err)
}
