package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"

	"github.com/markdave123-py/Homedex/internal/core"
	"github.com/markdave123-py/Homedex/internal/jobs"
	"github.com/markdave123-py/Homedex/internal/langsection"
	"github.com/markdave123-py/Homedex/internal/services"
	"github.com/markdave123-py/Homedex/internal/uploads"
)

const multipartMemory = 32 << 20

var (
	errNoFile      = errors.New("filename is required")
	errEmptyFile   = errors.New("uploaded file is empty")
	errTooLarge    = errors.New("uploaded file is too large")
	errUnsupported = errors.New("unsupported file type")
)

type statusResponse struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("encode response")
	}
}

// writeError answers with {"detail": msg}.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"detail": msg})
}

// writeServiceError maps a service error onto a status code.
func writeServiceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, core.ErrDeviceNotFound),
		errors.Is(err, uploads.ErrTokenNotFound),
		errors.Is(err, uploads.ErrFileNotFound),
		errors.Is(err, services.ErrFileNotFound),
		errors.Is(err, services.ErrNoMarkdown):
		return http.StatusNotFound
	case errors.Is(err, services.ErrForbiddenPath):
		return http.StatusForbidden
	case errors.Is(err, services.ErrInvalidDeviceID),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrEmptyRoom),
		errors.Is(err, langsection.ErrNoEnglishPages),
		errors.Is(err, errNoFile),
		errors.Is(err, errEmptyFile),
		errors.Is(err, errUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, errTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, jobs.ErrQueueFull):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// readUpload reads the multipart "file" field, capped at maxBytes. When
// allowed is non-empty the sniffed type must match one of its entries.
func readUpload(w http.ResponseWriter, r *http.Request, maxBytes int64, allowed ...string) (string, []byte, error) {
	if maxBytes > 0 {
		if r.ContentLength > maxBytes {
			return "", nil, errTooLarge
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, errTooLarge
		}
		return "", nil, errNoFile
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, errNoFile
	}
	defer file.Close()

	data, err := readAll(file)
	if err != nil {
		return "", nil, err
	}
	if header.Filename == "" {
		return "", nil, errNoFile
	}
	if len(data) == 0 {
		return "", nil, errEmptyFile
	}

	if len(allowed) > 0 {
		detected := mimetype.Detect(data)
		ok := false
		for _, m := range allowed {
			if detected.Is(m) {
				ok = true
				break
			}
		}
		if !ok {
			log.Warn().Str("file", header.Filename).Str("mime", detected.String()).Msg("rejected upload")
			return "", nil, errUnsupported
		}
	}
	return header.Filename, data, nil
}

func readAll(f multipart.File) ([]byte, error) {
	data, err := io.ReadAll(f)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, errTooLarge
	}
	return data, err
}

func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}
