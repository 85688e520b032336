package models

import (
	"time"
)

// Device is one catalogued appliance and the manuals filed under it.
type Device struct {
	ID          string    `db:"id" json:"id" yaml:"id"`
	Name        string    `db:"name" json:"name" yaml:"name"`
	Brand       string    `db:"brand" json:"brand" yaml:"brand,omitempty"`
	Model       string    `db:"model" json:"model" yaml:"model,omitempty"`
	Room        string    `db:"room" json:"room" yaml:"room,omitempty"`
	Category    string    `db:"category" json:"category" yaml:"category,omitempty"`
	ManualFiles []string  `db:"manual_files" json:"manual_files" yaml:"manual_files"`
	CreatedAt   time.Time `db:"created_at" json:"created_at" yaml:"-"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at" yaml:"-"`
}

// DeviceMetadata is the editable subset of a Device.
type DeviceMetadata struct {
	Name     string `json:"name"`
	Brand    string `json:"brand"`
	Model    string `json:"model"`
	Room     string `json:"room"`
	Category string `json:"category"`
}

// ManualChunk represents one embedded text chunk from a device manual.
type ManualChunk struct {
	ID         string    `db:"id" json:"id"`
	DeviceID   string    `db:"device_id" json:"device_id"`
	FileName   string    `db:"file_name" json:"file_name"`
	Position   int       `db:"position" json:"position"`
	Page       *int      `db:"page" json:"page,omitempty"`
	Text       string    `db:"text" json:"text"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
	TokenCount int       `db:"token_count" json:"token_count"`
	SourceType string    `db:"source_type" json:"source_type"` // "markdown" or "pdf"
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// ChunkMatch is a retrieved chunk joined with its device.
type ChunkMatch struct {
	ManualChunk
	DeviceName string  `json:"device_name"`
	Room       string  `json:"room"`
	Brand      string  `json:"brand"`
	Model      string  `json:"model"`
	Similarity float64 `json:"similarity"`
}

// ChunkFilter narrows similarity search. DeviceID wins over Room.
type ChunkFilter struct {
	DeviceID string
	Room     string
}

// ChatSource is one citation returned alongside a chat answer.
type ChatSource struct {
	DeviceID   string `json:"device_id"`
	DeviceName string `json:"device_name"`
	Room       string `json:"room"`
	Brand      string `json:"brand"`
	Model      string `json:"model"`
	FileName   string `json:"file_name"`
	Page       *int   `json:"page"`
	Snippet    string `json:"snippet"`
}

// ChatAnswer is the response of a chat turn.
type ChatAnswer struct {
	Answer  string       `json:"answer"`
	Sources []ChatSource `json:"sources"`
}

// UploadMeta is the per-token meta.json written next to an upload.
type UploadMeta struct {
	Token              string  `json:"token"`
	OriginalFilename   string  `json:"original_filename"`
	StoredFilename     string  `json:"stored_filename"`
	EnglishFilename    *string `json:"english_filename"`
	ExtractedPages     []int   `json:"extracted_pages"`
	TranslatedFilename string  `json:"translated_filename,omitempty"`
	DetectedLanguage   string  `json:"detected_language,omitempty"`
}

// ManualMetadata is a device description proposed for, or confirmed at,
// manual commit time.
type ManualMetadata struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Brand       string   `json:"brand"`
	Model       string   `json:"model"`
	Room        string   `json:"room"`
	Category    string   `json:"category"`
	ManualFiles []string `json:"manual_files"`
}
