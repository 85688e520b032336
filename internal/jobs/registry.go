// Package jobs runs manual processing in the background and tracks each
// upload's progress so clients can poll or cancel it.
package jobs

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

type Status string

const (
	StatusProcessing Status = "processing"
	StatusComplete   Status = "complete"
	StatusCancelled  Status = "cancelled"
	StatusError      Status = "error"
)

type Stage string

const (
	StageStarting            Stage = "starting"
	StageLanguageScan        Stage = "language_scan"
	StageOCRExtraction       Stage = "ocr_extraction"
	StageOCRComplete         Stage = "ocr_complete"
	StageLanguageDetection   Stage = "language_detection"
	StageTranslating         Stage = "translating"
	StageGeneratingReference Stage = "generating_reference"
	StageComplete            Stage = "complete"
	StageCancelled           Stage = "cancelled"
	StageError               Stage = "error"
)

const DefaultTTL = time.Hour

const notFoundLog = "[ERROR] Processing status not found. Token may have expired."

var ErrNotActive = errors.New("token not found or already completed")

// Job is the pollable state of one upload.
type Job struct {
	Status           Status    `json:"status"`
	Stage            Stage     `json:"stage"`
	Logs             []string  `json:"logs"`
	CreatedAt        time.Time `json:"created_at"`
	DetectedLanguage string    `json:"detected_language,omitempty"`
	Translated       bool      `json:"translated"`
	OutputFilename   string    `json:"output_filename,omitempty"`
}

// Registry holds jobs and their cancellation flags. Each map has its own
// lock; when both are needed the jobs lock is taken first.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*Job

	flagsMu sync.Mutex
	flags   map[string]bool

	ttl time.Duration
	now func() time.Time
}

func NewRegistry(ttl time.Duration) *Registry {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Registry{
		jobs:  make(map[string]*Job),
		flags: make(map[string]bool),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Create starts tracking token with its first log line and a clear flag.
func (r *Registry) Create(token string, firstLog string) {
	r.mu.Lock()
	r.jobs[token] = &Job{
		Status:    StatusProcessing,
		Stage:     StageStarting,
		Logs:      []string{firstLog},
		CreatedAt: r.now(),
	}
	r.mu.Unlock()

	r.flagsMu.Lock()
	r.flags[token] = false
	r.flagsMu.Unlock()
}

// Update mutates the job under the lock. Evicted jobs are ignored.
func (r *Registry) Update(token string, fn func(*Job)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if j, ok := r.jobs[token]; ok {
		fn(j)
	}
}

func (r *Registry) AppendLog(token, line string) {
	r.Update(token, func(j *Job) { j.Logs = append(j.Logs, line) })
}

func (r *Registry) SetStage(token string, stage Stage) {
	r.Update(token, func(j *Job) { j.Stage = stage })
}

// Snapshot returns a copy of the job, safe to read without the lock.
func (r *Registry) Snapshot(token string) (Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[token]
	if !ok {
		return Job{}, false
	}
	out := *j
	out.Logs = append([]string(nil), j.Logs...)
	return out, true
}

// Poll sweeps expired jobs and returns the current state of token. Unknown
// tokens get a synthetic error record rather than a failure.
func (r *Registry) Poll(token string) Job {
	r.Sweep()
	if j, ok := r.Snapshot(token); ok {
		return j
	}
	return Job{
		Status: StatusError,
		Stage:  StageError,
		Logs:   []string{notFoundLog},
	}
}

// Cancel raises the flag for an active token. The worker notices it at its
// next checkpoint.
func (r *Registry) Cancel(token string) error {
	r.flagsMu.Lock()
	if _, ok := r.flags[token]; !ok {
		r.flagsMu.Unlock()
		return ErrNotActive
	}
	r.flags[token] = true
	r.flagsMu.Unlock()

	r.AppendLog(token, "[INFO] Cancellation requested...")
	return nil
}

func (r *Registry) IsCancelled(token string) bool {
	r.flagsMu.Lock()
	defer r.flagsMu.Unlock()
	return r.flags[token]
}

// Release drops the flag once the worker is done with token.
func (r *Registry) Release(token string) {
	r.flagsMu.Lock()
	delete(r.flags, token)
	r.flagsMu.Unlock()
}

// Sweep evicts jobs older than the TTL together with their flags.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-r.ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	var expired []string
	for token, j := range r.jobs {
		if j.CreatedAt.Before(cutoff) {
			expired = append(expired, token)
			delete(r.jobs, token)
		}
	}
	if len(expired) == 0 {
		return 0
	}

	r.flagsMu.Lock()
	for _, token := range expired {
		delete(r.flags, token)
	}
	r.flagsMu.Unlock()

	log.Info().Int("count", len(expired)).Msg("cleaned up expired processing status entries")
	return len(expired)
}
