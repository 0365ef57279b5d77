package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ExtractionStatus represents where a job's extraction phase stands.
// It is the claim marker for the whole expensive pipeline: a conditional
// update from "none" to "running" grants a worker the exclusive right to
// process the job, and the status survives process restarts because it
// lives on the database row.
type ExtractionStatus string

// Possible extraction status values. The status only ever moves
// none -> running -> done, or back from running to none when an attempt
// fails and the claim is released. It never regresses from done.
const (
	ExtractionStatusNone    ExtractionStatus = "none"
	ExtractionStatusRunning ExtractionStatus = "running"
	ExtractionStatusDone    ExtractionStatus = "done"
)

// ComplexityLevel values accepted for generation.
const (
	ComplexitySimple   = "simple"
	ComplexityBalanced = "balanced"
	ComplexityDetailed = "detailed"
)

// Bounds for the target reading time.
const (
	MinReadingMinutes = 1
	MaxReadingMinutes = 60
)

// Common validation errors for DigestJob
var (
	ErrEmptyJobID              = errors.New("job ID cannot be empty")
	ErrEmptyJobUserID          = errors.New("job user ID cannot be empty")
	ErrJobHasNoSources         = errors.New("job must have at least one source")
	ErrInvalidReadingMinutes   = errors.New("target reading minutes out of range")
	ErrInvalidComplexityLevel  = errors.New("invalid complexity level")
	ErrEmptyOutputLanguage     = errors.New("output language cannot be empty")
	ErrInvalidExtractionStatus = errors.New("invalid extraction status")
)

// DigestJob represents one user request to condense a set of sources into
// an AI-generated digest sized to a target reading time. It tracks the
// inputs, the persisted intermediate extraction result, and the final
// generated outputs.
type DigestJob struct {
	ID     uuid.UUID `json:"id"`
	UserID uuid.UUID `json:"user_id"`

	// Sources are the documents and URLs to digest, in submission order.
	Sources []Source `json:"sources"`

	// ExtractionStatus is the claim/progress marker for the extraction
	// phase. ExtractedText and ExtractedImages are only meaningful once
	// it reaches ExtractionStatusDone.
	ExtractionStatus ExtractionStatus `json:"extraction_status"`
	ExtractedText    string           `json:"extracted_text"`
	ExtractedImages  []string         `json:"extracted_images"`

	// FormattedOutput is the primary digest with markdown structure.
	// BreadtextOutput is the plain-prose variant for word-at-a-time
	// reading. Both are written once, complete and non-empty only.
	FormattedOutput string `json:"formatted_output"`
	BreadtextOutput string `json:"breadtext_output"`

	// OutputImages is the subset of ExtractedImages actually referenced
	// by either output text.
	OutputImages []string `json:"output_images"`

	// Generation parameters, immutable once the job is created.
	TargetReadingMinutes int    `json:"target_reading_minutes"`
	ComplexityLevel      string `json:"complexity_level"`
	OutputLanguage       string `json:"output_language"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewDigestJob creates a new DigestJob for the given user with the given
// generation parameters. It generates a new UUID for the job ID, sets the
// extraction status to none, and sets the creation/update timestamps.
// Returns an error if validation fails.
func NewDigestJob(
	userID uuid.UUID,
	readingMinutes int,
	complexity string,
	language string,
) (*DigestJob, error) {
	job := &DigestJob{
		ID:                   uuid.New(),
		UserID:               userID,
		ExtractionStatus:     ExtractionStatusNone,
		TargetReadingMinutes: readingMinutes,
		ComplexityLevel:      complexity,
		OutputLanguage:       language,
		CreatedAt:            time.Now().UTC(),
		UpdatedAt:            time.Now().UTC(),
	}

	// Sources are appended afterwards via AddSource, so only the scalar
	// parameters can be checked here; Validate enforces the rest once the
	// job is fully assembled.
	if err := job.validateParams(); err != nil {
		return nil, err
	}

	return job, nil
}

// AddSource appends a source descriptor at the next position.
// Returns the created source or a validation error.
func (j *DigestJob) AddSource(kind SourceKind, location, displayName string) (*Source, error) {
	src, err := NewSource(j.ID, kind, location, displayName, len(j.Sources))
	if err != nil {
		return nil, err
	}
	j.Sources = append(j.Sources, *src)
	return src, nil
}

// Validate checks if the fully assembled DigestJob has valid data,
// including that it carries at least one source.
// Returns an error if any field fails validation.
func (j *DigestJob) Validate() error {
	if err := j.validateParams(); err != nil {
		return err
	}

	if len(j.Sources) == 0 {
		return ErrJobHasNoSources
	}

	for i := range j.Sources {
		if err := j.Sources[i].Validate(); err != nil {
			return err
		}
	}

	return nil
}

// validateParams checks everything except the sources, which are not
// yet present at construction time.
func (j *DigestJob) validateParams() error {
	if j.ID == uuid.Nil {
		return ErrEmptyJobID
	}

	if j.UserID == uuid.Nil {
		return ErrEmptyJobUserID
	}

	if j.TargetReadingMinutes < MinReadingMinutes || j.TargetReadingMinutes > MaxReadingMinutes {
		return ErrInvalidReadingMinutes
	}

	if !isValidComplexityLevel(j.ComplexityLevel) {
		return ErrInvalidComplexityLevel
	}

	if j.OutputLanguage == "" {
		return ErrEmptyOutputLanguage
	}

	if !isValidExtractionStatus(j.ExtractionStatus) {
		return ErrInvalidExtractionStatus
	}

	return nil
}

// IsComplete reports whether the job has finished processing. A complete
// job can be replayed to a connecting client without redoing any work.
func (j *DigestJob) IsComplete() bool {
	return j.FormattedOutput != ""
}

// isValidComplexityLevel checks if the given level is recognized.
func isValidComplexityLevel(level string) bool {
	switch level {
	case ComplexitySimple, ComplexityBalanced, ComplexityDetailed:
		return true
	default:
		return false
	}
}

// isValidExtractionStatus checks if the given status is a valid ExtractionStatus.
func isValidExtractionStatus(status ExtractionStatus) bool {
	switch status {
	case ExtractionStatusNone, ExtractionStatusRunning, ExtractionStatusDone:
		return true
	default:
		return false
	}
}
