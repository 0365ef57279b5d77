package domain

import (
	"errors"

	"github.com/google/uuid"
)

// SourceKind distinguishes how a source's content is obtained.
type SourceKind string

// Possible source kinds.
const (
	// SourceKindFile is an uploaded document; its content is extracted
	// by the OCR collaborator.
	SourceKindFile SourceKind = "file"

	// SourceKindURL is a web address; its content is fetched and rendered
	// to markdown by the scraper collaborator.
	SourceKindURL SourceKind = "url"
)

// Common validation errors for Source
var (
	ErrEmptySourceLocation    = errors.New("source location cannot be empty")
	ErrEmptySourceDisplayName = errors.New("source display name cannot be empty")
	ErrInvalidSourceKind      = errors.New("invalid source kind")
)

// Source is one input to a digest job: either an uploaded file reference
// or a URL. Sources keep their submission order, which determines the
// order their content appears in the combined extracted text.
type Source struct {
	ID          uuid.UUID  `json:"id"`
	JobID       uuid.UUID  `json:"job_id"`
	Kind        SourceKind `json:"kind"`
	Location    string     `json:"location"`
	DisplayName string     `json:"display_name"`
	Position    int        `json:"position"`
}

// NewSource creates a Source for the given job. Position is the zero-based
// submission index within the job.
func NewSource(jobID uuid.UUID, kind SourceKind, location, displayName string, position int) (*Source, error) {
	src := &Source{
		ID:          uuid.New(),
		JobID:       jobID,
		Kind:        kind,
		Location:    location,
		DisplayName: displayName,
		Position:    position,
	}

	if err := src.Validate(); err != nil {
		return nil, err
	}

	return src, nil
}

// Validate checks if the Source has valid data.
// Returns an error if any field fails validation.
func (s *Source) Validate() error {
	if !isValidSourceKind(s.Kind) {
		return ErrInvalidSourceKind
	}

	if s.Location == "" {
		return ErrEmptySourceLocation
	}

	if s.DisplayName == "" {
		return ErrEmptySourceDisplayName
	}

	return nil
}

// isValidSourceKind checks if the given kind is a valid SourceKind.
func isValidSourceKind(kind SourceKind) bool {
	switch kind {
	case SourceKindFile, SourceKindURL:
		return true
	default:
		return false
	}
}
