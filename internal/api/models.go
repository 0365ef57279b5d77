package api

import (
	"time"

	"github.com/google/uuid"

	"github.com/skimcast/skim-api/internal/domain"
)

// Common request/response structures

// RegisterRequest defines the payload for the user registration endpoint.
type RegisterRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=12,max=72"`
}

// LoginRequest defines the payload for the user login endpoint.
type LoginRequest struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=1"`
}

// AuthResponse defines the successful response for authentication endpoints.
type AuthResponse struct {
	// UserID is the unique identifier for the authenticated user
	UserID uuid.UUID `json:"user_id"`

	// AccessToken is the JWT token used for API authorization
	AccessToken string `json:"token"`
}

// SourceRequest describes one source in a job creation request.
type SourceRequest struct {
	Kind        string `json:"kind"         validate:"required,oneof=file url"`
	Location    string `json:"location"     validate:"required"`
	DisplayName string `json:"display_name" validate:"omitempty,max=512"`
}

// CreateJobRequest defines the payload for the job creation endpoint.
type CreateJobRequest struct {
	Sources              []SourceRequest `json:"sources"                validate:"required,min=1,max=20,dive"`
	TargetReadingMinutes int             `json:"target_reading_minutes" validate:"required,min=1,max=60"`
	ComplexityLevel      string          `json:"complexity_level"       validate:"required,oneof=simple balanced detailed"`
	OutputLanguage       string          `json:"output_language"        validate:"required,max=64"`
}

// SourceResponse describes one source of a job.
type SourceResponse struct {
	ID          uuid.UUID `json:"id"`
	Kind        string    `json:"kind"`
	Location    string    `json:"location"`
	DisplayName string    `json:"display_name"`
	Position    int       `json:"position"`
}

// JobResponse is the full representation of a digest job, including the
// generated outputs once the job is complete.
type JobResponse struct {
	ID                   uuid.UUID        `json:"id"`
	Status               string           `json:"status"`
	Sources              []SourceResponse `json:"sources,omitempty"`
	TargetReadingMinutes int              `json:"target_reading_minutes"`
	ComplexityLevel      string           `json:"complexity_level"`
	OutputLanguage       string           `json:"output_language"`
	FormattedOutput      string           `json:"formatted_output,omitempty"`
	BreadtextOutput      string           `json:"breadtext_output,omitempty"`
	OutputImages         []string         `json:"output_images,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
	UpdatedAt            time.Time        `json:"updated_at"`
}

// JobSummaryResponse is the compact representation used in job listings.
type JobSummaryResponse struct {
	ID                   uuid.UUID `json:"id"`
	Status               string    `json:"status"`
	TargetReadingMinutes int       `json:"target_reading_minutes"`
	CreatedAt            time.Time `json:"created_at"`
}

// Job lifecycle statuses as reported to clients.
const (
	JobStatusPending    = "pending"
	JobStatusProcessing = "processing"
	JobStatusComplete   = "complete"
)

// jobStatus collapses the internal extraction/output state into the
// client-facing lifecycle status.
func jobStatus(job *domain.DigestJob) string {
	switch {
	case job.IsComplete():
		return JobStatusComplete
	case job.ExtractionStatus != domain.ExtractionStatusNone:
		return JobStatusProcessing
	default:
		return JobStatusPending
	}
}

// NewJobResponse builds the full response representation of a job.
func NewJobResponse(job *domain.DigestJob) JobResponse {
	sources := make([]SourceResponse, 0, len(job.Sources))
	for _, src := range job.Sources {
		sources = append(sources, SourceResponse{
			ID:          src.ID,
			Kind:        string(src.Kind),
			Location:    src.Location,
			DisplayName: src.DisplayName,
			Position:    src.Position,
		})
	}

	return JobResponse{
		ID:                   job.ID,
		Status:               jobStatus(job),
		Sources:              sources,
		TargetReadingMinutes: job.TargetReadingMinutes,
		ComplexityLevel:      job.ComplexityLevel,
		OutputLanguage:       job.OutputLanguage,
		FormattedOutput:      job.FormattedOutput,
		BreadtextOutput:      job.BreadtextOutput,
		OutputImages:         job.OutputImages,
		CreatedAt:            job.CreatedAt,
		UpdatedAt:            job.UpdatedAt,
	}
}

// NewJobSummaryResponse builds the listing representation of a job.
func NewJobSummaryResponse(job *domain.DigestJob) JobSummaryResponse {
	return JobSummaryResponse{
		ID:                   job.ID,
		Status:               jobStatus(job),
		TargetReadingMinutes: job.TargetReadingMinutes,
		CreatedAt:            job.CreatedAt,
	}
}
