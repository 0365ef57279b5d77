package api_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skimcast/skim-api/internal/api"
	"github.com/skimcast/skim-api/internal/domain"
	"github.com/skimcast/skim-api/internal/service"
	"github.com/skimcast/skim-api/internal/service/auth"
	"github.com/skimcast/skim-api/internal/store"
)

func TestMapErrorToStatusCode(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid token", auth.ErrInvalidToken, http.StatusUnauthorized},
		{"expired token", auth.ErrExpiredToken, http.StatusUnauthorized},
		{"unauthorized", domain.ErrUnauthorized, http.StatusUnauthorized},
		{"user not found", store.ErrUserNotFound, http.StatusNotFound},
		{"job not found", store.ErrJobNotFound, http.StatusNotFound},
		{"not owned hides the job", service.ErrNotOwned, http.StatusNotFound},
		{"email exists", store.ErrEmailExists, http.StatusConflict},
		{"validation", domain.ErrValidation, http.StatusBadRequest},
		{"invalid id", domain.ErrInvalidID, http.StatusBadRequest},
		{"wrapped sentinel", fmt.Errorf("create job: %w", store.ErrJobNotFound), http.StatusNotFound},
		{"unknown", errors.New("disk on fire"), http.StatusInternalServerError},
		{"nil", nil, http.StatusInternalServerError},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, api.MapErrorToStatusCode(tc.err))
		})
	}
}

func TestGetSafeErrorMessage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"token error", auth.ErrExpiredToken, "Invalid token"},
		{"not owned reads as missing", service.ErrNotOwned, "Job not found"},
		{"job not found", store.ErrJobNotFound, "Job not found"},
		{"nil", nil, "An unexpected error occurred"},
		{"internal details hidden", errors.New("pq: connection refused"), "An unexpected error occurred"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, api.GetSafeErrorMessage(tc.err))
		})
	}

	t.Run("validation error names the field", func(t *testing.T) {
		t.Parallel()
		err := domain.NewValidationError("output_language", "cannot be empty", domain.ErrValidation)
		assert.Equal(t, "Invalid output_language: cannot be empty", api.GetSafeErrorMessage(err))
	})
}

func TestSanitizeValidationError(t *testing.T) {
	t.Parallel()

	err := errors.New(
		"Key: 'LoginRequest.Email' Error:Field validation for 'Email' failed on the 'required' tag",
	)
	assert.Equal(t, "Invalid Email: required field", api.SanitizeValidationError(err))

	assert.Equal(t, "Validation error", api.SanitizeValidationError(errors.New("something odd")))
}
