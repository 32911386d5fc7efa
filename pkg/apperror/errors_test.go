package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("post p1: %w", ErrNotFound), http.StatusNotFound},
		{"unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"forbidden", ErrForbidden, http.StatusForbidden},
		{"invalid", fmt.Errorf("follow: %w", ErrInvalidInput), http.StatusBadRequest},
		{"conflict", ErrConflict, http.StatusConflict},
		{"app error code wins", New(http.StatusTeapot, "teapot", ErrNotFound), http.StatusTeapot},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MapErrorToStatus(tt.err))
		})
	}
}

func TestAppErrorUnwraps(t *testing.T) {
	err := New(http.StatusBadRequest, "bad body", ErrInvalidInput)
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Equal(t, "bad body: invalid input", err.Error())
}
