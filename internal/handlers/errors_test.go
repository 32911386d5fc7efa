package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonto42/nano-midea/engine/internal/repositories"
	"github.com/anonto42/nano-midea/engine/pkg/apperror"
)

func TestHTTPError(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{fmt.Errorf("get: %w", repositories.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("follow: %w", apperror.ErrInvalidInput), http.StatusBadRequest},
		{apperror.ErrForbidden, http.StatusForbidden},
		{apperror.ErrUnauthorized, http.StatusUnauthorized},
		{errors.New("deadline exceeded"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		var he *echo.HTTPError
		require.ErrorAs(t, httpError(tt.err), &he)
		assert.Equal(t, tt.status, he.Code, tt.err.Error())
	}

	var he *echo.HTTPError
	require.ErrorAs(t, httpError(errors.New("db password leaked")), &he)
	assert.Equal(t, "internal server error", he.Message)
}

func TestSecretMatches(t *testing.T) {
	assert.True(t, secretMatches("s", "s"))
	assert.False(t, secretMatches("s", "t"))
	assert.False(t, secretMatches("", ""))
}

func TestPageSize(t *testing.T) {
	e := echo.New()
	for query, want := range map[string]int{"": defaultPageSize, "?limit=10": 10, "?limit=-3": defaultPageSize, "?limit=9999": maxPageSize} {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/"+query, nil), httptest.NewRecorder())
		assert.Equal(t, want, pageSize(c), query)
	}
}
