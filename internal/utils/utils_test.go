package utils

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError(t *testing.T) {
	cause := errors.New("dial tcp: refused")
	err := ER(CodeUnavailable, "AssistantService.Process", "llm_unavailable", "assistant unavailable", cause)

	assert.Equal(t, "AssistantService.Process: assistant unavailable: dial tcp: refused", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, IsCode(err, CodeUnavailable))
	assert.Equal(t, "llm_unavailable", ReasonOf(err))

	wrapped := fmt.Errorf("handler: %w", err)
	assert.True(t, IsCode(wrapped, CodeUnavailable))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(wrapped))

	assert.Equal(t, "", ReasonOf(errors.New("plain")))
	assert.Equal(t, "x: y", E(CodeInternal, "x", "y", nil).Error())
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Code]int{
		CodeInvalidArgument: http.StatusBadRequest,
		CodeUnauthorized:    http.StatusUnauthorized,
		CodeForbidden:       http.StatusForbidden,
		CodeNotFound:        http.StatusNotFound,
		CodeConflict:        http.StatusConflict,
		CodeRateLimited:     http.StatusTooManyRequests,
		CodeUnavailable:     http.StatusServiceUnavailable,
		CodeTimeout:         http.StatusGatewayTimeout,
		CodeInternal:        http.StatusInternalServerError,
	}
	for code, want := range cases {
		assert.Equal(t, want, HTTPStatus(E(code, "op", "msg", nil)), code)
	}
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("repo: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(ErrConflict))
	assert.Equal(t, http.StatusGatewayTimeout, HTTPStatus(fmt.Errorf("llm: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "correct horse battery"))
	assert.Error(t, CheckPassword(hash, "wrong"))
	BurnPasswordCheck("anything")
}
