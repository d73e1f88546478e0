package httpclient

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "github.com/omendivilg/CoffeeBox/pkg/errors"
)

func makeResponse(status int, body string) *http.Response {
	return &http.Response{StatusCode: status, Body: io.NopCloser(strings.NewReader(body))}
}

func TestParseResponseError_Structured(t *testing.T) {
	body := `{"error":{"code":"UNAUTHORIZED","message":"token expired"}}`
	err := ParseResponseError(makeResponse(http.StatusUnauthorized, body), "identity")

	var appErr *apperrors.AppError
	assert.True(t, errors.As(err, &appErr))
	assert.Equal(t, http.StatusUnauthorized, appErr.Status)
	assert.Contains(t, appErr.Message, "token expired")
}

func TestParseResponseError_StatusMapping(t *testing.T) {
	tests := []struct {
		status   int
		sentinel error
	}{
		{http.StatusNotFound, apperrors.ErrNotFound},
		{http.StatusBadRequest, apperrors.ErrInvalidInput},
		{http.StatusForbidden, apperrors.ErrForbidden},
		{http.StatusServiceUnavailable, apperrors.ErrServiceUnavail},
	}
	for _, tt := range tests {
		err := ParseResponseError(makeResponse(tt.status, `{"error":{"code":"X","message":"m"}}`), "identity")
		assert.True(t, errors.Is(err, tt.sentinel), "status %d", tt.status)
	}
}

func TestParseResponseError_Unstructured(t *testing.T) {
	err := ParseResponseError(makeResponse(http.StatusBadGateway, "<html>bad gateway</html>"), "identity")
	assert.Contains(t, err.Error(), "identity returned status 502")
	assert.Contains(t, err.Error(), "bad gateway")
}

func TestIsClientError(t *testing.T) {
	assert.True(t, IsClientError(400))
	assert.True(t, IsClientError(499))
	assert.False(t, IsClientError(500))
	assert.False(t, IsClientError(200))
}
