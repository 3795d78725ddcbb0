package apierror

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromResponse(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantMessage string
		wantError   string
		wantReqID   string
	}{
		{
			name:        "corbado error document",
			status:      http.StatusBadRequest,
			body:        `{"httpStatusCode":400,"message":"Request data validation failed","requestData":{"requestID":"req-123","link":"https://app.corbado.com/requests/req-123"},"runtime":0.12,"error":{"type":"validation_error","validation":[{"field":"projectID","message":"invalid"},{"field":"kid","message":"unknown"}]}}`,
			wantMessage: "Request data validation failed",
			wantError:   "Request data validation failed (HTTP status code: 400, validation messages: projectID: invalid; kid: unknown)",
			wantReqID:   "req-123",
		},
		{
			name:        "plain text body",
			status:      http.StatusBadGateway,
			body:        "upstream unavailable",
			wantMessage: "Bad Gateway",
			wantError:   "Bad Gateway (HTTP status code: 502, validation messages: )",
		},
		{
			name:        "empty body",
			status:      http.StatusNotFound,
			wantMessage: "Not Found",
			wantError:   "Not Found (HTTP status code: 404, validation messages: )",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromResponse(tt.status, []byte(tt.body))

			require.NotNil(t, err)
			assert.Equal(t, tt.status, err.StatusCode)
			assert.Equal(t, tt.wantMessage, err.Message)
			assert.Equal(t, tt.wantError, err.Error())
			assert.Equal(t, tt.wantReqID, err.RequestData.RequestID)
		})
	}
}

func TestStatusCode(t *testing.T) {
	wrapped := fmt.Errorf("fetching keys: %w", FromResponse(http.StatusInternalServerError, nil))

	assert.Equal(t, http.StatusInternalServerError, StatusCode(wrapped))
	assert.Equal(t, 0, StatusCode(fmt.Errorf("dial tcp: refused")))
	assert.Equal(t, 0, StatusCode(nil))
}
