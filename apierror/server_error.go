// Package apierror describes errors returned by Corbado HTTP endpoints.
package apierror

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ValidationMessage is a single field-level validation failure reported by the backend.
type ValidationMessage struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// RequestData identifies the request on the Corbado side.
type RequestData struct {
	RequestID string `json:"requestID"`
	Link      string `json:"link"`
}

// ErrorDetails is the "error" object of a Corbado error response.
type ErrorDetails struct {
	Type       string              `json:"type"`
	Details    string              `json:"details"`
	Validation []ValidationMessage `json:"validation"`
	Links      []string            `json:"links"`
}

// errorResponse mirrors the JSON body of a non-2xx Corbado response
type errorResponse struct {
	HTTPStatusCode int          `json:"httpStatusCode"`
	Message        string       `json:"message"`
	RequestData    RequestData  `json:"requestData"`
	Runtime        float64      `json:"runtime"`
	Error          ErrorDetails `json:"error"`
}

// ServerError is returned when a Corbado endpoint answers with a non-2xx status.
type ServerError struct {
	StatusCode  int
	Message     string
	RequestData RequestData
	Runtime     float64
	Details     ErrorDetails
}

// Error implements the error interface
func (e *ServerError) Error() string {
	return fmt.Sprintf("%s (HTTP status code: %d, validation messages: %s)",
		e.Message, e.StatusCode, strings.Join(e.ValidationMessages(), "; "))
}

// ValidationMessages returns the validation failures formatted as "field: message".
func (e *ServerError) ValidationMessages() []string {
	messages := make([]string, 0, len(e.Details.Validation))
	for _, v := range e.Details.Validation {
		messages = append(messages, fmt.Sprintf("%s: %s", v.Field, v.Message))
	}
	return messages
}

// FromResponse builds a ServerError from a status code and an already-read response body.
// Bodies that are not Corbado error documents still produce a usable error.
func FromResponse(statusCode int, body []byte) *ServerError {
	serverErr := &ServerError{
		StatusCode: statusCode,
		Message:    http.StatusText(statusCode),
	}
	if serverErr.Message == "" {
		serverErr.Message = "unexpected status"
	}

	var rsp errorResponse
	if len(body) == 0 || json.Unmarshal(body, &rsp) != nil {
		return serverErr
	}

	if rsp.Message != "" {
		serverErr.Message = rsp.Message
	}
	serverErr.RequestData = rsp.RequestData
	serverErr.Runtime = rsp.Runtime
	serverErr.Details = rsp.Error

	return serverErr
}

// StatusCode returns the HTTP status carried by err, or 0 when err is not a ServerError.
func StatusCode(err error) int {
	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return serverErr.StatusCode
	}
	return 0
}
