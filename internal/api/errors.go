package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// maxErrorBody bounds how much of a failed response is read.
const maxErrorBody = 64 << 10

// APIError is a non-2xx answer from the server. Code and ErrorCode are empty
// when the body was not an assetd error envelope.
type APIError struct {
	Status    int
	Code      string
	ErrorCode int
	Message   string
}

func (e *APIError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Code != "" && e.Message != "":
		return e.Code + ": " + e.Message
	case e.Message != "":
		return e.Message
	case e.Status > 0:
		return fmt.Sprintf("api error: %d", e.Status)
	default:
		return "api error"
	}
}

// IsNotFound reports whether the API answered 404.
func (e *APIError) IsNotFound() bool {
	return e != nil && e.Status == http.StatusNotFound
}

// HasErrorCode reports whether err carries the numeric assetd error code.
func HasErrorCode(err error, code int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.ErrorCode == code
}

func decodeError(resp *http.Response) error {
	apiErr := &APIError{Status: resp.StatusCode, Message: "api error: " + resp.Status}
	var envelope ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxErrorBody)).Decode(&envelope); err == nil && envelope.Error != "" {
		apiErr.Code = envelope.Code
		apiErr.ErrorCode = envelope.ErrorCode
		apiErr.Message = envelope.Error
	}
	return apiErr
}
