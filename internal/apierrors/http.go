// Package apierrors parses HTTP error responses returned by crawled
// origins into structured errors a Runner can hand back to the worker,
// which classifies them into the retry taxonomy by status code.
package apierrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// MinErrorStatusCode is the lowest status code treated as an error.
const MinErrorStatusCode = 400

// HTTPError is a structured view of an HTTP error response.
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
	Message    string
}

func (e *HTTPError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("HTTP error (%d %s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("HTTP error: %d %s", e.StatusCode, e.Status)
}

// ParseHTTPError converts an error response into an *HTTPError, extracting
// a message from a JSON `error`/`message` body when the origin provides
// one. Returns nil for non-error responses.
func ParseHTTPError(resp *http.Response) error {
	if resp.StatusCode < MinErrorStatusCode {
		return nil
	}

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Message:    fmt.Sprintf("failed to read error response body: %v", err),
		}
	}
	body := string(bodyBytes)

	var jsonErr struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(bodyBytes, &jsonErr) == nil {
		msg := jsonErr.Error
		if msg == "" {
			msg = jsonErr.Message
		}
		if msg != "" {
			return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body, Message: msg}
		}
	}

	return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: body, Message: body}
}

// StatusCode extracts the status code when err is (or wraps) an HTTPError.
func StatusCode(err error) (int, bool) {
	var httpErr *HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode, true
	}
	return 0, false
}
