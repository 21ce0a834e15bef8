package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const maxErrorBody = 1 << 20

// ErrorBody is the structured error document the API may return.
type ErrorBody struct {
	Message string       `json:"message"`
	Errors  []FieldError `json:"errors"`
}

// FieldError is one validation failure.
type FieldError struct {
	Msg   string `json:"msg"`
	Path  string `json:"path,omitempty"`
	Param string `json:"param,omitempty"`
}

// JoinedErrors returns the field messages joined with ", ", or "" when the
// body carries no field errors.
func (b ErrorBody) JoinedErrors() string {
	if len(b.Errors) == 0 {
		return ""
	}
	msgs := make([]string, 0, len(b.Errors))
	for _, e := range b.Errors {
		msgs = append(msgs, e.Msg)
	}
	return strings.Join(msgs, ", ")
}

// ReadErrorBody consumes and closes resp.Body. ok reports whether the body
// parsed as a JSON object; raw is the trimmed body text either way.
func ReadErrorBody(resp *http.Response) (body ErrorBody, raw string, ok bool) {
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return ErrorBody{}, "", false
	}
	raw = strings.TrimSpace(string(data))
	if err := json.Unmarshal(data, &body); err != nil {
		return ErrorBody{}, raw, false
	}
	return body, raw, true
}

// ErrorMessage returns the JSON message field of an error response, or
// fallback when the body has none. It consumes and closes resp.Body.
func ErrorMessage(resp *http.Response, fallback string) string {
	body, _, ok := ReadErrorBody(resp)
	if ok && body.Message != "" {
		return body.Message
	}
	return fallback
}

// DecodeJSON decodes the response body into v and closes it.
func DecodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("decode response: empty body")
		}
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Discard drains and closes the response body.
func Discard(resp *http.Response) {
	drain(resp)
}

// OK reports whether the status is 2xx.
func OK(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}
