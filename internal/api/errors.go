package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// UnknownErrorMessage is shown when an error carries no usable text.
const UnknownErrorMessage = "Unknown error"

// NetworkError means no response came back from the server.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("api: %s: network error: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// TimeoutError means the per-call deadline elapsed before a response arrived.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("api: %s: timed out after %s", e.Op, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return e.Err
}

// ServerError means the server answered with an error status, or with a body
// that could not be decoded. Message is already resolved for display.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("api: %s: server error (status %d): %s", e.Op, e.Status, e.Message)
}

// ErrorMessage extracts the text to show a user for err: the server's error
// field, else the transport-level message, else UnknownErrorMessage.
func ErrorMessage(err error) string {
	if err == nil {
		return ""
	}

	var serverErr *ServerError
	if errors.As(err, &serverErr) {
		return nonEmpty(serverErr.Message)
	}
	var timeoutErr *TimeoutError
	if errors.As(err, &timeoutErr) {
		return fmt.Sprintf("timeout of %s exceeded", timeoutErr.Timeout)
	}
	var netErr *NetworkError
	if errors.As(err, &netErr) {
		if netErr.Err != nil {
			return nonEmpty(netErr.Err.Error())
		}
		return UnknownErrorMessage
	}
	return nonEmpty(err.Error())
}

// statusMessage is the transport-level text for a status without an error body.
func statusMessage(status int) string {
	return fmt.Sprintf("request failed with status code %d", status)
}

func nonEmpty(msg string) string {
	if strings.TrimSpace(msg) == "" {
		return UnknownErrorMessage
	}
	return msg
}
