package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/npyfile/internal/store"
	"github.com/samcharles93/npyfile/pkg/npy"
)

var ErrInvalidRequest = errors.New("invalid_request")

type invalidRequestError struct {
	msg string
}

func (e invalidRequestError) Error() string {
	return e.msg
}

func (e invalidRequestError) Unwrap() error {
	return ErrInvalidRequest
}

func newInvalidRequest(msg string) error {
	return invalidRequestError{msg: msg}
}

type ErrorBody struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

// statusFor maps codec and store errors onto HTTP statuses.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found_error"
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, store.ErrInvalidName),
		errors.Is(err, npy.ErrFormat),
		errors.Is(err, npy.ErrUnexpectedEOF),
		errors.Is(err, npy.ErrSizeMismatch),
		errors.Is(err, npy.ErrUnsupportedDescr):
		return http.StatusBadRequest, "invalid_request_error"
	case errors.Is(err, errBodyTooLarge):
		return http.StatusRequestEntityTooLarge, "invalid_request_error"
	default:
		return http.StatusInternalServerError, "server_error"
	}
}

func (s *Server) writeError(c *echo.Context, err error) error {
	status, errType := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}
	return c.JSON(status, map[string]any{
		"error": ErrorBody{Message: err.Error(), Type: errType},
	})
}
