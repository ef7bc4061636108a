package httpclient

import (
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/mobileshop/pkg/errors"
)

// ParseResponseError consumes and closes a non-2xx response and maps it to
// an error. 4xx responses become AppErrors, everything else stays opaque.
func ParseResponseError(resp *http.Response, upstream string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", upstream, resp.StatusCode, err)
	}
	msg := fmt.Sprintf("%s: %s", upstream, body)

	switch resp.StatusCode {
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case http.StatusUnauthorized:
		return apperrors.Unauthorized(msg)
	case http.StatusForbidden:
		return apperrors.Forbidden(msg)
	case http.StatusNotFound:
		return &apperrors.AppError{
			Code:    "NOT_FOUND",
			Message: msg,
			Status:  http.StatusNotFound,
			Err:     apperrors.ErrNotFound,
		}
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return &apperrors.AppError{
			Code:    "UPSTREAM_UNAVAILABLE",
			Message: msg,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	default:
		return fmt.Errorf("%s returned status %d: %s", upstream, resp.StatusCode, body)
	}
}

// IsSuccess reports whether status is 2xx.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}
