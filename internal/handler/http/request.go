package http

import (
	"errors"
	"io"
	"net/http"

	"github.com/utafrali/mobileshop/pkg/httputil"
	"github.com/utafrali/mobileshop/pkg/middleware"
	"github.com/utafrali/mobileshop/pkg/validator"
)

const maxBodyBytes = 1 << 20

// decodeBody decodes and validates the JSON body into dst, writing a 400 on
// failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return handleDecodeError(w, r, validator.DecodeAndValidate(r, dst))
}

// decodeOptionalBody is decodeBody for endpoints whose body may be empty.
func decodeOptionalBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	err := validator.DecodeAndValidate(r, dst)
	if errors.Is(err, io.EOF) {
		return true
	}
	return handleDecodeError(w, r, err)
}

func handleDecodeError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		httputil.WriteError(w, r, err, nil)
		return false
	}
	httputil.WriteBadRequest(w, r, "invalid request body: "+err.Error())
	return false
}

func userID(r *http.Request) string {
	return middleware.UserIDFromContext(r.Context())
}
