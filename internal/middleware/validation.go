package middleware

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	apierrors "spcpulse/internal/errors"
)

// RequestValidator decodes JSON bodies and validates them against struct tags
type RequestValidator struct {
	validator *validator.Validate
}

// NewRequestValidator creates a validator that reports JSON field names
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	return &RequestValidator{validator: v}
}

// DecodeJSON reads the request body into dst and validates it.
// Oversized bodies surface as *http.MaxBytesError.
func (rv *RequestValidator) DecodeJSON(r *http.Request, dst interface{}) error {
	if err := render.DecodeJSON(r.Body, dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return apierrors.New(http.StatusBadRequest, "INVALID_REQUEST", "Request body is empty")
		}
		return apierrors.InvalidRequestWithError(err)
	}
	return rv.Validate(dst)
}

// Validate checks v against its validate tags
func (rv *RequestValidator) Validate(v interface{}) error {
	if err := rv.validator.Struct(v); err != nil {
		return apierrors.FromValidator(err)
	}
	return nil
}

// ContentTypeValidator ensures requests with a body carry an allowed content type
func ContentTypeValidator(contentTypes ...string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodGet || r.Method == http.MethodHead || r.Method == http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}

			contentType := r.Header.Get("Content-Type")
			for _, allowed := range contentTypes {
				if strings.HasPrefix(contentType, allowed) {
					next.ServeHTTP(w, r)
					return
				}
			}

			problem := apierrors.NewProblemDetails(
				http.StatusUnsupportedMediaType,
				apierrors.TypeValidation,
				"Unsupported Media Type",
				fmt.Sprintf("Content-Type %q is not accepted", contentType),
				r.URL.Path,
			).WithExtension("allowed", contentTypes)
			render.Render(w, r, problem)
		})
	}
}
