package api

import (
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
)

// FieldError names one rejected request field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorResponse is the body of every non-2xx answer.
type ErrorResponse struct {
	Status int          `json:"-"`
	Detail string       `json:"detail"`
	Errors []FieldError `json:"errors,omitempty"`
}

// Render implements render.Renderer.
func (e *ErrorResponse) Render(_ http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

func errBadRequest(detail string) *ErrorResponse {
	return &ErrorResponse{Status: http.StatusBadRequest, Detail: detail}
}

func errNotFound(detail string) *ErrorResponse {
	return &ErrorResponse{Status: http.StatusNotFound, Detail: detail}
}

func errConflict(detail string) *ErrorResponse {
	return &ErrorResponse{Status: http.StatusConflict, Detail: detail}
}

func errInternal() *ErrorResponse {
	return &ErrorResponse{Status: http.StatusInternalServerError, Detail: "Internal server error"}
}

func errValidation(err error) *ErrorResponse {
	resp := &ErrorResponse{Status: http.StatusUnprocessableEntity, Detail: "Request validation failed"}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		resp.Detail = err.Error()
		return resp
	}
	for _, fe := range verrs {
		resp.Errors = append(resp.Errors, FieldError{Field: fe.Field(), Message: describeFieldError(fe)})
	}
	return resp
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func describeFieldError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	case "datetime":
		return fmt.Sprintf("%s must be a date in YYYY-MM-DD format", fe.Field())
	default:
		return fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag())
	}
}
