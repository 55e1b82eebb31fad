package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/massy-ia/citydesk/internal/apperr"
	"github.com/massy-ia/citydesk/internal/logging"
)

const maxJSONBody = 1 << 20

// envelope is the shape of every response body.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

func writeEnvelope(w http.ResponseWriter, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(body.Status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logging.Error().Err(err).Msg("Failed to write response")
	}
}

// respond writes a success envelope. A nil data omits the data member.
func respond(w http.ResponseWriter, status int, message string, data any) {
	writeEnvelope(w, envelope{Success: true, Message: message, Status: status, Data: data})
}

// respondError classifies err and writes the matching error envelope.
// Internal errors are logged and answered with a generic message.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)
	body := envelope{Success: false, Status: status, Message: "internal server error"}

	appErr, ok := apperr.As(err)
	switch {
	case kind == apperr.KindInternal || !ok:
		logging.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("Request failed")
	default:
		body.Message = appErr.Message
		body.Errors = appErr.Details
		if kind == apperr.KindUnavailable {
			logging.Warn().Err(err).Str("path", r.URL.Path).Msg("Upstream service unavailable")
		}
	}
	writeEnvelope(w, body)
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads a JSON body into dst and checks its validate tags. An
// empty body decodes as an empty object.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return apperr.Validation("invalid request body")
	}
	return validateStruct(dst)
}

func validateStruct(dst any) error {
	err := validate.Struct(dst)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperr.Validation("invalid request body")
	}
	details := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = validationMessage(fe)
	}
	return apperr.Validation("missing or invalid fields").WithDetails(details)
}

func validationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min":
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return fmt.Sprintf("failed on %s", fe.Tag())
}
