package web

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	batchStore "academy/internal/adapters/storage/batch"
	sessionStore "academy/internal/adapters/storage/session"
	"academy/internal/application/orchestrators"
	"academy/internal/domain/batch"
	"academy/internal/domain/session"
)

// apiError is the body of every non-2xx JSON response.
type apiError struct {
	Error     string            `json:"error"`
	Code      string            `json:"code,omitempty"`
	Retryable bool              `json:"retryable,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Errors    []string          `json:"errors,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
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

// validationFields maps each failing field to the rule it broke.
// The second result is false when err is not a validation failure.
func validationFields(err error) (map[string]string, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return nil, false
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return fields, true
}

// strictDecode decodes JSON from the request body, rejecting unknown fields.
func strictDecode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeAndValidate decodes the body into v and runs its validate tags,
// writing a 400 and returning false on failure.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := strictDecode(r, v); err != nil {
		writeError(w, http.StatusBadRequest, apiError{Error: "invalid JSON body", Code: "invalid_body"})
		return false
	}
	if err := validate.Struct(v); err != nil {
		fields, ok := validationFields(err)
		if !ok {
			internalError(w, err)
			return false
		}
		writeError(w, http.StatusBadRequest, apiError{Error: "invalid request", Code: "invalid_field", Fields: fields})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response_encode_failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, body apiError) {
	writeJSON(w, status, body)
}

// internalError logs the real error and returns a generic message to the client.
func internalError(w http.ResponseWriter, err error) {
	slog.Error("internal_error", "error", err.Error())
	writeError(w, http.StatusInternalServerError, apiError{Error: "internal server error"})
}

// writeServiceError maps a schedule service error onto a status code.
// Store details are logged and never returned.
// PRE: err is non-nil
// POST: Exactly one response is written
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var te *session.TransitionError
	var loadErr *orchestrators.ScheduleLoadError
	var parseErr *orchestrators.ImportParseError

	switch {
	case errors.As(err, &te):
		writeError(w, http.StatusUnprocessableEntity, apiError{Error: te.Error(), Code: string(te.Code)})
	case errors.As(err, &parseErr):
		writeError(w, http.StatusBadRequest, apiError{Error: "import rejected", Code: "import_rejected", Errors: parseErr.Errors})
	case errors.As(err, &loadErr) && !loadErr.Retryable():
		writeError(w, http.StatusNotFound, apiError{Error: "batch not found", Code: "batch_not_found"})
	case errors.As(err, &loadErr):
		logRequestError(r, err)
		writeError(w, http.StatusBadGateway, apiError{Error: "schedule could not be loaded", Code: "load_failed", Retryable: true})
	case errors.Is(err, orchestrators.ErrSaveTimeout):
		logRequestError(r, err)
		writeError(w, http.StatusGatewayTimeout, apiError{Error: "save timed out", Code: "save_timeout", Retryable: true})
	case errors.Is(err, sessionStore.ErrDuplicateSessionNumber):
		writeError(w, http.StatusConflict, apiError{Error: "session number already has a record; reload the schedule", Code: "duplicate_session", Retryable: true})
	case errors.Is(err, sessionStore.ErrNotFound):
		writeError(w, http.StatusNotFound, apiError{Error: "session not found", Code: "session_not_found"})
	case errors.Is(err, batchStore.ErrNotFound):
		writeError(w, http.StatusNotFound, apiError{Error: "batch not found", Code: "batch_not_found"})
	case isInputError(err):
		writeError(w, http.StatusBadRequest, apiError{Error: err.Error(), Code: "invalid_input"})
	default:
		logRequestError(r, err)
		writeError(w, http.StatusBadGateway, apiError{Error: "save failed (see server log)", Code: "store_failed", Retryable: true})
	}
}

var inputErrors = []error{
	session.ErrEmptyBatchID,
	session.ErrInvalidSessionNumber,
	session.ErrUnknownStatus,
	session.ErrMissingReason,
	orchestrators.ErrUnboundSlot,
	batch.ErrEmptyID,
	batch.ErrNegativeTotalSessions,
	batch.ErrInvalidTeacherEmail,
}

func isInputError(err error) bool {
	for _, target := range inputErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func logRequestError(r *http.Request, err error) {
	slog.Error("request_failed", "method", r.Method, "path", r.URL.Path, "error", err)
}
