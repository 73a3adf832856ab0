package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/middleware"
	"github.com/go-playground/validator/v10"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Message   string            `json:"message"`
	ErrorCode string            `json:"errorCode"`
	Errors    map[string]string `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Message: message, ErrorCode: code})
}

// writeError maps err through the engine's error classification. Internal
// errors are logged and reported without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := authcore.KindOf(err)
	if kind == authcore.KindInternal {
		h.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	writeJSON(w, kind.HTTPStatus(), errorBody{
		Message:   authcore.MessageOf(err),
		ErrorCode: authcore.CodeOf(err),
		Errors:    authcore.FieldErrors(err),
	})
}

func (h *Handler) writeGuardError(w http.ResponseWriter, r *http.Request, err error) {
	if authcore.KindOf(err) == authcore.KindInternal {
		h.log.Error(r.Context(), "authentication failed", "path", r.URL.Path, "error", err)
	}
	middleware.WriteJSONError(w, r, err)
}

// decode reads a JSON body into dst and validates it. It writes the error
// response itself and reports whether the handler should continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		writeMessage(w, http.StatusBadRequest, "INVALID_JSON", "Bad Request: Invalid JSON syntax")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		h.writeError(w, r, validationError(err))
		return false
	}
	return true
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationError converts validator failures into an
// *authcore.ValidationError keyed by JSON field name.
func validationError(err error) error {
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return err
	}

	verr := &authcore.ValidationError{}
	for _, fe := range fieldErrs {
		verr.Add(fe.Field(), fieldMessage(fe))
	}
	return verr
}

func fieldMessage(fe validator.FieldError) string {
	label := fieldLabel(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters long", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters long", label, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be %s characters", label, fe.Param())
	case "eqfield":
		return "Passwords do not match"
	default:
		return label + " is invalid"
	}
}

var fieldLabels = map[string]string{
	"name":             "Name",
	"email":            "Email",
	"password":         "Password",
	"confirmPassword":  "Confirm password",
	"code":             "Code",
	"secretKey":        "Secret key",
	"verificationCode": "Verification code",
}

func fieldLabel(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}
