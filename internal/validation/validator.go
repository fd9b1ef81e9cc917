// Package validation turns raw intake forms into validated domain records, reporting every
// failing field in a single pass.
package validation

import (
	"errors"
	"fmt"
	"html"
	"net/http"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/unicode/norm"

	"github.com/hcp-portal/api/internal/domain"
)

var (
	zipPattern   = regexp.MustCompile(`^\d{5}(-\d{4})?$`)
	npiPattern   = regexp.MustCompile(`^\d{10}$`)
	phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,}$`)
)

var fieldLabels = map[string]string{
	"first_name":         "First name",
	"last_name":          "Last name",
	"email":              "Email",
	"specialty":          "Specialty",
	"credentials":        "Credentials",
	"license_npi":        "NPI",
	"institution_name":   "Institution name",
	"address1":           "Address",
	"address2":           "Address line 2",
	"city":               "City",
	"province":           "State/Province",
	"zip":                "ZIP code",
	"country":            "Country",
	"phone":              "Phone",
	"product":            "Product",
	"patient_first_name": "Patient first name",
	"patient_last_name":  "Patient last name",
	"patient_email":      "Patient email",
	"patient_phone":      "Patient phone",
}

// Option customises validator construction.
type Option func(*options)

type options struct {
	status int
}

// WithStatus sets the HTTP status carried by validation errors. Only 400 and 422 are accepted;
// anything else keeps the default 422.
func WithStatus(status int) Option {
	return func(o *options) {
		switch status {
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			o.status = status
		}
	}
}

type engine struct {
	validate *validator.Validate
	policy   *bluemonday.Policy
	status   int
}

func newEngine(opts ...Option) *engine {
	cfg := options{status: http.StatusUnprocessableEntity}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	e := &engine{
		validate: validator.New(),
		policy:   bluemonday.StrictPolicy(),
		status:   cfg.status,
	}

	e.validate.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("form"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})

	mustRegister(e.validate, "zip", matchPattern(zipPattern))
	mustRegister(e.validate, "npi", matchPattern(npiPattern))
	mustRegister(e.validate, "phone", matchPattern(phonePattern))
	mustRegister(e.validate, "plaintext", func(fl validator.FieldLevel) bool {
		value := fl.Field().String()
		return html.UnescapeString(e.policy.Sanitize(value)) == value
	})

	return e
}

func mustRegister(v *validator.Validate, tag string, fn validator.Func) {
	if err := v.RegisterValidation(tag, fn); err != nil {
		panic(fmt.Sprintf("validation: register %s: %v", tag, err))
	}
}

func matchPattern(pattern *regexp.Regexp) validator.Func {
	return func(fl validator.FieldLevel) bool {
		return pattern.MatchString(fl.Field().String())
	}
}

// collect validates s and returns one FieldError per failing field, in declaration order.
func (e *engine) collect(s any) []domain.FieldError {
	err := e.validate.Struct(s)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []domain.FieldError{{Field: "form", Message: "Invalid form submission"}}
	}
	out := make([]domain.FieldError, 0, len(verrs))
	for _, fe := range verrs {
		out = append(out, domain.FieldError{
			Field:   fe.Field(),
			Message: errorMessage(fe),
		})
	}
	return out
}

func (e *engine) fail(fields []domain.FieldError) error {
	return domain.NewValidationError(e.status, fields)
}

func errorMessage(fe validator.FieldError) string {
	label := labelFor(fe.Field())
	switch fe.Tag() {
	case "required":
		return label + " is required"
	case "email":
		return "Invalid email address"
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", label, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", label, fe.Param())
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", label, fe.Param())
	case "npi":
		return "NPI must be 10 digits"
	case "zip":
		return "Invalid ZIP code format"
	case "phone":
		return "Invalid phone number format"
	case "plaintext":
		return label + " must not contain markup"
	default:
		return label + " is invalid"
	}
}

func labelFor(field string) string {
	if label, ok := fieldLabels[field]; ok {
		return label
	}
	return field
}

// clean trims surrounding whitespace and applies NFC normalisation.
func clean(value string) string {
	return norm.NFC.String(strings.TrimSpace(value))
}
