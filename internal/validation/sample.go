package validation

import (
	"strings"

	"github.com/hcp-portal/api/internal/domain"
)

// SampleInput is the candidate sample request before validation.
type SampleInput struct {
	FirstName string `form:"first_name" validate:"required,max=100,plaintext"`
	LastName  string `form:"last_name" validate:"required,max=100,plaintext"`
	Email     string `form:"email" validate:"required,email,max=254"`
	Phone     string `form:"phone" validate:"omitempty,phone"`
	Address1  string `form:"address1" validate:"required,max=255,plaintext"`
	Address2  string `form:"address2" validate:"omitempty,max=255,plaintext"`
	City      string `form:"city" validate:"required,max=100,plaintext"`
	Province  string `form:"province" validate:"required,min=2,max=50,plaintext"`
	Country   string `form:"country" validate:"required,min=2,plaintext"`
	Zip       string `form:"zip" validate:"required,min=3,max=20,plaintext"`
	ProductID string `form:"product" validate:"required,plaintext"`

	Patient PatientInput `validate:"-"`
}

// PatientInput holds the patient contact of a direct-to-patient request.
type PatientInput struct {
	FirstName string `form:"patient_first_name" validate:"omitempty,max=100,plaintext"`
	LastName  string `form:"patient_last_name" validate:"omitempty,max=100,plaintext"`
	Email     string `form:"patient_email" validate:"omitempty,email,max=254"`
	Phone     string `form:"patient_phone" validate:"omitempty,max=50,plaintext"`
}

// SampleValidator validates sample requests. Safe for concurrent use.
type SampleValidator struct {
	engine *engine
}

// NewSampleValidator constructs the sample request validator.
func NewSampleValidator(opts ...Option) *SampleValidator {
	return &SampleValidator{engine: newEngine(opts...)}
}

// Validate checks input for the given variant. Patient details are checked and returned
// only for the patient variant; each missing patient field yields its own error.
func (v *SampleValidator) Validate(input SampleInput, variant domain.SampleVariant) (domain.SampleRecord, error) {
	input = input.normalized()

	fields := v.engine.collect(input)
	if variant == domain.SampleVariantPatient {
		fields = append(fields, v.engine.collect(input.Patient)...)
		fields = append(fields, missingPatientFields(input.Patient)...)
	}
	if len(fields) > 0 {
		return domain.SampleRecord{}, v.engine.fail(fields)
	}

	record := domain.SampleRecord{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     input.Email,
		Phone:     input.Phone,
		Address1:  input.Address1,
		Address2:  input.Address2,
		City:      input.City,
		Province:  input.Province,
		Country:   input.Country,
		Zip:       input.Zip,
		ProductID: input.ProductID,
	}
	if variant == domain.SampleVariantPatient {
		record.Patient = &domain.PatientInfo{
			FirstName: input.Patient.FirstName,
			LastName:  input.Patient.LastName,
			Email:     input.Patient.Email,
			Phone:     input.Patient.Phone,
		}
	}
	return record, nil
}

// ValidateForm coerces a raw sample request form and validates it for variant.
func (v *SampleValidator) ValidateForm(form domain.FormInput, variant domain.SampleVariant) (domain.SampleRecord, error) {
	return v.Validate(SampleInput{
		FirstName: form.Get("first_name"),
		LastName:  form.Get("last_name"),
		Email:     form.Get("email"),
		Phone:     form.Get("phone"),
		Address1:  form.Get("address1"),
		Address2:  form.Get("address2"),
		City:      form.Get("city"),
		Province:  form.Get("province"),
		Country:   form.Get("country"),
		Zip:       form.Get("zip"),
		ProductID: form.Get("product"),
		Patient: PatientInput{
			FirstName: form.Get("patient_first_name"),
			LastName:  form.Get("patient_last_name"),
			Email:     form.Get("patient_email"),
			Phone:     form.Get("patient_phone"),
		},
	}, variant)
}

func missingPatientFields(p PatientInput) []domain.FieldError {
	checks := []struct {
		field string
		value string
		label string
	}{
		{"patient_first_name", p.FirstName, "Patient first name"},
		{"patient_last_name", p.LastName, "Patient last name"},
		{"patient_phone", p.Phone, "Patient phone"},
		{"patient_email", p.Email, "Patient email"},
	}
	var out []domain.FieldError
	for _, check := range checks {
		if check.value != "" {
			continue
		}
		out = append(out, domain.FieldError{
			Field:   check.field,
			Message: check.label + " is required for direct-to-patient requests",
		})
	}
	return out
}

func (in SampleInput) normalized() SampleInput {
	return SampleInput{
		FirstName: clean(in.FirstName),
		LastName:  clean(in.LastName),
		Email:     strings.ToLower(clean(in.Email)),
		Phone:     clean(in.Phone),
		Address1:  clean(in.Address1),
		Address2:  clean(in.Address2),
		City:      clean(in.City),
		Province:  clean(in.Province),
		Country:   clean(in.Country),
		Zip:       clean(in.Zip),
		ProductID: clean(in.ProductID),
		Patient: PatientInput{
			FirstName: clean(in.Patient.FirstName),
			LastName:  clean(in.Patient.LastName),
			Email:     strings.ToLower(clean(in.Patient.Email)),
			Phone:     clean(in.Patient.Phone),
		},
	}
}
