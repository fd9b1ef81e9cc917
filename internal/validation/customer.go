package validation

import (
	"strings"

	"github.com/hcp-portal/api/internal/domain"
)

const defaultCountry = "US"

// CustomerInput is the candidate HCP registration before validation.
type CustomerInput struct {
	FirstName       string `form:"first_name" validate:"required,max=100,plaintext"`
	LastName        string `form:"last_name" validate:"required,max=100,plaintext"`
	Email           string `form:"email" validate:"required,email,max=254"`
	Specialty       string `form:"specialty" validate:"required,max=100,plaintext"`
	Credentials     string `form:"credentials" validate:"required,max=50,plaintext"`
	LicenseNPI      string `form:"license_npi" validate:"omitempty,npi"`
	InstitutionName string `form:"institution_name" validate:"required,max=200,plaintext"`
	Address1        string `form:"address1" validate:"required,max=255,plaintext"`
	Address2        string `form:"address2" validate:"omitempty,max=255,plaintext"`
	City            string `form:"city" validate:"required,max=100,plaintext"`
	Province        string `form:"province" validate:"required,min=2,max=50,plaintext"`
	Zip             string `form:"zip" validate:"required,zip"`
	Country         string `form:"country" validate:"required,len=2"`
	Phone           string `form:"phone" validate:"omitempty,phone"`
}

// CustomerValidator validates HCP registrations. Safe for concurrent use.
type CustomerValidator struct {
	engine *engine
}

// NewCustomerValidator constructs the registration validator.
func NewCustomerValidator(opts ...Option) *CustomerValidator {
	return &CustomerValidator{engine: newEngine(opts...)}
}

// Validate checks every field of input and returns the validated record, or a validation
// error listing each failing field.
func (v *CustomerValidator) Validate(input CustomerInput) (domain.CustomerRecord, error) {
	input = input.normalized()
	if fields := v.engine.collect(input); len(fields) > 0 {
		return domain.CustomerRecord{}, v.engine.fail(fields)
	}
	return domain.CustomerRecord{
		FirstName:       input.FirstName,
		LastName:        input.LastName,
		Email:           input.Email,
		Specialty:       input.Specialty,
		Credentials:     input.Credentials,
		LicenseNPI:      input.LicenseNPI,
		InstitutionName: input.InstitutionName,
		Address1:        input.Address1,
		Address2:        input.Address2,
		City:            input.City,
		Province:        input.Province,
		Zip:             input.Zip,
		Country:         input.Country,
		Phone:           input.Phone,
	}, nil
}

// ValidateForm coerces a raw registration form and validates it. The phone number is
// the concatenation of country_code and phone when both are present.
func (v *CustomerValidator) ValidateForm(form domain.FormInput) (domain.CustomerRecord, error) {
	phone := ""
	if number, code := clean(form.Get("phone")), clean(form.Get("country_code")); number != "" && code != "" {
		phone = code + number
	}
	return v.Validate(CustomerInput{
		FirstName:       form.Get("first_name"),
		LastName:        form.Get("last_name"),
		Email:           form.Get("email"),
		Specialty:       form.Get("specialty"),
		Credentials:     form.Get("credentials"),
		LicenseNPI:      form.Get("license_npi"),
		InstitutionName: form.Get("institution_name"),
		Address1:        form.Get("address1"),
		Address2:        form.Get("address2"),
		City:            form.Get("city"),
		Province:        form.Get("province"),
		Zip:             form.Get("zip"),
		Country:         form.Get("country"),
		Phone:           phone,
	})
}

func (in CustomerInput) normalized() CustomerInput {
	out := CustomerInput{
		FirstName:       clean(in.FirstName),
		LastName:        clean(in.LastName),
		Email:           strings.ToLower(clean(in.Email)),
		Specialty:       clean(in.Specialty),
		Credentials:     clean(in.Credentials),
		LicenseNPI:      clean(in.LicenseNPI),
		InstitutionName: clean(in.InstitutionName),
		Address1:        clean(in.Address1),
		Address2:        clean(in.Address2),
		City:            clean(in.City),
		Province:        clean(in.Province),
		Zip:             clean(in.Zip),
		Country:         strings.ToUpper(clean(in.Country)),
		Phone:           clean(in.Phone),
	}
	if out.Country == "" {
		out.Country = defaultCountry
	}
	return out
}
