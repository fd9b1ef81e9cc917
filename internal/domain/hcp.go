package domain

import "strings"

// DefaultCustomerTag marks customers created through the intake form until staff verify them.
const DefaultCustomerTag = "HCP_PENDING"

// FormInput is a submitted form flattened to one value per key. Missing keys read as "".
type FormInput map[string]string

// Get returns the value stored under key, or "" when absent.
func (f FormInput) Get(key string) string {
	if f == nil {
		return ""
	}
	return f[key]
}

// CustomerRecord is a validated HCP registration.
type CustomerRecord struct {
	FirstName       string
	LastName        string
	Email           string
	Specialty       string
	Credentials     string
	LicenseNPI      string
	InstitutionName string
	Address1        string
	Address2        string
	City            string
	Province        string
	Zip             string
	Country         string
	Phone           string
}

// CustomerDTO is the creation payload sent to the remote store.
type CustomerDTO struct {
	CustomerRecord
	Tags []string
}

// NewCustomerDTO builds the creation payload. Tags default to DefaultCustomerTag.
func NewCustomerDTO(record CustomerRecord, tags ...string) CustomerDTO {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if tag = strings.TrimSpace(tag); tag != "" {
			out = append(out, tag)
		}
	}
	if len(out) == 0 {
		out = append(out, DefaultCustomerTag)
	}
	return CustomerDTO{CustomerRecord: record, Tags: out}
}

// Customer is the remote customer resource.
type Customer struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	Tags      []string
}

// SampleVariant selects where a sample request ships.
type SampleVariant string

const (
	// SampleVariantOffice ships to the practitioner's office.
	SampleVariantOffice SampleVariant = "office"
	// SampleVariantPatient ships directly to a patient and requires patient contact details.
	SampleVariantPatient SampleVariant = "patient"
)

// ParseSampleVariant maps the request type parameter, defaulting to office.
func ParseSampleVariant(value string) SampleVariant {
	if strings.EqualFold(strings.TrimSpace(value), string(SampleVariantPatient)) {
		return SampleVariantPatient
	}
	return SampleVariantOffice
}

// PatientInfo holds the patient contact captured on direct-to-patient requests.
type PatientInfo struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
}

// SampleRecord is a validated sample request.
type SampleRecord struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Address1  string
	Address2  string
	City      string
	Province  string
	Country   string
	Zip       string
	ProductID string
	Patient   *PatientInfo
}

// DraftOrder is the remote draft order created for a sample request.
type DraftOrder struct {
	ID   string
	Name string
}

// FieldError names one failing input field and the reason.
type FieldError struct {
	Field   string
	Message string
}
