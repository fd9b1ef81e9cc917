package shopify

import (
	"fmt"
	"regexp"
	"strings"

	domain "github.com/hcp-portal/api/internal/domain"
)

const (
	metafieldNamespace = "custom"
	metafieldTextType  = "single_line_text_field"

	sampleUnitPrice           = "0.00"
	sampleDiscountDescription = "HCP Sample Request - 100% Off"
	sampleDiscountPercent     = 100.0
	sampleDiscountValueType   = "PERCENTAGE"
)

var numericID = regexp.MustCompile(`^\d+$`)

type metafieldInput struct {
	Namespace string `json:"namespace"`
	Key       string `json:"key"`
	Type      string `json:"type"`
	Value     string `json:"value"`
}

type mailingAddressInput struct {
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Company      string `json:"company,omitempty"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2,omitempty"`
	City         string `json:"city"`
	Province     string `json:"province,omitempty"`
	ProvinceCode string `json:"provinceCode,omitempty"`
	Country      string `json:"country,omitempty"`
	CountryCode  string `json:"countryCode,omitempty"`
	Zip          string `json:"zip"`
	Phone        string `json:"phone,omitempty"`
}

type customerInput struct {
	FirstName  string                `json:"firstName"`
	LastName   string                `json:"lastName"`
	Email      string                `json:"email"`
	Tags       []string              `json:"tags"`
	Addresses  []mailingAddressInput `json:"addresses"`
	Metafields []metafieldInput      `json:"metafields"`
}

type appliedDiscountInput struct {
	Description string  `json:"description"`
	Value       float64 `json:"value"`
	ValueType   string  `json:"valueType"`
}

type draftOrderLineItemInput struct {
	VariantID         string               `json:"variantId"`
	Quantity          int                  `json:"quantity"`
	OriginalUnitPrice string               `json:"originalUnitPrice"`
	AppliedDiscount   appliedDiscountInput `json:"appliedDiscount"`
}

type draftOrderInput struct {
	Email                     string                    `json:"email"`
	LineItems                 []draftOrderLineItemInput `json:"lineItems"`
	ShippingAddress           mailingAddressInput       `json:"shippingAddress"`
	UseCustomerDefaultAddress bool                      `json:"useCustomerDefaultAddress"`
	Note                      string                    `json:"note"`
	Metafields                []metafieldInput          `json:"metafields"`
}

// customerCreateInput shapes a DTO for customerCreate. Empty attributes produce no metafield.
func customerCreateInput(dto domain.CustomerDTO) customerInput {
	tags := dto.Tags
	if len(tags) == 0 {
		tags = []string{domain.DefaultCustomerTag}
	}
	return customerInput{
		FirstName: dto.FirstName,
		LastName:  dto.LastName,
		Email:     dto.Email,
		Tags:      append([]string(nil), tags...),
		Addresses: []mailingAddressInput{{
			FirstName:    dto.FirstName,
			LastName:     dto.LastName,
			Company:      dto.InstitutionName,
			Address1:     dto.Address1,
			Address2:     dto.Address2,
			City:         dto.City,
			ProvinceCode: dto.Province,
			CountryCode:  dto.Country,
			Zip:          dto.Zip,
			Phone:        dto.Phone,
		}},
		Metafields: textMetafields(
			"hcp_speciality", dto.Specialty,
			"hcp_credentials", dto.Credentials,
			"hcp_license", dto.LicenseNPI,
			"hcp_institution", dto.InstitutionName,
		),
	}
}

// draftOrderCreateInput shapes a sample request as a single fully discounted line item.
func draftOrderCreateInput(record domain.SampleRecord, variantID string) draftOrderInput {
	var patientEmail, patientPhone string
	if record.Patient != nil {
		patientEmail = record.Patient.Email
		patientPhone = record.Patient.Phone
	}
	return draftOrderInput{
		Email: record.Email,
		LineItems: []draftOrderLineItemInput{{
			VariantID:         variantID,
			Quantity:          1,
			OriginalUnitPrice: sampleUnitPrice,
			AppliedDiscount: appliedDiscountInput{
				Description: sampleDiscountDescription,
				Value:       sampleDiscountPercent,
				ValueType:   sampleDiscountValueType,
			},
		}},
		ShippingAddress: mailingAddressInput{
			FirstName: record.FirstName,
			LastName:  record.LastName,
			Address1:  record.Address1,
			Address2:  record.Address2,
			City:      record.City,
			Province:  record.Province,
			Country:   record.Country,
			Zip:       record.Zip,
			Phone:     record.Phone,
		},
		UseCustomerDefaultAddress: false,
		Note:                      fmt.Sprintf("HCP Sample Request - %s %s - %s", record.FirstName, record.LastName, record.Email),
		Metafields: textMetafields(
			"patient_email", patientEmail,
			"patient_phone", patientPhone,
		),
	}
}

// textMetafields takes key/value pairs and skips blank values.
func textMetafields(pairs ...string) []metafieldInput {
	out := make([]metafieldInput, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		value := strings.TrimSpace(pairs[i+1])
		if value == "" {
			continue
		}
		out = append(out, metafieldInput{
			Namespace: metafieldNamespace,
			Key:       pairs[i],
			Type:      metafieldTextType,
			Value:     value,
		})
	}
	return out
}

// globalID expands a numeric id to gid://shopify/<kind>/<id>. Global ids and other values pass through.
func globalID(kind, id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "gid://") || !numericID.MatchString(id) {
		return id
	}
	return "gid://shopify/" + kind + "/" + id
}
