package models

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "golden/pkg/domain-errors"
)

var validate = newValidator()

// newValidator reports fields by their json names.
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

// Profile holds the customer field values of a request.
type Profile struct {
	Name         string `json:"name" validate:"required,max=256"`
	TaxNumber    string `json:"tax_number" validate:"required,max=64"`
	CustomerType string `json:"customer_type" validate:"required,max=64"`
	Country      string `json:"country,omitempty" validate:"omitempty,iso3166_1_alpha2"`
	City         string `json:"city,omitempty" validate:"max=128"`
	Address      string `json:"address,omitempty" validate:"max=512"`
	ContactName  string `json:"contact_name,omitempty" validate:"max=256"`
	ContactEmail string `json:"contact_email,omitempty" validate:"omitempty,email"`
	ContactPhone string `json:"contact_phone,omitempty" validate:"max=32"`
}

// Normalized returns a copy with surrounding whitespace removed from every
// field.
func (p Profile) Normalized() Profile {
	return Profile{
		Name:         strings.TrimSpace(p.Name),
		TaxNumber:    strings.TrimSpace(p.TaxNumber),
		CustomerType: strings.TrimSpace(p.CustomerType),
		Country:      strings.ToUpper(strings.TrimSpace(p.Country)),
		City:         strings.TrimSpace(p.City),
		Address:      strings.TrimSpace(p.Address),
		ContactName:  strings.TrimSpace(p.ContactName),
		ContactEmail: strings.TrimSpace(p.ContactEmail),
		ContactPhone: strings.TrimSpace(p.ContactPhone),
	}
}

// Key returns the duplicate key of the profile.
func (p Profile) Key() DuplicateKey {
	return NewDuplicateKey(p.TaxNumber, p.CustomerType)
}

// Validate checks the submission form. Missing tax number or customer type is
// reported here so duplicate arbitration never runs on a partial key.
func (p Profile) Validate() error {
	err := validate.Struct(p.Normalized())
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return dErrors.Wrap(err, dErrors.CodeInternal, "profile validation failed")
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
	}
	return dErrors.New(dErrors.CodeValidation, "invalid fields: "+strings.Join(fields, ", "))
}

// DuplicateKey identifies a customer for duplicate detection. Both parts are
// trimmed and compared exactly.
type DuplicateKey struct {
	TaxNumber    string
	CustomerType string
}

func NewDuplicateKey(taxNumber, customerType string) DuplicateKey {
	return DuplicateKey{
		TaxNumber:    strings.TrimSpace(taxNumber),
		CustomerType: strings.TrimSpace(customerType),
	}
}

// IsComplete reports whether both parts are present. An incomplete key
// cannot be checked for duplicates.
func (k DuplicateKey) IsComplete() bool {
	return k.TaxNumber != "" && k.CustomerType != ""
}

func (k DuplicateKey) String() string {
	return k.TaxNumber + "/" + k.CustomerType
}
