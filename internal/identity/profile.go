// Package identity holds the data-model types shared by the gateway and the
// verifier nodes: enrollment profiles, stored records, classification payloads
// and the slug derivation used to group raw biometric samples.
package identity

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	dErrors "ciphera/pkg/domain-errors"
)

// Profile carries the contact and demographic attributes of an enrolled
// identity. All fields are free-form strings; required fields must be
// non-empty after trimming.
type Profile struct {
	FirstName      string          `json:"first_name" validate:"required"`
	MiddleName     string          `json:"middle_name,omitempty"`
	LastName       string          `json:"last_name" validate:"required"`
	Phone          string          `json:"phone" validate:"required"`
	AddressLine1   string          `json:"address_line1" validate:"required"`
	AddressLine2   string          `json:"address_line2,omitempty"`
	City           string          `json:"city" validate:"required"`
	State          string          `json:"state,omitempty"`
	PostalCode     string          `json:"postal_code" validate:"required"`
	Country        string          `json:"country" validate:"required"`
	Classification *Classification `json:"classification,omitempty"`
}

// Enrollment is a candidate identity presented for registration. Email is the
// identity key; Name, when empty, is derived from the name parts.
type Enrollment struct {
	Email   string  `json:"email" validate:"required"`
	Name    string  `json:"name,omitempty"`
	Profile Profile `json:"profile"`
}

// Normalize trims every profile field in place.
func (p *Profile) Normalize() {
	p.FirstName = strings.TrimSpace(p.FirstName)
	p.MiddleName = strings.TrimSpace(p.MiddleName)
	p.LastName = strings.TrimSpace(p.LastName)
	p.Phone = strings.TrimSpace(p.Phone)
	p.AddressLine1 = strings.TrimSpace(p.AddressLine1)
	p.AddressLine2 = strings.TrimSpace(p.AddressLine2)
	p.City = strings.TrimSpace(p.City)
	p.State = strings.TrimSpace(p.State)
	p.PostalCode = strings.TrimSpace(p.PostalCode)
	p.Country = strings.TrimSpace(p.Country)
}

// Normalize trims the enrollment fields and the embedded profile.
func (e *Enrollment) Normalize() {
	e.Email = strings.TrimSpace(e.Email)
	e.Name = strings.TrimSpace(e.Name)
	e.Profile.Normalize()
}

// DisplayName returns the explicit name when supplied, otherwise the name
// parts joined with single spaces.
func (e *Enrollment) DisplayName() string {
	if e.Name != "" {
		return e.Name
	}
	parts := make([]string, 0, 3)
	for _, part := range []string{e.Profile.FirstName, e.Profile.MiddleName, e.Profile.LastName} {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report wire field names (json tags) so validation errors match the
	// multipart form fields clients actually send.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Validate checks that every required field is non-empty. Callers should
// Normalize first. Returns a validation_error listing the missing wire field
// names, in a stable order.
func (e *Enrollment) Validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}

	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return dErrors.Wrap(err, dErrors.CodeInternal, "profile validation failed")
	}

	missing := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		missing = append(missing, fe.Field())
	}
	return dErrors.New(dErrors.CodeValidation, "missing required profile attributes").
		WithDetails("missing", missing)
}
