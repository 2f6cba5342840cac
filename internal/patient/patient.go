// Package patient implements the intake gateway: role-gated search,
// view and registration of patient records, with duplicate detection
// before every create and an audit entry for every access.
package patient

import (
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// RequiredRoles gates every patient operation. Admin and superuser
// overrides apply on top via the evaluator.
var RequiredRoles = []string{"clinician", "staff"}

// Patient is a stored patient record.
type Patient struct {
	ID          string     `json:"id"`
	ExternalID  string     `json:"external_id,omitempty"`
	FamilyName  string     `json:"family_name"`
	GivenName   string     `json:"given_name"`
	DOB         *time.Time `json:"dob,omitempty"`
	Sex         string     `json:"sex,omitempty"`
	Email       string     `json:"email,omitempty"`
	Phone       string     `json:"phone,omitempty"`
	AddressLine string     `json:"address_line,omitempty"`
	City        string     `json:"city,omitempty"`
	Region      string     `json:"region,omitempty"`
	PostalCode  string     `json:"postal_code,omitempty"`
	Country     string     `json:"country,omitempty"`
	Active      bool       `json:"active"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// IntakeFields is the registration payload. DOB uses ISO 8601 date
// form; contact fields are optional but at least one of email or phone
// must be present.
type IntakeFields struct {
	ExternalID  string `json:"external_id" validate:"omitempty,max=100"`
	FamilyName  string `json:"family_name" validate:"required,max=100"`
	GivenName   string `json:"given_name" validate:"required,max=100"`
	DOB         string `json:"dob" validate:"omitempty,datetime=2006-01-02"`
	Sex         string `json:"sex" validate:"omitempty,max=20"`
	Email       string `json:"email" validate:"omitempty,email,max=254"`
	Phone       string `json:"phone" validate:"omitempty,max=32"`
	AddressLine string `json:"address_line" validate:"omitempty,max=255"`
	City        string `json:"city" validate:"omitempty,max=100"`
	Region      string `json:"region" validate:"omitempty,max=100"`
	PostalCode  string `json:"postal_code" validate:"omitempty,max=20"`
	Country     string `json:"country" validate:"omitempty,max=100"`
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func fieldValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

func (f IntakeFields) parseDOB() (*time.Time, error) {
	if strings.TrimSpace(f.DOB) == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", f.DOB)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
