package handler

import (
	"strings"

	"golden/internal/request/models"
	dErrors "golden/pkg/domain-errors"
)

// ProfileRequest is the body of POST /requests and PUT /requests/{id}/profile.
// Field completeness is checked on submit, not here.
type ProfileRequest struct {
	Name         string `json:"name"`
	TaxNumber    string `json:"tax_number"`
	CustomerType string `json:"customer_type"`
	Country      string `json:"country,omitempty"`
	City         string `json:"city,omitempty"`
	Address      string `json:"address,omitempty"`
	ContactName  string `json:"contact_name,omitempty"`
	ContactEmail string `json:"contact_email,omitempty"`
	ContactPhone string `json:"contact_phone,omitempty"`
}

func (r *ProfileRequest) Profile() models.Profile {
	return models.Profile{
		Name:         r.Name,
		TaxNumber:    r.TaxNumber,
		CustomerType: r.CustomerType,
		Country:      r.Country,
		City:         r.City,
		Address:      r.Address,
		ContactName:  r.ContactName,
		ContactEmail: r.ContactEmail,
		ContactPhone: r.ContactPhone,
	}
}

// DecisionRequest carries the optional reason for reject and the required
// reason for compliance-block.
type DecisionRequest struct {
	Reason string `json:"reason"`
}

// IngestRequest is the body of POST /ingest.
type IngestRequest struct {
	Origin  string         `json:"origin"`
	Profile ProfileRequest `json:"profile"`

	parsedOrigin models.Origin
}

// Validate parses the origin. Origins reserved for drafts and golden edits
// are refused by the service.
func (r *IngestRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Origin = strings.TrimSpace(r.Origin)
	if r.Origin == "" {
		r.parsedOrigin = models.OriginUnknown
		return nil
	}
	origin, err := models.ParseOrigin(r.Origin)
	if err != nil {
		return err
	}
	r.parsedOrigin = origin
	return nil
}

func (r *IngestRequest) ParsedOrigin() models.Origin {
	return r.parsedOrigin
}
