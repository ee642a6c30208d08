package entity

import (
	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/constants"
)

// Provider is a family's care provider.
type Provider struct {
	ID           uuid.UUID              `json:"id"`
	FamilyID     uuid.UUID              `json:"family_id"`
	Name         string                 `json:"name"`
	Type         constants.ProviderType `json:"type"`
	Specialty    string                 `json:"specialty,omitempty"`
	Phone        string                 `json:"phone,omitempty"`
	Email        string                 `json:"email,omitempty"`
	AddressLine1 string                 `json:"address_line1,omitempty"`
	City         string                 `json:"city,omitempty"`
	State        string                 `json:"state,omitempty"`
	Zip          string                 `json:"zip,omitempty"`
	Active       bool                   `json:"active"`
}

// Address is a best-effort split of a free-text address.
type Address struct {
	Line1 string
	City  string
	State string
	Zip   string
}
