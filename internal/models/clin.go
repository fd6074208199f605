package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryInfo holds per-CLIN delivery requirements.
type DeliveryInfo struct {
	FacilityName        string   `json:"facility_name,omitempty"`
	StreetAddress       string   `json:"street_address,omitempty"`
	City                string   `json:"city,omitempty"`
	State               string   `json:"state,omitempty"`
	ZipCode             string   `json:"zip_code,omitempty"`
	Country             string   `json:"country,omitempty"`
	FOBTerms            string   `json:"fob_terms,omitempty"` // "destination" or "origin"
	Timeline            string   `json:"timeline,omitempty"`
	SpecialInstructions []string `json:"special_instructions,omitempty"`
}

// CLIN is a contract line item extracted from solicitation documents.
// CLINNumber is unique per opportunity after normalization.
type CLIN struct {
	ID             uuid.UUID    `json:"id"`
	OpportunityID  uuid.UUID    `json:"opportunity_id"`
	CLINNumber     string       `json:"clin_number"`
	BaseItemNumber string       `json:"base_item_number,omitempty"`
	ProductName    string       `json:"product_name,omitempty"`
	Description    string       `json:"description,omitempty"`
	Manufacturer   string       `json:"manufacturer,omitempty"`
	PartNumber     string       `json:"part_number,omitempty"`
	ModelNumber    string       `json:"model_number,omitempty"`
	DrawingNumber  string       `json:"drawing_number,omitempty"`
	Quantity       *float64     `json:"quantity,omitempty"`
	Unit           string       `json:"unit,omitempty"`
	ContractType   string       `json:"contract_type,omitempty"`
	ExtendedPrice  *float64     `json:"extended_price,omitempty"`
	ScopeOfWork    string       `json:"scope_of_work,omitempty"`
	ServiceReqs    string       `json:"service_requirements,omitempty"`
	Delivery       DeliveryInfo `json:"delivery"`
	SourceDocument string       `json:"source_document,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
}
