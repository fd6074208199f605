package clin

import (
	"strings"

	"github.com/marcus/bid-analyzer/internal/models"
)

// payload is the JSON envelope the model is asked to produce. Every field is
// nullable; the prompt forbids invented values.
type payload struct {
	CLINs     []clinPayload     `json:"clins"`
	Deadlines []deadlinePayload `json:"deadlines"`
}

type clinPayload struct {
	CLINNumber     string           `json:"clin_number"`
	BaseItemNumber *string          `json:"base_item_number"`
	ProductName    *string          `json:"product_name"`
	Description    *string          `json:"description"`
	Manufacturer   *string          `json:"manufacturer"`
	PartNumber     *string          `json:"part_number"`
	ModelNumber    *string          `json:"model_number"`
	DrawingNumber  *string          `json:"drawing_number"`
	Quantity       *float64         `json:"quantity"`
	Unit           *string          `json:"unit"`
	ContractType   *string          `json:"contract_type"`
	ExtendedPrice  *float64         `json:"extended_price"`
	ScopeOfWork    *string          `json:"scope_of_work"`
	ServiceReqs    *string          `json:"service_requirements"`
	Delivery       *deliveryPayload `json:"delivery"`
	SourceDocument *string          `json:"source_document"`
}

type deliveryPayload struct {
	FacilityName        *string  `json:"facility_name"`
	StreetAddress       *string  `json:"street_address"`
	City                *string  `json:"city"`
	State               *string  `json:"state"`
	ZipCode             *string  `json:"zip_code"`
	Country             *string  `json:"country"`
	FOBTerms            *string  `json:"fob_terms"`
	Timeline            *string  `json:"delivery_timeline"`
	SpecialInstructions []string `json:"special_instructions"`
}

type deadlinePayload struct {
	Type        string  `json:"type"` // submission | questions_due | delivery | other
	Date        *string `json:"date"` // YYYY-MM-DD
	Time        *string `json:"time"` // HH:MM 24h
	Timezone    *string `json:"timezone"`
	Description *string `json:"description"`
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

func (c clinPayload) toModel() models.CLIN {
	m := models.CLIN{
		CLINNumber:     strings.TrimSpace(c.CLINNumber),
		BaseItemNumber: str(c.BaseItemNumber),
		ProductName:    str(c.ProductName),
		Description:    str(c.Description),
		Manufacturer:   str(c.Manufacturer),
		PartNumber:     str(c.PartNumber),
		ModelNumber:    str(c.ModelNumber),
		DrawingNumber:  str(c.DrawingNumber),
		Quantity:       c.Quantity,
		Unit:           str(c.Unit),
		ContractType:   str(c.ContractType),
		ExtendedPrice:  c.ExtendedPrice,
		ScopeOfWork:    str(c.ScopeOfWork),
		ServiceReqs:    str(c.ServiceReqs),
		SourceDocument: str(c.SourceDocument),
	}
	if c.Delivery != nil {
		m.Delivery = models.DeliveryInfo{
			FacilityName:        str(c.Delivery.FacilityName),
			StreetAddress:       str(c.Delivery.StreetAddress),
			City:                str(c.Delivery.City),
			State:               str(c.Delivery.State),
			ZipCode:             str(c.Delivery.ZipCode),
			Country:             str(c.Delivery.Country),
			FOBTerms:            str(c.Delivery.FOBTerms),
			Timeline:            str(c.Delivery.Timeline),
			SpecialInstructions: c.Delivery.SpecialInstructions,
		}
	}
	return m
}

func (d deadlinePayload) toModel() (models.Deadline, bool) {
	m := models.Deadline{
		Type:        normalizeDeadlineType(d.Type),
		DueTime:     str(d.Time),
		Timezone:    str(d.Timezone),
		Description: str(d.Description),
	}
	if date := str(d.Date); date != "" {
		if t, err := parseDateText(date); err == nil {
			m.DueDate = &t
		}
	}
	if m.DueDate == nil && m.Description == "" {
		return m, false
	}
	return m, true
}

func normalizeDeadlineType(t string) string {
	switch strings.ToLower(strings.TrimSpace(t)) {
	case models.DeadlineSubmission, "offer", "offers_due", "proposal", "quote", "quotes_due":
		return models.DeadlineSubmission
	case models.DeadlineQuestionsDue, "questions", "q_and_a":
		return models.DeadlineQuestionsDue
	case models.DeadlineDelivery:
		return models.DeadlineDelivery
	default:
		return models.DeadlineOther
	}
}
