package request

// CreateProduct creates a product together with its per-unit price.
type CreateProduct struct {
	Name            string `json:"name" validate:"required,min=1,max=255"`
	EventNameMatch  string `json:"event_name_match" validate:"required,min=1,max=255"`
	UnitAmountCents *int64 `json:"unit_amount_cents" validate:"required,min=0"`
	Currency        string `json:"currency" validate:"omitempty,currency"`
}

// SetPrice replaces a product's unit amount.
type SetPrice struct {
	UnitAmountCents *int64 `json:"unit_amount_cents" validate:"required,min=0"`
	Currency        string `json:"currency" validate:"omitempty,currency"`
}
