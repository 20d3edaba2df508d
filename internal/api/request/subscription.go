package request

// Checkout starts a PayFast subscription for the calling tenant.
type Checkout struct {
	PlanName    string `json:"plan_name" validate:"required,min=1,max=100"`
	AmountCents int64  `json:"amount_cents" validate:"required,min=1"`
	Email       string `json:"email" validate:"omitempty,email"`
}
