package request

// CreateCustomer registers an end-customer. The id is optional; when set it is
// the tenant's own identifier and the one events must reference.
type CreateCustomer struct {
	ID    string `json:"id" validate:"omitempty,external_id"`
	Name  string `json:"name" validate:"required,min=1,max=255"`
	Email string `json:"email" validate:"omitempty,email"`
}
