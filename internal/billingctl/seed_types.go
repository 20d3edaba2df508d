package billingctl

// SeedConfig is the YAML document accepted by `billingctl seed`.
type SeedConfig struct {
	Tenants []TenantDef `yaml:"tenants"`
}

type TenantDef struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
	// Active marks the subscription active so scheduled invoicing picks the
	// tenant up without a payment round trip.
	Active    bool          `yaml:"active"`
	APIKeys   []APIKeyDef   `yaml:"api_keys"`
	Products  []ProductDef  `yaml:"products"`
	Customers []CustomerDef `yaml:"customers"`
}

type APIKeyDef struct {
	Name string `yaml:"name"`
	Key  string `yaml:"key"`
}

type ProductDef struct {
	Name            string `yaml:"name"`
	EventNameMatch  string `yaml:"event_name_match"`
	UnitAmountCents int64  `yaml:"unit_amount_cents"`
	Currency        string `yaml:"currency"`
}

type CustomerDef struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Email string `yaml:"email"`
}
