package billingctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/edvin/metering/internal/core"
	"github.com/edvin/metering/internal/model"
)

type tenantStore interface {
	Create(ctx context.Context, id, name string) (*model.Tenant, error)
	ApplyPayment(ctx context.Context, tenantID string, u core.SubscriptionUpdate) error
}

type apiKeyStore interface {
	Create(ctx context.Context, tenantID, name string) (*model.APIKey, string, error)
	CreateWithRawKey(ctx context.Context, tenantID, name, rawKey string) (*model.APIKey, error)
}

type productStore interface {
	CreateProduct(ctx context.Context, tenantID string, in core.ProductInput) (*model.Product, error)
}

type customerStore interface {
	Create(ctx context.Context, tenantID string, in core.CustomerInput) (*model.Customer, error)
}

// Seeder loads a seed document into the database through the services.
// Re-running a seed skips anything that already exists.
type Seeder struct {
	Tenants   tenantStore
	APIKeys   apiKeyStore
	Catalog   productStore
	Customers customerStore
	Out       io.Writer
}

// NewSeeder wires a Seeder to the service set.
func NewSeeder(svcs *core.Services, out io.Writer) *Seeder {
	return &Seeder{
		Tenants:   svcs.Tenant,
		APIKeys:   svcs.APIKey,
		Catalog:   svcs.Catalog,
		Customers: svcs.Customer,
		Out:       out,
	}
}

// LoadSeed reads and parses a seed file.
func LoadSeed(path string) (*SeedConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var cfg SeedConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, t := range cfg.Tenants {
		if t.ID == "" {
			return nil, fmt.Errorf("tenant %d: id is required", i)
		}
	}
	return &cfg, nil
}

// Seed applies every tenant in cfg in order.
func (s *Seeder) Seed(ctx context.Context, cfg *SeedConfig) error {
	for _, t := range cfg.Tenants {
		if err := s.seedTenant(ctx, t); err != nil {
			return fmt.Errorf("tenant %s: %w", t.ID, err)
		}
	}
	return nil
}

func (s *Seeder) seedTenant(ctx context.Context, t TenantDef) error {
	if _, err := s.Tenants.Create(ctx, t.ID, t.Name); err != nil {
		if !errors.Is(err, core.ErrConflict) {
			return err
		}
		fmt.Fprintf(s.Out, "Tenant %s exists, skipping\n", t.ID)
	} else {
		fmt.Fprintf(s.Out, "Tenant %s created\n", t.ID)
	}

	if t.Active {
		if err := s.Tenants.ApplyPayment(ctx, t.ID, core.SubscriptionUpdate{Status: model.SubscriptionActive}); err != nil {
			return fmt.Errorf("activate: %w", err)
		}
	}

	for _, k := range t.APIKeys {
		if err := s.seedAPIKey(ctx, t.ID, k); err != nil {
			return fmt.Errorf("api key %s: %w", k.Name, err)
		}
	}

	for _, p := range t.Products {
		_, err := s.Catalog.CreateProduct(ctx, t.ID, core.ProductInput{
			Name:            p.Name,
			EventNameMatch:  p.EventNameMatch,
			UnitAmountCents: p.UnitAmountCents,
			Currency:        p.Currency,
		})
		switch {
		case err == nil:
			fmt.Fprintf(s.Out, "  Product %s created\n", p.Name)
		case errors.Is(err, core.ErrConflict):
			fmt.Fprintf(s.Out, "  Product %s exists, skipping\n", p.Name)
		default:
			return fmt.Errorf("product %s: %w", p.Name, err)
		}
	}

	for _, c := range t.Customers {
		_, err := s.Customers.Create(ctx, t.ID, core.CustomerInput{ID: c.ID, Name: c.Name, Email: c.Email})
		switch {
		case err == nil:
			fmt.Fprintf(s.Out, "  Customer %s created\n", c.ID)
		case errors.Is(err, core.ErrConflict):
			fmt.Fprintf(s.Out, "  Customer %s exists, skipping\n", c.ID)
		default:
			return fmt.Errorf("customer %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *Seeder) seedAPIKey(ctx context.Context, tenantID string, k APIKeyDef) error {
	if k.Key == "" {
		_, raw, err := s.APIKeys.Create(ctx, tenantID, k.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(s.Out, "  API key %s: %s\n", k.Name, raw)
		return nil
	}
	_, err := s.APIKeys.CreateWithRawKey(ctx, tenantID, k.Name, k.Key)
	if errors.Is(err, core.ErrConflict) {
		fmt.Fprintf(s.Out, "  API key %s exists, skipping\n", k.Name)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(s.Out, "  API key %s created\n", k.Name)
	return nil
}
