package core

import (
	"github.com/rs/zerolog"

	"github.com/edvin/metering/internal/blob"
	"github.com/edvin/metering/internal/render"
)

// Options carries the settings services need beyond their collaborators.
type Options struct {
	Currency string
	PayFast  PayFastOptions
}

type Services struct {
	APIKey     *APIKeyService
	Event      *EventService
	Catalog    *CatalogService
	Customer   *CustomerService
	Tenant     *TenantService
	Usage      *UsageService
	Invoice    *InvoiceService
	Aggregator *UsageAggregator
	Generator  *InvoiceGenerator
	Payment    *PaymentService
}

func NewServices(db DB, blobs blob.Store, renderer render.Renderer, opts Options, logger zerolog.Logger) *Services {
	tenants := NewTenantService(db)
	return &Services{
		APIKey:     NewAPIKeyService(db),
		Event:      NewEventService(db),
		Catalog:    NewCatalogService(db, opts.Currency),
		Customer:   NewCustomerService(db),
		Tenant:     tenants,
		Usage:      NewUsageService(db),
		Invoice:    NewInvoiceService(db, blobs),
		Aggregator: NewUsageAggregator(db, logger),
		Generator:  NewInvoiceGenerator(db, blobs, renderer, opts.Currency, logger),
		Payment:    NewPaymentService(tenants, opts.PayFast, logger),
	}
}
