package core

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/edvin/metering/internal/crypto"
	"github.com/edvin/metering/internal/model"
)

// PayFast payment_status values acted upon.
const (
	PayFastComplete  = "COMPLETE"
	PayFastCancelled = "CANCELLED"
)

const planItemPrefix = "Subscription: "

// PayFastOptions configures the merchant account used for tenant subscriptions.
type PayFastOptions struct {
	MerchantID  string
	MerchantKey string
	Passphrase  string
	ProcessURL  string
	ReturnURL   string
	CancelURL   string
	NotifyURL   string
}

// CheckoutInput starts a monthly subscription for a tenant.
type CheckoutInput struct {
	PlanName    string
	AmountCents int64
	Email       string
}

// ITNOutcome describes what an instant transaction notification changed.
type ITNOutcome struct {
	TenantID      string `json:"tenant_id"`
	PaymentStatus string `json:"payment_status"`
	Applied       bool   `json:"applied"`
}

// PaymentService connects tenant subscriptions to PayFast.
type PaymentService struct {
	tenants *TenantService
	opts    PayFastOptions
	logger  zerolog.Logger
	now     func() time.Time
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(tenants *TenantService, opts PayFastOptions, logger zerolog.Logger) *PaymentService {
	return &PaymentService{
		tenants: tenants,
		opts:    opts,
		logger:  logger.With().Str("component", "payments").Logger(),
		now:     time.Now,
	}
}

// Checkout returns the signed PayFast URL the tenant is redirected to in order
// to start a recurring monthly subscription.
func (s *PaymentService) Checkout(ctx context.Context, tenantID string, in CheckoutInput) (string, error) {
	if s.opts.MerchantID == "" || s.opts.MerchantKey == "" {
		return "", fmt.Errorf("payfast merchant is not configured")
	}
	if strings.TrimSpace(in.PlanName) == "" {
		return "", fmt.Errorf("%w: plan_name is required", ErrBadRequest)
	}
	if in.AmountCents <= 0 {
		return "", fmt.Errorf("%w: amount_cents must be positive", ErrBadRequest)
	}
	if _, err := s.tenants.Get(ctx, tenantID); err != nil {
		return "", err
	}

	amount := decimal.New(in.AmountCents, -2).StringFixed(2)
	params := []crypto.FormParam{
		{Key: "merchant_id", Value: s.opts.MerchantID},
		{Key: "merchant_key", Value: s.opts.MerchantKey},
		{Key: "return_url", Value: s.opts.ReturnURL},
		{Key: "cancel_url", Value: s.opts.CancelURL},
		{Key: "notify_url", Value: s.opts.NotifyURL},
		{Key: "email_address", Value: in.Email},
		{Key: "m_payment_id", Value: tenantID},
		{Key: "amount", Value: amount},
		{Key: "item_name", Value: planItemPrefix + strings.TrimSpace(in.PlanName)},
		{Key: "subscription_type", Value: "1"},
		{Key: "billing_date", Value: s.now().UTC().Format(time.DateOnly)},
		{Key: "recurring_amount", Value: amount},
		{Key: "frequency", Value: "3"},
		{Key: "cycles", Value: "0"},
	}
	signature := crypto.PayFastCheckoutSignature(params, s.opts.Passphrase)

	q := make([]string, 0, len(params)+1)
	for _, p := range params {
		if strings.TrimSpace(p.Value) == "" {
			continue
		}
		q = append(q, p.Key+"="+url.QueryEscape(strings.TrimSpace(p.Value)))
	}
	q = append(q, "signature="+signature)
	return s.opts.ProcessURL + "?" + strings.Join(q, "&"), nil
}

// HandleITN verifies and applies a PayFast instant transaction notification.
// body is the raw form-encoded request body; parameter order matters for the
// signature. Statuses other than COMPLETE and CANCELLED are acknowledged
// without changes. Without a configured merchant id and passphrase every
// notification is rejected, since the signature would cover public fields only.
func (s *PaymentService) HandleITN(ctx context.Context, body string) (*ITNOutcome, error) {
	if s.opts.MerchantID == "" || strings.TrimSpace(s.opts.Passphrase) == "" {
		s.logger.Warn().Msg("rejecting payment notification: payfast merchant id or passphrase not configured")
		return nil, fmt.Errorf("%w: payment notifications are not enabled", ErrUnauthorized)
	}
	params, err := crypto.ParseOrderedForm(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	if !crypto.VerifyPayFastSignature(params, s.opts.Passphrase) {
		return nil, fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	}

	get := func(key string) string {
		for _, p := range params {
			if p.Key == key {
				return strings.TrimSpace(p.Value)
			}
		}
		return ""
	}

	if get("merchant_id") != s.opts.MerchantID {
		return nil, fmt.Errorf("%w: merchant mismatch", ErrBadRequest)
	}
	tenantID := get("m_payment_id")
	if tenantID == "" {
		tenantID = get("custom_str1")
	}
	if tenantID == "" {
		return nil, fmt.Errorf("%w: missing tenant reference", ErrBadRequest)
	}

	out := &ITNOutcome{TenantID: tenantID, PaymentStatus: get("payment_status")}
	log := s.logger.With().
		Str("tenant_id", tenantID).
		Str("payment_status", out.PaymentStatus).
		Str("pf_payment_id", get("pf_payment_id")).
		Logger()

	var update SubscriptionUpdate
	switch out.PaymentStatus {
	case PayFastComplete:
		update.Status = model.SubscriptionActive
		if plan := strings.TrimPrefix(get("item_name"), planItemPrefix); plan != "" {
			update.PlanName = &plan
		}
		if token := get("token"); token != "" {
			update.PaymentToken = &token
		}
		if d := get("billing_date"); d != "" {
			if t, err := time.Parse(time.DateOnly, d); err == nil {
				update.BillingPeriodEnd = &t
			} else {
				log.Warn().Str("billing_date", d).Msg("ignoring unparseable billing date")
			}
		}
	case PayFastCancelled:
		update.Status = model.SubscriptionCanceled
	default:
		log.Info().Msg("payment notification acknowledged without changes")
		return out, nil
	}

	if err := s.tenants.ApplyPayment(ctx, tenantID, update); err != nil {
		return nil, err
	}
	out.Applied = true
	log.Info().Str("subscription_status", update.Status).Msg("subscription updated")
	return out, nil
}
