package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
)

// Processor is the slice of the payment processor API the billing code uses.
type Processor interface {
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error)
}

// StripeProcessor calls Stripe through a per-instance client rather than the
// package-level stripe.Key.
type StripeProcessor struct {
	api     *client.API
	metrics *Metrics
}

func NewStripeProcessor(secretKey string, metrics *Metrics) (*StripeProcessor, error) {
	if secretKey == "" {
		return nil, errors.New("STRIPE_SECRET_KEY must be set")
	}
	return &StripeProcessor{api: client.New(secretKey, nil), metrics: metrics}, nil
}

func (p *StripeProcessor) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	start := time.Now()
	sub, err := p.api.Subscriptions.Get(id, params)
	p.observe("subscriptions.get", start, err)
	if err != nil {
		return nil, upstreamError("retrieve subscription "+id, err)
	}
	return sub, nil
}

func (p *StripeProcessor) NewCheckoutSession(ctx context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	params.Context = ctx
	start := time.Now()
	sess, err := p.api.CheckoutSessions.New(params)
	p.observe("checkout_sessions.new", start, err)
	if err != nil {
		return nil, upstreamError("create checkout session", err)
	}
	return sess, nil
}

func (p *StripeProcessor) NewPortalSession(ctx context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	params.Context = ctx
	start := time.Now()
	sess, err := p.api.BillingPortalSessions.New(params)
	p.observe("billing_portal_sessions.new", start, err)
	if err != nil {
		return nil, upstreamError("create portal session", err)
	}
	return sess, nil
}

func (p *StripeProcessor) observe(op string, start time.Time, err error) {
	if p.metrics != nil {
		p.metrics.ObserveProcessorCall(op, time.Since(start), err)
	}
}

// upstreamError logs the Stripe error details and wraps it in ErrUpstream.
func upstreamError(op string, err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		log.Error().
			Str("op", op).
			Str("request_id", stripeErr.RequestID).
			Str("code", string(stripeErr.Code)).
			Str("type", string(stripeErr.Type)).
			Int("http_status", stripeErr.HTTPStatusCode).
			Msg(stripeErr.Msg)
		if stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return fmt.Errorf("%s: %w: %w: %w", op, ErrUpstream, ErrProcessorNotFound, err)
		}
	} else {
		log.Error().Err(err).Str("op", op).Msg("stripe call failed")
	}
	return fmt.Errorf("%s: %w: %w", op, ErrUpstream, err)
}

// SnapshotFromStripe extracts the fields the reconciler reads.
func SnapshotFromStripe(sub *stripe.Subscription) models.SubscriptionSnapshot {
	if sub == nil {
		return models.SubscriptionSnapshot{}
	}
	snap := models.SubscriptionSnapshot{
		ID:                sub.ID,
		ProcessorStatus:   string(sub.Status),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
	}
	if sub.Customer != nil {
		snap.CustomerID = sub.Customer.ID
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		if item != nil && item.Price != nil && item.Price.Recurring != nil {
			snap.Interval = string(item.Price.Recurring.Interval)
		}
	}
	if sub.Metadata != nil {
		snap.UserIDHint = sub.Metadata[metadataUserID]
	}
	return snap
}
