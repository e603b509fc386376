package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Toumari/NorthStar/app/store"
	"github.com/stripe/stripe-go/v79"
)

// Gateway creates hosted checkout and billing portal sessions.
type Gateway struct {
	processor Processor
	store     store.UserStore
	publicURL string
}

func NewGateway(p Processor, s store.UserStore, publicURL string) *Gateway {
	return &Gateway{processor: p, store: s, publicURL: strings.TrimRight(publicURL, "/")}
}

// CheckoutMode picks one-time payment for lifetime prices and a recurring
// subscription for everything else.
func CheckoutMode(priceID string) stripe.CheckoutSessionMode {
	if strings.Contains(strings.ToLower(priceID), "lifetime") {
		return stripe.CheckoutSessionModePayment
	}
	return stripe.CheckoutSessionModeSubscription
}

// CreateCheckoutSession returns the hosted checkout URL. The session and, for
// subscriptions, the subscription itself carry the user id in metadata so
// webhooks can be matched back to the user.
func (g *Gateway) CreateCheckoutSession(ctx context.Context, priceID, userID, userEmail string) (string, error) {
	if priceID == "" || userID == "" || userEmail == "" {
		return "", fmt.Errorf("priceId, userId and userEmail are required: %w", ErrInvalidInput)
	}

	mode := CheckoutMode(priceID)
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(mode)),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(priceID),
				Quantity: stripe.Int64(1),
			},
		},
		SuccessURL:        stripe.String(g.publicURL + "/subscription/success?session_id={CHECKOUT_SESSION_ID}"),
		CancelURL:         stripe.String(g.publicURL + "/subscription/cancel"),
		ClientReferenceID: stripe.String(userID),
		CustomerEmail:     stripe.String(userEmail),
	}
	params.AddMetadata(metadataUserID, userID)

	if mode == stripe.CheckoutSessionModeSubscription {
		params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserID: userID},
		}
	} else {
		params.CustomerCreation = stripe.String("always")
	}

	sess, err := g.processor.NewCheckoutSession(ctx, params)
	if err != nil {
		return "", err
	}
	ctxLogger(ctx).Info().Str("user_id", userID).Str("mode", string(mode)).Str("session_id", sess.ID).Msg("checkout session created")
	return sess.URL, nil
}

// CreatePortalSession returns a billing portal URL for customerID, but only
// when it is the caller's own stored customer id. Mismatches never reach the
// processor.
func (g *Gateway) CreatePortalSession(ctx context.Context, callerID, customerID string) (string, error) {
	if customerID == "" {
		return "", fmt.Errorf("customerId is required: %w", ErrInvalidInput)
	}

	record, err := g.store.GetSubscription(ctx, callerID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return "", fmt.Errorf("load subscription for %s: %w", callerID, err)
	}
	if record.StoredCustomerID() != customerID {
		ctxLogger(ctx).Warn().Str("user_id", callerID).Msg("portal session requested for another customer")
		return "", fmt.Errorf("customer %s: %w", customerID, ErrForbidden)
	}

	sess, err := g.processor.NewPortalSession(ctx, &stripe.BillingPortalSessionParams{
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(g.publicURL + "/settings"),
	})
	if err != nil {
		return "", err
	}
	return sess.URL, nil
}
