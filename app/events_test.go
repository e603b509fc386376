package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
)

func TestDecodeCheckoutSessionCompleted(t *testing.T) {
	ev := stripeEvent(t, "evt_1", "checkout.session.completed", map[string]any{
		"id":                  "cs_1",
		"object":              "checkout.session",
		"mode":                "subscription",
		"metadata":            map[string]string{"userId": "user-1"},
		"client_reference_id": "user-ref",
		"subscription":        "sub_1",
		"customer":            "cus_1",
	})

	decoded, err := DecodeEvent(ev)
	require.NoError(t, err)
	got, ok := decoded.(CheckoutSessionCompleted)
	require.True(t, ok, "got %T", decoded)
	assert.Equal(t, "evt_1", got.EventID())
	assert.Equal(t, "cs_1", got.SessionID)
	assert.Equal(t, stripe.CheckoutSessionModeSubscription, got.Mode)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.Equal(t, "user-1", got.UserID())
}

func TestCheckoutUserIDFallsBackToClientReference(t *testing.T) {
	e := CheckoutSessionCompleted{ClientReferenceID: "user-ref"}
	assert.Equal(t, "user-ref", e.UserID())
}

func TestDecodeSubscriptionEvents(t *testing.T) {
	object := map[string]any{
		"id":       "sub_1",
		"object":   "subscription",
		"customer": "cus_1",
		"status":   "active",
		"metadata": map[string]string{"userId": "user-1"},
	}

	updated, err := DecodeEvent(stripeEvent(t, "evt_u", "customer.subscription.updated", object))
	require.NoError(t, err)
	assert.Equal(t, SubscriptionUpdated{
		eventMeta:      eventMeta{ID: "evt_u", Type: "customer.subscription.updated"},
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		MetadataUserID: "user-1",
	}, updated)

	deleted, err := DecodeEvent(stripeEvent(t, "evt_d", "customer.subscription.deleted", object))
	require.NoError(t, err)
	assert.IsType(t, SubscriptionDeleted{}, deleted)
}

func TestDecodeInvoicePaymentFailed(t *testing.T) {
	decoded, err := DecodeEvent(stripeEvent(t, "evt_i", "invoice.payment_failed", map[string]any{
		"id":             "in_1",
		"object":         "invoice",
		"customer":       "cus_1",
		"subscription":   "sub_1",
		"customer_email": "user@example.com",
		"attempt_count":  2,
	}))
	require.NoError(t, err)
	got := decoded.(InvoicePaymentFailed)
	assert.Equal(t, "in_1", got.InvoiceID)
	assert.Equal(t, "cus_1", got.CustomerID)
	assert.Equal(t, "sub_1", got.SubscriptionID)
	assert.Equal(t, int64(2), got.AttemptCount)
}

func TestDecodeUnknownEventIsUnhandled(t *testing.T) {
	decoded, err := DecodeEvent(stripeEvent(t, "evt_x", "customer.created", map[string]any{"id": "cus_1"}))
	require.NoError(t, err)
	assert.IsType(t, UnhandledEvent{}, decoded)
	assert.Equal(t, "customer.created", decoded.EventType())
}

func TestDecodeRejectsMalformedPayloads(t *testing.T) {
	_, err := DecodeEvent(stripeEvent(t, "evt_1", "customer.subscription.updated", map[string]any{"status": "active"}))
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeEvent(stripe.Event{ID: "evt_2", Type: "checkout.session.completed"})
	assert.ErrorIs(t, err, ErrMalformedEvent)

	_, err = DecodeEvent(stripe.Event{
		ID:   "evt_3",
		Type: "checkout.session.completed",
		Data: &stripe.EventData{Raw: []byte(`{"id": 12}`)},
	})
	assert.ErrorIs(t, err, ErrMalformedEvent)
}
