package app

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v79"
)

// metadataUserID is the metadata key the checkout gateway stamps on sessions
// and subscriptions so webhooks can find the owning user.
const metadataUserID = "userId"

const (
	eventCheckoutCompleted    stripe.EventType = "checkout.session.completed"
	eventSubscriptionUpdated  stripe.EventType = "customer.subscription.updated"
	eventSubscriptionDeleted  stripe.EventType = "customer.subscription.deleted"
	eventInvoicePaymentFailed stripe.EventType = "invoice.payment_failed"
)

// Event is a decoded webhook event. Each variant carries only the fields the
// reconciler reads, validated before use.
type Event interface {
	EventID() string
	EventType() string
}

type eventMeta struct {
	ID   string
	Type string
}

func (m eventMeta) EventID() string   { return m.ID }
func (m eventMeta) EventType() string { return m.Type }

type CheckoutSessionCompleted struct {
	eventMeta
	SessionID         string
	Mode              stripe.CheckoutSessionMode
	MetadataUserID    string
	ClientReferenceID string
	SubscriptionID    string
	CustomerID        string
}

// UserID returns the metadata user id, falling back to the client reference.
func (e CheckoutSessionCompleted) UserID() string {
	if e.MetadataUserID != "" {
		return e.MetadataUserID
	}
	return e.ClientReferenceID
}

type SubscriptionUpdated struct {
	eventMeta
	SubscriptionID string
	CustomerID     string
	MetadataUserID string
}

type SubscriptionDeleted struct {
	eventMeta
	SubscriptionID string
	CustomerID     string
	MetadataUserID string
}

type InvoicePaymentFailed struct {
	eventMeta
	InvoiceID      string
	CustomerID     string
	SubscriptionID string
	CustomerEmail  string
	AttemptCount   int64
}

type UnhandledEvent struct {
	eventMeta
}

// ErrMalformedEvent marks a payload that does not match its event type's schema.
var ErrMalformedEvent = errors.New("malformed event payload")

// DecodeEvent turns a verified Stripe event into one of the typed variants.
func DecodeEvent(ev stripe.Event) (Event, error) {
	meta := eventMeta{ID: ev.ID, Type: string(ev.Type)}
	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		if isHandledType(ev.Type) {
			return nil, fmt.Errorf("%s: %w: empty data object", ev.Type, ErrMalformedEvent)
		}
		return UnhandledEvent{eventMeta: meta}, nil
	}

	switch ev.Type {
	case eventCheckoutCompleted:
		var sess stripe.CheckoutSession
		if err := decodeObject(ev, &sess); err != nil {
			return nil, err
		}
		if sess.ID == "" {
			return nil, fmt.Errorf("%s: %w: missing session id", ev.Type, ErrMalformedEvent)
		}
		out := CheckoutSessionCompleted{
			eventMeta:         meta,
			SessionID:         sess.ID,
			Mode:              sess.Mode,
			MetadataUserID:    sess.Metadata[metadataUserID],
			ClientReferenceID: sess.ClientReferenceID,
		}
		if sess.Subscription != nil {
			out.SubscriptionID = sess.Subscription.ID
		}
		if sess.Customer != nil {
			out.CustomerID = sess.Customer.ID
		}
		return out, nil

	case eventSubscriptionUpdated, eventSubscriptionDeleted:
		var sub stripe.Subscription
		if err := decodeObject(ev, &sub); err != nil {
			return nil, err
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%s: %w: missing subscription id", ev.Type, ErrMalformedEvent)
		}
		var customerID string
		if sub.Customer != nil {
			customerID = sub.Customer.ID
		}
		hint := sub.Metadata[metadataUserID]
		if ev.Type == eventSubscriptionDeleted {
			return SubscriptionDeleted{eventMeta: meta, SubscriptionID: sub.ID, CustomerID: customerID, MetadataUserID: hint}, nil
		}
		return SubscriptionUpdated{eventMeta: meta, SubscriptionID: sub.ID, CustomerID: customerID, MetadataUserID: hint}, nil

	case eventInvoicePaymentFailed:
		var inv stripe.Invoice
		if err := decodeObject(ev, &inv); err != nil {
			return nil, err
		}
		out := InvoicePaymentFailed{
			eventMeta:     meta,
			InvoiceID:     inv.ID,
			CustomerEmail: inv.CustomerEmail,
			AttemptCount:  inv.AttemptCount,
		}
		if inv.Customer != nil {
			out.CustomerID = inv.Customer.ID
		}
		if inv.Subscription != nil {
			out.SubscriptionID = inv.Subscription.ID
		}
		return out, nil
	}

	return UnhandledEvent{eventMeta: meta}, nil
}

func decodeObject(ev stripe.Event, dst any) error {
	if err := json.Unmarshal(ev.Data.Raw, dst); err != nil {
		return fmt.Errorf("%s: %w: %w", ev.Type, ErrMalformedEvent, err)
	}
	return nil
}

func isHandledType(t stripe.EventType) bool {
	switch t {
	case eventCheckoutCompleted,
		eventSubscriptionUpdated,
		eventSubscriptionDeleted,
		eventInvoicePaymentFailed:
		return true
	}
	return false
}
