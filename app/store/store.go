// Package store persists the subscription record on user profile documents.
package store

import (
	"context"
	"errors"

	"github.com/Toumari/NorthStar/app/models"
)

// ErrNotFound is returned when no profile document exists for a user.
var ErrNotFound = errors.New("user profile not found")

// LookupLimit bounds reverse lookups. Two is enough to notice that a
// correlation key is shared by more than one user.
const LookupLimit = 2

// UserStore is the document-store boundary used by the billing code.
// Merges are partial-field, last-write-wins writes that create the profile
// document when it does not exist yet.
type UserStore interface {
	GetSubscription(ctx context.Context, userID string) (models.SubscriptionRecord, error)
	EnsureProfile(ctx context.Context, userID string) (models.SubscriptionRecord, error)
	MergeSubscription(ctx context.Context, userID string, patch models.SubscriptionPatch) error
	FindUsersBySubscriptionID(ctx context.Context, subscriptionID string, limit int) ([]string, error)
	FindUsersByCustomerID(ctx context.Context, customerID string, limit int) ([]string, error)
	Close() error
}
