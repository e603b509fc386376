package app

import (
	"context"
	"fmt"

	"github.com/Toumari/NorthStar/app/store"
	"github.com/rs/zerolog/log"
)

// ResolvedBy names the step of the fallback chain that found the user.
type ResolvedBy string

const (
	ResolvedByMetadata       ResolvedBy = "metadata"
	ResolvedBySubscriptionID ResolvedBy = "subscription_id"
	ResolvedByCustomerID     ResolvedBy = "customer_id"
)

// SubscriptionRef carries every correlation key an event may offer.
type SubscriptionRef struct {
	SubscriptionID string
	CustomerID     string
	MetadataUserID string
}

// Resolver maps processor identifiers back to a local user id.
type Resolver struct {
	store   store.UserStore
	metrics *Metrics
}

func NewResolver(s store.UserStore, metrics *Metrics) *Resolver {
	return &Resolver{store: s, metrics: metrics}
}

// Resolve tries metadata, then the stored subscription id, then the stored
// customer id. A reverse lookup that matches more than one profile returns
// ErrAmbiguousUser instead of picking one.
func (r *Resolver) Resolve(ctx context.Context, ref SubscriptionRef) (string, ResolvedBy, error) {
	userID, by, err := r.resolve(ctx, ref)
	r.metrics.CountResolution(by, err)
	return userID, by, err
}

func (r *Resolver) resolve(ctx context.Context, ref SubscriptionRef) (string, ResolvedBy, error) {
	if ref.MetadataUserID != "" {
		return ref.MetadataUserID, ResolvedByMetadata, nil
	}

	if ref.SubscriptionID != "" {
		ids, err := r.store.FindUsersBySubscriptionID(ctx, ref.SubscriptionID, store.LookupLimit)
		if err != nil {
			return "", "", fmt.Errorf("lookup by subscription id: %w", err)
		}
		if userID, err := single(ids, "subscriptionId", ref.SubscriptionID); err != nil || userID != "" {
			return userID, ResolvedBySubscriptionID, err
		}
	}

	if ref.CustomerID != "" {
		ids, err := r.store.FindUsersByCustomerID(ctx, ref.CustomerID, store.LookupLimit)
		if err != nil {
			return "", "", fmt.Errorf("lookup by customer id: %w", err)
		}
		if userID, err := single(ids, "subscriptionCustomerId", ref.CustomerID); err != nil || userID != "" {
			return userID, ResolvedByCustomerID, err
		}
	}

	return "", "", ErrUserNotFound
}

func single(ids []string, field, value string) (string, error) {
	switch len(ids) {
	case 0:
		return "", nil
	case 1:
		return ids[0], nil
	default:
		log.Warn().Str("field", field).Str("value", value).Strs("users", ids).Msg("correlation key shared by several users")
		return "", fmt.Errorf("%s %s: %w", field, value, ErrAmbiguousUser)
	}
}
