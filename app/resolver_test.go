package app

import (
	"context"
	"errors"
	"testing"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/Toumari/NorthStar/app/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func premiumRecord(subscriptionID, customerID string) models.SubscriptionRecord {
	r := models.DefaultRecord()
	r.Tier = models.TierPremium
	r.Status = models.StatusActive
	if subscriptionID != "" {
		r.SubscriptionID = strPtr(subscriptionID)
	}
	if customerID != "" {
		r.CustomerID = strPtr(customerID)
	}
	return r
}

func TestResolverMetadataWins(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put("user-2", premiumRecord("sub_1", "cus_1"))
	resolver := NewResolver(s, nil)

	userID, by, err := resolver.Resolve(context.Background(), SubscriptionRef{
		SubscriptionID: "sub_1",
		CustomerID:     "cus_1",
		MetadataUserID: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)
	assert.Equal(t, ResolvedByMetadata, by)
}

func TestResolverFallbackOrder(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put("by-sub", premiumRecord("sub_1", "cus_other"))
	s.Put("by-cus", premiumRecord("sub_other", "cus_1"))
	resolver := NewResolver(s, nil)
	ctx := context.Background()

	userID, by, err := resolver.Resolve(ctx, SubscriptionRef{SubscriptionID: "sub_1", CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "by-sub", userID)
	assert.Equal(t, ResolvedBySubscriptionID, by)

	userID, by, err = resolver.Resolve(ctx, SubscriptionRef{SubscriptionID: "sub_missing", CustomerID: "cus_1"})
	require.NoError(t, err)
	assert.Equal(t, "by-cus", userID)
	assert.Equal(t, ResolvedByCustomerID, by)
}

func TestResolverNotFound(t *testing.T) {
	resolver := NewResolver(store.NewMemoryStore(), nil)

	_, _, err := resolver.Resolve(context.Background(), SubscriptionRef{SubscriptionID: "sub_1", CustomerID: "cus_1"})
	assert.ErrorIs(t, err, ErrUserNotFound)

	_, _, err = resolver.Resolve(context.Background(), SubscriptionRef{})
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestResolverAmbiguousCustomer(t *testing.T) {
	s := store.NewMemoryStore()
	s.Put("user-a", premiumRecord("", "cus_shared"))
	s.Put("user-b", premiumRecord("", "cus_shared"))
	reg := prometheus.NewRegistry()
	metrics := MustNewMetrics(reg)
	resolver := NewResolver(s, metrics)

	userID, _, err := resolver.Resolve(context.Background(), SubscriptionRef{CustomerID: "cus_shared"})
	assert.ErrorIs(t, err, ErrAmbiguousUser)
	assert.Empty(t, userID)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.resolverResults.WithLabelValues("ambiguous")))
}

type failingStore struct {
	store.UserStore
}

var errStoreDown = errors.New("store unavailable")

func (failingStore) FindUsersBySubscriptionID(context.Context, string, int) ([]string, error) {
	return nil, errStoreDown
}

func TestResolverPropagatesStoreErrors(t *testing.T) {
	resolver := NewResolver(failingStore{}, nil)
	_, _, err := resolver.Resolve(context.Background(), SubscriptionRef{SubscriptionID: "sub_1"})
	assert.ErrorIs(t, err, errStoreDown)
	assert.NotErrorIs(t, err, ErrUserNotFound)
}
