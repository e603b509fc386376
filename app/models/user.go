// Package models defines the subscription record stored on each user profile.
package models

type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
)

type Status string

const (
	StatusNone     Status = "none"
	StatusActive   Status = "active"
	StatusCanceled Status = "canceled"
	StatusExpired  Status = "expired"
)

type PlanType string

const (
	PlanMonthly      PlanType = "Monthly"
	PlanYearly       PlanType = "Yearly"
	PlanLifetime     PlanType = "Lifetime"
	PlanSubscription PlanType = "Subscription"
)

// Document field names on the user profile. The record is stored flattened
// next to the rest of the profile, not as a nested object.
const (
	FieldTier           = "subscriptionTier"
	FieldStatus         = "subscriptionStatus"
	FieldSubscriptionID = "subscriptionId"
	FieldPlanType       = "subscriptionPlanType"
	FieldCustomerID     = "subscriptionCustomerId"
	FieldEndDate        = "subscriptionEndDate"
)

// SubscriptionRecord is the locally persisted view of a user's subscription.
// EndDate is in epoch milliseconds; nil means no expiry (lifetime) or unknown.
type SubscriptionRecord struct {
	Tier           Tier      `json:"tier"`
	Status         Status    `json:"status"`
	SubscriptionID *string   `json:"subscriptionId"`
	PlanType       *PlanType `json:"subscriptionPlanType"`
	CustomerID     *string   `json:"subscriptionCustomerId"`
	EndDate        *int64    `json:"subscriptionEndDate"`
}

// DefaultRecord is what a user without any billing history gets.
func DefaultRecord() SubscriptionRecord {
	return SubscriptionRecord{Tier: TierFree, Status: StatusNone}
}

// Normalize fills empty enum fields with their defaults. Documents written by
// older clients may carry only some of the fields.
func (r SubscriptionRecord) Normalize() SubscriptionRecord {
	if r.Tier == "" {
		r.Tier = TierFree
	}
	if r.Status == "" {
		r.Status = StatusNone
	}
	return r
}

func (r SubscriptionRecord) IsLifetime() bool {
	return r.PlanType != nil && *r.PlanType == PlanLifetime
}

func (r SubscriptionRecord) StoredSubscriptionID() string {
	if r.SubscriptionID == nil {
		return ""
	}
	return *r.SubscriptionID
}

func (r SubscriptionRecord) StoredCustomerID() string {
	if r.CustomerID == nil {
		return ""
	}
	return *r.CustomerID
}
