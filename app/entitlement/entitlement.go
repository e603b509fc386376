// Package entitlement answers feature-gating questions from a subscription
// record. Everything here is pure; callers pass the clock in.
package entitlement

import (
	"time"

	"github.com/Toumari/NorthStar/app/models"
)

type ResourceKind string

const (
	Goals    ResourceKind = "goals"
	Trackers ResourceKind = "trackers"
)

const (
	FreeGoalLimit    = 3
	FreeTrackerLimit = 2
	// FreeJournalEditDays is how far back a free user may edit entries.
	FreeJournalEditDays = 14

	// Unlimited is returned by Remaining for premium users.
	Unlimited = -1
)

var freeLimits = map[ResourceKind]int{
	Goals:    FreeGoalLimit,
	Trackers: FreeTrackerLimit,
}

// FreeLimit returns the free-tier allowance for kind. Unknown kinds get 0.
func FreeLimit(kind ResourceKind) int {
	return freeLimits[kind]
}

// IsPremium reports whether the record grants premium access at now.
// A canceled subscription stays premium until its end date; a nil end date
// never counts as expired.
func IsPremium(r models.SubscriptionRecord, now time.Time) bool {
	if r.Tier != models.TierPremium {
		return false
	}
	switch r.Status {
	case models.StatusActive:
		return true
	case models.StatusCanceled:
		return r.EndDate == nil || *r.EndDate > now.UnixMilli()
	default:
		return false
	}
}

func CanCreate(kind ResourceKind, currentCount int, r models.SubscriptionRecord, now time.Time) bool {
	if IsPremium(r, now) {
		return true
	}
	return currentCount < FreeLimit(kind)
}

func Remaining(kind ResourceKind, currentCount int, r models.SubscriptionRecord, now time.Time) int {
	if IsPremium(r, now) {
		return Unlimited
	}
	left := FreeLimit(kind) - currentCount
	if left < 0 {
		return 0
	}
	return left
}

// CanEditPastEntry counts whole elapsed days, so an entry exactly 14 days and
// some hours old is still editable on the free tier.
func CanEditPastEntry(entryDate, now time.Time, r models.SubscriptionRecord) bool {
	if IsPremium(r, now) {
		return true
	}
	days := int(now.Sub(entryDate) / (24 * time.Hour))
	return days <= FreeJournalEditDays
}

type Usage struct {
	Goals    int
	Trackers int
}

type ResourceSummary struct {
	Limit     *int `json:"limit"`
	Used      int  `json:"used"`
	Remaining int  `json:"remaining"`
	CanCreate bool `json:"canCreate"`
}

type Summary struct {
	Premium               bool            `json:"isPremium"`
	Goals                 ResourceSummary `json:"goals"`
	Trackers              ResourceSummary `json:"trackers"`
	JournalEditWindowDays *int            `json:"journalEditWindowDays"`
}

// Summarize bundles every entitlement answer for one record. Limits are nil
// for premium users.
func Summarize(r models.SubscriptionRecord, now time.Time, usage Usage) Summary {
	premium := IsPremium(r, now)
	s := Summary{
		Premium:  premium,
		Goals:    summarizeKind(Goals, usage.Goals, r, now, premium),
		Trackers: summarizeKind(Trackers, usage.Trackers, r, now, premium),
	}
	if !premium {
		days := FreeJournalEditDays
		s.JournalEditWindowDays = &days
	}
	return s
}

func summarizeKind(kind ResourceKind, used int, r models.SubscriptionRecord, now time.Time, premium bool) ResourceSummary {
	rs := ResourceSummary{
		Used:      used,
		Remaining: Remaining(kind, used, r, now),
		CanCreate: CanCreate(kind, used, r, now),
	}
	if !premium {
		limit := FreeLimit(kind)
		rs.Limit = &limit
	}
	return rs
}
