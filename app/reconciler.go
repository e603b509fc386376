package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/Toumari/NorthStar/app/store"
		"github.com/stripe/stripe-go/v79"
)

// Outcome describes what Reconcile did with an event.
type Outcome string

const (
	OutcomeApplied Outcome = "applied"
	OutcomeSkipped Outcome = "skipped"
	OutcomeIgnored Outcome = "ignored"
)

// SyncResult is returned by SyncFromProcessor.
type SyncResult struct {
	UserID   string
	Status   models.Status
	EndDate  *int64
	Snapshot *models.SubscriptionSnapshot
}

// Reconciler applies processor state to the local subscription record.
// Every write is a partial merge, so replaying an event converges on the
// same record.
type Reconciler struct {
	store     store.UserStore
	processor Processor
	resolver  *Resolver
	notifier  Notifier
	metrics   *Metrics
}

func NewReconciler(s store.UserStore, p Processor, r *Resolver, n Notifier, m *Metrics) *Reconciler {
	if n == nil {
		n = LogNotifier{}
	}
	return &Reconciler{store: s, processor: p, resolver: r, notifier: n, metrics: m}
}

// DeriveStatus is the only place processor status maps to a local status.
func DeriveStatus(processorStatus string, cancelAtPeriodEnd bool) models.Status {
	if cancelAtPeriodEnd || processorStatus == string(stripe.SubscriptionStatusCanceled) {
		return models.StatusCanceled
	}
	if processorStatus == string(stripe.SubscriptionStatusActive) {
		return models.StatusActive
	}
	return models.StatusExpired
}

func PlanTypeForInterval(interval string) models.PlanType {
	switch interval {
	case "month":
		return models.PlanMonthly
	case "year":
		return models.PlanYearly
	default:
		return models.PlanSubscription
	}
}

// Reconcile applies one decoded event. Events that cannot be tied to a user
// are skipped without error so the processor does not retry them forever;
// store and processor failures are returned so it does.
func (r *Reconciler) Reconcile(ctx context.Context, ev Event) (Outcome, error) {
	var (
		outcome Outcome
		err     error
	)
	switch e := ev.(type) {
	case CheckoutSessionCompleted:
		outcome, err = r.checkoutCompleted(ctx, e)
	case SubscriptionUpdated:
		outcome, err = r.subscriptionUpdated(ctx, e)
	case SubscriptionDeleted:
		outcome, err = r.subscriptionDeleted(ctx, e)
	case InvoicePaymentFailed:
		outcome, err = r.paymentFailed(ctx, e)
	default:
		outcome = OutcomeIgnored
	}

	label := string(outcome)
	if err != nil {
		label = "error"
	}
	r.metrics.CountWebhook(ev.EventType(), label)
	return outcome, err
}

func (r *Reconciler) checkoutCompleted(ctx context.Context, e CheckoutSessionCompleted) (Outcome, error) {
	userID := e.UserID()
	if userID == "" {
		ctxLogger(ctx).Warn().Str("session_id", e.SessionID).Msg("checkout session without user id")
		return OutcomeSkipped, nil
	}

	patch := models.SubscriptionPatch{
		Tier:   models.Value(models.TierPremium),
		Status: models.Value(models.StatusActive),
	}
	if e.CustomerID != "" {
		patch.CustomerID = models.Value(e.CustomerID)
	}

	switch e.Mode {
	case stripe.CheckoutSessionModeSubscription:
		if e.SubscriptionID == "" {
			ctxLogger(ctx).Warn().Str("session_id", e.SessionID).Msg("subscription checkout without subscription id")
			return OutcomeSkipped, nil
		}
		sub, err := r.processor.GetSubscription(ctx, e.SubscriptionID)
		if errors.Is(err, ErrProcessorNotFound) {
			return r.missingAtProcessor(ctx, e.SubscriptionID)
		}
		if err != nil {
			return "", err
		}
		snap := SnapshotFromStripe(sub)
		patch.SubscriptionID = models.Value(snap.ID)
		patch.PlanType = models.Value(PlanTypeForInterval(snap.Interval))
		patch.EndDate = models.Value(snap.EndDateMillis())
		if snap.CustomerID != "" {
			patch.CustomerID = models.Value(snap.CustomerID)
		}
	case stripe.CheckoutSessionModePayment:
		patch.SubscriptionID = models.Value(e.SessionID)
		patch.PlanType = models.Value(models.PlanLifetime)
		patch.EndDate = models.Null[int64]()
	default:
		ctxLogger(ctx).Warn().Str("mode", string(e.Mode)).Msg("checkout session with unsupported mode")
		return OutcomeSkipped, nil
	}

	if err := r.store.MergeSubscription(ctx, userID, patch); err != nil {
		return "", fmt.Errorf("merge checkout for %s: %w", userID, err)
	}
	ctxLogger(ctx).Info().Str("user_id", userID).Str("mode", string(e.Mode)).Msg("subscription activated")
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, e SubscriptionUpdated) (Outcome, error) {
	sub, err := r.processor.GetSubscription(ctx, e.SubscriptionID)
	if errors.Is(err, ErrProcessorNotFound) {
		return r.missingAtProcessor(ctx, e.SubscriptionID)
	}
	if err != nil {
		return "", err
	}
	snap := SnapshotFromStripe(sub)

	ref := SubscriptionRef{SubscriptionID: snap.ID, CustomerID: snap.CustomerID, MetadataUserID: snap.UserIDHint}
	if ref.MetadataUserID == "" {
		ref.MetadataUserID = e.MetadataUserID
	}
	if ref.CustomerID == "" {
		ref.CustomerID = e.CustomerID
	}
	userID, by, err := r.resolver.Resolve(ctx, ref)
	if err != nil {
		return r.unresolved(ctx, ref, err)
	}

	status := DeriveStatus(snap.ProcessorStatus, snap.CancelAtPeriodEnd)
	patch := models.SubscriptionPatch{
		Status:  models.Value(status),
		EndDate: models.Value(snap.EndDateMillis()),
	}
	if err := r.store.MergeSubscription(ctx, userID, patch); err != nil {
		return "", fmt.Errorf("merge update for %s: %w", userID, err)
	}
	ctxLogger(ctx).Info().
		Str("user_id", userID).
		Str("resolved_by", string(by)).
		Str("status", string(status)).
		Msg("subscription updated")
	return OutcomeApplied, nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, e SubscriptionDeleted) (Outcome, error) {
	ref := SubscriptionRef{SubscriptionID: e.SubscriptionID, CustomerID: e.CustomerID, MetadataUserID: e.MetadataUserID}
	userID, by, err := r.resolver.Resolve(ctx, ref)
	if err != nil {
		return r.unresolved(ctx, ref, err)
	}

	patch := models.SubscriptionPatch{
		Tier:           models.Value(models.TierFree),
		Status:         models.Value(models.StatusExpired),
		SubscriptionID: models.Null[string](),
		EndDate:        models.Null[int64](),
	}
	if err := r.store.MergeSubscription(ctx, userID, patch); err != nil {
		return "", fmt.Errorf("merge deletion for %s: %w", userID, err)
	}
	ctxLogger(ctx).Info().Str("user_id", userID).Str("resolved_by", string(by)).Msg("subscription deleted, user downgraded")
	return OutcomeApplied, nil
}

func (r *Reconciler) paymentFailed(ctx context.Context, e InvoicePaymentFailed) (Outcome, error) {
	notice := models.PaymentFailedNotice{
		Type:           string(eventInvoicePaymentFailed),
		EventID:        e.ID,
		InvoiceID:      e.InvoiceID,
		CustomerID:     e.CustomerID,
		SubscriptionID: e.SubscriptionID,
		CustomerEmail:  e.CustomerEmail,
		AttemptCount:   e.AttemptCount,
	}
	if err := r.notifier.PaymentFailed(ctx, notice); err != nil {
		// Best effort; the record is not touched on this path.
		ctxLogger(ctx).Error().Err(err).Msg("payment failed notice not delivered")
	}
	return OutcomeApplied, nil
}

func (r *Reconciler) unresolved(ctx context.Context, ref SubscriptionRef, err error) (Outcome, error) {
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAmbiguousUser) {
		ctxLogger(ctx).Warn().
			Err(err).
			Str("subscription_id", ref.SubscriptionID).
			Str("customer_id", ref.CustomerID).
			Msg("no single user for subscription event")
		return OutcomeSkipped, nil
	}
	return "", err
}

// missingAtProcessor skips an event whose subscription Stripe no longer
// knows. Redelivery cannot fix it.
func (r *Reconciler) missingAtProcessor(ctx context.Context, subscriptionID string) (Outcome, error) {
	ctxLogger(ctx).Warn().
		Str("subscription_id", subscriptionID).
		Msg("subscription missing at processor, event skipped")
	return OutcomeSkipped, nil
}

// SyncFromProcessor re-reads the user's subscription from the processor and
// merges the derived status. Lifetime purchases have nothing to poll.
func (r *Reconciler) SyncFromProcessor(ctx context.Context, userID string) (SyncResult, error) {
	record, err := r.store.GetSubscription(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return SyncResult{}, fmt.Errorf("%s: %w", userID, ErrUserNotFound)
	}
	if err != nil {
		return SyncResult{}, fmt.Errorf("load subscription for %s: %w", userID, err)
	}

	if record.IsLifetime() {
		return SyncResult{UserID: userID, Status: record.Status, EndDate: record.EndDate}, nil
	}
	subID := record.StoredSubscriptionID()
	if subID == "" {
		return SyncResult{}, fmt.Errorf("%s: %w", userID, ErrNoSubscription)
	}

	sub, err := r.processor.GetSubscription(ctx, subID)
	if err != nil {
		return SyncResult{}, err
	}
	snap := SnapshotFromStripe(sub)
	status := DeriveStatus(snap.ProcessorStatus, snap.CancelAtPeriodEnd)
	endDate := snap.EndDateMillis()

	patch := models.SubscriptionPatch{
		Status:  models.Value(status),
		EndDate: models.Value(endDate),
	}
	if err := r.store.MergeSubscription(ctx, userID, patch); err != nil {
		return SyncResult{}, fmt.Errorf("merge sync for %s: %w", userID, err)
	}
	ctxLogger(ctx).Info().Str("user_id", userID).Str("subscription_id", subID).Str("status", string(status)).Msg("subscription synced")
	return SyncResult{UserID: userID, Status: status, EndDate: &endDate, Snapshot: &snap}, nil
}
