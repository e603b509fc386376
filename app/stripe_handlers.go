package app

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/Toumari/NorthStar/auth"
	"github.com/gin-gonic/gin"
	"github.com/stripe/stripe-go/v79/webhook"
)

const maxWebhookBodyBytes = int64(1 << 20)

// CreateCheckoutSession starts a hosted checkout for the authenticated user.
func (s *Server) CreateCheckoutSession(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	var req models.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "priceId, userId and userEmail are required"})
		return
	}
	if req.UserID != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match the signed-in user"})
		return
	}
	if claims.Email != "" && !strings.EqualFold(strings.TrimSpace(req.UserEmail), claims.Email) {
		c.JSON(http.StatusForbidden, gin.H{"error": "userEmail does not match the signed-in user"})
		return
	}

	url, err := s.gateway.CreateCheckoutSession(c.Request.Context(), req.PriceID, req.UserID, req.UserEmail)
	if err != nil {
		respondError(c, err, "failed to create checkout session")
		return
	}
	c.JSON(http.StatusOK, models.SessionURLResponse{URL: url})
}

// CreatePortalSession opens the billing portal for the caller's own customer.
func (s *Server) CreatePortalSession(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	var req models.PortalSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "customerId is required"})
		return
	}

	url, err := s.gateway.CreatePortalSession(c.Request.Context(), claims.Subject, req.CustomerID)
	if err != nil {
		respondError(c, err, "failed to create portal session")
		return
	}
	c.JSON(http.StatusOK, models.SessionURLResponse{URL: url})
}

// SyncSubscription re-reads the caller's subscription from Stripe.
func (s *Server) SyncSubscription(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	var req models.SyncSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	if req.UserID != claims.Subject {
		c.JSON(http.StatusForbidden, gin.H{"error": "userId does not match the signed-in user"})
		return
	}

	result, err := s.reconciler.SyncFromProcessor(c.Request.Context(), req.UserID)
	if err != nil {
		respondError(c, err, "failed to sync subscription")
		return
	}
	c.JSON(http.StatusOK, models.SyncSubscriptionResponse{
		Synced:  true,
		Status:  result.Status,
		EndDate: result.EndDate,
	})
}

// GetSubscription returns the live Stripe view of the caller's subscription
// next to the stored record, for diagnosing missed webhooks.
func (s *Server) GetSubscription(c *gin.Context) {
	claims, ok := callerClaims(c)
	if !ok {
		return
	}
	subscriptionID := c.Param("id")

	record, err := s.store.GetSubscription(c.Request.Context(), claims.Subject)
	if err != nil {
		respondError(c, err, "failed to load subscription")
		return
	}
	if record.IsLifetime() || record.StoredSubscriptionID() != subscriptionID {
		c.JSON(http.StatusForbidden, gin.H{"error": "subscription does not belong to the signed-in user"})
		return
	}

	sub, err := s.processor.GetSubscription(c.Request.Context(), subscriptionID)
	if err != nil {
		respondError(c, err, "failed to retrieve subscription")
		return
	}
	snap := SnapshotFromStripe(sub)
	c.JSON(http.StatusOK, gin.H{
		"subscription":  snap,
		"derivedStatus": DeriveStatus(snap.ProcessorStatus, snap.CancelAtPeriodEnd),
		"stored":        record,
	})
}

// StripeWebhook verifies and applies a Stripe event.
func (s *Server) StripeWebhook(c *gin.Context) {
	sigHeader := c.GetHeader("Stripe-Signature")
	if sigHeader == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing Stripe-Signature header"})
		return
	}
	if s.webhookSecret == "" {
		ctxLogger(c.Request.Context()).Error().Msg("stripe webhook secret missing")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "webhook not configured"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBodyBytes))
	if err != nil {
		ctxLogger(c.Request.Context()).Warn().Err(err).Msg("stripe webhook read failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}

	event, err := webhook.ConstructEventWithOptions(
		body,
		sigHeader,
		s.webhookSecret,
		webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		},
	)
	if err != nil {
		ctxLogger(c.Request.Context()).Warn().Err(err).Msg("stripe webhook signature failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": "signature verification failed"})
		return
	}

	logger := ctxLogger(c.Request.Context()).With().Str("event_id", event.ID).Logger()
	ctx := logger.WithContext(c.Request.Context())

	decoded, err := DecodeEvent(event)
	if err != nil {
		logger.Warn().Err(err).Msg("stripe webhook payload rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid event payload"})
		return
	}

	duplicate, err := s.deduper.Do(ctx, event.ID, func(ctx context.Context) error {
		outcome, err := s.reconciler.Reconcile(ctx, decoded)
		if err == nil {
			logger.Info().Str("type", string(event.Type)).Str("outcome", string(outcome)).Msg("stripe webhook handled")
		}
		return err
	})
	if errors.Is(err, ErrEventInFlight) {
		logger.Info().Msg("stripe webhook event already in flight")
		c.JSON(http.StatusConflict, gin.H{"error": "event is being processed; retry later"})
		return
	}
	if err != nil {
		logger.Error().Err(err).Str("type", string(event.Type)).Msg("stripe webhook processing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
		return
	}
	if duplicate {
		logger.Info().Msg("stripe webhook duplicate delivery")
	}

	c.JSON(http.StatusOK, models.WebhookResponse{Received: true, Duplicate: duplicate})
}

func callerClaims(c *gin.Context) (*auth.Claims, bool) {
	claims, ok := auth.ClaimsFromContext(c.Request.Context())
	if !ok || claims.Subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing auth context"})
		return nil, false
	}
	return claims, true
}

// respondError writes the status for err. Client errors echo the error text;
// server errors are logged and answered with fallback.
func respondError(c *gin.Context, err error, fallback string) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		ctxLogger(c.Request.Context()).Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		c.JSON(status, gin.H{"error": fallback})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
