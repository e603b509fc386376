package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/Toumari/NorthStar/app/store"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

const (
	testWebhookSecret = "whsec_test_secret"
	testPublicURL     = "https://northstar.example"
)

type fakeProcessor struct {
	mu             sync.Mutex
	subs           map[string]*stripe.Subscription
	getErr         error
	getCalls       int
	checkoutParams []*stripe.CheckoutSessionParams
	portalParams   []*stripe.BillingPortalSessionParams
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{subs: map[string]*stripe.Subscription{}}
}

func (p *fakeProcessor) put(sub *stripe.Subscription) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[sub.ID] = sub
}

func (p *fakeProcessor) calls() (get, checkout, portal int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.getCalls, len(p.checkoutParams), len(p.portalParams)
}

func (p *fakeProcessor) GetSubscription(_ context.Context, id string) (*stripe.Subscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.getCalls++
	if p.getErr != nil {
		return nil, p.getErr
	}
	sub, ok := p.subs[id]
	if !ok {
		return nil, fmt.Errorf("retrieve subscription %s: %w: %w", id, ErrUpstream, ErrProcessorNotFound)
	}
	return sub, nil
}

func (p *fakeProcessor) NewCheckoutSession(_ context.Context, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.checkoutParams = append(p.checkoutParams, params)
	id := fmt.Sprintf("cs_test_%d", len(p.checkoutParams))
	return &stripe.CheckoutSession{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (p *fakeProcessor) NewPortalSession(_ context.Context, params *stripe.BillingPortalSessionParams) (*stripe.BillingPortalSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.portalParams = append(p.portalParams, params)
	return &stripe.BillingPortalSession{URL: "https://billing.stripe.test/session"}, nil
}

type fakeNotifier struct {
	mu      sync.Mutex
	notices []models.PaymentFailedNotice
	err     error
}

func (n *fakeNotifier) PaymentFailed(_ context.Context, notice models.PaymentFailedNotice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
	return n.err
}

func stripeSubscription(id, customerID string, status stripe.SubscriptionStatus, cancelAtPeriodEnd bool, periodEnd int64, interval string) *stripe.Subscription {
	sub := &stripe.Subscription{
		ID:                id,
		Customer:          &stripe.Customer{ID: customerID},
		Status:            status,
		CancelAtPeriodEnd: cancelAtPeriodEnd,
		CurrentPeriodEnd:  periodEnd,
		Metadata:          map[string]string{},
	}
	if interval != "" {
		sub.Items = &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{Price: &stripe.Price{Recurring: &stripe.PriceRecurring{Interval: stripe.PriceRecurringInterval(interval)}}},
			},
		}
	}
	return sub
}

func strPtr(s string) *string { return &s }

func int64Ptr(v int64) *int64 { return &v }

type testEnv struct {
	store     *store.MemoryStore
	processor *fakeProcessor
	notifier  *fakeNotifier
	server    *Server
	router    *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	t.Setenv("AUTH_DISABLED", "false")
	gin.SetMode(gin.TestMode)

	env := &testEnv{
		store:     store.NewMemoryStore(),
		processor: newFakeProcessor(),
		notifier:  &fakeNotifier{},
	}
	env.server = NewServer(Deps{
		Store:         env.store,
		Processor:     env.processor,
		Notifier:      env.notifier,
		Registry:      prometheus.NewRegistry(),
		WebhookSecret: testWebhookSecret,
		PublicURL:     testPublicURL,
		DisableAuth:   true,
	})
	env.router = NewRouter(env.server)
	return env
}

func (e *testEnv) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	e.router.ServeHTTP(resp, req)
	return resp
}

func (e *testEnv) record(t *testing.T, userID string) models.SubscriptionRecord {
	t.Helper()
	r, err := e.store.GetSubscription(context.Background(), userID)
	require.NoError(t, err)
	return r
}

// eventPayload renders a Stripe event envelope around object.
func eventPayload(t *testing.T, id, eventType string, object map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"id":     id,
		"object": "event",
		"type":   eventType,
		"data":   map[string]any{"object": object},
	})
	require.NoError(t, err)
	return body
}

func signedHeader(t *testing.T, payload []byte, secret string) string {
	t.Helper()
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: secret})
	return signed.Header
}

// stripeEvent builds a verified-looking event for decoder and reconciler tests.
func stripeEvent(t *testing.T, id, eventType string, object map[string]any) stripe.Event {
	t.Helper()
	var ev stripe.Event
	require.NoError(t, json.Unmarshal(eventPayload(t, id, eventType, object), &ev))
	return ev
}
