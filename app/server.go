// Package app wires the billing HTTP surface for both local and Lambda execution.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Toumari/NorthStar/app/config"
	"github.com/Toumari/NorthStar/app/store"
	"github.com/Toumari/NorthStar/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
)

// Deps are the collaborators a Server is built from.
type Deps struct {
	Store         store.UserStore
	Processor     Processor
	Notifier      Notifier
	Deduper       Deduper
	Verifier      *auth.Verifier
	Registry      *prometheus.Registry
	Metrics       *Metrics
	WebhookSecret string
	PublicURL     string
	RateLimit     config.RateLimitConfig
	DisableAuth   bool
}

// Server holds the handlers' dependencies. Handlers are methods on it.
type Server struct {
	store         store.UserStore
	processor     Processor
	gateway       *Gateway
	reconciler    *Reconciler
	deduper       Deduper
	verifier      *auth.Verifier
	limiter       *RateLimiter
	registry      *prometheus.Registry
	webhookSecret string
	disableAuth   bool
	now           func() time.Time
	closers       []io.Closer
}

func NewServer(d Deps) *Server {
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}
	if d.Deduper == nil {
		d.Deduper = NewMemoryDeduper()
	}
	if d.Metrics == nil {
		d.Metrics = MustNewMetrics(d.Registry)
	}
	resolver := NewResolver(d.Store, d.Metrics)
	return &Server{
		store:         d.Store,
		processor:     d.Processor,
		gateway:       NewGateway(d.Processor, d.Store, d.PublicURL),
		reconciler:    NewReconciler(d.Store, d.Processor, resolver, d.Notifier, d.Metrics),
		deduper:       d.Deduper,
		verifier:      d.Verifier,
		limiter:       NewRateLimiter(d.RateLimit.RPS, d.RateLimit.Burst),
		registry:      d.Registry,
		webhookSecret: d.WebhookSecret,
		disableAuth:   d.DisableAuth,
		now:           time.Now,
	}
}

// New connects every external dependency named in cfg.
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	verifier, err := auth.NewVerifierFromConfig(cfg.Firebase)
	if err != nil && !auth.AuthDisabled() {
		return nil, fmt.Errorf("init verifier: %w", err)
	}

	userStore, err := store.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	closers := []io.Closer{userStore}

	metrics := MustNewMetrics(registry)
	processor, err := NewStripeProcessor(cfg.Stripe.SecretKey, metrics)
	if err != nil {
		_ = userStore.Close()
		return nil, err
	}
	if cfg.Stripe.WebhookSecret == "" {
		log.Warn().Msg("STRIPE_WEBHOOK_SECRET not set; webhook requests will be rejected")
	}

	var notifier Notifier = LogNotifier{}
	if cfg.QueueURL != "" {
		sqsNotifier, err := NewSQSNotifier(ctx, cfg.QueueURL)
		if err != nil {
			_ = userStore.Close()
			return nil, err
		}
		notifier = sqsNotifier
	}

	var deduper Deduper
	if cfg.Redis.Addr != "" {
		redisDeduper, err := NewRedisDeduper(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			_ = userStore.Close()
			return nil, err
		}
		deduper = redisDeduper
		closers = append(closers, redisDeduper)
	}

	s := NewServer(Deps{
		Store:         userStore,
		Processor:     processor,
		Notifier:      notifier,
		Deduper:       deduper,
		Verifier:      verifier,
		Registry:      registry,
		Metrics:       metrics,
		WebhookSecret: cfg.Stripe.WebhookSecret,
		PublicURL:     cfg.Stripe.PublicURL,
		RateLimit:     cfg.RateLimit,
	})
	s.closers = closers
	return s, nil
}

// Reconciler exposes the reconciler to workers sharing the server's wiring.
func (s *Server) Reconciler() *Reconciler {
	return s.reconciler
}

func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}
