package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Toumari/NorthStar/app/models"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	sqstypes "github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/rs/zerolog/log"
)

type noticeQueue interface {
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// NoticeWorker consumes payment-failed notices and re-syncs the affected
// user from Stripe, so a subscription that went past due is reflected even
// when its update webhook was missed. It is the only consumer of the queue
// SQSNotifier publishes to.
type NoticeWorker struct {
	queue      noticeQueue
	queueURL   string
	reconciler *Reconciler
}

func NewNoticeWorker(ctx context.Context, queueURL string, r *Reconciler) (*NoticeWorker, error) {
	if queueURL == "" {
		return nil, errors.New("QUEUE_URL must be set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &NoticeWorker{queue: sqs.NewFromConfig(awsCfg), queueURL: queueURL, reconciler: r}, nil
}

// Run long-polls the queue until ctx is done.
func (w *NoticeWorker) Run(ctx context.Context) error {
	log.Info().Str("queue_url", w.queueURL).Msg("notice worker started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.poll(ctx); err != nil {
			log.Error().Err(err).Msg("receive notices failed")
			sleep(ctx, 5*time.Second)
		}
	}
}

func (w *NoticeWorker) poll(ctx context.Context) error {
	recvCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	resp, err := w.queue.ReceiveMessage(recvCtx, &sqs.ReceiveMessageInput{
		QueueUrl:            &w.queueURL,
		MaxNumberOfMessages: 5,
		WaitTimeSeconds:     20,
		VisibilityTimeout:   60,
	})
	cancel()
	if err != nil {
		return err
	}

	for _, m := range resp.Messages {
		if m.Body == nil {
			w.delete(ctx, m)
			continue
		}
		var notice models.PaymentFailedNotice
		if err := json.Unmarshal([]byte(*m.Body), &notice); err != nil {
			log.Warn().Err(err).Msg("dropping unreadable notice")
			w.delete(ctx, m)
			continue
		}

		logger := log.With().Str("event_id", notice.EventID).Logger()
		jobCtx, jobCancel := context.WithTimeout(logger.WithContext(ctx), time.Minute)
		err := w.HandleNotice(jobCtx, notice)
		jobCancel()
		if err != nil {
			// Left on the queue; it becomes visible again after the timeout.
			logger.Error().Err(err).Msg("notice processing failed")
			continue
		}
		w.delete(ctx, m)
	}
	return nil
}

// HandleNotice syncs the user owning the failed invoice. Notices that cannot
// be tied to a synced subscription are dropped.
func (w *NoticeWorker) HandleNotice(ctx context.Context, notice models.PaymentFailedNotice) error {
	ref := SubscriptionRef{SubscriptionID: notice.SubscriptionID, CustomerID: notice.CustomerID}
	userID, _, err := w.reconciler.resolver.Resolve(ctx, ref)
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrAmbiguousUser) {
		ctxLogger(ctx).Warn().Err(err).Msg("no single user for payment failed notice")
		return nil
	}
	if err != nil {
		return err
	}

	result, err := w.reconciler.SyncFromProcessor(ctx, userID)
	if errors.Is(err, ErrNoSubscription) || errors.Is(err, ErrUserNotFound) {
		ctxLogger(ctx).Info().Str("user_id", userID).Msg("payment failed for user without a synced subscription")
		return nil
	}
	if err != nil {
		return err
	}
	ctxLogger(ctx).Info().
		Str("user_id", userID).
		Str("status", string(result.Status)).
		Int64("attempt_count", notice.AttemptCount).
		Msg("synced after payment failure")
	return nil
}

func (w *NoticeWorker) delete(ctx context.Context, m sqstypes.Message) {
	if m.ReceiptHandle == nil {
		return
	}
	_, err := w.queue.DeleteMessage(context.WithoutCancel(ctx), &sqs.DeleteMessageInput{
		QueueUrl:      &w.queueURL,
		ReceiptHandle: m.ReceiptHandle,
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to delete SQS message")
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
