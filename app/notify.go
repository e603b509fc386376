package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Toumari/NorthStar/app/models"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
)

// Notifier receives billing events that need follow-up outside the request.
type Notifier interface {
	PaymentFailed(ctx context.Context, notice models.PaymentFailedNotice) error
}

// LogNotifier only records the notice. It is used when no queue is configured.
type LogNotifier struct{}

func (LogNotifier) PaymentFailed(ctx context.Context, notice models.PaymentFailedNotice) error {
	ctxLogger(ctx).Warn().
		Str("invoice_id", notice.InvoiceID).
		Str("customer_id", notice.CustomerID).
		Str("subscription_id", notice.SubscriptionID).
		Int64("attempt_count", notice.AttemptCount).
		Msg("invoice payment failed")
	return nil
}

type sqsSender interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSNotifier publishes notices as JSON messages to an SQS queue. The queue
// has a single consumer, the notice worker, which deletes each message once
// handled, so another reader such as a mailer needs a queue of its own.
type SQSNotifier struct {
	client   sqsSender
	queueURL string
}

func NewSQSNotifier(ctx context.Context, queueURL string) (*SQSNotifier, error) {
	if queueURL == "" {
		return nil, errors.New("QUEUE_URL must be set")
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return &SQSNotifier{client: sqs.NewFromConfig(awsCfg), queueURL: queueURL}, nil
}

func (n *SQSNotifier) PaymentFailed(ctx context.Context, notice models.PaymentFailedNotice) error {
	LogNotifier{}.PaymentFailed(ctx, notice)

	body, err := json.Marshal(notice)
	if err != nil {
		return fmt.Errorf("marshal notice: %w", err)
	}
	_, err = n.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(n.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("send payment failed notice: %w", err)
	}
	return nil
}
