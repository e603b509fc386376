package app

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/Toumari/NorthStar/app/models"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSQS struct {
	sent     []*sqs.SendMessageInput
	sendErr  error
	received []*sqs.ReceiveMessageOutput
	deleted  []string
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.sent = append(f.sent, in)
	return &sqs.SendMessageOutput{}, f.sendErr
}

func (f *fakeSQS) ReceiveMessage(_ context.Context, _ *sqs.ReceiveMessageInput, _ ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	if len(f.received) == 0 {
		return &sqs.ReceiveMessageOutput{}, nil
	}
	out := f.received[0]
	f.received = f.received[1:]
	return out, nil
}

func (f *fakeSQS) DeleteMessage(_ context.Context, in *sqs.DeleteMessageInput, _ ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	f.deleted = append(f.deleted, *in.ReceiptHandle)
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSNotifierPublishesNotice(t *testing.T) {
	q := &fakeSQS{}
	n := &SQSNotifier{client: q, queueURL: "https://sqs.test/queue"}

	notice := models.PaymentFailedNotice{Type: "invoice.payment_failed", EventID: "evt_1", InvoiceID: "in_1", AttemptCount: 3}
	require.NoError(t, n.PaymentFailed(context.Background(), notice))

	require.Len(t, q.sent, 1)
	assert.Equal(t, "https://sqs.test/queue", *q.sent[0].QueueUrl)
	var got models.PaymentFailedNotice
	require.NoError(t, json.Unmarshal([]byte(*q.sent[0].MessageBody), &got))
	assert.Equal(t, notice, got)
}

func TestSQSNotifierReturnsSendError(t *testing.T) {
	q := &fakeSQS{sendErr: errors.New("throttled")}
	n := &SQSNotifier{client: q, queueURL: "https://sqs.test/queue"}
	assert.Error(t, n.PaymentFailed(context.Background(), models.PaymentFailedNotice{EventID: "evt_1"}))
}

func TestNewSQSNotifierRequiresQueue(t *testing.T) {
	_, err := NewSQSNotifier(context.Background(), "")
	assert.Error(t, err)
}
