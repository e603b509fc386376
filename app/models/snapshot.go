package models

// SubscriptionSnapshot is the subset of a live processor subscription the
// reconciler reads. It is never persisted as-is.
type SubscriptionSnapshot struct {
	ID                string `json:"id"`
	CustomerID        string `json:"customer"`
	ProcessorStatus   string `json:"processorStatus"`
	CancelAtPeriodEnd bool   `json:"cancelAtPeriodEnd"`
	CurrentPeriodEnd  int64  `json:"currentPeriodEnd"` // epoch seconds
	Interval          string `json:"interval,omitempty"`
	UserIDHint        string `json:"userIdHint,omitempty"`
}

// EndDateMillis converts the period end to the record's millisecond format.
func (s SubscriptionSnapshot) EndDateMillis() int64 {
	return s.CurrentPeriodEnd * 1000
}

// PaymentFailedNotice is published when an invoice payment fails.
type PaymentFailedNotice struct {
	Type           string `json:"type"`
	EventID        string `json:"event_id"`
	InvoiceID      string `json:"invoice_id"`
	CustomerID     string `json:"customer_id,omitempty"`
	SubscriptionID string `json:"subscription_id,omitempty"`
	CustomerEmail  string `json:"customer_email,omitempty"`
	AttemptCount   int64  `json:"attempt_count"`
}
