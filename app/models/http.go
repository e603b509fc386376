package models

// Request and response bodies for the billing endpoints.

type CheckoutSessionRequest struct {
	PriceID   string `json:"priceId" binding:"required"`
	UserID    string `json:"userId" binding:"required"`
	UserEmail string `json:"userEmail" binding:"required"`
}

type PortalSessionRequest struct {
	CustomerID string `json:"customerId" binding:"required"`
}

type SyncSubscriptionRequest struct {
	UserID string `json:"userId" binding:"required"`
}

type SessionURLResponse struct {
	URL string `json:"url"`
}

type SyncSubscriptionResponse struct {
	Synced  bool   `json:"synced"`
	Status  Status `json:"status"`
	EndDate *int64 `json:"endDate"`
}

type WebhookResponse struct {
	Received  bool `json:"received"`
	Duplicate bool `json:"duplicate,omitempty"`
}
