package domain

import "time"

// NotificationType is the kind of subscription notification.
type NotificationType string

// Notification types.
const (
	NotificationSubscriptionCreated  NotificationType = "subscription_created"
	NotificationSubscriptionExpiring NotificationType = "subscription_expiring"
	NotificationSubscriptionRenewed  NotificationType = "subscription_renewed"
	NotificationSubscriptionExpired  NotificationType = "subscription_expired"
)

// IsValid checks if the notification type is known.
func (t NotificationType) IsValid() bool {
	switch t {
	case NotificationSubscriptionCreated, NotificationSubscriptionExpiring,
		NotificationSubscriptionRenewed, NotificationSubscriptionExpired:
		return true
	}
	return false
}

// SubscriptionNotification is an immutable notice addressed to one recipient.
// Only Read changes after creation.
type SubscriptionNotification struct {
	ID             string           `json:"id"`
	RecipientID    string           `json:"recipient_id"`
	SubscriptionID string           `json:"subscription_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	Read           bool             `json:"read"`
	CreatedAt      time.Time        `json:"created_at"`
}
