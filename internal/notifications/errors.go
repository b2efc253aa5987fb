package notifications

import "errors"

// Domain errors for subscription notifications.
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrUnknownType          = errors.New("unknown notification type")
)
