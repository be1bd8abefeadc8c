// internal/models/notification.go
package models

// Per-channel delivery status reported by the notification worker.
const (
	NotificationStatusSent     = "sent"
	NotificationStatusFailed   = "failed"
	NotificationStatusDisabled = "disabled"
	NotificationStatusSkipped  = "skipped"
)
