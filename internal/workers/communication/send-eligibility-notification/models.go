package sendeligibilitynotification

type Input struct {
	ApplicationID string `json:"applicationId"`
}

type Output struct {
	NotificationID string `json:"notificationId"`
	ApplicationID  string `json:"applicationId"`
	EmailStatus    string `json:"emailStatus"`
	SMSStatus      string `json:"smsStatus"`
	MatchedCount   int    `json:"matchedCount"`
	SentAt         string `json:"sentAt"` // RFC 3339
}

const (
	ChannelEmail = "email"
	ChannelSMS   = "sms"
)
