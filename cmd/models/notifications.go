package models

import (
	"gorm.io/gorm"
)

// PushSubscription stores one browser/device push registration. The upsert
// key is (user_id, endpoint) so a user's devices coexist; re-registering the
// same device replaces its key material instead of inserting a duplicate.
type PushSubscription struct {
	gorm.Model
	UserID   uint   `gorm:"not null;index;uniqueIndex:idx_user_endpoint" json:"userId"`
	Endpoint string `gorm:"size:500;not null;uniqueIndex:idx_user_endpoint" json:"endpoint"`
	P256dh   string `gorm:"type:text;not null" json:"p256dh"`
	Auth     string `gorm:"type:text;not null" json:"auth"`
}

// Notification log statuses
const (
	LogStatusSent    = "sent"
	LogStatusFailed  = "failed"
	LogStatusClicked = "clicked"
)

// NotificationLog is a best-effort audit record, one row per delivery
// attempt per device. Writes to it never fail a request.
type NotificationLog struct {
	gorm.Model
	UserID       uint   `gorm:"index" json:"userId"`
	Title        string `json:"title"`
	Body         string `json:"body"`
	Type         string `gorm:"size:50" json:"type"`
	Delivered    bool   `json:"delivered"`
	Status       string `gorm:"size:20" json:"status"` // sent, failed, clicked
	ErrorMessage string `gorm:"type:text" json:"error_message,omitempty"`
	Endpoint     string `gorm:"size:500" json:"endpoint,omitempty"`
	TraceID      string `gorm:"size:36;index" json:"trace_id,omitempty"`
}

// NotificationPayload is the message shape delivered to push endpoints and
// rendered by the background worker. Transient, never persisted as-is.
type NotificationPayload struct {
	Title string                 `json:"title"`
	Body  string                 `json:"body"`
	Icon  string                 `json:"icon,omitempty"`
	Badge string                 `json:"badge,omitempty"`
	URL   string                 `json:"url,omitempty"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// SubscribeRequest is the body of a subscription registration.
type SubscribeRequest struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// DispatchRequest selects recipients and carries the payload for one send.
// Exactly one of UserID / UserGroup may be set; neither means broadcast.
type DispatchRequest struct {
	Title     string                 `json:"title"`
	Body      string                 `json:"body"`
	Icon      string                 `json:"icon,omitempty"`
	Badge     string                 `json:"badge,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Type      string                 `json:"type,omitempty"`
	UserID    *uint                  `json:"userId,omitempty"`
	UserGroup []uint                 `json:"userGroup,omitempty"`
}

// DispatchResult reports fan-out outcome. Partial delivery failure never
// changes the HTTP status of a dispatch.
type DispatchResult struct {
	Message    string `json:"message"`
	Successful int    `json:"successful"`
	Failed     int    `json:"failed"`
	Total      int    `json:"total"`
}
