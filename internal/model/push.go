package model

import "time"

// Notification types, also used as the dedup key namespace.
const (
	NotifTypeJoinRequest = "join_request"
	NotifTypeExpiring    = "expiring"
)

// PushSubscription is one browser endpoint registered by a user. It follows
// the user into every household they are an approved member of.
type PushSubscription struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	Endpoint   string    `json:"endpoint"`
	P256dhKey  string    `json:"p256dh_key"`
	AuthKey    string    `json:"auth_key"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
}
