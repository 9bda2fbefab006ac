package models

import "time"

// NotificationKind classifies a mailbox entry.
type NotificationKind string

const (
	NotifyMessage   NotificationKind = "message"
	NotifyQuestion  NotificationKind = "question"
	NotifyCompleted NotificationKind = "completed"
	NotifyError     NotificationKind = "error"
)

// Valid returns true if the kind is a known value.
func (k NotificationKind) Valid() bool {
	switch k {
	case NotifyMessage, NotifyQuestion, NotifyCompleted, NotifyError:
		return true
	default:
		return false
	}
}

// Notification is an immutable mailbox entry. Only Read changes, and only
// from false to true.
type Notification struct {
	ID         string           `json:"mail_id"`
	SubagentID string           `json:"subagent_id"`
	Timestamp  time.Time        `json:"timestamp"`
	Kind       NotificationKind `json:"kind"`
	// Content is the message text, completion summary or error message.
	Content string `json:"content"`
	Read    bool   `json:"read"`
}
