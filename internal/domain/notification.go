package domain

import "time"

// NotificationRecord captures one delivery attempt to a supervisor.
type NotificationRecord struct {
	RequestID    int64     `json:"request_id"`
	SupervisorID string    `json:"supervisor_id"`
	Channel      string    `json:"channel"`
	Level        int       `json:"level"`
	Delivered    bool      `json:"delivered"`
	Error        string    `json:"error,omitempty"`
	SentAt       time.Time `json:"sent_at"`
}
