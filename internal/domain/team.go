package domain

import "time"

// Team is a point-in-time snapshot of the escalation roster.
type Team struct {
	Members []Supervisor
	At      time.Time
}
