package domain

import (
	"fmt"
	"strings"
	"time"
)

// SupervisorRole enumerates console operator roles.
type SupervisorRole string

const (
	SupervisorRoleAgent SupervisorRole = "AGENT"
	SupervisorRoleLead  SupervisorRole = "LEAD"
	SupervisorRoleAdmin SupervisorRole = "ADMIN"
)

// ParseSupervisorRole normalises raw and rejects unknown roles.
func ParseSupervisorRole(raw string) (SupervisorRole, error) {
	role := SupervisorRole(strings.ToUpper(strings.TrimSpace(raw)))
	switch role {
	case SupervisorRoleAgent, SupervisorRoleLead, SupervisorRoleAdmin:
		return role, nil
	}
	return "", fmt.Errorf("unknown supervisor role %q", raw)
}

// Supervisor models a human who can receive escalations.
type Supervisor struct {
	ID           string
	Name         string
	Role         SupervisorRole
	Phone        string
	Email        string
	PasswordHash string
	Availability *Availability
}

// Availability is a daily window in minutes since midnight, evaluated in Location.
// End before Start wraps past midnight.
type Availability struct {
	Start    int
	End      int
	Location *time.Location
}

// ParseAvailability reads "HH:MM-HH:MM".
func ParseAvailability(raw string, loc *time.Location) (*Availability, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, "-")
	if len(parts) != 2 {
		return nil, fmt.Errorf("availability %q: expected HH:MM-HH:MM", raw)
	}
	start, err := parseClock(parts[0])
	if err != nil {
		return nil, fmt.Errorf("availability %q: %w", raw, err)
	}
	end, err := parseClock(parts[1])
	if err != nil {
		return nil, fmt.Errorf("availability %q: %w", raw, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Availability{Start: start, End: end, Location: loc}, nil
}

func parseClock(raw string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether at falls inside the window. A nil window is always open.
func (a *Availability) Contains(at time.Time) bool {
	if a == nil || a.Start == a.End {
		return true
	}
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}
	local := at.In(loc)
	minute := local.Hour()*60 + local.Minute()
	if a.Start < a.End {
		return minute >= a.Start && minute < a.End
	}
	return minute >= a.Start || minute < a.End
}

// String renders the window back to HH:MM-HH:MM.
func (a *Availability) String() string {
	if a == nil {
		return ""
	}
	return fmt.Sprintf("%02d:%02d-%02d:%02d", a.Start/60, a.Start%60, a.End/60, a.End%60)
}

// AvailableAt reports whether the supervisor can take work at the instant.
func (s Supervisor) AvailableAt(at time.Time) bool {
	if at.IsZero() {
		return true
	}
	return s.Availability.Contains(at)
}
