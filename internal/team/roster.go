// Package team provides the supervisor roster the resolver and console auth read from.
package team

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

// Provider hands out roster snapshots.
type Provider interface {
	Snapshot(ctx context.Context, at time.Time) (domain.Team, error)
	Lookup(ctx context.Context, id string) (domain.Supervisor, error)
}

// File is the on-disk roster layout.
type File struct {
	Timezone    string         `yaml:"timezone,omitempty"`
	Supervisors []MemberRecord `yaml:"supervisors"`
}

// MemberRecord is one supervisor entry.
type MemberRecord struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role,omitempty"`
	Phone        string `yaml:"phone,omitempty"`
	Email        string `yaml:"email,omitempty"`
	PasswordHash string `yaml:"password_hash,omitempty"`
	Available    string `yaml:"available,omitempty"`
}

// Roster is an in-memory roster, optionally backed by a YAML file.
type Roster struct {
	mu      sync.RWMutex
	path    string
	loc     *time.Location
	members []domain.Supervisor
	byID    map[string]domain.Supervisor
}

// NewStaticRoster wraps a fixed member list.
func NewStaticRoster(members ...domain.Supervisor) *Roster {
	r := &Roster{loc: time.UTC}
	r.set(members)
	return r
}

// LoadFile reads a roster. loc is used when the file does not name a timezone.
func LoadFile(path string, loc *time.Location) (*Roster, error) {
	r := &Roster{path: path, loc: loc}
	if err := r.Reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-reads the backing file. Static rosters are left untouched.
func (r *Roster) Reload() error {
	if r.path == "" {
		return nil
	}
	raw, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read roster %s: %w", r.path, err)
	}
	members, err := Parse(raw, r.loc)
	if err != nil {
		return fmt.Errorf("parse roster %s: %w", r.path, err)
	}
	r.set(members)
	return nil
}

// Parse decodes roster YAML into supervisors.
func Parse(raw []byte, fallback *time.Location) ([]domain.Supervisor, error) {
	var file File
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, err
	}
	loc := fallback
	if file.Timezone != "" {
		l, err := time.LoadLocation(file.Timezone)
		if err != nil {
			return nil, fmt.Errorf("timezone %q: %w", file.Timezone, err)
		}
		loc = l
	}
	if loc == nil {
		loc = time.UTC
	}

	seen := make(map[string]struct{}, len(file.Supervisors))
	out := make([]domain.Supervisor, 0, len(file.Supervisors))
	for i, rec := range file.Supervisors {
		id := strings.TrimSpace(rec.ID)
		if id == "" {
			return nil, fmt.Errorf("supervisor %d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("supervisor %q listed twice", id)
		}
		seen[id] = struct{}{}

		role := domain.SupervisorRoleAgent
		if strings.TrimSpace(rec.Role) != "" {
			parsed, err := domain.ParseSupervisorRole(rec.Role)
			if err != nil {
				return nil, fmt.Errorf("supervisor %q: %w", id, err)
			}
			role = parsed
		}
		window, err := domain.ParseAvailability(rec.Available, loc)
		if err != nil {
			return nil, fmt.Errorf("supervisor %q: %w", id, err)
		}
		name := strings.TrimSpace(rec.Name)
		if name == "" {
			name = id
		}
		out = append(out, domain.Supervisor{
			ID:           id,
			Name:         name,
			Role:         role,
			Phone:        rec.Phone,
			Email:        rec.Email,
			PasswordHash: rec.PasswordHash,
			Availability: window,
		})
	}
	return out, nil
}

func (r *Roster) set(members []domain.Supervisor) {
	byID := make(map[string]domain.Supervisor, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}
	r.mu.Lock()
	r.members = append([]domain.Supervisor(nil), members...)
	r.byID = byID
	r.mu.Unlock()
}

// Snapshot returns a copy of the roster stamped with at.
func (r *Roster) Snapshot(ctx context.Context, at time.Time) (domain.Team, error) {
	if err := ctx.Err(); err != nil {
		return domain.Team{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.Team{Members: append([]domain.Supervisor(nil), r.members...), At: at}, nil
}

// Lookup finds a supervisor by ID.
func (r *Roster) Lookup(ctx context.Context, id string) (domain.Supervisor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sup, ok := r.byID[id]
	if !ok {
		return domain.Supervisor{}, apperrors.NewNotFound("supervisor", map[string]any{"supervisor_id": id})
	}
	return sup, nil
}

// Size is the number of supervisors on the roster.
func (r *Roster) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
