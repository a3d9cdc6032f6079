// Package escalation picks the supervisor that receives the next escalation of a
// help request. Selection is a pure function of the request, the target level and
// a roster snapshot, so it can be replayed and tested without a clock or store.
package escalation

import (
	"sort"

	"github.com/helpline/escalation-service/internal/domain"
)

// Resolve returns the supervisor for targetLevel, or false when nobody can take it.
//
// The roster is ordered by supervisor ID and walked round-robin starting at
// (targetLevel-1) mod len(team). Members outside their availability window at
// team.At are skipped. The current assignee is never returned from a roster of
// more than one member, even when everyone else is unavailable; only a
// single-member roster may hand the request back to the same supervisor.
// Walking consecutive levels 1..K over a roster of K therefore visits every
// member once before repeating.
func Resolve(req domain.HelpRequest, targetLevel int, team domain.Team) (domain.Supervisor, bool) {
	if targetLevel < 1 || len(team.Members) == 0 {
		return domain.Supervisor{}, false
	}

	ordered := orderRoster(team.Members)
	current := req.Assignee()
	n := len(ordered)
	start := (targetLevel - 1) % n

	for offset := 0; offset < n; offset++ {
		candidate := ordered[(start+offset)%n]
		if !candidate.AvailableAt(team.At) {
			continue
		}
		if n > 1 && current != "" && candidate.ID == current {
			continue
		}
		return candidate, true
	}
	return domain.Supervisor{}, false
}

// orderRoster copies and sorts so callers' slices are never reordered.
func orderRoster(members []domain.Supervisor) []domain.Supervisor {
	ordered := append([]domain.Supervisor(nil), members...)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].ID != ordered[j].ID {
			return ordered[i].ID < ordered[j].ID
		}
		return ordered[i].Name < ordered[j].Name
	})
	return ordered
}
