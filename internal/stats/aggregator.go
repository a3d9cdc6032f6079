package stats

import (
	"math"

	"github.com/helpline/escalation-service/internal/domain"
)

// Summarize derives the console statistics from grouped store counts.
func Summarize(counts domain.RequestCounts) domain.Statistics {
	out := domain.Statistics{
		StatusCounts:   make(map[domain.RequestStatus]int64, len(domain.AllStatuses)),
		PriorityCounts: make(map[domain.RequestPriority]int64, len(domain.AllPriorities)),
	}
	for _, s := range domain.AllStatuses {
		out.StatusCounts[s] = 0
	}
	for _, p := range domain.AllPriorities {
		out.PriorityCounts[p] = 0
	}

	var (
		resolvedCount   int64
		resolvedMinutes float64
		escalatedCount  int64
		levelSum        int64
	)
	for _, row := range counts.Rows {
		out.TotalRequests += row.Count
		out.StatusCounts[row.Status] += row.Count
		out.PriorityCounts[row.Priority] += row.Count
		if row.Status == domain.StatusResolved {
			resolvedCount += row.Count
			resolvedMinutes += row.ResolutionMinutesSum
		}
		escalatedCount += row.EscalatedCount
		levelSum += row.EscalationLevelSum
	}

	if resolvedCount > 0 {
		out.AvgResolutionMinutes = round1(resolvedMinutes / float64(resolvedCount))
	}
	if escalatedCount > 0 {
		out.AvgEscalationLevel = round1(float64(levelSum) / float64(escalatedCount))
	}

	unresolved := out.StatusCounts[domain.StatusUnresolved]
	out.TimeoutCount = out.StatusCounts[domain.StatusTimeout] + unresolved
	out.EscalationSuccessRate = 100.0
	if out.TimeoutCount > 0 {
		out.EscalationSuccessRate = round1(float64(out.TimeoutCount-unresolved) / float64(out.TimeoutCount) * 100)
	}
	return out
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
