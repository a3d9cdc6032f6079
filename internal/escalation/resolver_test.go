package escalation

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline/escalation-service/internal/domain"
)

func roster(ids ...string) []domain.Supervisor {
	out := make([]domain.Supervisor, 0, len(ids))
	for _, id := range ids {
		out = append(out, domain.Supervisor{ID: id, Name: "Supervisor " + id})
	}
	return out
}

func withAssignee(id string) domain.HelpRequest {
	if id == "" {
		return domain.HelpRequest{}
	}
	return domain.HelpRequest{AssignedTo: &id}
}

func TestResolveEmptyTeam(t *testing.T) {
	_, ok := Resolve(domain.HelpRequest{}, 1, domain.Team{})
	assert.False(t, ok)
}

func TestResolveInvalidLevel(t *testing.T) {
	_, ok := Resolve(domain.HelpRequest{}, 0, domain.Team{Members: roster("a")})
	assert.False(t, ok)
}

func TestResolveVisitsEveryMemberOnce(t *testing.T) {
	team := domain.Team{Members: roster("c", "a", "b")}
	req := domain.HelpRequest{}
	seen := map[string]int{}
	for level := 1; level <= 3; level++ {
		sup, ok := Resolve(req, level, team)
		require.True(t, ok)
		seen[sup.ID]++
		req = withAssignee(sup.ID)
	}
	assert.Equal(t, map[string]int{"a": 1, "b": 1, "c": 1}, seen)
}

func TestResolveNeverReturnsCurrentAssignee(t *testing.T) {
	team := domain.Team{Members: roster("a", "b", "c", "d")}
	for level := 1; level <= 8; level++ {
		for _, current := range []string{"a", "b", "c", "d"} {
			sup, ok := Resolve(withAssignee(current), level, team)
			require.True(t, ok)
			assert.NotEqual(t, current, sup.ID, "level %d", level)
		}
	}
}

func TestResolveSingleMemberMayBeReselected(t *testing.T) {
	sup, ok := Resolve(withAssignee("solo"), 2, domain.Team{Members: roster("solo")})
	require.True(t, ok)
	assert.Equal(t, "solo", sup.ID)
}

func TestResolveIsOrderIndependentAndIdempotent(t *testing.T) {
	members := roster("e", "b", "d", "a", "c")
	want, ok := Resolve(withAssignee("b"), 4, domain.Team{Members: members})
	require.True(t, ok)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 20; i++ {
		shuffled := append([]domain.Supervisor(nil), members...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got, ok := Resolve(withAssignee("b"), 4, domain.Team{Members: shuffled})
		require.True(t, ok)
		assert.Equal(t, want.ID, got.ID)
	}
	assert.Equal(t, []string{"e", "b", "d", "a", "c"}, []string{members[0].ID, members[1].ID, members[2].ID, members[3].ID, members[4].ID}, "input must not be reordered")
}

func TestResolveSkipsUnavailable(t *testing.T) {
	day, err := domain.ParseAvailability("09:00-17:00", time.UTC)
	require.NoError(t, err)
	night, err := domain.ParseAvailability("17:00-09:00", time.UTC)
	require.NoError(t, err)

	members := []domain.Supervisor{
		{ID: "a", Availability: day},
		{ID: "b", Availability: night},
	}
	noon := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	for level := 1; level <= 4; level++ {
		sup, ok := Resolve(domain.HelpRequest{}, level, domain.Team{Members: members, At: noon})
		require.True(t, ok)
		assert.Equal(t, "a", sup.ID)
	}

	midnightTeam := domain.Team{Members: []domain.Supervisor{{ID: "a", Availability: day}}, At: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, ok := Resolve(domain.HelpRequest{}, 1, midnightTeam)
	assert.False(t, ok, "nobody available degrades to none")
}

func TestResolveNeverHandsBackWhenOthersAreOffShift(t *testing.T) {
	day, err := domain.ParseAvailability("09:00-17:00", time.UTC)
	require.NoError(t, err)
	members := []domain.Supervisor{
		{ID: "a"},
		{ID: "b", Availability: day},
	}
	_, ok := Resolve(withAssignee("a"), 2, domain.Team{Members: members, At: time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC)})
	assert.False(t, ok)

	sup, ok := Resolve(withAssignee("a"), 2, domain.Team{Members: members, At: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)})
	require.True(t, ok)
	assert.Equal(t, "b", sup.ID)
}
