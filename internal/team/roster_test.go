package team

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

const rosterYAML = `
timezone: UTC
supervisors:
  - id: sup-b
    name: Bea
    role: lead
    email: bea@example.com
    available: "09:00-17:00"
  - id: sup-a
    name: Abe
    phone: "+15550100"
`

func TestParseRoster(t *testing.T) {
	members, err := Parse([]byte(rosterYAML), nil)
	require.NoError(t, err)
	require.Len(t, members, 2)

	assert.Equal(t, domain.SupervisorRoleLead, members[0].Role)
	assert.Equal(t, domain.SupervisorRoleAgent, members[1].Role)
	require.NotNil(t, members[0].Availability)
	assert.Equal(t, "09:00-17:00", members[0].Availability.String())
	assert.Nil(t, members[1].Availability)
}

func TestParseRosterRejectsBadEntries(t *testing.T) {
	cases := map[string]string{
		"missing id":   "supervisors:\n  - name: nobody\n",
		"duplicate":    "supervisors:\n  - id: a\n  - id: a\n",
		"unknown role": "supervisors:\n  - id: a\n    role: boss\n",
		"bad window":   "supervisors:\n  - id: a\n    available: soon\n",
		"bad timezone": "timezone: Mars/Olympus\nsupervisors: []\n",
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(raw), time.UTC)
			assert.Error(t, err)
		})
	}
}

func TestLoadFileSnapshotAndLookup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "team.yaml")
	require.NoError(t, os.WriteFile(path, []byte(rosterYAML), 0o600))

	roster, err := LoadFile(path, time.UTC)
	require.NoError(t, err)
	assert.Equal(t, 2, roster.Size())

	at := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	snap, err := roster.Snapshot(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, at, snap.At)
	assert.Len(t, snap.Members, 2)

	sup, err := roster.Lookup(context.Background(), "sup-a")
	require.NoError(t, err)
	assert.Equal(t, "Abe", sup.Name)

	_, err = roster.Lookup(context.Background(), "ghost")
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotFound))

	require.NoError(t, os.WriteFile(path, []byte("supervisors:\n  - id: solo\n"), 0o600))
	require.NoError(t, roster.Reload())
	assert.Equal(t, 1, roster.Size())
}

func TestLoadFileMissing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), time.UTC)
	assert.Error(t, err)
}

func TestStaticRosterSnapshotIsACopy(t *testing.T) {
	roster := NewStaticRoster(domain.Supervisor{ID: "a"}, domain.Supervisor{ID: "b"})
	snap, err := roster.Snapshot(context.Background(), time.Time{})
	require.NoError(t, err)
	snap.Members[0].ID = "mutated"

	again, err := roster.Snapshot(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, "a", again.Members[0].ID)
}
