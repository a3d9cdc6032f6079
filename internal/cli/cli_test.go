package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/helpline/escalation-service/internal/domain"
	"github.com/helpline/escalation-service/internal/repository"
)

func useSQLiteStore(t *testing.T) {
	t.Helper()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "helpline.db"))
	t.Setenv("STORE_RUN_MIGRATIONS", "true")
	t.Setenv("REDIS_ADDR", "")
	t.Setenv("KAFKA_BROKERS", "")
	t.Setenv("TEAM_FILE", "../../configs/team.yaml")
	t.Setenv("KNOWLEDGE_FILE", "../../configs/knowledge.yaml")
	t.Setenv("LOG_LEVEL", "error")
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true
	cmd := NewRootCommand("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRootCommandListsSubcommands(t *testing.T) {
	cmd := NewRootCommand("1.2.3")
	names := make([]string, 0)
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "sweep", "stats", "hash-password"})
	assert.Equal(t, "1.2.3", cmd.Version)
}

func TestHashPasswordPrintsBcryptHash(t *testing.T) {
	t.Setenv("AUTH_BCRYPT_COST", "4")
	out, err := run(t, "hash-password", "s3cret")
	require.NoError(t, err)
	hash := strings.TrimSpace(out)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte("s3cret")))
}

func TestMigrateRejectsMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	_, err := run(t, "migrate", "up")
	assert.Error(t, err)
}

func TestMigrateSweepAndStatsAgainstSQLite(t *testing.T) {
	useSQLiteStore(t)

	out, err := run(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "sqlite schema is up to date")

	cfg, logger, err := loadEnvironment()
	require.NoError(t, err)
	rt, err := openStore(context.Background(), cfg, logger, false)
	require.NoError(t, err)
	expired := &domain.HelpRequest{
		CustomerID:   "cust-1",
		CustomerName: "Ada",
		Question:     "Can I reschedule?",
		Priority:     domain.PriorityUrgent,
		Status:       domain.StatusPending,
		CreatedAt:    time.Now().Add(-time.Hour),
		UpdatedAt:    time.Now().Add(-time.Hour),
		TimeoutAt:    time.Now().Add(-time.Minute),
	}
	require.NoError(t, rt.repo.Create(context.Background(), expired))
	rt.Close()

	out, err = run(t, "sweep")
	require.NoError(t, err)
	// the outcome depends on roster availability at wall-clock time
	assert.Contains(t, out, "examined 1 expired request(s)")

	out, err = run(t, "stats")
	require.NoError(t, err)
	assert.Contains(t, out, "Total requests: 1")
	assert.Contains(t, out, "Escalation success:")
}

func TestOpenStoreMemory(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	cfg, logger, err := loadEnvironment()
	require.NoError(t, err)
	rt, err := openStore(context.Background(), cfg, logger, false)
	require.NoError(t, err)
	defer rt.Close()
	var _ repository.HelpRequestRepository = rt.repo
	assert.NoError(t, rt.repo.Ping(context.Background()))
}
