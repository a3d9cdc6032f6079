package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/helpline/escalation-service/internal/domain"
	apperrors "github.com/helpline/escalation-service/pkg/util/errorutil"
)

func sampleRequest() domain.HelpRequest {
	now := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	return domain.HelpRequest{
		ID:              42,
		CustomerID:      "cust-1",
		CustomerName:    "Ada",
		Question:        "Do you open on Sundays?",
		Status:          domain.StatusTimeout,
		Priority:        domain.PriorityHigh,
		CreatedAt:       now,
		TimeoutAt:       now.Add(10 * time.Minute),
		EscalationLevel: 1,
	}
}

func sampleSupervisor() domain.Supervisor {
	return domain.Supervisor{ID: "sup-1", Name: "Grace", Role: domain.SupervisorRoleLead, Email: "grace@example.com"}
}

func TestMessageMentionsSupervisorAndQuestion(t *testing.T) {
	msg := Message(sampleRequest(), sampleSupervisor())
	assert.Contains(t, msg, "Hey Grace")
	assert.Contains(t, msg, "Do you open on Sundays?")
}

func TestWebhookNotifierPostsPayload(t *testing.T) {
	var got WebhookPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, time.Second)
	require.NotNil(t, n)
	require.NoError(t, n.Notify(context.Background(), sampleRequest(), sampleSupervisor()))

	assert.Equal(t, "help_request_escalated", got.EventType)
	assert.Equal(t, int64(42), got.HelpRequest.ID)
	assert.Equal(t, "sup-1", got.AssignedSupervisor.ID)
	assert.NotEmpty(t, got.Message)
}

func TestWebhookNotifierReportsHTTPFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, time.Second).Notify(context.Background(), sampleRequest(), sampleSupervisor())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotification))
	assert.GreaterOrEqual(t, calls.Load(), int32(1))
}

func TestWebhookNotifierDisabledWithoutURL(t *testing.T) {
	assert.Nil(t, NewWebhookNotifier("", time.Second))
}

type fakeDialer struct {
	sent  []*gomail.Message
	err   error
	stall chan struct{}
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.stall != nil {
		<-d.stall
	}
	d.sent = append(d.sent, m...)
	return d.err
}

func TestEmailNotifier(t *testing.T) {
	dialer := &fakeDialer{}
	n := NewEmailNotifierWithDialer(dialer, "helpline@example.com")

	require.NoError(t, n.Notify(context.Background(), sampleRequest(), sampleSupervisor()))
	require.Len(t, dialer.sent, 1)
	assert.Equal(t, []string{"helpline@example.com"}, dialer.sent[0].GetHeader("From"))

	noEmail := sampleSupervisor()
	noEmail.Email = ""
	assert.ErrorIs(t, n.Notify(context.Background(), sampleRequest(), noEmail), ErrNotDeliverable)
	assert.Len(t, dialer.sent, 1)

	dialer.err = errors.New("smtp down")
	err := n.Notify(context.Background(), sampleRequest(), sampleSupervisor())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotification))
}

func TestEmailNotifierGivesUpOnStalledServer(t *testing.T) {
	dialer := &fakeDialer{stall: make(chan struct{})}
	t.Cleanup(func() { close(dialer.stall) })
	n := NewEmailNotifierWithDialer(dialer, "helpline@example.com")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	started := time.Now()
	err := n.Notify(ctx, sampleRequest(), sampleSupervisor())
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotification))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), time.Second)
}

func TestMultiNotifierSkippedChannels(t *testing.T) {
	noEmail := sampleSupervisor()
	noEmail.Email = ""
	email := NewEmailNotifierWithDialer(&fakeDialer{}, "helpline@example.com")

	err := NewMultiNotifier(email).Notify(context.Background(), sampleRequest(), noEmail)
	assert.ErrorIs(t, err, ErrNotDeliverable)

	err = NewMultiNotifier(NewLogNotifier(zap.NewNop()), email).Notify(context.Background(), sampleRequest(), noEmail)
	assert.NoError(t, err)
}

type failingNotifier struct{}

func (failingNotifier) Channel() string { return "broken" }
func (failingNotifier) Notify(context.Context, domain.HelpRequest, domain.Supervisor) error {
	return errors.New("boom")
}

func TestMultiNotifierJoinsFailures(t *testing.T) {
	m := NewMultiNotifier(NewLogNotifier(zap.NewNop()), nil, failingNotifier{})
	assert.Equal(t, "log+broken", m.Channel())

	err := m.Notify(context.Background(), sampleRequest(), sampleSupervisor())
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeNotification))
	assert.Contains(t, err.Error(), "boom")

	require.NoError(t, NewMultiNotifier(NewLogNotifier(zap.NewNop())).Notify(context.Background(), sampleRequest(), sampleSupervisor()))
}

func TestHistoryRingKeepsNewest(t *testing.T) {
	h := NewHistory(3)
	assert.Empty(t, h.Recent(10))
	for i := int64(1); i <= 5; i++ {
		h.Record(domain.NotificationRecord{RequestID: i})
	}
	recent := h.Recent(0)
	require.Len(t, recent, 3)
	assert.Equal(t, []int64{5, 4, 3}, []int64{recent[0].RequestID, recent[1].RequestID, recent[2].RequestID})
	assert.Len(t, h.Recent(2), 2)

	var nilHistory *History
	nilHistory.Record(domain.NotificationRecord{})
	assert.Nil(t, nilHistory.Recent(1))
}
