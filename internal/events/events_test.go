package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherRunsAllHandlers(t *testing.T) {
	d := NewInMemoryDispatcher()
	var calls []string
	d.Subscribe(EventRequestEscalated, func(context.Context, Event) error {
		calls = append(calls, "first")
		return errors.New("first failed")
	})
	d.Subscribe(EventRequestEscalated, func(context.Context, Event) error {
		calls = append(calls, "second")
		return nil
	})
	d.Subscribe(EventRequestCreated, func(context.Context, Event) error {
		calls = append(calls, "other")
		return nil
	})

	err := d.Publish(context.Background(), New(EventRequestEscalated, 1, SystemActor, time.Now(), nil))
	assert.ErrorContains(t, err, "first failed")
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestDispatcherSubscribeAllAndPanics(t *testing.T) {
	d := NewInMemoryDispatcher()
	seen := map[EventType]int{}
	d.SubscribeAll(func(_ context.Context, e Event) error {
		seen[e.Type]++
		return nil
	})
	d.Subscribe(EventRequestClaimed, func(context.Context, Event) error {
		panic("boom")
	})

	for _, et := range AllEventTypes {
		err := d.Publish(context.Background(), New(et, 2, SystemActor, time.Now(), nil))
		if et == EventRequestClaimed {
			assert.ErrorContains(t, err, "handler panic: boom")
			continue
		}
		assert.NoError(t, err)
	}
	for _, et := range AllEventTypes {
		assert.Equal(t, 1, seen[et], et)
	}

	assert.Error(t, d.Publish(context.Background(), Event{RequestID: 3}))
}

type fakeWriter struct {
	msgs   []kafka.Message
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestKafkaSinkKeysByRequest(t *testing.T) {
	w := &fakeWriter{}
	sink := NewKafkaSinkWithWriter(w, "help-request-events")
	require.True(t, sink.Enabled())

	evt := New(EventRequestUnresolved, 17, SystemActor, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), RequestClosedPayload{Resolution: "Unresolved: timeout"})
	require.NoError(t, sink.Handle(context.Background(), evt))
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "17", string(w.msgs[0].Key))

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &decoded))
	assert.Equal(t, "help_request_unresolved", decoded["type"])

	require.NoError(t, sink.Close())
	assert.True(t, w.closed)
}

func TestKafkaSinkDisabledWithoutBrokers(t *testing.T) {
	sink := NewKafkaSink(nil, "topic")
	assert.False(t, sink.Enabled())
	assert.NoError(t, sink.Handle(context.Background(), Event{}))
	assert.NoError(t, sink.Close())
}
