package realtime

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func collect(t *testing.T, hub *Hub, f Filter) (*Subscription, func() []Event) {
	t.Helper()
	var mu sync.Mutex
	var got []Event
	sub := hub.Subscribe(f, func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
	})
	return sub, func() []Event {
		mu.Lock()
		defer mu.Unlock()
		return append([]Event(nil), got...)
	}
}

func TestFilterMatch(t *testing.T) {
	ev := Event{Table: TableInvitations, Type: EventInsert, Record: map[string]any{"user_id": "u1"}}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"table only", Filter{Table: TableInvitations}, true},
		{"other table", Filter{Table: TableJoinRequests}, false},
		{"wildcard event", Filter{Table: TableInvitations, Event: EventAll}, true},
		{"other event", Filter{Table: TableInvitations, Event: EventDelete}, false},
		{"column equal", Filter{Table: TableInvitations, Column: "user_id", Value: "u1"}, true},
		{"column differs", Filter{Table: TableInvitations, Column: "user_id", Value: "u2"}, false},
		{"column missing", Filter{Table: TableInvitations, Column: "owner_id", Value: "u1"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Match(ev))
		})
	}
}

func TestHubDeliversMatchingEvents(t *testing.T) {
	hub := NewHub(8, zap.NewNop())

	sub, events := collect(t, hub, Filter{Table: TableInvitations, Event: EventInsert, Column: "user_id", Value: "u1"})
	defer sub.Unsubscribe()

	hub.Publish(Event{Table: TableInvitations, Type: EventInsert, Record: map[string]any{"user_id": "u2"}})
	hub.Publish(Event{Table: TableJoinRequests, Type: EventInsert, Record: map[string]any{"user_id": "u1"}})
	hub.Publish(Event{Table: TableInvitations, Type: EventInsert, Record: map[string]any{"user_id": "u1", "id": "inv"}})

	require.Eventually(t, func() bool { return len(events()) == 1 }, time.Second, 5*time.Millisecond)
	got := events()[0]
	assert.Equal(t, "inv", got.Record["id"])
	assert.False(t, got.OccurredAt.IsZero())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	hub := NewHub(8, nil)

	sub, events := collect(t, hub, Filter{Table: TableMembers})
	require.Equal(t, 1, hub.Len())

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, 0, hub.Len())

	hub.Publish(Event{Table: TableMembers, Type: EventInsert})
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, events())
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	hub := NewHub(1, zap.NewNop())

	release := make(chan struct{})
	sub := hub.Subscribe(Filter{}, func(Event) { <-release })
	defer sub.Unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			hub.Publish(Event{Table: TableMembers, Type: EventInsert})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on slow subscriber")
	}
	close(release)

	assert.Greater(t, sub.Dropped(), uint64(0))
}
