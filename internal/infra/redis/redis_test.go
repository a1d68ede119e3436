package redis

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/HR-AR/Project-Conductor-sub000/internal/core/domain"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	url := os.Getenv("CONDUCTOR_TEST_REDIS_URL")
	if url == "" {
		t.Skip("CONDUCTOR_TEST_REDIS_URL not set")
	}
	c, err := NewClient(context.Background(), Config{URL: url})
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	t.Cleanup(func() {
		c.rdb.Del(context.Background(), checkpointIndexKey)
		_ = c.Close()
	})
	return c
}

func TestCheckpointMirror_SaveLoadDelete(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	m := NewCheckpointMirror(c, time.Minute)

	base := time.Now()
	for i, id := range []string{"cp-1", "cp-2", "cp-3"} {
		cp := &domain.Checkpoint{
			ID:              id,
			Timestamp:       base.Add(time.Duration(i) * time.Second),
			SerializedState: json.RawMessage(`{"n":1}`),
		}
		if err := m.Save(ctx, cp); err != nil {
			t.Fatalf("Save(%s) error = %v", id, err)
		}
		t.Cleanup(func() { _ = m.Delete(ctx, id) })
	}

	got, err := m.LoadRecent(ctx, 2)
	if err != nil {
		t.Fatalf("LoadRecent() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "cp-2" || got[1].ID != "cp-3" {
		t.Fatalf("LoadRecent() = %v, want [cp-2 cp-3]", ids(got))
	}

	if err := m.Delete(ctx, "cp-3"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ = m.LoadRecent(ctx, 5)
	if len(got) != 2 || got[1].ID != "cp-2" {
		t.Errorf("after delete LoadRecent() = %v, want [cp-1 cp-2]", ids(got))
	}
}

func TestEventPublisher_Publish(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()

	sub := c.rdb.Subscribe(ctx, "conductor:test-events")
	defer sub.Close()
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	p := NewEventPublisher(c, "conductor:test-events")
	ev := &domain.Event{Type: domain.EventTaskStarted, TaskID: "t1", Timestamp: time.Now()}
	if err := p.Emit(ctx, ev); err != nil {
		t.Fatalf("Emit() error = %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got domain.Event
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if got.TaskID != "t1" || got.Type != domain.EventTaskStarted {
			t.Errorf("got %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}

func ids(cps []*domain.Checkpoint) []string {
	out := make([]string, len(cps))
	for i, cp := range cps {
		out[i] = cp.ID
	}
	return out
}
