package stores

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type recordingInvalidator struct {
	mu    sync.Mutex
	calls []string
	all   int
	ch    chan struct{}
}

func newRecordingInvalidator() *recordingInvalidator {
	return &recordingInvalidator{ch: make(chan struct{}, 16)}
}

func (r *recordingInvalidator) Invalidate(subjectID, groupID string) {
	r.mu.Lock()
	r.calls = append(r.calls, subjectID+"/"+groupID)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingInvalidator) InvalidateAll() {
	r.mu.Lock()
	r.all++
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recordingInvalidator) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for invalidation")
	}
}

func TestRedisBroadcasterFanOut(t *testing.T) {
	mr := miniredis.RunT(t)

	pubClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	subClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { pubClient.Close(); subClient.Close() })

	publisher := NewRedisBroadcaster(pubClient, "", nil)
	subscriber := NewRedisBroadcaster(subClient, "", nil)

	inv := newRecordingInvalidator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		subscriber.Subscribe(ctx, inv)
	}()

	// give the subscription a moment to register
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := pubClient.Publish(ctx, DefaultInvalidationChannel, `{"origin":"probe"}`).Result()
		if err != nil {
			t.Fatalf("probe publish: %v", err)
		}
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	// the probe (foreign origin, no subject) lands as one invalidation
	inv.wait(t)

	if err := publisher.Publish(ctx, "user-1", "group-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	inv.wait(t)

	if err := publisher.PublishAll(ctx); err != nil {
		t.Fatalf("publish all: %v", err)
	}
	inv.wait(t)

	inv.mu.Lock()
	calls, all := append([]string(nil), inv.calls...), inv.all
	inv.mu.Unlock()
	found := false
	for _, c := range calls {
		if c == "user-1/group-1" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected user-1/group-1 invalidation, got %v", calls)
	}
	if all != 1 {
		t.Fatalf("expected 1 full flush, got %d", all)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatalf("subscribe loop did not stop on cancel")
	}
}

func TestRedisBroadcasterSkipsOwnMessages(t *testing.T) {
	mr := miniredis.RunT(t)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	b := NewRedisBroadcaster(client, "perm:test", nil)
	inv := newRecordingInvalidator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go b.Subscribe(ctx, inv)

	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := client.Publish(ctx, "perm:test", `{"origin":"other","subject_id":"u","group_id":"g"}`).Result()
		if err != nil {
			t.Fatalf("publish: %v", err)
		}
		if n > 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("subscriber never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}
	inv.wait(t)

	// self-published messages are already applied locally and must be skipped
	if err := b.Publish(ctx, "user-1", "group-1"); err != nil {
		t.Fatalf("publish: %v", err)
	}
	// foreign message afterwards proves the loop is still alive
	if _, err := client.Publish(ctx, "perm:test", `{"origin":"other","subject_id":"u2","group_id":"g2"}`).Result(); err != nil {
		t.Fatalf("publish: %v", err)
	}
	inv.wait(t)

	inv.mu.Lock()
	defer inv.mu.Unlock()
	for _, c := range inv.calls {
		if c == "user-1/group-1" {
			t.Fatalf("own message must be skipped, got %v", inv.calls)
		}
	}
	if len(inv.calls) != 2 {
		t.Fatalf("expected exactly the 2 foreign invalidations, got %v", inv.calls)
	}
}
