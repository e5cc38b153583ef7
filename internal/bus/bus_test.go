package bus

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"relaybot/internal/domain"
)

func testBusLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBus_PublishAndReceive(t *testing.T) {
	b := New(4, time.Second, testBusLogger())
	if !b.Publish(domain.ParsedEvent{ID: "Ev1"}) {
		t.Fatal("publish should succeed")
	}

	select {
	case ev := <-b.Subscribe():
		if ev.ID != "Ev1" {
			t.Fatalf("got %q", ev.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestBus_FullDropsAfterTimeout(t *testing.T) {
	b := New(1, 50*time.Millisecond, testBusLogger())
	if !b.Publish(domain.ParsedEvent{ID: "Ev1"}) {
		t.Fatal("first publish should succeed")
	}

	start := time.Now()
	if b.Publish(domain.ParsedEvent{ID: "Ev2"}) {
		t.Fatal("publish to full bus should fail after timeout")
	}
	if elapsed := time.Since(start); elapsed < 40*time.Millisecond {
		t.Fatalf("publish should wait for room, returned after %v", elapsed)
	}
	if b.Pending() != 1 {
		t.Fatalf("pending: got %d", b.Pending())
	}
}

func TestBus_FullDeliversWhenDrained(t *testing.T) {
	b := New(1, time.Second, testBusLogger())
	b.Publish(domain.ParsedEvent{ID: "Ev1"})

	go func() {
		time.Sleep(20 * time.Millisecond)
		<-b.Subscribe()
	}()

	if !b.Publish(domain.ParsedEvent{ID: "Ev2"}) {
		t.Fatal("publish should succeed once a slot frees up")
	}
}

func TestBus_CloseDrainsThenEnds(t *testing.T) {
	b := New(4, time.Second, testBusLogger())
	b.Publish(domain.ParsedEvent{ID: "Ev1"})
	b.Close()
	b.Close() // idempotent

	if b.Publish(domain.ParsedEvent{ID: "Ev2"}) {
		t.Fatal("publish after close should fail")
	}

	var got []string
	for ev := range b.Subscribe() {
		got = append(got, ev.ID)
	}
	if len(got) != 1 || got[0] != "Ev1" {
		t.Fatalf("expected queued event then close, got %v", got)
	}
}
