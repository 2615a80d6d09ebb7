// internal/trigger/scheduled_test.go
package trigger

import (
	"context"
	"testing"
	"time"
)

func TestScheduledTrigger(t *testing.T) {
	// Use a cron that fires every second for testing
	trigger, err := NewScheduled("refresh", Config{
		Type:           "scheduled",
		CronExpression: "* * * * * *", // Every second (with seconds field)
	})
	if err != nil {
		t.Fatalf("NewScheduled failed: %v", err)
	}

	events := make(chan Event, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := trigger.Start(ctx, events); err != nil && err != context.Canceled {
			t.Errorf("Start failed: %v", err)
		}
	}()

	// Wait for at least one event
	select {
	case event := <-events:
		if event.Source != "refresh" {
			t.Errorf("expected source refresh, got %s", event.Source)
		}
		if event.Type != TypeScheduled {
			t.Errorf("expected event type scheduled, got %s", event.Type)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for scheduled event")
	}

	trigger.Stop()
}

func TestScheduledTrigger_Interval(t *testing.T) {
	trigger, err := NewScheduled("refresh", Config{RunEvery: time.Hour})
	if err != nil {
		t.Fatalf("NewScheduled failed: %v", err)
	}

	events := make(chan Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go trigger.Start(ctx, events)

	deadline := time.Now().Add(2 * time.Second)
	for trigger.Next().IsZero() && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	next := trigger.Next()
	if d := time.Until(next); d < 59*time.Minute || d > time.Hour {
		t.Errorf("next run in %v, want about an hour", d)
	}
	trigger.Stop()
}

func TestScheduledTrigger_Invalid(t *testing.T) {
	if _, err := NewScheduled("bad", Config{CronExpression: "not a cron"}); err == nil {
		t.Error("expected error for invalid expression")
	}
	if _, err := NewScheduled("empty", Config{}); err == nil {
		t.Error("expected error without schedule")
	}
}

func TestManualTrigger(t *testing.T) {
	m := NewManual("mcp")
	events := make(chan Event, 1)

	if !m.Fire(events) {
		t.Fatal("first Fire should be delivered")
	}
	if m.Fire(events) {
		t.Error("Fire on a full channel should report false")
	}
	if ev := <-events; ev.Source != "mcp" || ev.Type != TypeManual {
		t.Errorf("unexpected event %+v", ev)
	}
}
