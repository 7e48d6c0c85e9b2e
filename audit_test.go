package authcore

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"
)

func drainEvent(t *testing.T, sink *ChannelSink) AuditEvent {
	t.Helper()
	select {
	case event := <-sink.Events():
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit event")
		return AuditEvent{}
	}
}

func TestAuditEventsReachSink(t *testing.T) {
	sink := NewChannelSink(16)

	engine, err := New().
		WithConfig(testConfig()).
		WithUserStore(newMemoryUserStore()).
		WithRefreshTokenStore(newMemoryRefreshStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	ctx := WithClientIP(context.Background(), "198.51.100.7")
	result, err := engine.Register(ctx, RegisterInput{
		Email:    "a@x.com",
		Password: testPassword,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	event := drainEvent(t, sink)
	if event.EventType != "account_created" {
		t.Fatalf("expected account_created, got %q", event.EventType)
	}
	if !event.Success {
		t.Fatal("expected success event")
	}
	if event.UserID != result.UserID {
		t.Fatalf("expected user %s, got %s", result.UserID, event.UserID)
	}
	if event.IP != "198.51.100.7" {
		t.Fatalf("expected client IP on event, got %q", event.IP)
	}
	if event.Timestamp.IsZero() {
		t.Fatal("expected timestamp on event")
	}
}

func TestAuditLoginFailureEvent(t *testing.T) {
	sink := NewChannelSink(16)

	engine, err := New().
		WithConfig(testConfig()).
		WithUserStore(newMemoryUserStore()).
		WithRefreshTokenStore(newMemoryRefreshStore()).
		WithAuditSink(sink).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer engine.Close()

	_, _ = engine.Login(context.Background(), LoginInput{
		Email:    "nobody@x.com",
		Password: testPassword,
	})

	event := drainEvent(t, sink)
	if event.EventType != "login_failure" {
		t.Fatalf("expected login_failure, got %q", event.EventType)
	}
	if event.Success {
		t.Fatal("expected failure event")
	}
	if event.UserID != "" {
		t.Fatalf("expected no user ID for unknown account, got %q", event.UserID)
	}
}

func TestAuditDispatcherDrainsOnClose(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 64, DropIfFull: true}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success", Success: true})
	}
	d.Close()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 10 {
		t.Fatalf("expected 10 events flushed, got %d", len(lines))
	}
	var event AuditEvent
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("expected JSON lines, got %v", err)
	}
	if event.EventType != "login_success" {
		t.Fatalf("unexpected event type %q", event.EventType)
	}
}

type blockingSink struct {
	release chan struct{}
}

func (s *blockingSink) Emit(context.Context, AuditEvent) {
	<-s.release
}

func TestAuditDispatcherDropsWhenFull(t *testing.T) {
	sink := &blockingSink{release: make(chan struct{})}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	// The worker wedges on the first delivery; the single-slot buffer fills
	// and everything after that is dropped rather than blocking the caller.
	for i := 0; i < 50; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped events under backpressure")
	}

	close(sink.release)
	d.Close()
}

// recordingSink captures delivered events. An optional gate wedges Emit
// until released, and entered reports each delivery attempt, so tests can
// force backpressure deterministically.
type recordingSink struct {
	entered chan struct{}
	gate    chan struct{}
	mu      sync.Mutex
	events  []AuditEvent
}

func (s *recordingSink) Emit(_ context.Context, event AuditEvent) {
	if s.entered != nil {
		select {
		case s.entered <- struct{}{}:
		default:
		}
	}
	if s.gate != nil {
		<-s.gate
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
}

func (s *recordingSink) all() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.events...)
}

func TestAuditDispatcherReportsShedEvents(t *testing.T) {
	gate := make(chan struct{})
	sink := &recordingSink{gate: gate, entered: make(chan struct{}, 1)}

	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	// The worker now holds the first event, wedged on the gate.
	<-sink.entered

	// One event fills the single-slot queue, the remaining eight are shed.
	for i := 0; i < 9; i++ {
		d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
	}

	close(gate)
	d.Close()

	events := sink.all()
	if len(events) != 3 {
		t.Fatalf("expected 2 delivered events plus the shed report, got %d", len(events))
	}
	last := events[len(events)-1]
	if last.EventType != auditEventBacklogDropped {
		t.Fatalf("expected trailing %s event, got %q", auditEventBacklogDropped, last.EventType)
	}
	if last.Metadata["count"] != "8" {
		t.Fatalf("expected shed count 8, got %q", last.Metadata["count"])
	}
	if last.Timestamp.IsZero() {
		t.Fatal("expected timestamp on shed report")
	}
}

func TestAuditDisabledDispatcherIsNil(t *testing.T) {
	d := newAuditDispatcher(AuditConfig{Enabled: false}, nil)
	if d != nil {
		t.Fatal("expected nil dispatcher when audit disabled")
	}

	// Nil receivers are safe by contract.
	d.Emit(context.Background(), AuditEvent{})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops from nil dispatcher")
	}
}

func TestAuditEmitAfterClose(t *testing.T) {
	sink := NewChannelSink(4)
	d := newAuditDispatcher(AuditConfig{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)
	d.Close()

	// Must not panic or block.
	d.Emit(context.Background(), AuditEvent{EventType: "login_success"})
}
