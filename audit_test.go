package ledgerAuth

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestAuditEventsCarryNoSecrets(t *testing.T) {
	var buf bytes.Buffer
	c, fake := newTestClient(t, func(b *Builder) { b.WithAuditSink(NewJSONWriterSink(&buf)) })
	addBob(fake)
	ctx := WithRequestID(context.Background(), "req-42")

	flow := c.Login()
	if _, err := flow.Submit(ctx, bobEmail, bobPassword); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	code := fake.LoginCode(bobEmail)
	if _, err := flow.Verify(ctx, "000000"); err == nil {
		t.Fatal("expected wrong code to fail")
	}
	res, err := flow.Verify(ctx, code)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	out := buf.String()
	for _, secret := range []string{bobPassword, code, res.Session.Token} {
		if strings.Contains(out, secret) {
			t.Fatalf("audit output leaked a secret: %q", secret)
		}
	}

	var types []string
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		var ev AuditEvent
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			t.Fatalf("bad audit line %q: %v", line, err)
		}
		if ev.RequestID != "req-42" {
			t.Fatalf("expected request id on every event, got %+v", ev)
		}
		types = append(types, ev.EventType)
	}
	want := []string{EventLoginSubmit, EventLoginVerify, EventLoginVerify, EventLogout}
	if strings.Join(types, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected events %v", types)
	}
}

func TestAuditChannelSinkReceivesFailures(t *testing.T) {
	sink := NewChannelSink(16)
	c, _ := newTestClient(t, func(b *Builder) { b.WithAuditSink(sink) })

	_, _ = c.Login().Submit(context.Background(), "nope", "pw")
	_ = c.Close()

	select {
	case ev := <-sink.Events():
		if ev.EventType != EventLoginSubmit || ev.Success || ev.Error == "" {
			t.Fatalf("unexpected event %+v", ev)
		}
	default:
		t.Fatal("expected an audit event")
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	if RequestIDFromContext(context.Background()) != "" {
		t.Fatal("expected empty id")
	}
	if RequestIDFromContext(WithRequestID(context.Background(), "abc")) != "abc" {
		t.Fatal("expected id to round-trip")
	}
}
