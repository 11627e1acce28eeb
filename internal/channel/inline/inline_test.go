package inline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/overtone-ai/overtone/internal/channel"
)

func testChannel() *Channel {
	return New(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestCreateAndCloseSession(t *testing.T) {
	c := testChannel()

	id, err := c.CreateSession(context.Background(), "client-1")
	if err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if id == "" {
		t.Fatal("CreateSession returned empty session ID")
	}
	if !c.SessionExists(id) {
		t.Error("session does not exist after creation")
	}
	if c.ActiveSessionCount() != 1 {
		t.Errorf("ActiveSessionCount = %d, want 1", c.ActiveSessionCount())
	}

	if err := c.CloseSession(id); err != nil {
		t.Errorf("CloseSession: %v", err)
	}
	if c.SessionExists(id) {
		t.Error("session still exists after close")
	}
	// Idempotent.
	if err := c.CloseSession(id); err != nil {
		t.Errorf("second CloseSession: %v", err)
	}
}

func TestNegotiateReturnsSyntheticAnswer(t *testing.T) {
	c := testChannel()
	id, _ := c.CreateSession(context.Background(), "client-1")

	answer, err := c.Negotiate(context.Background(), id, "v=0\r\nfake-offer")
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	for _, want := range []string{"v=0", "m=audio 0", "opus/48000/2", "a=mid:audio"} {
		if !strings.Contains(answer, want) {
			t.Errorf("answer missing %q:\n%s", want, answer)
		}
	}
}

func TestNegotiateUnknownSession(t *testing.T) {
	c := testChannel()
	if _, err := c.Negotiate(context.Background(), "nope", "offer"); !errors.Is(err, channel.ErrSessionNotFound) {
		t.Errorf("Negotiate error = %v, want ErrSessionNotFound", err)
	}
}

func TestCandidatesAreNoOps(t *testing.T) {
	c := testChannel()
	id, _ := c.CreateSession(context.Background(), "client-1")

	if err := c.AddRemoteCandidate(context.Background(), id, channel.Candidate{Candidate: "candidate:1"}); err != nil {
		t.Errorf("AddRemoteCandidate: %v", err)
	}
	// Unknown sessions are logged, not errors.
	if err := c.AddRemoteCandidate(context.Background(), "nope", channel.Candidate{}); err != nil {
		t.Errorf("AddRemoteCandidate for unknown session: %v", err)
	}
}

func TestAlwaysAvailable(t *testing.T) {
	c := testChannel()
	if !c.Available() {
		t.Error("inline channel reported unavailable")
	}
	if c.Name() != "inline" {
		t.Errorf("Name = %q, want inline", c.Name())
	}
}
