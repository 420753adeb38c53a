package agent

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCommandRunner_EchoesReply(t *testing.T) {
	r, err := NewCommandRunner("cat", nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	got, err := r.ProcessDirect(context.Background(), "hello agent", "discord:C1", "discord", "C1")
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello agent" {
		t.Errorf("reply = %q", got)
	}
}

func TestCommandRunner_FailureSurfacesError(t *testing.T) {
	r, err := NewCommandRunner("false", nil, time.Second)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := r.ProcessDirect(context.Background(), "x", "k", "c", "id"); err == nil {
		t.Fatal("expected error from failing command")
	}
}

func TestCommandRunner_Timeout(t *testing.T) {
	r, err := NewCommandRunner("sleep", []string{"5"}, 50*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}

	_, err = r.ProcessDirect(context.Background(), "x", "k", "c", "id")
	if err == nil || !strings.Contains(err.Error(), "timed out") {
		t.Fatalf("err = %v", err)
	}
}

func TestNewCommandRunner_RequiresCommand(t *testing.T) {
	if _, err := NewCommandRunner("", nil, 0); err == nil {
		t.Fatal("empty command accepted")
	}
}
