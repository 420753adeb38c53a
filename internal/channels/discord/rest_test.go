package discord

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRestClient_CreateMessage(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/channels/C1/messages" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bot tok" {
			t.Errorf("auth = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRestClient(srv.URL, "tok")
	if err := r.createMessage(context.Background(), "C1", "hello", ""); err != nil {
		t.Fatal(err)
	}
	if gotBody["content"] != "hello" {
		t.Errorf("body = %v", gotBody)
	}
	if _, ok := gotBody["message_reference"]; ok {
		t.Error("unexpected message_reference without reply_to")
	}
}

func TestRestClient_ReplySuppressesMentions(t *testing.T) {
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRestClient(srv.URL, "tok")
	if err := r.createMessage(context.Background(), "C1", "hi", "m42"); err != nil {
		t.Fatal(err)
	}

	ref, _ := gotBody["message_reference"].(map[string]any)
	if ref["message_id"] != "m42" {
		t.Errorf("message_reference = %v", gotBody["message_reference"])
	}
	mentions, _ := gotBody["allowed_mentions"].(map[string]any)
	if mentions["replied_user"] != false {
		t.Errorf("allowed_mentions = %v", gotBody["allowed_mentions"])
	}
}

func TestRestClient_RateLimitRetry(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"retry_after":0.05}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r := newRestClient(srv.URL, "tok")
	start := time.Now()
	if err := r.createMessage(context.Background(), "C1", "hi", ""); err != nil {
		t.Fatalf("send failed after retries: %v", err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if elapsed := time.Since(start); elapsed < 100*time.Millisecond {
		t.Errorf("retry_after not honored, elapsed %v", elapsed)
	}
}

func TestRestClient_RateLimitExhausted(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"retry_after":0.01}`))
	}))
	defer srv.Close()

	r := newRestClient(srv.URL, "tok")
	if err := r.createMessage(context.Background(), "C1", "hi", ""); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestRestClient_OtherErrorsAreNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := newRestClient(srv.URL, "tok")
	if err := r.createMessage(context.Background(), "C1", "hi", ""); err == nil {
		t.Fatal("expected error")
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1", got)
	}
}

func TestParseRetryAfter(t *testing.T) {
	if got := parseRetryAfter([]byte(`{"retry_after":1.5}`)); got != 1500*time.Millisecond {
		t.Errorf("parseRetryAfter = %v", got)
	}
	// Unparseable bodies fall back to one second.
	if got := parseRetryAfter([]byte(`nope`)); got != time.Second {
		t.Errorf("fallback = %v", got)
	}
}
