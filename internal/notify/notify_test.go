package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestNotifyDelivers(t *testing.T) {
	var received Payload
	var auth, contentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		contentType = r.Header.Get("Content-Type")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{CallbackURL: srv.URL, Token: "secret-token"})

	err := n.Notify(context.Background(), Payload{
		UserID:        "u1",
		VideoID:       "v1",
		ClipURL:       "https://store/clips/final/abc.mp4",
		PrivacyStatus: "public",
	})
	if err != nil {
		t.Fatalf("Notify() error: %v", err)
	}

	if auth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", auth)
	}
	if contentType != "application/json" {
		t.Errorf("Content-Type = %q", contentType)
	}
	if received.UserID != "u1" || received.VideoID != "v1" {
		t.Errorf("Payload = %+v", received)
	}
	if received.ClipURL != "https://store/clips/final/abc.mp4" {
		t.Errorf("ClipURL = %q", received.ClipURL)
	}
	if received.PrivacyStatus != "public" {
		t.Errorf("PrivacyStatus = %q", received.PrivacyStatus)
	}
}

func TestNotifyNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	n := New(Config{CallbackURL: srv.URL})

	err := n.Notify(context.Background(), Payload{})
	if err == nil {
		t.Fatal("Expected error for 403 response")
	}
	if !strings.Contains(err.Error(), "403") {
		t.Errorf("Expected status in error, got: %v", err)
	}
}

func TestNotifySingleAttempt(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := New(Config{CallbackURL: srv.URL})
	_ = n.Notify(context.Background(), Payload{})

	if attempts != 1 {
		t.Errorf("Expected exactly 1 delivery attempt, got %d", attempts)
	}
}

func TestNotifyDisabled(t *testing.T) {
	n := New(Config{})

	if n.Enabled() {
		t.Error("Expected notifier to be disabled without a URL")
	}
	if err := n.Notify(context.Background(), Payload{}); err != nil {
		t.Errorf("Disabled Notify() should be a no-op, got: %v", err)
	}
}

func TestNotifyUnreachable(t *testing.T) {
	n := New(Config{CallbackURL: "http://127.0.0.1:1/callback"})

	if err := n.Notify(context.Background(), Payload{}); err == nil {
		t.Error("Expected error for unreachable callback")
	}
}

func TestNotifyNoTokenOmitsHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
	}))
	defer srv.Close()

	n := New(Config{CallbackURL: srv.URL})
	if err := n.Notify(context.Background(), Payload{}); err != nil {
		t.Fatalf("Notify() error: %v", err)
	}
	if auth != "" {
		t.Errorf("Expected no Authorization header, got %q", auth)
	}
}
