package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMissionCompleted_DeliversEvent(t *testing.T) {
	var got Event

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Fatalf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("content-type = %q, want application/json", ct)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.MissionCompleted(ctx, 42, "first-steps"); err != nil {
		t.Fatalf("MissionCompleted error: %v", err)
	}

	if got.UserID != 42 || got.Kind != KindMissionCompleted || got.MissionID != "first-steps" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestCrewGreeting_DeliversEvent(t *testing.T) {
	var got Event

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Fatalf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.CrewGreeting(ctx, 7, "night-owls"); err != nil {
		t.Fatalf("CrewGreeting error: %v", err)
	}

	if got.Kind != KindCrewGreeting || got.Crew != "night-owls" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestSend_NoURLIsNoop(t *testing.T) {
	client := NewClient("")

	if err := client.MissionCompleted(context.Background(), 1, "first-steps"); err != nil {
		t.Fatalf("expected noop without url, got %v", err)
	}
}

func TestSend_ErrorStatus(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer ts.Close()

	client := NewClient(ts.URL)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if err := client.MissionCompleted(ctx, 1, "first-steps"); err == nil {
		t.Fatalf("expected error for non-2xx status")
	}
}
