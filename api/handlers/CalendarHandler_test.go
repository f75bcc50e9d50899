package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"area/database"
)

func calendarItem(created, updated time.Time, status string) map[string]string {
	return map[string]string{
		"created": created.UTC().Format(time.RFC3339),
		"updated": updated.UTC().Format(time.RFC3339),
		"status":  status,
	}
}

// calendarListServer fakes the events list endpoint, applying the updatedMin
// filter server-side the way the real API does.
func calendarListServer(t *testing.T, items []map[string]string) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		updatedMin, err := time.Parse(time.RFC3339, r.URL.Query().Get("updatedMin"))
		if err != nil {
			t.Errorf("bad updatedMin %q: %v", r.URL.Query().Get("updatedMin"), err)
		}
		filtered := []map[string]string{}
		for _, item := range items {
			updated, err := time.Parse(time.RFC3339, item["updated"])
			if err == nil && updated.After(updatedMin) {
				filtered = append(filtered, item)
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"items": filtered})
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestCalendarCheckTriggerWindow(t *testing.T) {
	now := time.Now().UTC()
	fresh := calendarItem(now.Add(-10*time.Second), now.Add(-10*time.Second), "confirmed")
	edited := calendarItem(now.Add(-10*time.Minute), now.Add(-5*time.Second), "confirmed")
	cancelled := calendarItem(now.Add(-10*time.Minute), now.Add(-5*time.Second), "cancelled")

	cases := []struct {
		name   string
		action string
		items  []map[string]string
		fired  bool
	}{
		{"recent creation fires added", ActionEventAdded, []map[string]string{fresh}, true},
		{"recent creation is not a modification", ActionEventModified, []map[string]string{fresh}, false},
		{"old event edited now fires modified", ActionEventModified, []map[string]string{edited}, true},
		{"old event edited now is not an addition", ActionEventAdded, []map[string]string{edited}, false},
		{"cancellation fires deleted", ActionEventDeleted, []map[string]string{cancelled}, true},
		{"cancellation is not an addition", ActionEventAdded, []map[string]string{cancelled}, false},
		{"empty calendar fires nothing", ActionEventAdded, nil, false},
	}

	connection := &database.UserService{AccessToken: "token"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := calendarListServer(t, tc.items)
			h := &CalendarHandler{BaseURL: ts.URL}
			fired, err := h.CheckTrigger(context.Background(), tc.action, nil, connection, nil)
			if err != nil {
				t.Fatalf("CheckTrigger: %v", err)
			}
			if fired != tc.fired {
				t.Fatalf("fired = %v, want %v", fired, tc.fired)
			}
		})
	}
}

func TestCalendarCheckTriggerWindowElapsed(t *testing.T) {
	// A redelivery for a change older than the recency window must not fire
	// again; the updatedMin filter excludes it. The window is the documented
	// dedup granularity.
	now := time.Now().UTC()
	stale := calendarItem(now.Add(-2*TriggerRecencyWindow), now.Add(-90*time.Second), "confirmed")
	ts := calendarListServer(t, []map[string]string{stale})

	h := &CalendarHandler{BaseURL: ts.URL}
	connection := &database.UserService{AccessToken: "token"}
	fired, err := h.CheckTrigger(context.Background(), ActionEventAdded, nil, connection, nil)
	if err != nil {
		t.Fatalf("CheckTrigger: %v", err)
	}
	if fired {
		t.Fatalf("change outside the window fired again")
	}
}

func TestCalendarCheckTriggerUnknownAction(t *testing.T) {
	h := &CalendarHandler{}
	_, err := h.CheckTrigger(context.Background(), "calendar_shared", nil, nil, nil)
	if !errors.Is(err, ErrCapabilityNotSupported) {
		t.Fatalf("expected CapabilityNotSupported, got %v", err)
	}
}

func TestCalendarCheckTriggerUpstreamErrors(t *testing.T) {
	cases := []struct {
		name   string
		status int
		want   error
	}{
		{"401 means expired auth", http.StatusUnauthorized, ErrAuthExpired},
		{"503 means upstream away", http.StatusServiceUnavailable, ErrUpstreamUnavailable},
	}

	connection := &database.UserService{AccessToken: "token"}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(`{"error":{"message":"nope"}}`))
			}))
			t.Cleanup(ts.Close)

			h := &CalendarHandler{BaseURL: ts.URL}
			_, err := h.CheckTrigger(context.Background(), ActionEventAdded, nil, connection, nil)
			if !errors.Is(err, tc.want) {
				t.Fatalf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestCalendarCreateEvent(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody map[string]interface{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Write([]byte(`{"id":"evt-1"}`))
	}))
	defer ts.Close()

	h := &CalendarHandler{BaseURL: ts.URL}
	connection := &database.UserService{AccessToken: "token"}
	params := map[string]string{"summary": "standup", "location": "room 1"}
	if err := h.ExecuteReaction(context.Background(), ReactionCreateEvent, params, connection); err != nil {
		t.Fatalf("ExecuteReaction: %v", err)
	}

	if gotMethod != http.MethodPost {
		t.Fatalf("method = %s", gotMethod)
	}
	if gotPath != "/calendars/primary/events" {
		t.Fatalf("path = %s", gotPath)
	}
	if gotBody["summary"] != "standup" || gotBody["location"] != "room 1" {
		t.Fatalf("body = %v", gotBody)
	}
}

func TestCalendarCreateEventMissingSummary(t *testing.T) {
	h := &CalendarHandler{}
	err := h.ExecuteReaction(context.Background(), ReactionCreateEvent, map[string]string{}, nil)
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}
