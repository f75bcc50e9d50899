package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"area/database"
)

func TestGithubPayloadAccount(t *testing.T) {
	payload := json.RawMessage(`{"repository":{"name":"area","owner":{"login":"alice"}}}`)
	account, err := GithubPayloadAccount(payload)
	if err != nil {
		t.Fatalf("GithubPayloadAccount: %v", err)
	}
	if account != "alice" {
		t.Fatalf("got %q", account)
	}

	if _, err := GithubPayloadAccount(json.RawMessage(`{}`)); !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}

func TestGithubCheckTrigger(t *testing.T) {
	h := &GithubHandler{}
	connection := &database.UserService{AccessToken: "token"}

	cases := []struct {
		name    string
		action  string
		payload string
		fired   bool
	}{
		{"issue opened", ActionIssueOpened, `{"action":"opened","issue":{"number":1}}`, true},
		{"issue closed", ActionIssueOpened, `{"action":"closed","issue":{"number":1}}`, false},
		{"pr opened", ActionPullRequestOpened, `{"action":"opened","pull_request":{"number":2}}`, true},
		{"pr opened is not an issue", ActionIssueOpened, `{"action":"opened","pull_request":{"number":2}}`, false},
		{"push", ActionPush, `{"ref":"refs/heads/main"}`, true},
		{"push without ref", ActionPush, `{}`, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fired, err := h.CheckTrigger(context.Background(), tc.action, nil, connection, json.RawMessage(tc.payload))
			if err != nil {
				t.Fatalf("CheckTrigger: %v", err)
			}
			if fired != tc.fired {
				t.Fatalf("fired = %v, want %v", fired, tc.fired)
			}
		})
	}
}

func TestGithubCheckTriggerUnknownAction(t *testing.T) {
	h := &GithubHandler{}
	_, err := h.CheckTrigger(context.Background(), "repo_starred", nil, nil, json.RawMessage(`{}`))
	if !errors.Is(err, ErrCapabilityNotSupported) {
		t.Fatalf("expected CapabilityNotSupported, got %v", err)
	}
}

func TestGithubCreateIssue(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"number":7}`))
	}))
	defer ts.Close()

	h := &GithubHandler{BaseURL: ts.URL}
	connection := &database.UserService{AccessToken: "gh-token"}
	params := map[string]string{"owner": "alice", "repo": "area", "title": "it broke", "body": "details"}

	if err := h.ExecuteReaction(context.Background(), ReactionCreateIssue, params, connection); err != nil {
		t.Fatalf("ExecuteReaction: %v", err)
	}
	if gotPath != "/repos/alice/area/issues" {
		t.Fatalf("posted to %q", gotPath)
	}
	if gotAuth != "Bearer gh-token" {
		t.Fatalf("authorization %q", gotAuth)
	}
	if gotBody["title"] != "it broke" || gotBody["body"] != "details" {
		t.Fatalf("posted body %v", gotBody)
	}
}

func TestGithubCreateIssueErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrAuthExpired},
		{http.StatusUnprocessableEntity, ErrInvalidParameters},
		{http.StatusBadGateway, ErrUpstreamUnavailable},
	}

	for _, tc := range cases {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "nope", tc.status)
		}))

		h := &GithubHandler{BaseURL: ts.URL}
		connection := &database.UserService{AccessToken: "gh-token"}
		params := map[string]string{"owner": "alice", "repo": "area", "title": "it broke"}

		err := h.ExecuteReaction(context.Background(), ReactionCreateIssue, params, connection)
		if !errors.Is(err, tc.want) {
			t.Errorf("status %d mapped to %v, want %v", tc.status, err, tc.want)
		}
		ts.Close()
	}
}

func TestGithubCreateIssueMissingParams(t *testing.T) {
	h := &GithubHandler{BaseURL: "http://127.0.0.1:0"}
	err := h.ExecuteReaction(context.Background(), ReactionCreateIssue, map[string]string{"owner": "alice"}, &database.UserService{})
	if !errors.Is(err, ErrInvalidParameters) {
		t.Fatalf("expected InvalidParameters, got %v", err)
	}
}
