package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"area/api/dispatch"
	"area/api/handlers"
	"area/database"

	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	return database.SetupDatabase("sqlite", dsn, false)
}

// stubHandler is a scriptable EventHandler for the "pigeon" test service.
type stubHandler struct {
	fired         bool
	reactionCalls int
	stopCalls     int
	watch         *handlers.WatchChannel
}

func (s *stubHandler) ServiceType() string {
	return "pigeon"
}

func (s *stubHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	return s.fired, nil
}

func (s *stubHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	s.reactionCalls++
	return nil
}

func (s *stubHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*handlers.WatchChannel, error) {
	return s.watch, nil
}

func (s *stubHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	s.stopCalls++
	return nil
}

type stubScheduler struct {
	added   []uint
	removed []uint
}

func (s *stubScheduler) AddAreaTask(area *database.Area) error {
	s.added = append(s.added, area.ID)
	return nil
}

func (s *stubScheduler) RemoveAreaTask(areaID uint) {
	s.removed = append(s.removed, areaID)
}

func pigeonSpec(stub *stubHandler, polled bool) handlers.ServiceSpec {
	return handlers.ServiceSpec{
		Type:        "pigeon",
		DisplayName: "Pigeon",
		Actions: []handlers.ActionSpec{{
			Name:      "coo_heard",
			Params:    []handlers.ParamSpec{{Name: "loft"}},
			UsesWatch: !polled,
			Polled:    polled,
		}},
		Reactions: []handlers.ReactionSpec{{
			Name:   "send_coo",
			Params: []handlers.ParamSpec{{Name: "target", Required: true}},
		}},
		Handler: stub,
	}
}

type testBackend struct {
	mux   *http.ServeMux
	db    *gorm.DB
	stub  *stubHandler
	sched *stubScheduler
	token string
}

func newTestBackend(t *testing.T, polled bool) *testBackend {
	t.Helper()
	db := setupTestDB(t)
	stub := &stubHandler{
		fired: true,
		watch: &handlers.WatchChannel{ChannelID: "chan-e2e", ResourceID: "res-e2e"},
	}
	if polled {
		stub.watch = nil
	}

	registry := handlers.NewRegistry()
	registry.Register(pigeonSpec(stub, polled))

	orchestrator := dispatch.NewOrchestrator(db, registry, nil)
	sched := &stubScheduler{}
	mux := BackendRouting(db, registry, orchestrator, sched, "")

	user, err := database.RegisterUser(db, "tester", fmt.Sprintf("%s@example.com", strings.ReplaceAll(t.Name(), "/", "_")))
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}

	return &testBackend{mux: mux, db: db, stub: stub, sched: sched, token: user.ApiToken}
}

func (b *testBackend) request(t *testing.T, method string, path string, body any, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if authed {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}
	w := httptest.NewRecorder()
	b.mux.ServeHTTP(w, req)
	return w
}

func (b *testBackend) connectPigeon(t *testing.T) {
	t.Helper()
	w := b.request(t, http.MethodPost, "/api/v1/services/connect", map[string]string{
		"service_type": "pigeon",
		"access_token": "tok",
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("connect: %d %s", w.Code, w.Body.String())
	}
}

func (b *testBackend) createArea(t *testing.T) database.Area {
	t.Helper()
	w := b.request(t, http.MethodPost, "/api/v1/areas/create", map[string]any{
		"title":                 "coo mirror",
		"action_service_type":   "pigeon",
		"action_name":           "coo_heard",
		"reaction_service_type": "pigeon",
		"reaction_name":         "send_coo",
		"reaction_data":         map[string]string{"target": "roof"},
	}, true)
	if w.Code != http.StatusCreated {
		t.Fatalf("create area: %d %s", w.Code, w.Body.String())
	}
	var area database.Area
	if err := json.NewDecoder(w.Body).Decode(&area); err != nil {
		t.Fatalf("decode area: %v", err)
	}
	return area
}

func (b *testBackend) notify(t *testing.T, channelID string, resourceID string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/google", bytes.NewReader(nil))
	req.Header.Set("X-Goog-Channel-ID", channelID)
	req.Header.Set("X-Goog-Resource-ID", resourceID)
	req.Header.Set("X-Goog-Resource-State", "exists")
	w := httptest.NewRecorder()
	b.mux.ServeHTTP(w, req)
	return w
}

func TestPrivateApiRequiresAuth(t *testing.T) {
	b := newTestBackend(t, false)

	w := b.request(t, http.MethodGet, "/api/v1/areas/list", nil, false)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated request got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/areas/list", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	b.mux.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("bogus token got %d", w.Code)
	}
}

func TestAboutCatalogue(t *testing.T) {
	b := newTestBackend(t, false)

	w := b.request(t, http.MethodGet, "/about.json", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("about: %d", w.Code)
	}

	var about struct {
		Server struct {
			CurrentTime int64 `json:"current_time"`
			Services    []struct {
				Name      string `json:"name"`
				Actions   []any  `json:"actions"`
				Reactions []any  `json:"reactions"`
			} `json:"services"`
		} `json:"server"`
	}
	if err := json.NewDecoder(w.Body).Decode(&about); err != nil {
		t.Fatalf("decode about: %v", err)
	}
	if about.Server.CurrentTime == 0 {
		t.Fatalf("current_time missing")
	}
	if len(about.Server.Services) != 1 || about.Server.Services[0].Name != "pigeon" {
		t.Fatalf("services: %+v", about.Server.Services)
	}
	if len(about.Server.Services[0].Actions) != 1 || len(about.Server.Services[0].Reactions) != 1 {
		t.Fatalf("catalogue: %+v", about.Server.Services[0])
	}
}

func TestHealthEndpoint(t *testing.T) {
	b := newTestBackend(t, false)
	previous := ServerStatus
	defer func() { ServerStatus = previous }()

	ServerStatus = "starting"
	w := b.request(t, http.MethodGet, "/_health", nil, false)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("starting server reported %d", w.Code)
	}

	ServerStatus = "running"
	w = b.request(t, http.MethodGet, "/_health", nil, false)
	if w.Code != http.StatusOK {
		t.Fatalf("running server reported %d", w.Code)
	}
}

func TestCreateAreaRequiresConnection(t *testing.T) {
	b := newTestBackend(t, false)

	w := b.request(t, http.MethodPost, "/api/v1/areas/create", map[string]any{
		"title":                 "coo mirror",
		"action_service_type":   "pigeon",
		"action_name":           "coo_heard",
		"reaction_service_type": "pigeon",
		"reaction_name":         "send_coo",
		"reaction_data":         map[string]string{"target": "roof"},
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("create without connection got %d %s", w.Code, w.Body.String())
	}
}

func TestCreateAreaRejectsBadParams(t *testing.T) {
	b := newTestBackend(t, false)
	b.connectPigeon(t)

	w := b.request(t, http.MethodPost, "/api/v1/areas/create", map[string]any{
		"title":                 "coo mirror",
		"action_service_type":   "pigeon",
		"action_name":           "coo_heard",
		"reaction_service_type": "pigeon",
		"reaction_name":         "send_coo",
	}, true)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("missing required reaction param got %d", w.Code)
	}
}

func TestAreaLifecycle(t *testing.T) {
	b := newTestBackend(t, false)
	b.connectPigeon(t)

	area := b.createArea(t)
	if area.ChannelWatchID != "chan-e2e" || area.ResourceWatchID != "res-e2e" {
		t.Fatalf("watch not recorded: %q %q", area.ChannelWatchID, area.ResourceWatchID)
	}

	// A notification on the registered channel fires the reaction.
	w := b.notify(t, "chan-e2e", "res-e2e")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), dispatch.DetailFiredExecuted) {
		t.Fatalf("notify: %d %s", w.Code, w.Body.String())
	}
	if b.stub.reactionCalls != 1 {
		t.Fatalf("reaction calls: %d", b.stub.reactionCalls)
	}

	// Deactivation releases the channel; a late notification no longer
	// resolves to the area.
	w = b.request(t, http.MethodPatch, "/api/v1/areas/"+area.UUID, map[string]any{"is_active": false}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("deactivate: %d %s", w.Code, w.Body.String())
	}
	if b.stub.stopCalls != 1 {
		t.Fatalf("stop calls after deactivate: %d", b.stub.stopCalls)
	}
	w = b.notify(t, "chan-e2e", "res-e2e")
	if w.Code != http.StatusNotFound {
		t.Fatalf("notify after deactivate: %d %s", w.Code, w.Body.String())
	}
	if b.stub.reactionCalls != 1 {
		t.Fatalf("deactivated area executed a reaction")
	}

	// Reactivation re-subscribes.
	w = b.request(t, http.MethodPatch, "/api/v1/areas/"+area.UUID, map[string]any{"is_active": true}, true)
	if w.Code != http.StatusOK {
		t.Fatalf("reactivate: %d %s", w.Code, w.Body.String())
	}
	w = b.notify(t, "chan-e2e", "res-e2e")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), dispatch.DetailFiredExecuted) {
		t.Fatalf("notify after reactivate: %d %s", w.Code, w.Body.String())
	}

	// Deletion stops the channel and later notifications answer 404.
	w = b.request(t, http.MethodDelete, "/api/v1/areas/"+area.UUID, nil, true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if b.stub.stopCalls != 2 {
		t.Fatalf("stop calls after delete: %d", b.stub.stopCalls)
	}
	w = b.notify(t, "chan-e2e", "res-e2e")
	if w.Code != http.StatusNotFound {
		t.Fatalf("notify after delete: %d %s", w.Code, w.Body.String())
	}
}

func TestPolledAreaSchedulesTask(t *testing.T) {
	b := newTestBackend(t, true)
	b.connectPigeon(t)

	area := b.createArea(t)
	if len(b.sched.added) != 1 || b.sched.added[0] != area.ID {
		t.Fatalf("poll task not registered: %v", b.sched.added)
	}

	w := b.request(t, http.MethodDelete, "/api/v1/areas/"+area.UUID, nil, true)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete: %d %s", w.Code, w.Body.String())
	}
	if len(b.sched.removed) != 1 || b.sched.removed[0] != area.ID {
		t.Fatalf("poll task not removed: %v", b.sched.removed)
	}
}
