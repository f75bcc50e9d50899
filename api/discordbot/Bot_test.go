package discordbot

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"area/api/dispatch"
	"area/api/handlers"
	"area/database"

	"github.com/gorilla/websocket"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	return database.SetupDatabase("sqlite", dsn, false)
}

var upgrader = websocket.Upgrader{}

// fakeGateway speaks just enough of the gateway protocol for one session:
// hello, then the scripted dispatch frame once the client has identified.
func fakeGateway(t *testing.T, dispatchFrame map[string]interface{}, identified chan<- map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello := map[string]interface{}{"op": 10, "d": map[string]interface{}{"heartbeat_interval": 45000}}
		if err := conn.WriteJSON(hello); err != nil {
			return
		}

		var identify map[string]interface{}
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}
		select {
		case identified <- identify:
		default:
		}

		if err := conn.WriteJSON(dispatchFrame); err != nil {
			return
		}

		// Hold the session open, discarding heartbeats, until the bot stops.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func messageFrame(bot bool) map[string]interface{} {
	return map[string]interface{}{
		"op": 0,
		"t":  "MESSAGE_CREATE",
		"s":  1,
		"d": map[string]interface{}{
			"channel_id": "123",
			"content":    "ping",
			"author":     map[string]interface{}{"id": "42", "bot": bot},
		},
	}
}

// echoPipeline wires one area listening on channel 123 posting into channel
// 456, with a fake Discord REST API capturing the posts.
func echoPipeline(t *testing.T) (*dispatch.Orchestrator, chan string) {
	t.Helper()
	db := setupTestDB(t)

	posted := make(chan string, 1)
	discordAPI := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		posted <- r.URL.Path
		w.Write([]byte(`{"id":"1"}`))
	}))
	t.Cleanup(discordAPI.Close)

	cfg := handlers.Config{DiscordBotToken: "bot-token"}
	spec := handlers.DiscordService(cfg)
	discordHandler := handlers.NewDiscordHandler(cfg)
	discordHandler.BaseURL = discordAPI.URL
	spec.Handler = discordHandler

	registry := handlers.NewRegistry()
	registry.Register(spec)
	orchestrator := dispatch.NewOrchestrator(db, registry, nil)

	user, err := database.RegisterUser(db, "tester", fmt.Sprintf("%s@example.com", strings.ReplaceAll(t.Name(), "/", "_")))
	if err != nil {
		t.Fatalf("RegisterUser: %v", err)
	}
	if _, err := database.UpsertUserService(db, user.ID, database.ServiceDiscord, "user-token", nil); err != nil {
		t.Fatalf("UpsertUserService: %v", err)
	}
	area := &database.Area{
		UserID:              user.ID,
		Title:               "echo",
		IsActive:            true,
		ActionServiceType:   database.ServiceDiscord,
		ActionName:          handlers.ActionMessageReceived,
		ActionData:          json.RawMessage(`{"channel_id":"123"}`),
		ReactionServiceType: database.ServiceDiscord,
		ReactionName:        handlers.ReactionSendMessage,
		ReactionData:        json.RawMessage(`{"channel_id":"456","content":"pong"}`),
	}
	if err := db.Create(area).Error; err != nil {
		t.Fatalf("create area: %v", err)
	}

	return orchestrator, posted
}

func startBot(t *testing.T, orchestrator *dispatch.Orchestrator, gatewayURL string) {
	t.Helper()
	bot := NewBot("bot-token", orchestrator)
	bot.GatewayURL = "ws" + strings.TrimPrefix(gatewayURL, "http")
	bot.Start()
	t.Cleanup(bot.Stop)
}

func startBotAgainst(t *testing.T, frame map[string]interface{}) (posted chan string, identified chan map[string]interface{}) {
	t.Helper()
	orchestrator, posted := echoPipeline(t)

	identified = make(chan map[string]interface{}, 1)
	gateway := fakeGateway(t, frame, identified)
	t.Cleanup(gateway.Close)

	startBot(t, orchestrator, gateway.URL)
	return posted, identified
}

func TestGatewayMessageDispatch(t *testing.T) {
	posted, identified := startBotAgainst(t, messageFrame(false))

	select {
	case identify := <-identified:
		if op, _ := identify["op"].(float64); op != 2 {
			t.Fatalf("first client frame op=%v", identify["op"])
		}
		d, _ := identify["d"].(map[string]interface{})
		if d["token"] != "bot-token" {
			t.Fatalf("identified with token %v", d["token"])
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("bot never identified")
	}

	select {
	case path := <-posted:
		if path != "/channels/456/messages" {
			t.Fatalf("reaction posted to %q", path)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("reaction never executed")
	}
}

func TestGatewayIgnoresBotMessages(t *testing.T) {
	posted, identified := startBotAgainst(t, messageFrame(true))

	select {
	case <-identified:
	case <-time.After(5 * time.Second):
		t.Fatalf("bot never identified")
	}

	// A bot-authored message must not loop back into a reaction.
	select {
	case path := <-posted:
		t.Fatalf("bot message triggered a reaction to %q", path)
	case <-time.After(500 * time.Millisecond):
	}
}

// The heartbeat goroutine is the only socket writer; op-1 requests from the
// gateway are relayed to it. A gateway beating every millisecond while
// flooding op-1 frames forces both paths to write at once.
func TestGatewayHeartbeatUnderRequestFlood(t *testing.T) {
	beats := make(chan struct{}, 1)
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		hello := map[string]interface{}{"op": 10, "d": map[string]interface{}{"heartbeat_interval": 1}}
		if err := conn.WriteJSON(hello); err != nil {
			return
		}
		var identify map[string]interface{}
		if err := conn.ReadJSON(&identify); err != nil {
			return
		}

		go func() {
			for i := 0; i < 100; i++ {
				if err := conn.WriteJSON(map[string]interface{}{"op": 1}); err != nil {
					return
				}
			}
			conn.WriteJSON(messageFrame(false))
		}()

		for {
			var frame map[string]interface{}
			if err := conn.ReadJSON(&frame); err != nil {
				return
			}
			if op, _ := frame["op"].(float64); op == 1 {
				select {
				case beats <- struct{}{}:
				default:
				}
			}
		}
	}))
	t.Cleanup(gateway.Close)

	orchestrator, posted := echoPipeline(t)
	startBot(t, orchestrator, gateway.URL)

	select {
	case <-beats:
	case <-time.After(5 * time.Second):
		t.Fatalf("no heartbeat observed")
	}
	select {
	case path := <-posted:
		if path != "/channels/456/messages" {
			t.Fatalf("reaction posted to %q", path)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("message not dispatched during heartbeat flood")
	}
}
