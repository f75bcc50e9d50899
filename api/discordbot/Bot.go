package discordbot

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"area/api/dispatch"
	"area/api/handlers"
	"area/database"

	"github.com/gorilla/websocket"
)

const defaultGatewayURL = "wss://gateway.discord.gg/?v=10&encoding=json"

// Gateway opcodes the bot speaks.
const (
	opDispatch       = 0
	opHeartbeat      = 1
	opIdentify       = 2
	opReconnect      = 7
	opInvalidSession = 9
	opHello          = 10
	opHeartbeatAck   = 11
)

// intentGuildMessages | intentMessageContent
const gatewayIntents = (1 << 9) | (1 << 15)

// Bot is the process-wide Discord gateway connection. It is started once at
// boot and shared read-only by all dispatch tasks; every MESSAGE_CREATE event
// is handed to the orchestrator as an independent request-scoped task.
type Bot struct {
	Token        string
	Orchestrator *dispatch.Orchestrator
	// GatewayURL is overridable in tests.
	GatewayURL string

	mu      sync.Mutex
	cancel  context.CancelFunc
	running bool
	seq     int64
}

func NewBot(token string, orchestrator *dispatch.Orchestrator) *Bot {
	return &Bot{
		Token:        token,
		Orchestrator: orchestrator,
		GatewayURL:   defaultGatewayURL,
	}
}

type gatewayPayload struct {
	Op int             `json:"op"`
	D  json.RawMessage `json:"d"`
	S  *int64          `json:"s"`
	T  string          `json:"t"`
}

// Start connects to the gateway and runs the listen loop in the background,
// reconnecting until Stop is called.
func (b *Bot) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.running = true

	go func() {
		for {
			if err := b.runOnce(ctx); err != nil {
				log.Printf("[DiscordBot] gateway session ended: %v", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(5 * time.Second):
				log.Println("[DiscordBot] reconnecting...")
			}
		}
	}()
}

// Stop tears the gateway connection down.
func (b *Bot) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancel != nil {
		b.cancel()
	}
	b.running = false
}

func (b *Bot) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.GatewayURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the socket when the context is cancelled so ReadMessage unblocks.
	sessionDone := make(chan struct{})
	defer close(sessionDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-sessionDone:
		}
	}()

	// First frame must be Hello with the heartbeat interval.
	var hello gatewayPayload
	if err := conn.ReadJSON(&hello); err != nil {
		return err
	}
	var helloData struct {
		HeartbeatInterval int `json:"heartbeat_interval"`
	}
	if hello.Op != opHello || json.Unmarshal(hello.D, &helloData) != nil {
		log.Printf("[DiscordBot] unexpected first frame op=%d", hello.Op)
	}
	if helloData.HeartbeatInterval <= 0 {
		helloData.HeartbeatInterval = 41250
	}

	if err := b.identify(conn); err != nil {
		return err
	}

	// After identify the heartbeat goroutine is the sole writer on the
	// socket; gorilla tolerates only one concurrent writer. The read loop
	// asks it for an immediate beat instead of writing itself.
	heartbeatRequest := make(chan struct{}, 1)
	heartbeatDone := make(chan struct{})
	defer close(heartbeatDone)
	go b.heartbeatLoop(conn, time.Duration(helloData.HeartbeatInterval)*time.Millisecond, heartbeatRequest, heartbeatDone)

	log.Println("[DiscordBot] gateway connected")
	for {
		var payload gatewayPayload
		if err := conn.ReadJSON(&payload); err != nil {
			return err
		}
		if payload.S != nil {
			b.mu.Lock()
			b.seq = *payload.S
			b.mu.Unlock()
		}

		switch payload.Op {
		case opDispatch:
			if payload.T == "MESSAGE_CREATE" {
				go b.handleMessage(payload.D)
			}
		case opHeartbeat:
			select {
			case heartbeatRequest <- struct{}{}:
			default:
			}
		case opReconnect, opInvalidSession:
			log.Printf("[DiscordBot] gateway asked for reconnect (op=%d)", payload.Op)
			return nil
		case opHeartbeatAck:
			// nothing to do
		}
	}
}

func (b *Bot) identify(conn *websocket.Conn) error {
	identify := map[string]interface{}{
		"op": opIdentify,
		"d": map[string]interface{}{
			"token":   b.Token,
			"intents": gatewayIntents,
			"properties": map[string]string{
				"os":      "linux",
				"browser": "area",
				"device":  "area",
			},
		},
	}
	return conn.WriteJSON(identify)
}

func (b *Bot) heartbeatLoop(conn *websocket.Conn, interval time.Duration, request <-chan struct{}, done chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-request:
			if err := b.sendHeartbeat(conn); err != nil {
				return
			}
		case <-ticker.C:
			if err := b.sendHeartbeat(conn); err != nil {
				return
			}
		}
	}
}

func (b *Bot) sendHeartbeat(conn *websocket.Conn) error {
	b.mu.Lock()
	seq := b.seq
	b.mu.Unlock()
	return conn.WriteJSON(map[string]interface{}{"op": opHeartbeat, "d": seq})
}

// handleMessage feeds one MESSAGE_CREATE event through the dispatch pipeline.
func (b *Bot) handleMessage(data json.RawMessage) {
	account, err := handlers.DiscordPayloadAccount(data)
	if err != nil {
		log.Printf("[DiscordBot] dropping message event: %v", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	result := b.Orchestrator.HandleActionEvent(ctx, database.ServiceDiscord, handlers.ActionMessageReceived, account, data)
	if result.Detail != dispatch.DetailAreaNotFound {
		log.Printf("[DiscordBot] channel=%s dispatch: %s", account, result.Detail)
	}
}
