package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"area/database"
)

const (
	ActionMessageReceived = "message_received"
	ReactionSendMessage   = "send_message"
)

// DiscordHandler implements the Discord capabilities. Inbound events arrive
// over the shared bot gateway connection rather than a webhook, so the
// trigger check is pure payload inspection; the reaction posts through the
// REST API with the shared bot token.
type DiscordHandler struct {
	botToken string
	// BaseURL is the Discord REST endpoint, overridable in tests.
	BaseURL string
}

func NewDiscordHandler(cfg Config) *DiscordHandler {
	return &DiscordHandler{
		botToken: cfg.DiscordBotToken,
		BaseURL:  "https://discord.com/api/v10",
	}
}

func DiscordService(cfg Config) ServiceSpec {
	return ServiceSpec{
		Type:        database.ServiceDiscord,
		DisplayName: "Discord",
		Color:       "#5865F2",
		IconURL:     "https://assets-global.website-files.com/6257adef93867e50d84d30e2/636e0a6a49cf127bf92de1e2_icon_clyde_blurple_RGB.png",
		Description: "React to messages in a channel or send messages through the bot.",
		Actions: []ActionSpec{
			{
				Name:         ActionMessageReceived,
				Description:  "Message received in a channel",
				Params:       []ParamSpec{{Name: "channel_id", Required: true, Description: "Channel the bot listens on"}},
				AccountParam: "channel_id",
			},
		},
		Reactions: []ReactionSpec{
			{
				Name:        ReactionSendMessage,
				Description: "Send a message to a channel",
				Params: []ParamSpec{
					{Name: "channel_id", Required: true, Description: "Target channel"},
					{Name: "content", Required: true, Description: "Message content"},
				},
			},
		},
		Handler: NewDiscordHandler(cfg),
	}
}

func (h *DiscordHandler) ServiceType() string {
	return database.ServiceDiscord
}

// DiscordMessagePayload is the slice of a gateway MESSAGE_CREATE event the
// dispatch engine cares about.
type DiscordMessagePayload struct {
	ChannelID string `json:"channel_id"`
	Content   string `json:"content"`
	Author    struct {
		ID  string `json:"id"`
		Bot bool   `json:"bot"`
	} `json:"author"`
}

// DiscordPayloadAccount extracts the channel id, the identity candidate
// Areas are matched against.
func DiscordPayloadAccount(payload json.RawMessage) (string, error) {
	var p DiscordMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	if p.ChannelID == "" {
		return "", fmt.Errorf("%w: payload has no channel id", ErrInvalidParameters)
	}
	return p.ChannelID, nil
}

func (h *DiscordHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	if actionName != ActionMessageReceived {
		return false, fmt.Errorf("%w: discord action %q", ErrCapabilityNotSupported, actionName)
	}

	var p DiscordMessagePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}

	// Messages sent by bots (including this one) never fire, otherwise a
	// send_message reaction into a watched channel would loop.
	return !p.Author.Bot, nil
}

func (h *DiscordHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	if reactionName != ReactionSendMessage {
		return fmt.Errorf("%w: discord reaction %q", ErrCapabilityNotSupported, reactionName)
	}
	if params["channel_id"] == "" || params["content"] == "" {
		return fmt.Errorf("%w: %q and %q are required", ErrInvalidParameters, "channel_id", "content")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	body, err := json.Marshal(map[string]string{"content": params["content"]})
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/channels/%s/messages", h.BaseURL, params["channel_id"])
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+h.botToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return mapStatusError(resp.StatusCode, fmt.Errorf("discord: send message returned %s", resp.Status))
	}
	return nil
}

// SetupWebhook is not needed; events arrive over the persistent gateway
// connection.
func (h *DiscordHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error) {
	return nil, nil
}

func (h *DiscordHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	return fmt.Errorf("%w: discord has no watch channels", ErrCapabilityNotSupported)
}
