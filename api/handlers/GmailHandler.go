package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"area/database"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

const (
	ActionEmailReceived = "email_received"
	ReactionSendEmail   = "send_email"
)

// GmailHandler implements the Gmail capabilities. Gmail watch notifications
// are delivered through a Cloud Pub/Sub topic whose push envelope carries the
// watched email address, not a channel id; the address is stored as the
// channel watch id at subscription time so the push can be correlated back to
// its Area.
type GmailHandler struct {
	pubsubTopic string
	// BaseURL is overridable in tests.
	BaseURL string
}

func NewGmailHandler(cfg Config) *GmailHandler {
	return &GmailHandler{pubsubTopic: cfg.GmailPubSubTopic}
}

func GmailService(cfg Config) ServiceSpec {
	return ServiceSpec{
		Type:        database.ServiceGmail,
		DisplayName: "Gmail",
		Color:       "#EA4335",
		IconURL:     "https://www.gstatic.com/images/branding/product/2x/gmail_48dp.png",
		Description: "Watch an inbox for new mail or send mail.",
		Actions: []ActionSpec{
			{
				Name:        ActionEmailReceived,
				Description: "New email received",
				UsesWatch:   true,
			},
		},
		Reactions: []ReactionSpec{
			{
				Name:        ReactionSendEmail,
				Description: "Send an email",
				Params: []ParamSpec{
					{Name: "to", Required: true, Description: "Recipient address"},
					{Name: "subject", Required: true, Description: "Mail subject"},
					{Name: "body", Description: "Mail body"},
				},
			},
		},
		Handler: NewGmailHandler(cfg),
	}
}

func (h *GmailHandler) ServiceType() string {
	return database.ServiceGmail
}

func (h *GmailHandler) service(ctx context.Context, connection *database.UserService) (*gmail.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: connection.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if h.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(h.BaseURL))
	}
	return gmail.NewService(ctx, opts...)
}

// CheckTrigger looks at the newest inbox messages and fires when one arrived
// within the recency window. The watch notification only carries a history
// id, not the message itself.
func (h *GmailHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	if actionName != ActionEmailReceived {
		return false, fmt.Errorf("%w: gmail action %q", ErrCapabilityNotSupported, actionName)
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return false, mapGoogleError(err)
	}

	list, err := svc.Users.Messages.List("me").LabelIds("INBOX").MaxResults(5).Do()
	if err != nil {
		return false, mapGoogleError(err)
	}

	since := time.Now().UTC().Add(-TriggerRecencyWindow)
	for _, ref := range list.Messages {
		msg, err := svc.Users.Messages.Get("me", ref.Id).Format("minimal").Do()
		if err != nil {
			return false, mapGoogleError(err)
		}
		if time.UnixMilli(msg.InternalDate).After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (h *GmailHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	if reactionName != ReactionSendEmail {
		return fmt.Errorf("%w: gmail reaction %q", ErrCapabilityNotSupported, reactionName)
	}
	if params["to"] == "" || params["subject"] == "" {
		return fmt.Errorf("%w: %q and %q are required", ErrInvalidParameters, "to", "subject")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return mapGoogleError(err)
	}

	raw := fmt.Sprintf("To: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n%s",
		params["to"], params["subject"], params["body"])
	message := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString([]byte(raw)),
	}

	if _, err := svc.Users.Messages.Send("me", message).Do(); err != nil {
		return mapGoogleError(err)
	}
	return nil
}

// SetupWebhook starts a Gmail watch. Gmail does not hand out a channel id;
// the Pub/Sub push identifies the inbox by email address, so the address is
// what gets stored for correlation. The resource id keeps the watch's
// starting history id.
func (h *GmailHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return nil, mapGoogleError(err)
	}

	profile, err := svc.Users.GetProfile("me").Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	watch, err := svc.Users.Watch("me", &gmail.WatchRequest{
		TopicName: h.pubsubTopic,
		LabelIds:  []string{"INBOX"},
	}).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	channel := &WatchChannel{
		ChannelID:  profile.EmailAddress,
		ResourceID: strconv.FormatUint(watch.HistoryId, 10),
	}
	if watch.Expiration > 0 {
		expires := time.UnixMilli(watch.Expiration).UTC()
		channel.ExpiresAt = &expires
	}
	return channel, nil
}

// StopWebhook stops the account's watch. Gmail watches are per account, not
// per channel, so the ids are not needed for teardown.
func (h *GmailHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return mapGoogleError(err)
	}

	if err := svc.Users.Stop("me").Do(); err != nil {
		return mapGoogleError(err)
	}
	return nil
}
