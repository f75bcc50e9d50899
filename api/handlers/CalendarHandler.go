package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"area/database"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"
)

const (
	ActionEventAdded    = "event_added"
	ActionEventDeleted  = "event_deleted"
	ActionEventModified = "event_modified"
	ReactionCreateEvent = "create_event"
)

// CalendarHandler implements the Google Calendar capabilities. Calendar is
// the channel-keyed push service: one watch channel per Area, three actions
// sharing the same "resource changed" notification.
type CalendarHandler struct {
	callbackURL string
	// BaseURL is overridable in tests.
	BaseURL string
}

func NewCalendarHandler(cfg Config) *CalendarHandler {
	return &CalendarHandler{callbackURL: cfg.PublicBaseURL + "/webhooks/google"}
}

func CalendarService(cfg Config) ServiceSpec {
	return ServiceSpec{
		Type:        database.ServiceGoogleCalendar,
		DisplayName: "Google Calendar",
		Color:       "#4285F4",
		IconURL:     "https://www.gstatic.com/images/branding/product/2x/calendar_48dp.png",
		Description: "Watch a calendar for added, deleted or modified events, or insert new events.",
		Actions: []ActionSpec{
			{
				Name:        ActionEventAdded,
				Description: "New event added",
				Params:      []ParamSpec{{Name: "calendar_id", Description: "Calendar to watch, defaults to primary"}},
				UsesWatch:   true,
			},
			{
				Name:        ActionEventDeleted,
				Description: "Event deleted",
				Params:      []ParamSpec{{Name: "calendar_id", Description: "Calendar to watch, defaults to primary"}},
				UsesWatch:   true,
			},
			{
				Name:        ActionEventModified,
				Description: "Event modified",
				Params:      []ParamSpec{{Name: "calendar_id", Description: "Calendar to watch, defaults to primary"}},
				UsesWatch:   true,
			},
		},
		Reactions: []ReactionSpec{
			{
				Name:        ReactionCreateEvent,
				Description: "Insert an event into a calendar",
				Params: []ParamSpec{
					{Name: "summary", Required: true, Description: "Event title"},
					{Name: "description", Description: "Event body"},
					{Name: "location", Description: "Event location"},
					{Name: "calendar_id", Description: "Target calendar, defaults to primary"},
				},
			},
		},
		Handler: NewCalendarHandler(cfg),
	}
}

func (h *CalendarHandler) ServiceType() string {
	return database.ServiceGoogleCalendar
}

func (h *CalendarHandler) service(ctx context.Context, connection *database.UserService) (*calendar.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: connection.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if h.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(h.BaseURL))
	}
	return calendar.NewService(ctx, opts...)
}

func calendarID(params map[string]string) string {
	if id := params["calendar_id"]; id != "" {
		return id
	}
	return "primary"
}

// CheckTrigger inspects events updated within the recency window. The watch
// notification only says "something changed on this resource"; the specific
// sub-condition (added vs deleted vs modified) is decided here.
func (h *CalendarHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	switch actionName {
	case ActionEventAdded, ActionEventDeleted, ActionEventModified:
	default:
		return false, fmt.Errorf("%w: calendar action %q", ErrCapabilityNotSupported, actionName)
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return false, mapGoogleError(err)
	}

	since := time.Now().UTC().Add(-TriggerRecencyWindow)
	events, err := svc.Events.List(calendarID(params)).
		ShowDeleted(true).
		SingleEvents(true).
		UpdatedMin(since.Format(time.RFC3339)).
		MaxResults(50).
		Do()
	if err != nil {
		return false, mapGoogleError(err)
	}

	for _, item := range events.Items {
		created, createdErr := time.Parse(time.RFC3339, item.Created)
		recentlyCreated := createdErr == nil && created.After(since)

		switch actionName {
		case ActionEventAdded:
			if recentlyCreated && item.Status != "cancelled" {
				return true, nil
			}
		case ActionEventDeleted:
			if item.Status == "cancelled" {
				return true, nil
			}
		case ActionEventModified:
			// Updated within the window but created before it and not
			// cancelled: an existing event changed.
			if item.Status != "cancelled" && !recentlyCreated {
				return true, nil
			}
		}
	}
	return false, nil
}

func (h *CalendarHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	if reactionName != ReactionCreateEvent {
		return fmt.Errorf("%w: calendar reaction %q", ErrCapabilityNotSupported, reactionName)
	}
	if params["summary"] == "" {
		return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, "summary")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return mapGoogleError(err)
	}

	start := time.Now().UTC()
	event := &calendar.Event{
		Summary:     params["summary"],
		Description: params["description"],
		Location:    params["location"],
		Start:       &calendar.EventDateTime{DateTime: start.Format(time.RFC3339)},
		End:         &calendar.EventDateTime{DateTime: start.Add(time.Hour).Format(time.RFC3339)},
	}

	if _, err := svc.Events.Insert(calendarID(params), event).Do(); err != nil {
		return mapGoogleError(err)
	}
	return nil
}

func (h *CalendarHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error) {
	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return nil, mapGoogleError(err)
	}

	channel := &calendar.Channel{
		Id:      uuid.New().String(),
		Type:    "web_hook",
		Address: h.callbackURL,
	}

	created, err := svc.Events.Watch(calendarID(params), channel).Do()
	if err != nil {
		return nil, mapGoogleError(err)
	}

	watch := &WatchChannel{
		ChannelID:  created.Id,
		ResourceID: created.ResourceId,
	}
	if created.Expiration > 0 {
		expires := time.UnixMilli(created.Expiration).UTC()
		watch.ExpiresAt = &expires
	}
	return watch, nil
}

func (h *CalendarHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return mapGoogleError(err)
	}

	err = svc.Channels.Stop(&calendar.Channel{Id: channelID, ResourceId: resourceID}).Do()
	if err != nil {
		return mapGoogleError(err)
	}
	return nil
}
