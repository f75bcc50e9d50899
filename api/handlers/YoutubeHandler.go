package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"area/database"

	"golang.org/x/oauth2"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const (
	ActionVideoPublished = "video_published"
	ReactionLikeVideo    = "like_video"
)

// YoutubeHandler implements the YouTube capabilities. YouTube has no watch
// channel; the video_published action is polled by the scheduler on the same
// recency window the push services use.
type YoutubeHandler struct {
	// BaseURL is overridable in tests.
	BaseURL string
}

func YoutubeService() ServiceSpec {
	return ServiceSpec{
		Type:        database.ServiceYoutube,
		DisplayName: "YouTube",
		Color:       "#FF0000",
		IconURL:     "https://www.gstatic.com/images/branding/product/2x/youtube_48dp.png",
		Description: "Watch a channel for new uploads or rate videos.",
		Actions: []ActionSpec{
			{
				Name:        ActionVideoPublished,
				Description: "New video published by a channel",
				Params:      []ParamSpec{{Name: "channel_id", Required: true, Description: "YouTube channel id to watch"}},
				Polled:      true,
			},
		},
		Reactions: []ReactionSpec{
			{
				Name:        ReactionLikeVideo,
				Description: "Like a video",
				Params:      []ParamSpec{{Name: "video_id", Required: true, Description: "Video to like"}},
			},
		},
		Handler: &YoutubeHandler{},
	}
}

func (h *YoutubeHandler) ServiceType() string {
	return database.ServiceYoutube
}

func (h *YoutubeHandler) service(ctx context.Context, connection *database.UserService) (*youtube.Service, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: connection.AccessToken})
	opts := []option.ClientOption{option.WithTokenSource(ts)}
	if h.BaseURL != "" {
		opts = append(opts, option.WithEndpoint(h.BaseURL))
	}
	return youtube.NewService(ctx, opts...)
}

func (h *YoutubeHandler) CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error) {
	if actionName != ActionVideoPublished {
		return false, fmt.Errorf("%w: youtube action %q", ErrCapabilityNotSupported, actionName)
	}
	if params["channel_id"] == "" {
		return false, fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, "channel_id")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return false, mapGoogleError(err)
	}

	result, err := svc.Search.List([]string{"snippet"}).
		ChannelId(params["channel_id"]).
		Type("video").
		Order("date").
		MaxResults(1).
		Do()
	if err != nil {
		return false, mapGoogleError(err)
	}

	since := time.Now().UTC().Add(-TriggerRecencyWindow)
	for _, item := range result.Items {
		publishedAt, err := time.Parse(time.RFC3339, item.Snippet.PublishedAt)
		if err != nil {
			continue
		}
		if publishedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (h *YoutubeHandler) ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error {
	if reactionName != ReactionLikeVideo {
		return fmt.Errorf("%w: youtube reaction %q", ErrCapabilityNotSupported, reactionName)
	}
	if params["video_id"] == "" {
		return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, "video_id")
	}

	ctx, cancel := context.WithTimeout(ctx, UpstreamTimeout)
	defer cancel()

	svc, err := h.service(ctx, connection)
	if err != nil {
		return mapGoogleError(err)
	}

	if err := svc.Videos.Rate(params["video_id"], "like").Do(); err != nil {
		return mapGoogleError(err)
	}
	return nil
}

// SetupWebhook is not supported; the action is polled.
func (h *YoutubeHandler) SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error) {
	return nil, nil
}

func (h *YoutubeHandler) StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error {
	return fmt.Errorf("%w: youtube has no watch channels", ErrCapabilityNotSupported)
}
