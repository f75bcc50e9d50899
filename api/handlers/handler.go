package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"area/database"

	"google.golang.org/api/googleapi"
)

// Dispatch error taxonomy. Callers branch on these with errors.Is; handlers
// wrap them with provider context.
var (
	ErrCapabilityNotFound     = errors.New("capability not found")
	ErrCapabilityNotSupported = errors.New("capability not supported")
	ErrAuthExpired            = errors.New("authorization expired")
	ErrUpstreamUnavailable    = errors.New("upstream service unavailable")
	ErrInvalidParameters      = errors.New("invalid parameters")
)

// TriggerRecencyWindow bounds the poll-style trigger checks: only items
// changed within this window count as "the condition fired". This is a
// documented approximation, not exact event correlation - a notification
// redelivered after the window has elapsed will not re-fire, and two
// deliveries inside the window can both fire.
const TriggerRecencyWindow = 60 * time.Second

// UpstreamTimeout bounds every outbound call to an external service.
const UpstreamTimeout = 15 * time.Second

// WatchChannel identifies a live push-notification channel on an external
// service. Both ids are persisted on the owning Area for correlation and
// teardown.
type WatchChannel struct {
	ChannelID  string
	ResourceID string
	ExpiresAt  *time.Time
}

// EventHandler is the per-service capability contract. Any capability a
// service does not support returns ErrCapabilityNotSupported.
type EventHandler interface {
	ServiceType() string

	// CheckTrigger reports whether the action's specific condition actually
	// fired. plain "something changed" notifications are filtered here. Safe
	// to call repeatedly for the same underlying event; it performs no side
	// effects. payload is the raw inbound notification body, nil for
	// poll-style checks.
	CheckTrigger(ctx context.Context, actionName string, params map[string]string, connection *database.UserService, payload json.RawMessage) (bool, error)

	// ExecuteReaction performs the side effect on the external service.
	ExecuteReaction(ctx context.Context, reactionName string, params map[string]string, connection *database.UserService) error

	// SetupWebhook registers a push-notification channel for the action.
	// Returns (nil, nil) for services using a persistent-connection listener
	// or a stateless account-keyed webhook model.
	SetupWebhook(ctx context.Context, connection *database.UserService, actionName string, params map[string]string) (*WatchChannel, error)

	// StopWebhook tears down a channel previously returned by SetupWebhook.
	StopWebhook(ctx context.Context, connection *database.UserService, channelID string, resourceID string) error
}

// mapGoogleError folds googleapi errors into the dispatch taxonomy.
func mapGoogleError(err error) error {
	if err == nil {
		return nil
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return mapStatusError(gerr.Code, err)
	}
	// Transport failures and timeouts all count as the upstream being away.
	return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
}

// mapStatusError folds a raw HTTP status into the dispatch taxonomy.
func mapStatusError(status int, err error) error {
	switch {
	case status == http.StatusUnauthorized:
		return fmt.Errorf("%w: %v", ErrAuthExpired, err)
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	case status >= 500 || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	default:
		return err
	}
}
