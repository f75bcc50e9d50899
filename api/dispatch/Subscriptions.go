package dispatch

import (
	"context"
	"log"

	"area/api/handlers"
	"area/database"
)

// SubscriptionManager owns the lifecycle of push-notification channels. A
// channel is subscribed before the Area row is persisted and must be stopped
// before (or with) the row's deactivation or deletion; an external channel
// still firing at a deleted Area is a defect.
//
// Channels have finite provider-side lifetimes and this engine does not renew
// them; the scheduler only surfaces approaching expiries in the logs.
type SubscriptionManager struct {
	Registry    *handlers.Registry
	Credentials *CredentialStore
}

// Subscribe registers the external channel for an Area's action. Returns
// (nil, nil) when the action's service does not use the watch model.
func (m *SubscriptionManager) Subscribe(ctx context.Context, userID uint, serviceType string, actionName string, params map[string]string) (*handlers.WatchChannel, error) {
	spec, err := m.Registry.ActionSpec(serviceType, actionName)
	if err != nil {
		return nil, err
	}
	if !spec.UsesWatch {
		return nil, nil
	}

	handler, err := m.Registry.Resolve(serviceType)
	if err != nil {
		return nil, err
	}

	connection, err := m.Credentials.GetToken(userID, serviceType)
	if err != nil {
		return nil, err
	}

	return handler.SetupWebhook(ctx, connection, actionName, params)
}

// Unsubscribe stops the Area's external channel and clears the identifiers on
// the in-memory row. No-op for Areas without a live channel.
func (m *SubscriptionManager) Unsubscribe(ctx context.Context, area *database.Area) error {
	if area.ChannelWatchID == "" && area.ResourceWatchID == "" {
		return nil
	}

	handler, err := m.Registry.Resolve(area.ActionServiceType)
	if err != nil {
		return err
	}

	connection, err := m.Credentials.GetToken(area.UserID, area.ActionServiceType)
	if err != nil {
		return err
	}

	if err := handler.StopWebhook(ctx, connection, area.ChannelWatchID, area.ResourceWatchID); err != nil {
		return err
	}

	area.ChannelWatchID = ""
	area.ResourceWatchID = ""
	area.WatchExpiresAt = nil
	return nil
}

// UnsubscribeBestEffort logs instead of failing; used on deletion paths where
// the row removal must proceed even if the provider call fails.
func (m *SubscriptionManager) UnsubscribeBestEffort(ctx context.Context, area *database.Area) {
	if err := m.Unsubscribe(ctx, area); err != nil {
		log.Printf("[Subscriptions] failed to stop channel %s for area %s: %v", area.ChannelWatchID, area.UUID, err)
		area.ChannelWatchID = ""
		area.ResourceWatchID = ""
		area.WatchExpiresAt = nil
	}
}
