package dispatch

import (
	"errors"

	"area/database"
)

// ErrAccountMismatch reports a candidate Area whose bound account parameter
// does not match the payload's account identity. Distinct from "no matching
// Area": the Area exists, the notification is for someone else.
var ErrAccountMismatch = errors.New("account mismatch")

// routeChannelEvent resolves a channel-keyed notification to the single Area
// owning the (channel id, resource id) pair.
func (o *Orchestrator) routeChannelEvent(channelID string, resourceID string) (*database.Area, error) {
	return database.FindAreaByWatch(o.DB, channelID, resourceID)
}

// routeActionEvent resolves an action-name-keyed notification to its
// candidate Areas. The per-candidate account match happens in the
// orchestrator, after routing.
func (o *Orchestrator) routeActionEvent(serviceType string, actionName string) ([]database.Area, error) {
	return database.FindActiveAreasByAction(o.DB, serviceType, actionName)
}
