package services

import (
	"area/api/dispatch"
	"area/api/handlers"
)

// PollScheduler is the slice of the scheduler the disconnect path needs.
type PollScheduler interface {
	RemoveAreaTask(areaID uint)
}

// ServicesHandler handles the service catalogue and per-user connections.
// The OAuth authorization-code dance happens in the external identity layer;
// this API only receives and stores the resulting token pairs.
type ServicesHandler struct {
	Registry      *handlers.Registry
	Subscriptions *dispatch.SubscriptionManager
	Scheduler     PollScheduler
}
