package areas

import (
	"errors"
	"net/http"

	"area/api/dispatch"
	"area/api/handlers"
	"area/database"
)

// PollScheduler is the slice of the scheduler the Area lifecycle needs:
// polled actions get a recurring task while their Area is active.
type PollScheduler interface {
	AddAreaTask(area *database.Area) error
	RemoveAreaTask(areaID uint)
}

// AreasHandler handles Area CRUD. Subscription side effects (watch channels,
// polling tasks) happen before the corresponding row change so external
// channels never outlive their Area.
type AreasHandler struct {
	Registry      *handlers.Registry
	Subscriptions *dispatch.SubscriptionManager
	Scheduler     PollScheduler
}

// statusForError maps handler/dispatch errors onto the synchronous API
// contract. InvalidParameters at creation time must reach the user directly.
func statusForError(err error) int {
	switch {
	case errors.Is(err, handlers.ErrInvalidParameters):
		return http.StatusBadRequest
	case errors.Is(err, handlers.ErrCapabilityNotFound), errors.Is(err, handlers.ErrCapabilityNotSupported):
		return http.StatusBadRequest
	case errors.Is(err, database.ErrServiceConnectionNotFound):
		return http.StatusBadRequest
	case errors.Is(err, handlers.ErrAuthExpired):
		return http.StatusUnauthorized
	case errors.Is(err, handlers.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, database.ErrAreaNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
