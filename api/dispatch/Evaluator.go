package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"area/api/handlers"
	"area/database"
)

// TriggerEvaluator decides fire/no-fire for one candidate Area. The router
// only narrows candidates by channel or account identity; whether the
// declared sub-condition actually occurred is the handler's call.
type TriggerEvaluator struct {
	Registry    *handlers.Registry
	Credentials *CredentialStore
}

// Evaluate runs the handler's trigger check with the refresh-once policy on
// an expired access token.
func (ev *TriggerEvaluator) Evaluate(ctx context.Context, area *database.Area, payload json.RawMessage) (bool, error) {
	handler, err := ev.Registry.Resolve(area.ActionServiceType)
	if err != nil {
		return false, err
	}

	params, err := area.ActionParams()
	if err != nil {
		return false, fmt.Errorf("%w: action data: %v", handlers.ErrInvalidParameters, err)
	}

	connection, err := ev.Credentials.GetToken(area.UserID, area.ActionServiceType)
	if err != nil {
		return false, err
	}

	fired, err := handler.CheckTrigger(ctx, area.ActionName, params, connection, payload)
	if errors.Is(err, handlers.ErrAuthExpired) {
		if refreshErr := ev.Credentials.RefreshToken(ctx, connection); refreshErr != nil {
			return false, refreshErr
		}
		fired, err = handler.CheckTrigger(ctx, area.ActionName, params, connection, payload)
	}
	return fired, err
}
