package dispatch

import (
	"context"
	"errors"
	"fmt"

	"area/api/handlers"
	"area/database"
)

// ReactionExecutor resolves the reaction's owning connection and performs the
// side effect. On AuthExpired the token is refreshed and the reaction retried
// exactly once; a second AuthExpired is final, which keeps a dead refresh
// token from looping.
type ReactionExecutor struct {
	Registry    *handlers.Registry
	Credentials *CredentialStore
}

func (ex *ReactionExecutor) Execute(ctx context.Context, area *database.Area) error {
	handler, err := ex.Registry.Resolve(area.ReactionServiceType)
	if err != nil {
		return err
	}

	params, err := area.ReactionParams()
	if err != nil {
		return fmt.Errorf("%w: reaction data: %v", handlers.ErrInvalidParameters, err)
	}
	if err := ex.Registry.ValidateReactionParams(area.ReactionServiceType, area.ReactionName, params); err != nil {
		return err
	}

	connection, err := ex.Credentials.GetToken(area.UserID, area.ReactionServiceType)
	if err != nil {
		return err
	}

	err = handler.ExecuteReaction(ctx, area.ReactionName, params, connection)
	if errors.Is(err, handlers.ErrAuthExpired) {
		if refreshErr := ex.Credentials.RefreshToken(ctx, connection); refreshErr != nil {
			return refreshErr
		}
		err = handler.ExecuteReaction(ctx, area.ReactionName, params, connection)
	}
	return err
}
