package areas

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

// CreateAreaRequest binds one action to one reaction. Parameter payloads are
// validated against the capability schemas before anything is persisted.
type CreateAreaRequest struct {
	Title               string            `json:"title"`
	ActionServiceType   string            `json:"action_service_type"`
	ActionName          string            `json:"action_name"`
	ActionData          map[string]string `json:"action_data"`
	ReactionServiceType string            `json:"reaction_service_type"`
	ReactionName        string            `json:"reaction_name"`
	ReactionData        map[string]string `json:"reaction_data"`
}

// Create creates an Area. For watch-based actions the external notification
// channel is subscribed first; a subscription failure is surfaced here
// synchronously and nothing is persisted.
//
//	@Summary      Create area
//	@Description  Create an automation rule binding a trigger to a reaction. Both services must be connected. Watch-based actions register their push channel as part of creation.
//	@Tags         areas
//	@Accept       json
//	@Produce      json
//	@Param        request body CreateAreaRequest true "Area creation request"
//	@Success      201 {object} database.Area "Area created"
//	@Failure      400 {string} string "Invalid parameters or service not connected"
//	@Failure      502 {string} string "Subscription setup failed upstream"
//	@Router       /api/v1/areas/create [post]
func (h *AreasHandler) Create(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	var data CreateAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if data.Title == "" {
		http.Error(w, "Title is required", http.StatusBadRequest)
		return
	}
	if data.ActionData == nil {
		data.ActionData = map[string]string{}
	}
	if data.ReactionData == nil {
		data.ReactionData = map[string]string{}
	}

	if err := h.Registry.ValidateActionParams(data.ActionServiceType, data.ActionName, data.ActionData); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	if err := h.Registry.ValidateReactionParams(data.ReactionServiceType, data.ReactionName, data.ReactionData); err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	// Both sides need a live connection before the Area can do anything.
	for _, serviceType := range []string{data.ActionServiceType, data.ReactionServiceType} {
		if _, err := database.GetUserService(DB, user.ID, serviceType); err != nil {
			http.Error(w, "Service not connected: "+serviceType, statusForError(err))
			return
		}
	}

	actionData, _ := json.Marshal(data.ActionData)
	reactionData, _ := json.Marshal(data.ReactionData)

	area := database.Area{
		UserID:              user.ID,
		Title:               data.Title,
		IsActive:            true,
		ActionServiceType:   data.ActionServiceType,
		ActionName:          data.ActionName,
		ActionData:          actionData,
		ReactionServiceType: data.ReactionServiceType,
		ReactionName:        data.ReactionName,
		ReactionData:        reactionData,
	}

	// Subscribe before persisting, so a failed subscription never leaves a
	// half-armed Area behind.
	watch, err := h.Subscriptions.Subscribe(r.Context(), user.ID, data.ActionServiceType, data.ActionName, data.ActionData)
	if err != nil {
		http.Error(w, "Failed to set up subscription: "+err.Error(), statusForError(err))
		return
	}
	if watch != nil {
		area.ChannelWatchID = watch.ChannelID
		area.ResourceWatchID = watch.ResourceID
		area.WatchExpiresAt = watch.ExpiresAt
	}

	if err := DB.Create(&area).Error; err != nil {
		h.Subscriptions.UnsubscribeBestEffort(r.Context(), &area)
		http.Error(w, "Failed to save area", http.StatusInternalServerError)
		return
	}

	actionSpec, _ := h.Registry.ActionSpec(data.ActionServiceType, data.ActionName)
	if actionSpec != nil && actionSpec.Polled && h.Scheduler != nil {
		if err := h.Scheduler.AddAreaTask(&area); err != nil {
			http.Error(w, "Failed to schedule polling task", http.StatusInternalServerError)
			return
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(area)
}
