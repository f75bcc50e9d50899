package areas

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

type UpdateAreaRequest struct {
	Title    *string `json:"title"`
	IsActive *bool   `json:"is_active"`
}

// Update edits an area's title or active flag. Deactivation releases the
// watch channel and the polling task; reactivation re-subscribes, so an
// inactive Area holds no live external channel.
//
//	@Summary      Update area
//	@Tags         areas
//	@Accept       json
//	@Produce      json
//	@Param        area_uuid path string true "Area UUID"
//	@Param        request body UpdateAreaRequest true "Fields to update"
//	@Success      200 {object} database.Area "Updated area"
//	@Failure      404 {string} string "Area not found"
//	@Failure      502 {string} string "Re-subscription failed upstream"
//	@Router       /api/v1/areas/{area_uuid} [patch]
func (h *AreasHandler) Update(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	area, err := database.GetAreaByUUID(DB, user.ID, r.PathValue("area_uuid"))
	if err != nil {
		http.Error(w, "Area not found", statusForError(err))
		return
	}

	var data UpdateAreaRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if data.Title != nil {
		area.Title = *data.Title
	}

	if data.IsActive != nil && *data.IsActive != area.IsActive {
		if *data.IsActive {
			if err := h.activate(r, area); err != nil {
				http.Error(w, "Failed to activate area: "+err.Error(), statusForError(err))
				return
			}
		} else {
			h.deactivate(r, area)
		}
		area.IsActive = *data.IsActive
	}

	if err := DB.Save(area).Error; err != nil {
		http.Error(w, "Failed to update area", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(area)
}

func (h *AreasHandler) activate(r *http.Request, area *database.Area) error {
	params, err := area.ActionParams()
	if err != nil {
		return err
	}

	watch, err := h.Subscriptions.Subscribe(r.Context(), area.UserID, area.ActionServiceType, area.ActionName, params)
	if err != nil {
		return err
	}
	if watch != nil {
		area.ChannelWatchID = watch.ChannelID
		area.ResourceWatchID = watch.ResourceID
		area.WatchExpiresAt = watch.ExpiresAt
	}

	spec, _ := h.Registry.ActionSpec(area.ActionServiceType, area.ActionName)
	if spec != nil && spec.Polled && h.Scheduler != nil {
		return h.Scheduler.AddAreaTask(area)
	}
	return nil
}

func (h *AreasHandler) deactivate(r *http.Request, area *database.Area) {
	h.Subscriptions.UnsubscribeBestEffort(r.Context(), area)
	if h.Scheduler != nil {
		h.Scheduler.RemoveAreaTask(area.ID)
	}
}
