package areas

import (
	"net/http"

	"area/database"
	"area/server/util"
)

// Delete removes an area. The external channel is stopped first (best
// effort), so a notification arriving after the delete resolves to "Area not
// found" instead of an orphaned webhook firing forever.
//
//	@Summary      Delete area
//	@Tags         areas
//	@Param        area_uuid path string true "Area UUID"
//	@Success      204 {string} string "Deleted"
//	@Failure      404 {string} string "Area not found"
//	@Router       /api/v1/areas/{area_uuid} [delete]
func (h *AreasHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

	h.Subscriptions.UnsubscribeBestEffort(r.Context(), area)
	if h.Scheduler != nil {
		h.Scheduler.RemoveAreaTask(area.ID)
	}

	if err := DB.Unscoped().Delete(area).Error; err != nil {
		http.Error(w, "Failed to delete area", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
