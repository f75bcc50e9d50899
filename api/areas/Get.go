package areas

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

// Get returns one area by uuid.
//
//	@Summary      Get area
//	@Tags         areas
//	@Produce      json
//	@Param        area_uuid path string true "Area UUID"
//	@Success      200 {object} database.Area "Area"
//	@Failure      404 {string} string "Area not found"
//	@Router       /api/v1/areas/{area_uuid} [get]
func (h *AreasHandler) Get(w http.ResponseWriter, r *http.Request) {
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

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(area)
}
