package areas

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

// List returns the authenticated user's areas.
//
//	@Summary      List areas
//	@Tags         areas
//	@Produce      json
//	@Success      200 {array} database.Area "Areas"
//	@Failure      400 {string} string "Unable to get database or user"
//	@Router       /api/v1/areas/list [get]
func (h *AreasHandler) List(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	var areas []database.Area
	if err := DB.Where("user_id = ?", user.ID).Order("created_at DESC").Find(&areas).Error; err != nil {
		http.Error(w, "Failed to list areas", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(areas)
}
