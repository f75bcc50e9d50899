package services

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

// List returns the user's connected services.
//
//	@Summary      List connected services
//	@Tags         services
//	@Produce      json
//	@Success      200 {array} database.UserService "Connections"
//	@Failure      400 {string} string "Unable to get database or user"
//	@Router       /api/v1/services/list [get]
func (h *ServicesHandler) List(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	var connections []database.UserService
	if err := DB.Where("user_id = ?", user.ID).Find(&connections).Error; err != nil {
		http.Error(w, "Failed to list connections", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connections)
}
