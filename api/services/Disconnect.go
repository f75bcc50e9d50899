package services

import (
	"net/http"

	"area/database"
	"area/server/util"
)

// Disconnect removes the user's connection for a service. Every Area
// depending on that connection is deactivated first and any live watch
// channel is stopped while the token is still available to authorize the
// teardown call.
//
//	@Summary      Disconnect service
//	@Tags         services
//	@Param        service_type path string true "Service type"
//	@Success      204 {string} string "Disconnected"
//	@Failure      404 {string} string "Service not connected"
//	@Router       /api/v1/services/{service_type} [delete]
func (h *ServicesHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	serviceType := r.PathValue("service_type")
	connection, err := database.GetUserService(DB, user.ID, serviceType)
	if err != nil {
		http.Error(w, "Service not connected", http.StatusNotFound)
		return
	}

	var dependent []database.Area
	q := DB.Where("user_id = ? AND (action_service_type = ? OR reaction_service_type = ?)",
		user.ID, serviceType, serviceType).Find(&dependent)
	if q.Error != nil {
		http.Error(w, "Failed to resolve dependent areas", http.StatusInternalServerError)
		return
	}

	for i := range dependent {
		area := &dependent[i]
		if area.ActionServiceType == serviceType {
			h.Subscriptions.UnsubscribeBestEffort(r.Context(), area)
		}
		if h.Scheduler != nil {
			h.Scheduler.RemoveAreaTask(area.ID)
		}
		area.IsActive = false
		if err := DB.Save(area).Error; err != nil {
			http.Error(w, "Failed to deactivate dependent area", http.StatusInternalServerError)
			return
		}
	}

	if err := DB.Unscoped().Delete(connection).Error; err != nil {
		http.Error(w, "Failed to delete connection", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
