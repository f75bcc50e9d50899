package services

import (
	"encoding/json"
	"net/http"

	"area/database"
	"area/server/util"
)

type ConnectServiceRequest struct {
	ServiceType  string `json:"service_type"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Connect stores (or replaces) the user's token pair for a service.
// Reconnecting an already-connected service upserts the existing row.
//
//	@Summary      Connect service
//	@Description  Store the OAuth token pair obtained by the authorization flow for one service.
//	@Tags         services
//	@Accept       json
//	@Produce      json
//	@Param        request body ConnectServiceRequest true "Token pair"
//	@Success      201 {object} database.UserService "Connection stored"
//	@Failure      400 {string} string "Unknown service or missing token"
//	@Router       /api/v1/services/connect [post]
func (h *ServicesHandler) Connect(w http.ResponseWriter, r *http.Request) {
	DB, user, err := util.GetDBAndUser(r)
	if err != nil {
		http.Error(w, "Unable to get database or user", http.StatusBadRequest)
		return
	}

	var data ConnectServiceRequest
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	if _, err := h.Registry.Resolve(data.ServiceType); err != nil {
		http.Error(w, "Unknown service type: "+data.ServiceType, http.StatusBadRequest)
		return
	}
	if data.AccessToken == "" {
		http.Error(w, "Access token is required", http.StatusBadRequest)
		return
	}

	var refreshToken *string
	if data.RefreshToken != "" {
		refreshToken = &data.RefreshToken
	}

	connection, err := database.UpsertUserService(DB, user.ID, data.ServiceType, data.AccessToken, refreshToken)
	if err != nil {
		http.Error(w, "Failed to save connection", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(connection)
}
