package services

import (
	"encoding/json"
	"net/http"
	"time"
)

type aboutCapability struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type aboutService struct {
	Name      string            `json:"name"`
	Actions   []aboutCapability `json:"actions"`
	Reactions []aboutCapability `json:"reactions"`
}

type aboutResponse struct {
	Client struct {
		Host string `json:"host"`
	} `json:"client"`
	Server struct {
		CurrentTime int64          `json:"current_time"`
		Services    []aboutService `json:"services"`
	} `json:"server"`
}

// About serves the public capability catalogue.
//
//	@Summary      Service catalogue
//	@Description  Lists every supported service with its actions and reactions.
//	@Tags         services
//	@Produce      json
//	@Success      200 {object} aboutResponse "Catalogue"
//	@Router       /about.json [get]
func (h *ServicesHandler) About(w http.ResponseWriter, r *http.Request) {
	var response aboutResponse
	response.Client.Host = r.RemoteAddr
	response.Server.CurrentTime = time.Now().Unix()

	for _, spec := range h.Registry.Services() {
		service := aboutService{Name: spec.Type}
		for _, a := range spec.Actions {
			service.Actions = append(service.Actions, aboutCapability{Name: a.Name, Description: a.Description})
		}
		for _, re := range spec.Reactions {
			service.Reactions = append(service.Reactions, aboutCapability{Name: re.Name, Description: re.Description})
		}
		response.Server.Services = append(response.Server.Services, service)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}
