package webhooks

import (
	"encoding/json"
	"net/http"

	"area/api/dispatch"
)

// WebhooksHandler exposes the inbound notification endpoints. These routes
// carry no platform session; correlation happens through channel ids or
// signed payloads.
type WebhooksHandler struct {
	Orchestrator *dispatch.Orchestrator

	// GithubWebhookSecret enables HMAC signature verification of GitHub
	// deliveries when non-empty.
	GithubWebhookSecret string
}

func writeResult(w http.ResponseWriter, result dispatch.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(result.Status)
	json.NewEncoder(w).Encode(result)
}
