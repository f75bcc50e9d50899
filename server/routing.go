package server

import (
	"fmt"
	"net/http"

	"area/api/areas"
	"area/api/dispatch"
	"area/api/handlers"
	"area/api/services"
	"area/api/webhooks"

	"gorm.io/gorm"
)

// BackendRouting wires the public webhook endpoints and the authenticated
// /api/v1 surface onto one mux.
func BackendRouting(
	db *gorm.DB,
	registry *handlers.Registry,
	orchestrator *dispatch.Orchestrator,
	pollScheduler areas.PollScheduler,
	githubWebhookSecret string,
) *http.ServeMux {
	mux := http.NewServeMux()
	v1PrivateApis := http.NewServeMux()

	areasHandler := &areas.AreasHandler{
		Registry:      registry,
		Subscriptions: orchestrator.Subscriptions,
		Scheduler:     pollScheduler,
	}
	servicesHandler := &services.ServicesHandler{
		Registry:      registry,
		Subscriptions: orchestrator.Subscriptions,
		Scheduler:     pollScheduler,
	}
	webhooksHandler := &webhooks.WebhooksHandler{
		Orchestrator:        orchestrator,
		GithubWebhookSecret: githubWebhookSecret,
	}

	v1PrivateApis.HandleFunc("POST /areas/create", areasHandler.Create)
	v1PrivateApis.HandleFunc("GET /areas/list", areasHandler.List)
	v1PrivateApis.HandleFunc("GET /areas/{area_uuid}", areasHandler.Get)
	v1PrivateApis.HandleFunc("PATCH /areas/{area_uuid}", areasHandler.Update)
	v1PrivateApis.HandleFunc("DELETE /areas/{area_uuid}", areasHandler.Delete)

	v1PrivateApis.HandleFunc("POST /services/connect", servicesHandler.Connect)
	v1PrivateApis.HandleFunc("GET /services/list", servicesHandler.List)
	v1PrivateApis.HandleFunc("DELETE /services/{service_type}", servicesHandler.Disconnect)

	// Inbound notification endpoints are public: the external services are
	// the callers, correlation happens via channel ids or signatures.
	mux.Handle("POST /webhooks/google", Logging(http.HandlerFunc(webhooksHandler.GoogleNotification)))
	mux.Handle("POST /webhooks/gmail", Logging(http.HandlerFunc(webhooksHandler.GmailNotification)))
	mux.Handle("POST /webhooks/github", Logging(http.HandlerFunc(webhooksHandler.GithubNotification)))

	mux.HandleFunc("GET /about.json", servicesHandler.About)
	mux.HandleFunc("GET /_health", func(w http.ResponseWriter, r *http.Request) {
		if ServerStatus != "running" {
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(fmt.Sprintf("Server is not running, status: %s", ServerStatus)))
		} else {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("Server is running"))
		}
	})

	stack := CreateStack(Logging, DatabaseMiddleware(db), AuthMiddleware(db))
	mux.Handle("/api/v1/", http.StripPrefix("/api/v1", stack(v1PrivateApis)))

	return mux
}
