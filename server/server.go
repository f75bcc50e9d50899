package server

import (
	"fmt"
	"net/http"

	"area/api/areas"
	"area/api/dispatch"
	"area/api/handlers"

	"gorm.io/gorm"
)

var ServerStatus string = "unknown"

func BackendServer(
	db *gorm.DB,
	registry *handlers.Registry,
	orchestrator *dispatch.Orchestrator,
	pollScheduler areas.PollScheduler,
	githubWebhookSecret string,
	host string,
	port int64,
	ssl bool,
) (*http.Server, string) {
	var protocol string

	router := BackendRouting(db, registry, orchestrator, pollScheduler, githubWebhookSecret)
	if ssl {
		protocol = "https"
	} else {
		protocol = "http"
	}

	fullHost := fmt.Sprintf("%s://%s:%d", protocol, host, port)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", host, port),
		Handler: router,
	}

	return server, fullHost
}
