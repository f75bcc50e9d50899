package webhooks

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"

	"area/api/dispatch"
	"area/api/handlers"
	"area/database"
)

// GithubNotification receives repository webhooks. GitHub deliveries are
// account-keyed: the event-type header plus the repository owner in the
// payload select the candidate Areas.
//
//	@Summary      GitHub webhook
//	@Description  Receives a repository event and dispatches it through the trigger/reaction pipeline. Candidate Areas are matched by action name and bound repository owner.
//	@Tags         webhooks
//	@Accept       json
//	@Produce      json
//	@Success      200 {object} dispatch.Result "No action needed, trigger not fired, or trigger fired and reaction executed"
//	@Failure      400 {object} dispatch.Result "Missing headers or account mismatch"
//	@Failure      401 {object} dispatch.Result "Bad signature"
//	@Failure      404 {object} dispatch.Result "Area not found"
//	@Router       /webhooks/github [post]
func (h *WebhooksHandler) GithubNotification(w http.ResponseWriter, r *http.Request) {
	event := r.Header.Get("X-GitHub-Event")
	delivery := r.Header.Get("X-GitHub-Delivery")
	if event == "" || delivery == "" {
		writeResult(w, dispatch.Result{Status: http.StatusBadRequest, Detail: dispatch.DetailMissingHeaders})
		return
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Unable to read body", http.StatusBadRequest)
		return
	}

	if h.GithubWebhookSecret != "" && !h.verifySignature(payload, r.Header.Get("X-Hub-Signature-256")) {
		writeResult(w, dispatch.Result{Status: http.StatusUnauthorized, Detail: "Bad signature"})
		return
	}

	actionName, ok := githubEventAction(event, payload)
	if !ok {
		// Event types the catalogue has no action for are acknowledged so
		// GitHub does not redeliver them.
		writeResult(w, dispatch.Result{Status: http.StatusOK, Detail: dispatch.DetailNoActionNeeded})
		return
	}

	account, err := handlers.GithubPayloadAccount(payload)
	if err != nil {
		writeResult(w, dispatch.Result{Status: http.StatusBadRequest, Detail: "Invalid payload"})
		return
	}

	result := h.Orchestrator.HandleActionEvent(r.Context(), database.ServiceGithub, actionName, account, payload)
	writeResult(w, result)
}

// githubEventAction maps a delivery's event type (plus the payload's action
// discriminator) to a catalogue action name.
func githubEventAction(event string, payload []byte) (string, bool) {
	var p struct {
		Action string `json:"action"`
	}
	json.Unmarshal(payload, &p)

	switch {
	case event == "issues" && p.Action == "opened":
		return handlers.ActionIssueOpened, true
	case event == "pull_request" && p.Action == "opened":
		return handlers.ActionPullRequestOpened, true
	case event == "push":
		return handlers.ActionPush, true
	default:
		return "", false
	}
}

func (h *WebhooksHandler) verifySignature(payload []byte, signatureHeader string) bool {
	const prefix = "sha256="
	if len(signatureHeader) <= len(prefix) {
		return false
	}
	mac := hmac.New(sha256.New, []byte(h.GithubWebhookSecret))
	mac.Write(payload)
	expected := prefix + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signatureHeader))
}
