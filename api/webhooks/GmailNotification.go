package webhooks

import (
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"

	"area/api/dispatch"
)

// pubSubPush is the Cloud Pub/Sub push delivery envelope. The Gmail payload
// sits base64-encoded in message.data.
type pubSubPush struct {
	Message struct {
		Data      string `json:"data"`
		MessageID string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type gmailPushData struct {
	EmailAddress string `json:"emailAddress"`
	HistoryID    uint64 `json:"historyId"`
}

// GmailNotification receives Gmail watch notifications relayed by Cloud
// Pub/Sub. Unlike the Calendar channel headers, the push envelope only names
// the watched address; the owning Area is the one whose channel watch id is
// that address.
//
//	@Summary      Gmail Pub/Sub push notification
//	@Description  Decodes the Pub/Sub envelope and dispatches the inbox change through the trigger/reaction pipeline. The watched email address in the payload identifies the owning Area.
//	@Tags         webhooks
//	@Accept       json
//	@Produce      json
//	@Success      200 {object} dispatch.Result "No action needed, trigger not fired, or trigger fired and reaction executed"
//	@Failure      400 {object} dispatch.Result "Malformed envelope"
//	@Failure      404 {object} dispatch.Result "Area not found"
//	@Failure      500 {object} dispatch.Result "Evaluation or execution failed"
//	@Router       /webhooks/gmail [post]
func (h *WebhooksHandler) GmailNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Unable to read body", http.StatusBadRequest)
		return
	}

	var envelope pubSubPush
	if err := json.Unmarshal(body, &envelope); err != nil {
		writeResult(w, dispatch.Result{Status: http.StatusBadRequest, Detail: dispatch.DetailMissingHeaders})
		return
	}
	decoded, err := base64.StdEncoding.DecodeString(envelope.Message.Data)
	if err != nil {
		writeResult(w, dispatch.Result{Status: http.StatusBadRequest, Detail: dispatch.DetailMissingHeaders})
		return
	}
	var push gmailPushData
	if err := json.Unmarshal(decoded, &push); err != nil || push.EmailAddress == "" {
		writeResult(w, dispatch.Result{Status: http.StatusBadRequest, Detail: dispatch.DetailMissingHeaders})
		return
	}

	result := h.Orchestrator.HandleAccountChannelEvent(r.Context(), push.EmailAddress, decoded)
	writeResult(w, result)
}
