package webhooks

import (
	"io"
	"net/http"
)

// GoogleNotification receives channel-keyed push notifications for Google
// watch channels (Calendar). Gmail watches push through Pub/Sub and land on
// GmailNotification instead.
//
//	@Summary      Google push notification
//	@Description  Receives a watch-channel notification and dispatches it through the trigger/reaction pipeline. The channel and resource ids in the headers identify the owning Area.
//	@Tags         webhooks
//	@Accept       json
//	@Produce      json
//	@Success      200 {object} dispatch.Result "No action needed, trigger not fired, or trigger fired and reaction executed"
//	@Failure      400 {object} dispatch.Result "Missing headers"
//	@Failure      404 {object} dispatch.Result "Area not found"
//	@Failure      500 {object} dispatch.Result "Evaluation or execution failed"
//	@Router       /webhooks/google [post]
func (h *WebhooksHandler) GoogleNotification(w http.ResponseWriter, r *http.Request) {
	channelID := r.Header.Get("X-Goog-Channel-ID")
	resourceID := r.Header.Get("X-Goog-Resource-ID")
	resourceState := r.Header.Get("X-Goog-Resource-State")

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Unable to read body", http.StatusBadRequest)
		return
	}

	result := h.Orchestrator.HandleChannelEvent(r.Context(), channelID, resourceID, resourceState, payload)
	writeResult(w, result)
}
