package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/garcomlabs/garcom/internal/debounce"
	"github.com/garcomlabs/garcom/internal/log"
	"github.com/garcomlabs/garcom/internal/session"
)

// maxMessageBytes bounds a single inbound message body.
const maxMessageBytes = 4096

// webhookHandler accepts inbound WhatsApp messages and feeds the debounce
// queue. The reply is delivered out-of-band by the transport once the burst
// is processed; the webhook only acknowledges receipt.
type webhookHandler struct {
	queue      *debounce.Queue
	dispatcher *debounce.Dispatcher
	logger     log.Logger
}

type inboundMessage struct {
	RestaurantID  string `json:"restaurant_id"`
	CustomerPhone string `json:"customer_phone"`
	Message       string `json:"message"`
}

type inboundAccepted struct {
	QueueID       string `json:"queue_id"`
	ScheduledInMS int64  `json:"scheduled_in_ms"`
}

// receive handles POST /api/v1/webhook/messages.
func (h *webhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	var in inboundMessage
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMessageBytes*2))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "malformed JSON body", h.logger)
		return
	}

	restaurantID, err := uuid.Parse(in.RestaurantID)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_restaurant_id", "restaurant_id must be a UUID", h.logger)
		return
	}

	phone := strings.TrimSpace(in.CustomerPhone)
	if phone == "" {
		writeError(w, http.StatusBadRequest, "invalid_phone", "customer_phone is required", h.logger)
		return
	}

	body := strings.TrimSpace(in.Message)
	if body == "" {
		writeError(w, http.StatusBadRequest, "invalid_message", "message is required", h.logger)
		return
	}
	if len(body) > maxMessageBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "message_too_long", "message exceeds size limit", h.logger)
		return
	}

	key := session.Key{RestaurantID: restaurantID, Phone: phone}
	queueID, err := h.queue.Enqueue(r.Context(), key, body)
	if err != nil {
		h.logger.Error("enqueue failed", "key", key.String(), "error", err)
		writeError(w, http.StatusInternalServerError, "enqueue_failed", "could not buffer message", h.logger)
		return
	}

	delay := h.queue.QuietWindow()
	h.dispatcher.Schedule(queueID, delay)

	writeJSON(w, http.StatusAccepted, inboundAccepted{
		QueueID:       queueID.String(),
		ScheduledInMS: delay.Milliseconds(),
	}, h.logger)
}

// status handles GET /api/v1/webhook/messages/{id} for polling a burst's
// processing result.
func (h *webhookHandler) status(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a UUID", h.logger)
		return
	}

	entry, err := h.queue.Store().Get(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "not_found", "unknown queue entry", h.logger)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"queue_id": entry.ID.String(),
		"status":   string(entry.Status),
		"messages": len(entry.Messages),
		"result":   entry.Result,
		"error":    entry.Error,
	}, h.logger)
}
