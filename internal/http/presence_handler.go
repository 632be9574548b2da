package http

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/example/chronopact/internal/presence"
)

// PresenceHandler accepts occupancy updates pushed by the chat gateway.
type PresenceHandler struct {
	recorder  presence.Recorder
	dispatch  presence.ArrivalHandler
	responder responder
	logger    *slog.Logger
}

// NewPresenceHandler records updates in recorder (when non-nil) and hands
// arrivals to dispatch.
func NewPresenceHandler(recorder presence.Recorder, dispatch presence.ArrivalHandler, logger *slog.Logger) *PresenceHandler {
	logger = defaultLogger(logger)
	return &PresenceHandler{recorder: recorder, dispatch: dispatch, responder: newResponder(logger), logger: logger}
}

func (h *PresenceHandler) Arrive(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	logger := handlerLogger(r.Context(), h.logger, "PresenceHandler", "Arrive", "gathering_point", req.GatheringPoint, "user_id", req.UserID)

	if h.recorder != nil {
		if err := h.recorder.MarkPresent(r.Context(), req.UserID, req.GatheringPoint); err != nil {
			logger.WarnContext(r.Context(), "failed to record arrival", "error", err)
		}
	}
	if h.dispatch != nil {
		h.dispatch(r.Context(), req.GatheringPoint, req.UserID)
	}
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, presenceResponse{Status: "accepted"})
}

func (h *PresenceHandler) Depart(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if h.recorder != nil {
		if err := h.recorder.MarkAbsent(r.Context(), req.UserID, req.GatheringPoint); err != nil {
			h.responder.writeError(r.Context(), w, http.StatusServiceUnavailable, err)
			return
		}
	}
	h.responder.writeJSON(r.Context(), w, http.StatusAccepted, presenceResponse{Status: "accepted"})
}

func (h *PresenceHandler) decode(w http.ResponseWriter, r *http.Request) (presenceRequest, bool) {
	var req presenceRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return presenceRequest{}, false
	}
	req.GatheringPoint = strings.TrimSpace(req.GatheringPoint)
	req.UserID = strings.TrimSpace(req.UserID)

	fields := make(map[string]string, 2)
	if req.GatheringPoint == "" {
		fields["gathering_point"] = translateValidationMessage("gathering point is required")
	}
	if req.UserID == "" {
		fields["user_id"] = translateValidationMessage("user is required")
	}
	if len(fields) > 0 {
		h.responder.writeJSON(r.Context(), w, http.StatusUnprocessableEntity, errorResponse{
			Message: localizedStatusMessage(http.StatusUnprocessableEntity),
			Errors:  fields,
		})
		return presenceRequest{}, false
	}
	return req, true
}

type presenceRequest struct {
	GatheringPoint string `json:"gathering_point"`
	UserID         string `json:"user_id"`
}

type presenceResponse struct {
	Status string `json:"status"`
}
