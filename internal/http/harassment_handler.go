package http

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/example/chronopact/internal/application"
)

type harassmentService interface {
	Start(ctx context.Context, params application.StartHarassmentParams) (application.HarassmentSnapshot, error)
	List(ctx context.Context) (active, ended []application.HarassmentSnapshot)
	GiveUp(ctx context.Context, target, requester string) (application.HarassmentSnapshot, error)
}

type HarassmentHandler struct {
	service   harassmentService
	responder responder
	logger    *slog.Logger
}

func NewHarassmentHandler(service harassmentService, logger *slog.Logger) *HarassmentHandler {
	logger = defaultLogger(logger)
	return &HarassmentHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *HarassmentHandler) Start(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req harassmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	snapshot, err := h.service.Start(r.Context(), application.StartHarassmentParams{
		TargetID:        req.TargetID,
		GatheringPoint:  req.GatheringPoint,
		Channel:         req.Channel,
		WaitingUserIDs:  req.WaitingUserIDs,
		IntervalMinutes: req.IntervalMinutes,
	})
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toHarassmentDTO(snapshot))
}

func (h *HarassmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	active, ended := h.service.List(r.Context())
	resp := harassmentListResponse{
		Active: make([]harassmentDTO, 0, len(active)),
		Ended:  make([]harassmentDTO, 0, len(ended)),
	}
	for _, s := range active {
		resp.Active = append(resp.Active, toHarassmentDTO(s))
	}
	for _, s := range ended {
		resp.Ended = append(resp.Ended, toHarassmentDTO(s))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, resp)
}

func (h *HarassmentHandler) GiveUp(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	target, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(target) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	snapshot, err := h.service.GiveUp(r.Context(), target, req.UserID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "HarassmentHandler", "GiveUp").
		InfoContext(r.Context(), "harassment given up", "user_id", req.UserID)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toHarassmentDTO(snapshot))
}

type harassmentRequest struct {
	TargetID        string   `json:"target_id"`
	GatheringPoint  string   `json:"gathering_point"`
	Channel         string   `json:"channel"`
	WaitingUserIDs  []string `json:"waiting_user_ids"`
	IntervalMinutes int      `json:"interval_minutes"`
}

type harassmentDTO struct {
	ID               string     `json:"id"`
	TargetID         string     `json:"target_id"`
	GatheringPoint   string     `json:"gathering_point"`
	Channel          string     `json:"channel"`
	WaitingUserIDs   []string   `json:"waiting_user_ids"`
	StartedAt        time.Time  `json:"started_at"`
	IntervalMinutes  int        `json:"interval_minutes"`
	LastInsultMinute int        `json:"last_insult_minute"`
	Ended            bool       `json:"ended"`
	EndedAt          *time.Time `json:"ended_at,omitempty"`
	EndReason        string     `json:"end_reason,omitempty"`
}

type harassmentListResponse struct {
	Active []harassmentDTO `json:"active"`
	Ended  []harassmentDTO `json:"ended"`
}

func toHarassmentDTO(s application.HarassmentSnapshot) harassmentDTO {
	waiting := s.WaitingUserIDs
	if waiting == nil {
		waiting = []string{}
	}
	return harassmentDTO{
		ID:               s.ID,
		TargetID:         s.TargetID,
		GatheringPoint:   s.GatheringPoint,
		Channel:          s.Channel,
		WaitingUserIDs:   waiting,
		StartedAt:        s.StartedAt,
		IntervalMinutes:  s.IntervalMinutes,
		LastInsultMinute: s.LastInsultMinute,
		Ended:            s.Ended,
		EndedAt:          s.EndedAt,
		EndReason:        string(s.EndReason),
	}
}
