package http

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/example/chronopact/internal/application"
)

type appointmentService interface {
	Create(ctx context.Context, params application.CreateAppointmentParams) (application.AppointmentSnapshot, error)
	Get(ctx context.Context, id string) (application.AppointmentSnapshot, error)
	List(ctx context.Context) []application.AppointmentSnapshot
	Join(ctx context.Context, id, userID string) (application.AppointmentSnapshot, error)
	Leave(ctx context.Context, id, userID string) (application.AppointmentSnapshot, error)
	Cancel(ctx context.Context, id, requester string) (application.AppointmentSnapshot, error)
}

type AppointmentHandler struct {
	service   appointmentService
	responder responder
	logger    *slog.Logger
}

func NewAppointmentHandler(service appointmentService, logger *slog.Logger) *AppointmentHandler {
	logger = defaultLogger(logger)
	return &AppointmentHandler{service: service, responder: newResponder(logger), logger: logger}
}

func (h *AppointmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	var req appointmentRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	snapshot, err := h.service.Create(r.Context(), req.toParams())
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	handlerLogger(r.Context(), h.logger, "AppointmentHandler", "Create", "appointment_id", snapshot.ID).
		InfoContext(r.Context(), "appointment announced")
	h.responder.writeJSON(r.Context(), w, http.StatusCreated, toAppointmentDTO(snapshot))
}

func (h *AppointmentHandler) List(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	snapshots := h.service.List(r.Context())
	items := make([]appointmentDTO, 0, len(snapshots))
	for _, snapshot := range snapshots {
		items = append(items, toAppointmentDTO(snapshot))
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, appointmentListResponse{Appointments: items})
}

func (h *AppointmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	snapshot, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAppointmentDTO(snapshot))
}

func (h *AppointmentHandler) Join(w http.ResponseWriter, r *http.Request) {
	h.rosterAction(w, r, "join")
}

func (h *AppointmentHandler) Leave(w http.ResponseWriter, r *http.Request) {
	h.rosterAction(w, r, "leave")
}

func (h *AppointmentHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.rosterAction(w, r, "cancel")
}

func (h *AppointmentHandler) rosterAction(w http.ResponseWriter, r *http.Request, action string) {
	if h == nil || h.service == nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	id, ok := ResourceIDFromContext(r.Context())
	if !ok || strings.TrimSpace(id) == "" {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errInvalidResourceID)
		return
	}

	var req userRequest
	if err := decodeJSON(r, &req); err != nil {
		h.responder.writeError(r.Context(), w, http.StatusBadRequest, errBadRequestBody)
		return
	}

	var (
		snapshot application.AppointmentSnapshot
		err      error
	)
	switch action {
	case "join":
		snapshot, err = h.service.Join(r.Context(), id, req.UserID)
	case "leave":
		snapshot, err = h.service.Leave(r.Context(), id, req.UserID)
	default:
		snapshot, err = h.service.Cancel(r.Context(), id, req.UserID)
	}
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	handlerLogger(r.Context(), h.logger, "AppointmentHandler", action).
		InfoContext(r.Context(), "appointment updated", "user_id", req.UserID, "state", snapshot.State)
	h.responder.writeJSON(r.Context(), w, http.StatusOK, toAppointmentDTO(snapshot))
}

type appointmentRequest struct {
	Activity       string `json:"activity"`
	Capacity       int    `json:"capacity"`
	Time           string `json:"time"`
	Channel        string `json:"channel"`
	GatheringPoint string `json:"gathering_point"`
	CreatorID      string `json:"creator_id"`
}

func (req appointmentRequest) toParams() application.CreateAppointmentParams {
	return application.CreateAppointmentParams{
		Activity:       req.Activity,
		Capacity:       req.Capacity,
		Time:           req.Time,
		Channel:        req.Channel,
		GatheringPoint: req.GatheringPoint,
		CreatorID:      req.CreatorID,
	}
}

type userRequest struct {
	UserID string `json:"user_id"`
}

type appointmentDTO struct {
	ID               string       `json:"id"`
	Activity         string       `json:"activity"`
	Capacity         int          `json:"capacity"`
	ScheduledAt      time.Time    `json:"scheduled_at"`
	Channel          string       `json:"channel"`
	GatheringPoint   string       `json:"gathering_point"`
	CreatorID        string       `json:"creator_id"`
	Participants     []string     `json:"participants"`
	Arrivals         []arrivalDTO `json:"arrivals"`
	FiredCheckpoints []int        `json:"fired_checkpoints"`
	Notified         bool         `json:"notified"`
	State            string       `json:"state"`
	EndedAt          *time.Time   `json:"ended_at,omitempty"`
}

type arrivalDTO struct {
	UserID    string    `json:"user_id"`
	ArrivedAt time.Time `json:"arrived_at"`
}

type appointmentListResponse struct {
	Appointments []appointmentDTO `json:"appointments"`
}

func toAppointmentDTO(s application.AppointmentSnapshot) appointmentDTO {
	arrivals := make([]arrivalDTO, 0, len(s.Arrivals))
	for userID, at := range s.Arrivals {
		arrivals = append(arrivals, arrivalDTO{UserID: userID, ArrivedAt: at})
	}
	sort.Slice(arrivals, func(i, j int) bool {
		if !arrivals[i].ArrivedAt.Equal(arrivals[j].ArrivedAt) {
			return arrivals[i].ArrivedAt.Before(arrivals[j].ArrivedAt)
		}
		return arrivals[i].UserID < arrivals[j].UserID
	})

	participants := s.Participants
	if participants == nil {
		participants = []string{}
	}
	checkpoints := s.FiredCheckpoints
	if checkpoints == nil {
		checkpoints = []int{}
	}

	return appointmentDTO{
		ID:               s.ID,
		Activity:         s.Activity,
		Capacity:         s.Capacity,
		ScheduledAt:      s.ScheduledAt,
		Channel:          s.Channel,
		GatheringPoint:   s.GatheringPoint,
		CreatorID:        s.CreatorID,
		Participants:     participants,
		Arrivals:         arrivals,
		FiredCheckpoints: checkpoints,
		Notified:         s.Notified,
		State:            string(s.State),
		EndedAt:          s.EndedAt,
	}
}
