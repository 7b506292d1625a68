package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/service"
	"github.com/ridesplit/ridesplit/internal/slot"
)

// GroupService finds, provisions and fills car groups.
type GroupService interface {
	Search(ctx context.Context, input service.SearchInput) (*service.SearchResult, error)
	FindGroups(ctx context.Context, airportID, terminalID string, base time.Time) ([]*model.Group, error)
	GetGroup(ctx context.Context, id string) (*model.Group, error)
	Join(ctx context.Context, groupID, userID string) (*model.Group, error)
}

// GroupHandler handles HTTP requests for group operations.
type GroupHandler struct {
	svc    GroupService
	logger *slog.Logger
}

// NewGroupHandler creates a new GroupHandler.
func NewGroupHandler(svc GroupService, logger *slog.Logger) *GroupHandler {
	return &GroupHandler{svc: svc, logger: logger}
}

// SlotLabels handles GET /api/v1/slots/labels.
func (h *GroupHandler) SlotLabels(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, dto.SlotLabelsResponse{
		Airports: model.SupportedAirports,
		Times:    slot.PickerLabels(),
	})
}

// Search handles POST /api/v1/groups/search.
func (h *GroupHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req dto.SearchGroupsRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	input, err := req.ToSearchInput()
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", err.Error())
		return
	}

	result, err := h.svc.Search(r.Context(), input)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToSearchGroupsResponse(result))
}

// List handles GET /api/v1/groups?airport_id=&terminal_id=&time=.
// time is an RFC 3339 instant.
func (h *GroupHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	base, err := time.Parse(time.RFC3339, query.Get("time"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_INPUT", "time must be an RFC 3339 timestamp")
		return
	}

	groups, err := h.svc.FindGroups(r.Context(), query.Get("airport_id"), query.Get("terminal_id"), base)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.GroupListResponse{Data: dto.ToGroupList(groups)})
}

// Get handles GET /api/v1/groups/{id}.
func (h *GroupHandler) Get(w http.ResponseWriter, r *http.Request) {
	group, err := h.svc.GetGroup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToGroupResponse(group))
}

// Join handles POST /api/v1/groups/{id}/join.
func (h *GroupHandler) Join(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	group, err := h.svc.Join(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.ToGroupResponse(group))
}
