package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/realtime"
)

// DefaultHeartbeat is how often an idle event stream sends a comment line.
const DefaultHeartbeat = 15 * time.Second

// ChatService posts and streams group chat.
type ChatService interface {
	Send(ctx context.Context, groupID, userID, content string) (*model.Message, error)
	History(ctx context.Context, groupID, userID string) ([]*model.Message, error)
	Authorize(ctx context.Context, groupID, userID string) error
	Subscribe(ctx context.Context, groupID, userID, lastID string, deliver func(realtime.Event) error) error
}

// MessageHandler handles group chat requests.
type MessageHandler struct {
	svc       ChatService
	logger    *slog.Logger
	heartbeat time.Duration
}

// NewMessageHandler creates a new MessageHandler.
func NewMessageHandler(svc ChatService, logger *slog.Logger) *MessageHandler {
	return &MessageHandler{svc: svc, logger: logger, heartbeat: DefaultHeartbeat}
}

// List handles GET /api/v1/groups/{id}/messages.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	msgs, err := h.svc.History(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.NewMessageList(msgs))
}

// Send handles POST /api/v1/groups/{id}/messages.
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}

	var req dto.SendMessageRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	msg, err := h.svc.Send(r.Context(), chi.URLParam(r, "id"), userID, req.Content)
	if err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// Stream handles GET /api/v1/groups/{id}/messages/stream as Server-Sent
// Events. A reconnecting client resumes after Last-Event-ID (or the
// last_event_id query parameter).
func (h *MessageHandler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := riderID(w, r)
	if !ok {
		return
	}
	groupID := chi.URLParam(r, "id")

	if err := h.svc.Authorize(r.Context(), groupID, userID); err != nil {
		handleServiceError(h.logger, w, err)
		return
	}

	lastID := r.Header.Get("Last-Event-ID")
	if lastID == "" {
		lastID = r.URL.Query().Get("last_event_id")
	}

	rc := http.NewResponseController(w)
	// The server write timeout would otherwise cut the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		h.logger.Error("event stream unsupported", "error", err)
		return
	}

	var mu sync.Mutex
	send := func(write func(io.Writer) error) error {
		mu.Lock()
		defer mu.Unlock()
		if err := write(w); err != nil {
			return err
		}
		return rc.Flush()
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer cancel()
		return h.svc.Subscribe(gctx, groupID, userID, lastID, func(ev realtime.Event) error {
			data, err := json.Marshal(ev.Message)
			if err != nil {
				return fmt.Errorf("encode message: %w", err)
			}
			return send(func(out io.Writer) error {
				_, err := fmt.Fprintf(out, "id: %s\nevent: message\ndata: %s\n\n", ev.StreamID, data)
				return err
			})
		})
	})

	g.Go(func() error {
		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := send(func(out io.Writer) error {
					_, err := io.WriteString(out, ": ping\n\n")
					return err
				}); err != nil {
					return err
				}
			}
		}
	})

	if err := g.Wait(); err != nil && r.Context().Err() == nil {
		h.logger.Warn("event stream ended", "group_id", groupID, "user_id", userID, "error", err)
	}
}
