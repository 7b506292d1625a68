package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ridesplit/ridesplit/internal/handler/dto"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/realtime"
	"github.com/ridesplit/ridesplit/internal/service"
)

type fakeChatService struct {
	history  []*model.Message
	events   []realtime.Event
	block    bool
	lastID   string
	sent     string
	authzErr error
	err      error
}

func (f *fakeChatService) Send(_ context.Context, groupID, userID, content string) (*model.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.sent = content
	return &model.Message{ID: "m1", GroupID: groupID, UserID: userID, Content: content}, nil
}

func (f *fakeChatService) History(_ context.Context, _, _ string) ([]*model.Message, error) {
	return f.history, f.err
}

func (f *fakeChatService) Authorize(_ context.Context, _, _ string) error {
	return f.authzErr
}

func (f *fakeChatService) Subscribe(ctx context.Context, _, _, lastID string, deliver func(realtime.Event) error) error {
	f.lastID = lastID
	for _, ev := range f.events {
		if err := deliver(ev); err != nil {
			return err
		}
	}
	if f.block {
		<-ctx.Done()
	}
	return nil
}

func messageRouter(h *MessageHandler) http.Handler {
	r := chi.NewRouter()
	r.Get("/groups/{id}/messages", h.List)
	r.Post("/groups/{id}/messages", h.Send)
	r.Get("/groups/{id}/messages/stream", h.Stream)
	return r
}

const testGroupPath = "/groups/01HZXGROUP0000000000000000"

func TestMessageHandler_List(t *testing.T) {
	h := NewMessageHandler(&fakeChatService{}, testLogger())

	rec := httptest.NewRecorder()
	messageRouter(h).ServeHTTP(rec, asRider(httptest.NewRequest(http.MethodGet, testGroupPath+"/messages", nil), "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if strings.TrimSpace(rec.Body.String()) != `{"data":[]}` {
		t.Errorf("empty history should encode as [], got %s", rec.Body.String())
	}
}

func TestMessageHandler_Send(t *testing.T) {
	svc := &fakeChatService{}
	h := NewMessageHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, testGroupPath+"/messages", strings.NewReader(`{"content":"at door 4"}`))
	messageRouter(h).ServeHTTP(rec, asRider(req, "u1"))

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected status 201, got %d", rec.Code)
	}
	if svc.sent != "at door 4" {
		t.Errorf("sent %q", svc.sent)
	}

	var msg model.Message
	if err := json.NewDecoder(rec.Body).Decode(&msg); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if msg.UserID != "u1" || msg.GroupID != "01HZXGROUP0000000000000000" {
		t.Errorf("unexpected message: %+v", msg)
	}
}

func TestMessageHandler_SendNotMember(t *testing.T) {
	h := NewMessageHandler(&fakeChatService{err: service.ErrNotMember}, testLogger())

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, testGroupPath+"/messages", strings.NewReader(`{"content":"hi"}`))
	messageRouter(h).ServeHTTP(rec, asRider(req, "mallory"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	var body dto.ErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Code != "NOT_MEMBER" {
		t.Errorf("code = %s, want NOT_MEMBER", body.Code)
	}
}

func TestMessageHandler_Stream(t *testing.T) {
	svc := &fakeChatService{events: []realtime.Event{
		{StreamID: "1700000000000-0", Message: &model.Message{ID: "m1", Content: "landed"}},
		{StreamID: "1700000000001-0", Message: &model.Message{ID: "m2", Content: "at B"}},
	}}
	h := NewMessageHandler(svc, testLogger())

	req := httptest.NewRequest(http.MethodGet, testGroupPath+"/messages/stream", nil)
	req.Header.Set("Last-Event-ID", "1699999999999-0")
	rec := httptest.NewRecorder()
	messageRouter(h).ServeHTTP(rec, asRider(req, "u1"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}
	if svc.lastID != "1699999999999-0" {
		t.Errorf("resume id = %q", svc.lastID)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"id: 1700000000000-0\nevent: message\ndata: {",
		`"content":"landed"`,
		"id: 1700000000001-0\n",
		`"content":"at B"`,
	} {
		if !strings.Contains(body, want) {
			t.Errorf("stream missing %q in %q", want, body)
		}
	}
}

func TestMessageHandler_StreamHeartbeat(t *testing.T) {
	h := NewMessageHandler(&fakeChatService{block: true}, testLogger())
	h.heartbeat = 5 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	req := httptest.NewRequest(http.MethodGet, testGroupPath+"/messages/stream?last_event_id=0", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	messageRouter(h).ServeHTTP(rec, asRider(req, "u1"))

	if !strings.Contains(rec.Body.String(), ": ping\n\n") {
		t.Errorf("expected heartbeat comment, got %q", rec.Body.String())
	}
}

func TestMessageHandler_StreamRejectsOutsider(t *testing.T) {
	h := NewMessageHandler(&fakeChatService{authzErr: service.ErrNotMember}, testLogger())

	rec := httptest.NewRecorder()
	messageRouter(h).ServeHTTP(rec, asRider(httptest.NewRequest(http.MethodGet, testGroupPath+"/messages/stream", nil), "mallory"))

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}
}
