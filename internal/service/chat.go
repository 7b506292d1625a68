package service

import (
	"context"
	"errors"
	"html"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"

	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/model"
	"github.com/ridesplit/ridesplit/internal/realtime"
	"github.com/ridesplit/ridesplit/internal/repository"
)

const (
	// MaxMessageLength is the longest chat message accepted, in characters.
	MaxMessageLength = 1000

	historyLimit = 500
)

// GroupReader loads a single group.
type GroupReader interface {
	GetGroup(ctx context.Context, id string) (*model.Group, error)
}

// MessageStore persists chat messages.
type MessageStore interface {
	CreateMessage(ctx context.Context, m *model.Message) error
	ListMessages(ctx context.Context, groupID string, limit int) ([]*model.Message, error)
}

// MessageBroker delivers messages to connected riders.
type MessageBroker interface {
	Publish(ctx context.Context, msg *model.Message) (string, error)
	Read(ctx context.Context, groupID, lastID string) ([]realtime.Event, error)
	LatestID(ctx context.Context, groupID string) (string, error)
}

// ChatService handles group chat.
type ChatService struct {
	groups   GroupReader
	messages MessageStore
	broker   MessageBroker
	policy   *bluemonday.Policy
	logger   *slog.Logger
	metrics  metrics.Recorder
}

// NewChatService creates a new ChatService.
func NewChatService(groups GroupReader, messages MessageStore, broker MessageBroker, logger *slog.Logger, recorder metrics.Recorder) *ChatService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &ChatService{
		groups:   groups,
		messages: messages,
		broker:   broker,
		policy:   bluemonday.StrictPolicy(),
		logger:   logger.With("component", "service.chat"),
		metrics:  recorder,
	}
}

// Send stores a message from a group member and fans it out.
// A failed fan-out is logged; the message stays in history.
func (s *ChatService) Send(ctx context.Context, groupID, userID, content string) (*model.Message, error) {
	if _, err := requireMember(ctx, s.groups, groupID, userID); err != nil {
		return nil, err
	}

	text := s.clean(content)
	if text == "" {
		return nil, invalid("message is empty")
	}
	if utf8.RuneCountInString(text) > MaxMessageLength {
		return nil, invalid("message exceeds %d characters", MaxMessageLength)
	}

	msg := &model.Message{
		ID:      ulid.Make().String(),
		GroupID: groupID,
		UserID:  userID,
		Content: text,
		SentAt:  time.Now().UTC(),
	}
	if err := s.messages.CreateMessage(ctx, msg); err != nil {
		return nil, repoErr("create message", err)
	}
	s.metrics.IncMessageSent()

	if _, err := s.broker.Publish(ctx, msg); err != nil {
		s.logger.Warn("failed to publish message",
			"group_id", groupID,
			"message_id", msg.ID,
			"error", err,
		)
	}
	return msg, nil
}

// History returns a group's messages, oldest first.
func (s *ChatService) History(ctx context.Context, groupID, userID string) ([]*model.Message, error) {
	if _, err := requireMember(ctx, s.groups, groupID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.messages.ListMessages(ctx, groupID, historyLimit)
	if err != nil {
		return nil, repoErr("list messages", err)
	}
	return msgs, nil
}

// Authorize checks that userID may read the group's chat.
func (s *ChatService) Authorize(ctx context.Context, groupID, userID string) error {
	_, err := requireMember(ctx, s.groups, groupID, userID)
	return err
}

// Subscribe calls deliver for every message published to the group after
// lastID until ctx is done or deliver fails. An empty lastID starts from
// the newest message.
func (s *ChatService) Subscribe(ctx context.Context, groupID, userID, lastID string, deliver func(realtime.Event) error) error {
	if _, err := requireMember(ctx, s.groups, groupID, userID); err != nil {
		return err
	}

	if lastID == "" {
		latest, err := s.broker.LatestID(ctx, groupID)
		if err != nil {
			return repoErr("stream position", err)
		}
		lastID = latest
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		events, err := s.broker.Read(ctx, groupID, lastID)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return repoErr("read stream", err)
		}

		for _, ev := range events {
			if err := deliver(ev); err != nil {
				return err
			}
			lastID = ev.StreamID
		}
	}
}

// maxCleanPasses bounds how many layers of entity encoding clean peels.
const maxCleanPasses = 4

// clean strips markup and surrounding whitespace from chat text. Stored
// content is plain text, so entities are decoded; each decoded layer is
// sanitized again until nothing changes, so encoded tags never survive.
// Text that is still changing after maxCleanPasses is dropped.
func (s *ChatService) clean(content string) string {
	text := content
	for range maxCleanPasses {
		next := html.UnescapeString(s.policy.Sanitize(text))
		if next == text {
			return strings.TrimSpace(text)
		}
		text = next
	}
	return ""
}

// requireMember loads a group and checks the rider belongs to it.
func requireMember(ctx context.Context, groups GroupReader, groupID, userID string) (*model.Group, error) {
	if groupID == "" || userID == "" {
		return nil, invalid("group and user are required")
	}
	g, err := groups.GetGroup(ctx, groupID)
	if err != nil {
		if errors.Is(err, repository.ErrGroupNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, repoErr("get group", err)
	}
	if !g.HasMember(userID) {
		return nil, ErrNotMember
	}
	return g, nil
}
