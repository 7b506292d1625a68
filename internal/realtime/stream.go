// Package realtime fans group chat messages out to connected riders
// through Redis streams.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ridesplit/ridesplit/internal/metrics"
	"github.com/ridesplit/ridesplit/internal/model"
)

const (
	// MaxStreamLen is the approximate max length of a group stream.
	MaxStreamLen = 1000

	// PublishTimeout is the max time to wait for Redis publish.
	PublishTimeout = 500 * time.Millisecond

	// DefaultBlockTimeout is how long a read blocks waiting for messages.
	DefaultBlockTimeout = 15 * time.Second

	// StartLatest reads only messages published after the read starts.
	StartLatest = "$"
)

// StreamKey returns the Redis stream holding a group's messages.
func StreamKey(groupID string) string {
	return "stream:group:" + groupID + ":messages"
}

// messagePayload is the compact wire format stored in the stream.
type messagePayload struct {
	ID      string `json:"id"`
	GroupID string `json:"gid"`
	UserID  string `json:"uid"`
	Content string `json:"c"`
	SentAt  int64  `json:"t"` // Unix milliseconds
}

// Event is a message read back from a group stream.
type Event struct {
	StreamID string
	Message  *model.Message
}

// Hub publishes and reads group chat streams.
type Hub struct {
	redis        *redis.Client
	logger       *slog.Logger
	metrics      metrics.Recorder
	blockTimeout time.Duration
}

// NewHub creates a new Hub.
func NewHub(client *redis.Client, logger *slog.Logger, recorder metrics.Recorder) *Hub {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Hub{
		redis:        client,
		logger:       logger.With("component", "realtime.hub"),
		metrics:      recorder,
		blockTimeout: DefaultBlockTimeout,
	}
}

// Publish appends a message to its group stream and returns the stream ID.
func (h *Hub) Publish(ctx context.Context, msg *model.Message) (string, error) {
	data, err := json.Marshal(messagePayload{
		ID:      msg.ID,
		GroupID: msg.GroupID,
		UserID:  msg.UserID,
		Content: msg.Content,
		SentAt:  msg.SentAt.UnixMilli(),
	})
	if err != nil {
		return "", fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, PublishTimeout)
	defer cancel()

	id, err := h.redis.XAdd(ctx, &redis.XAddArgs{
		Stream: StreamKey(msg.GroupID),
		MaxLen: MaxStreamLen,
		Approx: true,
		ID:     "*",
		Values: map[string]interface{}{
			"payload": string(data),
		},
	}).Result()
	if err != nil {
		h.metrics.IncStreamPublish("dropped")
		return "", fmt.Errorf("xadd: %w", err)
	}

	h.metrics.IncStreamPublish("success")
	h.logger.Debug("message published", "group_id", msg.GroupID, "stream_id", id)
	return id, nil
}

// Read blocks until messages newer than lastID arrive on the group stream,
// the block timeout passes, or ctx is done. A timeout returns no events
// and no error.
func (h *Hub) Read(ctx context.Context, groupID, lastID string) ([]Event, error) {
	if lastID == "" {
		lastID = StartLatest
	}

	streams, err := h.redis.XRead(ctx, &redis.XReadArgs{
		Streams: []string{StreamKey(groupID), lastID},
		Count:   100,
		Block:   h.blockTimeout,
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("xread: %w", err)
	}

	var events []Event
	for _, stream := range streams {
		for _, xmsg := range stream.Messages {
			msg, err := decodeMessage(xmsg)
			if err != nil {
				h.logger.Warn("skipping malformed stream entry",
					"group_id", groupID,
					"stream_id", xmsg.ID,
					"error", err,
				)
				continue
			}
			events = append(events, Event{StreamID: xmsg.ID, Message: msg})
		}
	}
	return events, nil
}

// LatestID returns the ID of the newest entry in a group stream, or "0"
// when the stream is empty.
func (h *Hub) LatestID(ctx context.Context, groupID string) (string, error) {
	msgs, err := h.redis.XRevRangeN(ctx, StreamKey(groupID), "+", "-", 1).Result()
	if err != nil {
		return "", fmt.Errorf("xrevrange: %w", err)
	}
	if len(msgs) == 0 {
		return "0", nil
	}
	return msgs[0].ID, nil
}

// Drop deletes a group's stream.
func (h *Hub) Drop(ctx context.Context, groupIDs ...string) error {
	if len(groupIDs) == 0 {
		return nil
	}
	keys := make([]string, len(groupIDs))
	for i, id := range groupIDs {
		keys[i] = StreamKey(id)
	}
	if err := h.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("drop streams: %w", err)
	}
	return nil
}

func decodeMessage(xmsg redis.XMessage) (*model.Message, error) {
	raw, ok := xmsg.Values["payload"].(string)
	if !ok {
		return nil, errors.New("missing payload")
	}

	var p messagePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("unmarshal payload: %w", err)
	}

	return &model.Message{
		ID:      p.ID,
		GroupID: p.GroupID,
		UserID:  p.UserID,
		Content: p.Content,
		SentAt:  time.UnixMilli(p.SentAt).UTC(),
	}, nil
}
