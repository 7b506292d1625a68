package dto

import "github.com/ridesplit/ridesplit/internal/model"

// SendMessageRequest is the body of POST /api/v1/groups/{id}/messages.
type SendMessageRequest struct {
	Content string `json:"content"`
}

// MessageListResponse wraps a group's chat history.
type MessageListResponse struct {
	Data []*model.Message `json:"data"`
}

// NewMessageList returns history with an empty slice instead of null.
func NewMessageList(msgs []*model.Message) *MessageListResponse {
	if msgs == nil {
		msgs = []*model.Message{}
	}
	return &MessageListResponse{Data: msgs}
}
