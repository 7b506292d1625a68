package realtime

import (
	"strconv"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

func TestStreamKey(t *testing.T) {
	if got := StreamKey("01HX"); got != "stream:group:01HX:messages" {
		t.Errorf("StreamKey = %q", got)
	}
}

func TestDecodeMessage(t *testing.T) {
	sent := time.Date(2026, 5, 1, 21, 3, 4, 0, time.UTC)

	tests := []struct {
		name    string
		values  map[string]interface{}
		wantErr bool
	}{
		{
			name: "valid",
			values: map[string]interface{}{
				"payload": `{"id":"m1","gid":"g1","uid":"u1","c":"on my way","t":` + strconv.FormatInt(sent.UnixMilli(), 10) + `}`,
			},
		},
		{name: "missing payload", values: map[string]interface{}{}, wantErr: true},
		{name: "bad json", values: map[string]interface{}{"payload": "{"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := decodeMessage(redis.XMessage{ID: "1-0", Values: tt.values})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("decodeMessage error = %v", err)
			}
			if msg.ID != "m1" || msg.GroupID != "g1" || msg.UserID != "u1" || msg.Content != "on my way" {
				t.Errorf("decoded = %+v", msg)
			}
			if !msg.SentAt.Equal(sent) {
				t.Errorf("SentAt = %v, want %v", msg.SentAt, sent)
			}
		})
	}
}
