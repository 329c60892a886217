package messaging

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/lysyi3m/birdbrain-relay/app/store"
)

type MessageType string

const (
	TypeCheckIncomplete   MessageType = "CHECK_INCOMPLETE"
	TypeHydrationSuccess  MessageType = "HYDRATION_SUCCESS"
	TypeRefreshIncomplete MessageType = "REFRESH_INCOMPLETE"
	TypeSyncSuccess       MessageType = "SYNC_SUCCESS"
	TypeSyncError         MessageType = "SYNC_ERROR"
	TypeShowToast         MessageType = "SHOW_TOAST"
)

// UITypes are consumed by interface listeners, which may be absent.
var UITypes = []MessageType{TypeSyncSuccess, TypeSyncError, TypeShowToast}

var (
	ErrNoHandler = errors.New("no receiver for message type")
	ErrStopped   = errors.New("message bus stopped")
)

type Message struct {
	ID      string      `json:"id"`
	Type    MessageType `json:"type"`
	TweetID string      `json:"tweetId,omitempty"`
	Count   int         `json:"count,omitempty"`
	Message string      `json:"message,omitempty"`
}

// Reply is the single response to a request. Only CHECK_INCOMPLETE fills it.
type Reply struct {
	IsIncomplete bool          `json:"isIncomplete"`
	Data         *store.Record `json:"data,omitempty"`
}

type Handler func(ctx context.Context, msg Message) (Reply, error)

func NewMessage(t MessageType) Message {
	return Message{ID: uuid.NewString(), Type: t}
}

func CheckIncomplete(tweetID string) Message {
	msg := NewMessage(TypeCheckIncomplete)
	msg.TweetID = tweetID
	return msg
}

func HydrationSuccess(tweetID string) Message {
	msg := NewMessage(TypeHydrationSuccess)
	msg.TweetID = tweetID
	return msg
}

func RefreshIncomplete() Message {
	return NewMessage(TypeRefreshIncomplete)
}

func SyncSuccess(count int) Message {
	msg := NewMessage(TypeSyncSuccess)
	msg.Count = count
	return msg
}

func SyncError(text string) Message {
	msg := NewMessage(TypeSyncError)
	msg.Message = text
	return msg
}

func ShowToast(tweetID, text string) Message {
	msg := NewMessage(TypeShowToast)
	msg.TweetID = tweetID
	msg.Message = text
	return msg
}
