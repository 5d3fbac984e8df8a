package fanout

import "encoding/json"

// 实时事件名是与前端的线上契约，与原接口保持一致。
const (
	EventOnlineUsers    = "getOnlineUsers"
	EventNewMessage     = "newMessage"
	EventMessageEdited  = "messageEdited"
	EventMessageDeleted = "messageDeleted"
	EventTyping         = "typing"
	EventFriendRequest  = "friendRequest"
)

type Event struct {
	Name string      `json:"event"`
	Data interface{} `json:"data"`
}

func (e Event) encode() ([]byte, error) {
	return json.Marshal(e)
}
