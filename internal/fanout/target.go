package fanout

import "github.com/Nelly6002/fullstack-chat-app-master/internal/models"

type targetKind uint8

const (
	targetDirect targetKind = iota + 1
	targetGroup
)

// Target 表示一条会话事件的去向：私聊对端或群。
// 两个构造函数保证"恰好一个"，不存在既无接收者又无群的消息目标。
type Target struct {
	kind targetKind
	id   uint
}

func DirectTo(userID uint) Target { return Target{kind: targetDirect, id: userID} }
func GroupTo(groupID uint) Target { return Target{kind: targetGroup, id: groupID} }

func (t Target) IsDirect() bool { return t.kind == targetDirect }
func (t Target) IsGroup() bool  { return t.kind == targetGroup }
func (t Target) IsZero() bool   { return t.kind == 0 }

// PeerID 仅对私聊目标有意义。
func (t Target) PeerID() uint { return t.id }

// GroupID 仅对群目标有意义。
func (t Target) GroupID() uint { return t.id }

// Apply 把目标落到消息行的外键列上。
func (t Target) Apply(m *models.Message) {
	switch t.kind {
	case targetDirect:
		id := t.id
		m.ReceiverID = &id
	case targetGroup:
		id := t.id
		m.GroupID = &id
	}
}

// TargetOf 从已持久化的消息行还原目标。
func TargetOf(m *models.Message) Target {
	if m.GroupID != nil {
		return GroupTo(*m.GroupID)
	}
	if m.ReceiverID != nil {
		return DirectTo(*m.ReceiverID)
	}
	return Target{}
}
