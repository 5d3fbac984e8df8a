package fanout

import (
	"github.com/Nelly6002/fullstack-chat-app-master/internal/metrics"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/presence"
	"github.com/rs/zerolog/log"
)

// Membership 提供群成员名单，由 group service 实现。
type Membership interface {
	GroupMembers(groupID uint) ([]uint, error)
}

// Router 把一条会话事件投递给恰好应该看到它的在线连接。
// 不在线的接收者被静默跳过：尽力投递，不排队不重试。
type Router struct {
	table      *presence.Table
	membership Membership
}

func NewRouter(table *presence.Table, membership Membership) *Router {
	return &Router{table: table, membership: membership}
}

// Deliver 按目标解析接收者集合并逐个投递。
// 私聊：接收者只有对端一人；群：当前成员减去操作者，逐个独立解析，
// 部分成员不在线是预期内的部分投递，不是错误。
func (r *Router) Deliver(actorID uint, target Target, evt Event) {
	data, err := evt.encode()
	if err != nil {
		log.Error().Err(err).Str("event", evt.Name).Msg("fanout encode")
		return
	}
	switch {
	case target.IsDirect():
		r.sendTo(target.PeerID(), evt.Name, data)
	case target.IsGroup():
		members, err := r.membership.GroupMembers(target.GroupID())
		if err != nil {
			log.Error().Err(err).Uint("group_id", target.GroupID()).Str("event", evt.Name).Msg("fanout members")
			return
		}
		for _, m := range members {
			if m == actorID {
				continue
			}
			r.sendTo(m, evt.Name, data)
		}
	}
}

// ToUser 把事件投递给单个用户（好友请求通知等）。
func (r *Router) ToUser(userID uint, evt Event) {
	data, err := evt.encode()
	if err != nil {
		log.Error().Err(err).Str("event", evt.Name).Msg("fanout encode")
		return
	}
	r.sendTo(userID, evt.Name, data)
}

// Broadcast 把事件投递给全部在线连接（在线名单快照）。
func (r *Router) Broadcast(evt Event) {
	data, err := evt.encode()
	if err != nil {
		log.Error().Err(err).Str("event", evt.Name).Msg("fanout encode")
		return
	}
	for _, s := range r.table.Sessions() {
		if s.Send(data) {
			metrics.EventsDeliveredTotal.WithLabelValues(evt.Name).Inc()
		} else {
			metrics.EventsDroppedTotal.WithLabelValues(evt.Name).Inc()
		}
	}
}

// sendTo 对不在线的接收者直接丢弃，这是约定的语义而非故障。
func (r *Router) sendTo(userID uint, name string, data []byte) {
	s, ok := r.table.Lookup(userID)
	if !ok {
		metrics.EventsDroppedTotal.WithLabelValues(name).Inc()
		return
	}
	if s.Send(data) {
		metrics.EventsDeliveredTotal.WithLabelValues(name).Inc()
	} else {
		metrics.EventsDroppedTotal.WithLabelValues(name).Inc()
	}
}
