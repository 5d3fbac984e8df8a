package presence

import (
	"sort"
	"sync"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/metrics"
)

// Session 是一条活跃连接的投递句柄。Send 非阻塞，缓冲满时返回 false。
type Session interface {
	UserID() uint
	Send(data []byte) bool
}

// Table 维护 userID → 活跃连接 的内存映射，是"谁在线"的唯一事实来源。
// 仅由 Session Gateway 写入，Fanout Router 只读。
type Table struct {
	mu       sync.RWMutex
	sessions map[uint]Session
}

func NewTable() *Table {
	return &Table{sessions: make(map[uint]Session)}
}

// Register 记录用户的活跃连接；同一用户的新连接会顶掉旧映射。
func (t *Table) Register(userID uint, s Session) {
	t.mu.Lock()
	_, had := t.sessions[userID]
	t.sessions[userID] = s
	t.mu.Unlock()
	if !had {
		metrics.PresenceSessions.Inc()
	}
}

// Unregister 只在存储的句柄与调用方一致时删除映射，
// 避免迟到的断开通知挤掉同一用户更新的连接。重复调用是空操作。
func (t *Table) Unregister(userID uint, s Session) {
	t.mu.Lock()
	cur, ok := t.sessions[userID]
	if ok && cur == s {
		delete(t.sessions, userID)
	} else {
		ok = false
	}
	t.mu.Unlock()
	if ok {
		metrics.PresenceSessions.Dec()
	}
}

func (t *Table) Lookup(userID uint) (Session, bool) {
	t.mu.RLock()
	s, ok := t.sessions[userID]
	t.mu.RUnlock()
	return s, ok
}

// Snapshot 返回当前在线的全部 userID，升序排列以保持广播负载稳定。
func (t *Table) Snapshot() []uint {
	t.mu.RLock()
	ids := make([]uint, 0, len(t.sessions))
	for id := range t.sessions {
		ids = append(ids, id)
	}
	t.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Sessions 返回全部活跃连接，供全量广播使用。
func (t *Table) Sessions() []Session {
	t.mu.RLock()
	out := make([]Session, 0, len(t.sessions))
	for _, s := range t.sessions {
		out = append(out, s)
	}
	t.mu.RUnlock()
	return out
}
