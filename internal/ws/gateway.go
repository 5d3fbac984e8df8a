package ws

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/auth"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/config"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/presence"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway 接收实时连接：握手认证、登记在线表、广播在线名单，
// 并在断开时做带句柄匹配的幂等注销。
type Gateway struct {
	cfg    config.Config
	db     *gorm.DB
	table  *presence.Table
	router *fanout.Router
	users  *service.UserService
}

func NewGateway(cfg config.Config, db *gorm.DB, table *presence.Table, router *fanout.Router, users *service.UserService) *Gateway {
	return &Gateway{cfg: cfg, db: db, table: table, router: router, users: users}
}

// typing 信号原样转发给私聊对端，不落库。
type inboundFrame struct {
	Type     string `json:"type"`
	To       uint   `json:"to"`
	IsTyping bool   `json:"is_typing"`
}

// Serve 处理 GET /ws 握手。身份来自连接时携带的 access token，
// 无法认证则拒绝升级。
func (g *Gateway) Serve() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token, _ = auth.BearerToken(c.GetHeader("Authorization"))
		}
		if token == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		claims, err := auth.ParseAccessToken(token, g.cfg.JWTSecret)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		var user models.User
		if err := g.db.First(&user, claims.UserID).Error; err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}
		client := newClient(user.ID, user.FullName, conn)
		g.table.Register(client.userID, client)
		g.touchLastSeen(client.userID)
		// 广播全量在线名单而非增量，掉一次广播也不会让客户端视图漂移。
		g.broadcastOnline()

		go client.writePump()
		g.readPump(client)
	}
}

func (g *Gateway) readPump(c *Client) {
	defer func() {
		g.disconnect(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(1 << 20) // 1MB
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
		var in inboundFrame
		if err := json.Unmarshal(data, &in); err != nil {
			continue
		}
		if in.Type == "typing" && in.To != 0 {
			g.router.ToUser(in.To, fanout.Event{
				Name: fanout.EventTyping,
				Data: map[string]interface{}{"from": c.userID, "is_typing": in.IsTyping},
			})
		}
	}
}

// disconnect 对重复的断开信号是幂等的：注销只在句柄仍然匹配时生效。
func (g *Gateway) disconnect(c *Client) {
	g.table.Unregister(c.userID, c)
	g.touchLastSeen(c.userID)
	g.broadcastOnline()
}

// touchLastSeen 异步尽力更新，失败不影响广播路径。
func (g *Gateway) touchLastSeen(userID uint) {
	go func() {
		if err := g.users.TouchLastSeen(userID); err != nil {
			log.Warn().Err(err).Uint("user_id", userID).Msg("touch last seen")
		}
	}()
}

func (g *Gateway) broadcastOnline() {
	g.router.Broadcast(fanout.Event{Name: fanout.EventOnlineUsers, Data: g.table.Snapshot()})
}
