package server

import (
	"net/http"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/auth"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/config"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/metrics"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/mw"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/presence"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/service"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/storage"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
func SetupRouter(cfg config.Config, db *gorm.DB, table *presence.Table, images *storage.ImageStore) *gin.Engine {
	groupSvc := service.NewGroupService(db)
	router := fanout.NewRouter(table, groupSvc)
	userSvc := service.NewUserService(db, cfg, images)
	friendSvc := service.NewFriendService(db, router)
	msgSvc := service.NewMessageService(db, router, groupSvc, images)
	h := NewHandler(userSvc, friendSvc, groupSvc, msgSvc)
	gateway := ws.NewGateway(cfg, db, table, router, userSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率，防止接口被刷爆。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")

	api.POST("/auth/signup", h.Signup)
	api.POST("/auth/login", h.Login)
	api.POST("/auth/refresh", h.RefreshToken)
	api.POST("/auth/logout", h.Logout)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/auth/check", h.CheckAuth)
	authed.PUT("/auth/update-profile", h.UpdateProfile)
	authed.GET("/users/search", h.SearchUsers)

	authed.POST("/friends/request/:userId", h.SendFriendRequest)
	authed.POST("/friends/accept/:userId", h.AcceptFriendRequest)
	authed.POST("/friends/decline/:userId", h.DeclineFriendRequest)
	authed.DELETE("/friends/:userId", h.RemoveFriend)
	authed.GET("/friends/requests", h.ListFriendRequests)
	authed.GET("/friends", h.ListFriends)

	authed.POST("/groups", h.CreateGroup)
	authed.GET("/groups", h.ListGroups)
	authed.POST("/groups/:groupId/members/:userId", h.AddGroupMember)
	authed.DELETE("/groups/:groupId/members/:userId", h.RemoveGroupMember)

	authed.GET("/messages/search", h.SearchMessages)
	authed.GET("/messages/:id", h.ListMessages)
	authed.POST("/messages/send/:id", h.SendMessage)
	authed.PUT("/messages/edit/:messageId", h.EditMessage)
	authed.DELETE("/messages/delete/:messageId", h.DeleteMessage)
	authed.POST("/messages/read/:messageId", h.MarkAsRead)

	r.GET("/ws", gateway.Serve())

	r.Static("/uploads", images.Dir())
	return r
}
