package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/auth"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// Handler 聚合所有 HTTP handler，依赖注入 service 层。
type Handler struct {
	userSvc   *service.UserService
	friendSvc *service.FriendService
	groupSvc  *service.GroupService
	msgSvc    *service.MessageService
}

func NewHandler(userSvc *service.UserService, friendSvc *service.FriendService, groupSvc *service.GroupService, msgSvc *service.MessageService) *Handler {
	return &Handler{userSvc: userSvc, friendSvc: friendSvc, groupSvc: groupSvc, msgSvc: msgSvc}
}

// respondError 把业务错误映射为 HTTP 状态码：
// 校验 400、窗口过期 400、凭证 401、越权 403、未找到 404、冲突 409。
func respondError(c *gin.Context, err error, logMsg string) {
	switch {
	case errors.Is(err, service.ErrNoTarget),
		errors.Is(err, service.ErrEmptyMessage),
		errors.Is(err, service.ErrInvalidImage),
		errors.Is(err, service.ErrSelfRequest),
		errors.Is(err, service.ErrNoPendingRequest),
		errors.Is(err, service.ErrNotFriends),
		errors.Is(err, service.ErrWindowExpired):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrNotSender),
		errors.Is(err, service.ErrNotParticipant),
		errors.Is(err, service.ErrNotGroupMember),
		errors.Is(err, service.ErrNotGroupAdmin):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrGroupNotFound),
		errors.Is(err, service.ErrMessageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrEmailTaken),
		errors.Is(err, service.ErrAlreadyFriends),
		errors.Is(err, service.ErrRequestPending),
		errors.Is(err, service.ErrAlreadyMember),
		errors.Is(err, service.ErrLastAdmin):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Msg(logMsg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

func paramUint(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return uint(v), true
}

// Signup 处理用户注册请求。
func (h *Handler) Signup(c *gin.Context) {
	var req struct {
		FullName string `json:"full_name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.FullName = strings.TrimSpace(req.FullName)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.FullName == "" || req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "all fields are required"})
		return
	}
	if len(req.Password) < 6 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "password must be at least 6 characters"})
		return
	}
	profile, err := h.userSvc.Signup(req.FullName, req.Email, req.Password)
	if err != nil {
		respondError(c, err, "signup")
		return
	}
	c.JSON(http.StatusCreated, profile)
}

// Login 处理用户登录请求。
func (h *Handler) Login(c *gin.Context) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if req.Email == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.Login(req.Email, req.Password)
	if err != nil {
		respondError(c, err, "login")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  result.AccessToken,
		"refresh_token": result.RefreshToken,
		"user":          result.User,
	})
}

// RefreshToken 处理 token 刷新请求。
func (h *Handler) RefreshToken(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	result, err := h.userSvc.RefreshTokens(req.RefreshToken)
	if err != nil {
		log.Warn().Err(err).Msg("refresh token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid refresh token"})
		return
	}
	c.JSON(http.StatusOK, result)
}

// Logout 撤销 refresh token；只携带 token 本身，access token 过期也能登出。
func (h *Handler) Logout(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	if err := h.userSvc.Logout(req.RefreshToken); err != nil {
		respondError(c, err, "logout")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// CheckAuth 返回当前用户资料。
func (h *Handler) CheckAuth(c *gin.Context) {
	profile, err := h.userSvc.Get(auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "check auth")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// UpdateProfile 更新头像、签名和状态行。
func (h *Handler) UpdateProfile(c *gin.Context) {
	var req struct {
		Bio        *string `json:"bio"`
		Status     *string `json:"status"`
		ProfilePic *string `json:"profile_pic"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	profile, err := h.userSvc.UpdateProfile(auth.GetUserID(c), service.ProfileUpdate{
		Bio:        req.Bio,
		Status:     req.Status,
		ProfilePic: req.ProfilePic,
	})
	if err != nil {
		respondError(c, err, "update profile")
		return
	}
	c.JSON(http.StatusOK, profile)
}

// SearchUsers 搜索用户并标注好友关系状态。
func (h *Handler) SearchUsers(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	results, err := h.friendSvc.Search(auth.GetUserID(c), query)
	if err != nil {
		respondError(c, err, "search users")
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": results})
}

// SendFriendRequest 发起好友请求。
func (h *Handler) SendFriendRequest(c *gin.Context) {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.friendSvc.SendRequest(auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "send friend request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request sent"})
}

// AcceptFriendRequest 接受好友请求。
func (h *Handler) AcceptFriendRequest(c *gin.Context) {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.friendSvc.Accept(auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "accept friend request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request accepted"})
}

// DeclineFriendRequest 拒绝好友请求。
func (h *Handler) DeclineFriendRequest(c *gin.Context) {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.friendSvc.Decline(auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "decline friend request")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend request declined"})
}

// RemoveFriend 解除好友关系。
func (h *Handler) RemoveFriend(c *gin.Context) {
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.friendSvc.Remove(auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "remove friend")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "friend removed"})
}

// ListFriendRequests 返回待处理的好友请求。
func (h *Handler) ListFriendRequests(c *gin.Context) {
	reqs, err := h.friendSvc.ListRequests(auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list friend requests")
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": reqs})
}

// ListFriends 返回好友列表。
func (h *Handler) ListFriends(c *gin.Context) {
	friends, err := h.friendSvc.ListFriends(auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list friends")
		return
	}
	c.JSON(http.StatusOK, gin.H{"friends": friends})
}

// CreateGroup 创建群。
func (h *Handler) CreateGroup(c *gin.Context) {
	var req struct {
		Name        string `json:"name"`
		Description string `json:"description"`
		Members     []uint `json:"members"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" || len(req.Name) > 128 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group name"})
		return
	}
	group, err := h.groupSvc.Create(auth.GetUserID(c), req.Name, req.Description, req.Members)
	if err != nil {
		respondError(c, err, "create group")
		return
	}
	c.JSON(http.StatusCreated, group)
}

// ListGroups 返回当前用户所在的群。
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.groupSvc.List(auth.GetUserID(c))
	if err != nil {
		respondError(c, err, "list groups")
		return
	}
	c.JSON(http.StatusOK, gin.H{"groups": groups})
}

// AddGroupMember 管理员拉人进群。
func (h *Handler) AddGroupMember(c *gin.Context) {
	groupID, ok := paramUint(c, "groupId")
	if !ok {
		return
	}
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.groupSvc.AddMember(groupID, auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "add group member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member added"})
}

// RemoveGroupMember 移除成员或自行退群。
func (h *Handler) RemoveGroupMember(c *gin.Context) {
	groupID, ok := paramUint(c, "groupId")
	if !ok {
		return
	}
	userID, ok := paramUint(c, "userId")
	if !ok {
		return
	}
	if err := h.groupSvc.RemoveMember(groupID, auth.GetUserID(c), userID); err != nil {
		respondError(c, err, "remove group member")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "member removed"})
}

// chatTarget 解析 type + chat id 为消息目标。
func chatTarget(chatType string, chatID uint) fanout.Target {
	if chatType == "group" {
		return fanout.GroupTo(chatID)
	}
	return fanout.DirectTo(chatID)
}

// SendMessage 发送私聊或群消息。
func (h *Handler) SendMessage(c *gin.Context) {
	chatID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	var req struct {
		Type    string `json:"type"` // user | group
		Text    string `json:"text"`
		Image   string `json:"image"`
		ReplyTo *uint  `json:"reply_to"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.msgSvc.Send(auth.GetUserID(c), chatTarget(req.Type, chatID), service.SendInput{
		Text:    req.Text,
		Image:   req.Image,
		ReplyTo: req.ReplyTo,
	})
	if err != nil {
		respondError(c, err, "send message")
		return
	}
	c.JSON(http.StatusCreated, msg)
}

// ListMessages 分页返回一个会话的消息。
func (h *Handler) ListMessages(c *gin.Context) {
	chatID, ok := paramUint(c, "id")
	if !ok {
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	msgs, err := h.msgSvc.List(auth.GetUserID(c), chatTarget(c.Query("type"), chatID), page, limit)
	if err != nil {
		respondError(c, err, "list messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// SearchMessages 会话内全文搜索。
func (h *Handler) SearchMessages(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	chatID, err := strconv.ParseUint(c.Query("chat_id"), 10, 64)
	if err != nil || chatID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid chat_id"})
		return
	}
	msgs, err2 := h.msgSvc.Search(auth.GetUserID(c), chatTarget(c.Query("type"), uint(chatID)), query)
	if err2 != nil {
		respondError(c, err2, "search messages")
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

// EditMessage 在可改窗口内编辑自己的消息。
func (h *Handler) EditMessage(c *gin.Context) {
	messageID, ok := paramUint(c, "messageId")
	if !ok {
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload"})
		return
	}
	msg, err := h.msgSvc.Edit(auth.GetUserID(c), messageID, req.Text)
	if err != nil {
		respondError(c, err, "edit message")
		return
	}
	c.JSON(http.StatusOK, msg)
}

// DeleteMessage 在可改窗口内软删除自己的消息。
func (h *Handler) DeleteMessage(c *gin.Context) {
	messageID, ok := paramUint(c, "messageId")
	if !ok {
		return
	}
	if err := h.msgSvc.Delete(auth.GetUserID(c), messageID); err != nil {
		respondError(c, err, "delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "message deleted"})
}

// MarkAsRead 记录已读回执，重复标记是空操作。
func (h *Handler) MarkAsRead(c *gin.Context) {
	messageID, ok := paramUint(c, "messageId")
	if !ok {
		return
	}
	if err := h.msgSvc.MarkAsRead(messageID, auth.GetUserID(c)); err != nil {
		respondError(c, err, "mark as read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "marked as read"})
}
