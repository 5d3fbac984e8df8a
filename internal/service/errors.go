package service

import "errors"

// 业务层通用错误，handler 按错误类型映射 HTTP 状态码。
// 校验、越权、超出可改窗口、未找到是四类互不混淆的失败。
var (
	// 校验失败
	ErrNoTarget     = errors.New("message needs a receiver or a group")
	ErrEmptyMessage = errors.New("message needs text or an image")
	ErrInvalidImage = errors.New("invalid image payload")

	// 越权
	ErrNotSender      = errors.New("not the message sender")
	ErrNotParticipant = errors.New("not a participant of this message")
	ErrNotGroupMember = errors.New("not a member of this group")
	ErrNotGroupAdmin  = errors.New("not an admin of this group")

	// 超出可改窗口（与越权区分上报）
	ErrWindowExpired = errors.New("mutability window expired")

	// 未找到
	ErrUserNotFound    = errors.New("user not found")
	ErrGroupNotFound   = errors.New("group not found")
	ErrMessageNotFound = errors.New("message not found")

	// 账号
	ErrEmailTaken         = errors.New("email taken")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// 好友
	ErrSelfRequest      = errors.New("cannot send request to yourself")
	ErrAlreadyFriends   = errors.New("already friends")
	ErrRequestPending   = errors.New("request already sent")
	ErrNoPendingRequest = errors.New("no pending request")
	ErrNotFriends       = errors.New("not friends")

	// 群
	ErrAlreadyMember = errors.New("user already in group")
	ErrLastAdmin     = errors.New("group needs at least one admin")
)
