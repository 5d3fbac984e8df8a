package service

import (
	"errors"
	"strings"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"

	"gorm.io/gorm"
)

// FriendService 封装好友关系与好友请求。
// 不变量：好友关系对称，user_friends 里 (a,b) 与 (b,a) 同生同灭；
// 同一个 (from,to) 方向至多一条 pending 请求，被拒绝后允许重新发起。
type FriendService struct {
	db     *gorm.DB
	router *fanout.Router
}

func NewFriendService(db *gorm.DB, router *fanout.Router) *FriendService {
	return &FriendService{db: db, router: router}
}

// FriendDTO 好友列表条目。
type FriendDTO struct {
	ID         uint      `json:"id"`
	FullName   string    `json:"full_name"`
	Email      string    `json:"email"`
	ProfilePic string    `json:"profile_pic"`
	LastSeen   time.Time `json:"last_seen"`
}

// SearchResultDTO 搜索命中的用户及其与当前用户的关系状态。
type SearchResultDTO struct {
	ID            uint   `json:"id"`
	FullName      string `json:"full_name"`
	Email         string `json:"email"`
	ProfilePic    string `json:"profile_pic"`
	Status        string `json:"status"` // friend | request_sent | request_received | none
	MutualFriends int    `json:"mutual_friends"`
}

// RequestDTO 待处理的好友请求。
type RequestDTO struct {
	FromID     uint      `json:"from_id"`
	FullName   string    `json:"full_name"`
	ProfilePic string    `json:"profile_pic"`
	CreatedAt  time.Time `json:"created_at"`
}

// Search 按姓名或邮箱子串搜索用户，并为每个命中标注关系状态和共同好友数。
// 状态与共同好友通过固定次数的批量查询加内存连接得出，不随结果数退化。
func (s *FriendService) Search(userID uint, query string) ([]SearchResultDTO, error) {
	pattern := "%" + strings.ToLower(query) + "%"
	var hits []models.User
	err := s.db.Select("id", "full_name", "email", "profile_pic").
		Where("id <> ?", userID).
		Where("LOWER(full_name) LIKE ? OR LOWER(email) LIKE ?", pattern, pattern).
		Find(&hits).Error
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return []SearchResultDTO{}, nil
	}
	hitIDs := make([]uint, 0, len(hits))
	for _, u := range hits {
		hitIDs = append(hitIDs, u.ID)
	}

	myFriends, err := s.friendIDs(userID)
	if err != nil {
		return nil, err
	}
	friendSet := make(map[uint]struct{}, len(myFriends))
	for _, id := range myFriends {
		friendSet[id] = struct{}{}
	}

	var sentTo []uint
	err = s.db.Model(&models.FriendRequest{}).
		Where("from_id = ? AND to_id IN ? AND status = ?", userID, hitIDs, models.RequestPending).
		Pluck("to_id", &sentTo).Error
	if err != nil {
		return nil, err
	}
	sentSet := make(map[uint]struct{}, len(sentTo))
	for _, id := range sentTo {
		sentSet[id] = struct{}{}
	}

	var receivedFrom []uint
	err = s.db.Model(&models.FriendRequest{}).
		Where("to_id = ? AND from_id IN ? AND status = ?", userID, hitIDs, models.RequestPending).
		Pluck("from_id", &receivedFrom).Error
	if err != nil {
		return nil, err
	}
	receivedSet := make(map[uint]struct{}, len(receivedFrom))
	for _, id := range receivedFrom {
		receivedSet[id] = struct{}{}
	}

	// 共同好友 = 命中用户的好友集合与我的好友集合的交集大小
	mutual := make(map[uint]int, len(hitIDs))
	if len(myFriends) > 0 {
		var rows []struct {
			UserID uint
			N      int
		}
		err = s.db.Table("user_friends").
			Select("user_id, COUNT(*) AS n").
			Where("user_id IN ? AND friend_id IN ?", hitIDs, myFriends).
			Group("user_id").
			Scan(&rows).Error
		if err != nil {
			return nil, err
		}
		for _, r := range rows {
			mutual[r.UserID] = r.N
		}
	}

	out := make([]SearchResultDTO, 0, len(hits))
	for _, u := range hits {
		status := "none"
		switch {
		case hasID(friendSet, u.ID):
			status = "friend"
		case hasID(sentSet, u.ID):
			status = "request_sent"
		case hasID(receivedSet, u.ID):
			status = "request_received"
		}
		out = append(out, SearchResultDTO{
			ID:            u.ID,
			FullName:      u.FullName,
			Email:         u.Email,
			ProfilePic:    u.ProfilePic,
			Status:        status,
			MutualFriends: mutual[u.ID],
		})
	}
	return out, nil
}

// SendRequest 发起好友请求并实时通知目标用户。
func (s *FriendService) SendRequest(fromID, toID uint) error {
	if fromID == toID {
		return ErrSelfRequest
	}
	var count int64
	if err := s.db.Model(&models.User{}).Where("id = ?", toID).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrUserNotFound
	}
	friends, err := s.areFriends(fromID, toID)
	if err != nil {
		return err
	}
	if friends {
		return ErrAlreadyFriends
	}
	if err := s.db.Model(&models.FriendRequest{}).
		Where("from_id = ? AND to_id = ? AND status = ?", fromID, toID, models.RequestPending).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return ErrRequestPending
	}
	req := models.FriendRequest{FromID: fromID, ToID: toID, Status: models.RequestPending}
	if err := s.db.Create(&req).Error; err != nil {
		return err
	}
	s.router.ToUser(toID, fanout.Event{
		Name: fanout.EventFriendRequest,
		Data: map[string]interface{}{"from": fromID, "type": "received"},
	})
	return nil
}

// Accept 接受请求：在一个事务里更新状态并写入双向好友关系，再通知发起方。
func (s *FriendService) Accept(userID, fromID uint) error {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var req models.FriendRequest
		err := tx.Where("from_id = ? AND to_id = ? AND status = ?", fromID, userID, models.RequestPending).
			First(&req).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNoPendingRequest
			}
			return err
		}
		if err := tx.Model(&req).Update("status", models.RequestAccepted).Error; err != nil {
			return err
		}
		return tx.Exec(
			"INSERT INTO user_friends (user_id, friend_id) VALUES (?, ?), (?, ?)",
			userID, fromID, fromID, userID,
		).Error
	})
	if err != nil {
		return err
	}
	s.router.ToUser(fromID, fanout.Event{
		Name: fanout.EventFriendRequest,
		Data: map[string]interface{}{"from": userID, "type": "accepted"},
	})
	return nil
}

// Decline 拒绝请求；记录保留，之后允许对方重新发起。
func (s *FriendService) Decline(userID, fromID uint) error {
	res := s.db.Model(&models.FriendRequest{}).
		Where("from_id = ? AND to_id = ? AND status = ?", fromID, userID, models.RequestPending).
		Update("status", models.RequestDeclined)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNoPendingRequest
	}
	return nil
}

// Remove 解除好友关系，两个方向一起删。
func (s *FriendService) Remove(userID, friendID uint) error {
	friends, err := s.areFriends(userID, friendID)
	if err != nil {
		return err
	}
	if !friends {
		return ErrNotFriends
	}
	return s.db.Exec(
		"DELETE FROM user_friends WHERE (user_id = ? AND friend_id = ?) OR (user_id = ? AND friend_id = ?)",
		userID, friendID, friendID, userID,
	).Error
}

// ListRequests 返回发给当前用户的待处理请求。
func (s *FriendService) ListRequests(userID uint) ([]RequestDTO, error) {
	var reqs []models.FriendRequest
	err := s.db.Where("to_id = ? AND status = ?", userID, models.RequestPending).
		Order("created_at desc").
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return []RequestDTO{}, nil
	}
	fromIDs := make([]uint, 0, len(reqs))
	for _, r := range reqs {
		fromIDs = append(fromIDs, r.FromID)
	}
	var users []models.User
	if err := s.db.Select("id", "full_name", "profile_pic").Where("id IN ?", fromIDs).Find(&users).Error; err != nil {
		return nil, err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	out := make([]RequestDTO, 0, len(reqs))
	for _, r := range reqs {
		u := byID[r.FromID]
		out = append(out, RequestDTO{FromID: r.FromID, FullName: u.FullName, ProfilePic: u.ProfilePic, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

// ListFriends 返回当前用户的好友。
func (s *FriendService) ListFriends(userID uint) ([]FriendDTO, error) {
	ids, err := s.friendIDs(userID)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []FriendDTO{}, nil
	}
	var users []models.User
	if err := s.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	out := make([]FriendDTO, 0, len(users))
	for _, u := range users {
		out = append(out, FriendDTO{ID: u.ID, FullName: u.FullName, Email: u.Email, ProfilePic: u.ProfilePic, LastSeen: u.LastSeen})
	}
	return out, nil
}

func (s *FriendService) areFriends(a, b uint) (bool, error) {
	var count int64
	err := s.db.Table("user_friends").
		Where("user_id = ? AND friend_id = ?", a, b).
		Count(&count).Error
	return count > 0, err
}

func (s *FriendService) friendIDs(userID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Table("user_friends").Where("user_id = ?", userID).Pluck("friend_id", &ids).Error
	return ids, err
}

func hasID(set map[uint]struct{}, id uint) bool {
	_, ok := set[id]
	return ok
}
