package service

import (
	"errors"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"

	"gorm.io/gorm"
)

// GroupService 封装群与成员关系的业务逻辑，同时给 Fanout Router
// 提供成员名单（fanout.Membership 的实现）。
// 不变量：成员非空、创建者始终是成员、管理员都是成员且至少一人。
type GroupService struct {
	db *gorm.DB
}

func NewGroupService(db *gorm.DB) *GroupService {
	return &GroupService{db: db}
}

// GroupMemberDTO 群成员摘要。
type GroupMemberDTO struct {
	ID         uint   `json:"id"`
	FullName   string `json:"full_name"`
	ProfilePic string `json:"profile_pic"`
}

// GroupDTO 是对外输出的群数据。
type GroupDTO struct {
	ID          uint             `json:"id"`
	Name        string           `json:"name"`
	Description string           `json:"description"`
	CreatedBy   uint             `json:"created_by"`
	Members     []GroupMemberDTO `json:"members"`
	Admins      []uint           `json:"admins"`
}

// Create 创建群；创建者强制加入成员并成为唯一管理员。
func (s *GroupService) Create(creatorID uint, name, description string, memberIDs []uint) (*GroupDTO, error) {
	ids := append([]uint{creatorID}, memberIDs...)
	uniq := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}

	var members []*models.User
	if err := s.db.Where("id IN ?", uniq).Find(&members).Error; err != nil {
		return nil, err
	}
	if len(members) != len(uniq) {
		return nil, ErrUserNotFound
	}

	group := models.Group{Name: name, Description: description, CreatedBy: creatorID}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		if err := tx.Model(&group).Association("Members").Append(members); err != nil {
			return err
		}
		var creator models.User
		if err := tx.First(&creator, creatorID).Error; err != nil {
			return err
		}
		return tx.Model(&group).Association("Admins").Append(&creator)
	})
	if err != nil {
		return nil, err
	}
	return s.get(group.ID)
}

// List 返回用户所在的全部群。
func (s *GroupService) List(userID uint) ([]GroupDTO, error) {
	var groups []models.Group
	err := s.db.
		Joins("JOIN group_members gm ON gm.group_id = groups.id AND gm.user_id = ?", userID).
		Preload("Members").
		Preload("Admins").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	out := make([]GroupDTO, 0, len(groups))
	for i := range groups {
		out = append(out, *toGroupDTO(&groups[i]))
	}
	return out, nil
}

// AddMember 仅管理员可拉人。
func (s *GroupService) AddMember(groupID, actorID, userID uint) error {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	admin, err := s.isAdmin(groupID, actorID)
	if err != nil {
		return err
	}
	if !admin {
		return ErrNotGroupAdmin
	}
	member, err := s.IsMember(groupID, userID)
	if err != nil {
		return err
	}
	if member {
		return ErrAlreadyMember
	}
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrUserNotFound
		}
		return err
	}
	return s.db.Model(group).Association("Members").Append(&user)
}

// RemoveMember 管理员可移除任何人，普通成员只能退出自己。
// 被移除者若是最后一名管理员则拒绝，群不允许出现无管理员状态。
func (s *GroupService) RemoveMember(groupID, actorID, userID uint) error {
	group, err := s.loadGroup(groupID)
	if err != nil {
		return err
	}
	admin, err := s.isAdmin(groupID, actorID)
	if err != nil {
		return err
	}
	if !admin && actorID != userID {
		return ErrNotGroupAdmin
	}
	member, err := s.IsMember(groupID, userID)
	if err != nil {
		return err
	}
	if !member {
		return ErrUserNotFound
	}
	targetAdmin, err := s.isAdmin(groupID, userID)
	if err != nil {
		return err
	}
	if targetAdmin {
		var admins int64
		if err := s.db.Table("group_admins").Where("group_id = ?", groupID).Count(&admins).Error; err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	user := models.User{ID: userID}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(group).Association("Members").Delete(&user); err != nil {
			return err
		}
		return tx.Model(group).Association("Admins").Delete(&user)
	})
}

// IsMember 检查用户当前是否在群成员名单里。
func (s *GroupService) IsMember(groupID, userID uint) (bool, error) {
	var count int64
	err := s.db.Table("group_members").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

// GroupMembers 返回当前成员 ID 名单，实现 fanout.Membership。
func (s *GroupService) GroupMembers(groupID uint) ([]uint, error) {
	var ids []uint
	err := s.db.Table("group_members").
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error
	return ids, err
}

func (s *GroupService) isAdmin(groupID, userID uint) (bool, error) {
	var count int64
	err := s.db.Table("group_admins").
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	return count > 0, err
}

func (s *GroupService) loadGroup(groupID uint) (*models.Group, error) {
	var group models.Group
	if err := s.db.First(&group, groupID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return &group, nil
}

func (s *GroupService) get(groupID uint) (*GroupDTO, error) {
	var group models.Group
	err := s.db.Preload("Members").Preload("Admins").First(&group, groupID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, err
	}
	return toGroupDTO(&group), nil
}

func toGroupDTO(g *models.Group) *GroupDTO {
	dto := &GroupDTO{
		ID:          g.ID,
		Name:        g.Name,
		Description: g.Description,
		CreatedBy:   g.CreatedBy,
		Members:     make([]GroupMemberDTO, 0, len(g.Members)),
		Admins:      make([]uint, 0, len(g.Admins)),
	}
	for _, m := range g.Members {
		dto.Members = append(dto.Members, GroupMemberDTO{ID: m.ID, FullName: m.FullName, ProfilePic: m.ProfilePic})
	}
	for _, a := range g.Admins {
		dto.Admins = append(dto.Admins, a.ID)
	}
	return dto
}
