package service

import (
	"errors"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/auth"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/config"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/storage"

	"gorm.io/gorm"
)

// UserService 封装账号相关的业务逻辑。
type UserService struct {
	db     *gorm.DB
	cfg    config.Config
	images *storage.ImageStore
}

func NewUserService(db *gorm.DB, cfg config.Config, images *storage.ImageStore) *UserService {
	return &UserService{db: db, cfg: cfg, images: images}
}

// ProfileDTO 是对外输出的用户资料。
type ProfileDTO struct {
	ID         uint      `json:"id"`
	Email      string    `json:"email"`
	FullName   string    `json:"full_name"`
	ProfilePic string    `json:"profile_pic"`
	Bio        string    `json:"bio"`
	Status     string    `json:"status"`
	LastSeen   time.Time `json:"last_seen"`
}

// Signup 注册新用户。
func (s *UserService) Signup(fullName, email, password string) (*ProfileDTO, error) {
	var count int64
	if err := s.db.Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := models.User{Email: email, FullName: fullName, PasswordHash: hash, LastSeen: time.Now()}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, err
	}
	return toProfileDTO(&user), nil
}

// LoginResult 登录成功后返回的数据。
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	User         ProfileDTO
}

// Login 校验邮箱密码并签发 token 对。
func (s *UserService) Login(email, password string) (*LoginResult, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !auth.VerifyPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	at, err := auth.GenerateAccessToken(user.ID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
	if err != nil {
		return nil, err
	}
	rt, err := auth.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	exp := time.Now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
	if err := auth.SaveRefreshToken(s.db, user.ID, rt, exp); err != nil {
		return nil, err
	}
	return &LoginResult{AccessToken: at, RefreshToken: rt, User: *toProfileDTO(&user)}, nil
}

// RefreshResult 刷新 token 后返回的新 token 对。
type RefreshResult struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// RefreshTokens 验证旧 refresh token 并签发新 token 对（旋转刷新）。
func (s *UserService) RefreshTokens(oldRT string) (*RefreshResult, error) {
	var result RefreshResult
	err := s.db.Transaction(func(tx *gorm.DB) error {
		rec, err := auth.ValidateRefreshToken(tx, oldRT)
		if err != nil {
			return err
		}
		if err := auth.RevokeRefreshToken(tx, oldRT); err != nil {
			return err
		}
		at, err := auth.GenerateAccessToken(rec.UserID, s.cfg.JWTSecret, s.cfg.AccessTokenTTLMinutes)
		if err != nil {
			return err
		}
		newRT, err := auth.GenerateRefreshToken()
		if err != nil {
			return err
		}
		exp := time.Now().Add(time.Duration(s.cfg.RefreshTokenTTLDays) * 24 * time.Hour)
		if err := auth.SaveRefreshToken(tx, rec.UserID, newRT, exp); err != nil {
			return err
		}
		result.AccessToken = at
		result.RefreshToken = newRT
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &result, nil
}

// Logout 撤销给定的 refresh token，之后它不能再换取新 token。
// 对未知或已撤销的 token 重复登出是空操作。
func (s *UserService) Logout(refreshToken string) error {
	return auth.RevokeRefreshToken(s.db, refreshToken)
}

// ProfileUpdate 资料更新载荷；nil 字段表示不改动。
type ProfileUpdate struct {
	Bio        *string
	Status     *string
	ProfilePic *string // base64 data URL
}

// UpdateProfile 更新资料；头像走图片存储换成 URL。
func (s *UserService) UpdateProfile(userID uint, in ProfileUpdate) (*ProfileDTO, error) {
	updates := map[string]interface{}{}
	if in.Bio != nil {
		updates["bio"] = *in.Bio
	}
	if in.Status != nil {
		updates["status"] = *in.Status
	}
	if in.ProfilePic != nil && *in.ProfilePic != "" {
		url, err := s.images.SaveDataURL(*in.ProfilePic)
		if err != nil {
			if errors.Is(err, storage.ErrBadDataURL) {
				return nil, ErrInvalidImage
			}
			return nil, err
		}
		updates["profile_pic"] = url
	}
	if len(updates) > 0 {
		if err := s.db.Model(&models.User{}).Where("id = ?", userID).Updates(updates).Error; err != nil {
			return nil, err
		}
	}
	return s.Get(userID)
}

// Get 按 ID 取用户资料。
func (s *UserService) Get(userID uint) (*ProfileDTO, error) {
	var user models.User
	if err := s.db.First(&user, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return toProfileDTO(&user), nil
}

// TouchLastSeen 尽力更新最后在线时间，由连接网关异步调用。
// 失败只记录不传播，绝不拖慢在线名单广播。
func (s *UserService) TouchLastSeen(userID uint) error {
	return s.db.Model(&models.User{}).Where("id = ?", userID).
		Update("last_seen", time.Now()).Error
}

func toProfileDTO(u *models.User) *ProfileDTO {
	return &ProfileDTO{
		ID:         u.ID,
		Email:      u.Email,
		FullName:   u.FullName,
		ProfilePic: u.ProfilePic,
		Bio:        u.Bio,
		Status:     u.Status,
		LastSeen:   u.LastSeen,
	}
}
