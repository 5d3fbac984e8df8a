package service

import (
	"errors"
	"strings"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/metrics"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/storage"

	"gorm.io/gorm"
)

// MutabilityWindow 是发送者可以编辑或软删除自己消息的时限。
const MutabilityWindow = 5 * time.Minute

// MessageService 封装消息的持久化与实时分发。
// 先确认写库成功再分发，持久化失败不会产生幻影投递。
type MessageService struct {
	db     *gorm.DB
	router *fanout.Router
	groups *GroupService
	images *storage.ImageStore
	now    func() time.Time
}

func NewMessageService(db *gorm.DB, router *fanout.Router, groups *GroupService, images *storage.ImageStore) *MessageService {
	return &MessageService{db: db, router: router, groups: groups, images: images, now: time.Now}
}

// ReadReceiptDTO 单个已读回执。
type ReadReceiptDTO struct {
	UserID uint      `json:"user_id"`
	ReadAt time.Time `json:"read_at"`
}

// MessageDTO 是对外输出的消息数据。
type MessageDTO struct {
	ID         uint             `json:"id"`
	SenderID   uint             `json:"sender_id"`
	ReceiverID *uint            `json:"receiver_id,omitempty"`
	GroupID    *uint            `json:"group_id,omitempty"`
	Text       string           `json:"text"`
	Image      string           `json:"image,omitempty"`
	ReplyTo    *MessageDTO      `json:"reply_to,omitempty"`
	Edited     bool             `json:"edited"`
	EditedAt   *time.Time       `json:"edited_at,omitempty"`
	Deleted    bool             `json:"deleted"`
	ReadBy     []ReadReceiptDTO `json:"read_by"`
	CreatedAt  time.Time        `json:"created_at"`
}

// SendInput 一次发送请求的载荷；Image 为 base64 data URL。
type SendInput struct {
	Text    string
	Image   string
	ReplyTo *uint
}

// Send 校验、落库并把 newMessage 事件分发给目标的在线接收者。
func (s *MessageService) Send(senderID uint, target fanout.Target, in SendInput) (*MessageDTO, error) {
	if target.IsZero() {
		return nil, ErrNoTarget
	}
	if strings.TrimSpace(in.Text) == "" && in.Image == "" {
		return nil, ErrEmptyMessage
	}
	if target.IsGroup() {
		member, err := s.groups.IsMember(target.GroupID(), senderID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotGroupMember
		}
	} else {
		var count int64
		if err := s.db.Model(&models.User{}).Where("id = ?", target.PeerID()).Count(&count).Error; err != nil {
			return nil, err
		}
		if count == 0 {
			return nil, ErrUserNotFound
		}
	}

	msg := models.Message{SenderID: senderID, Text: in.Text, ReplyToID: in.ReplyTo}
	target.Apply(&msg)
	if in.Image != "" {
		url, err := s.images.SaveDataURL(in.Image)
		if err != nil {
			if errors.Is(err, storage.ErrBadDataURL) {
				return nil, ErrInvalidImage
			}
			return nil, err
		}
		msg.Image = url
	}
	if err := s.db.Create(&msg).Error; err != nil {
		return nil, err
	}
	metrics.MessagesSentTotal.Inc()

	dto, err := s.toDTO(&msg)
	if err != nil {
		return nil, err
	}
	s.router.Deliver(senderID, target, fanout.Event{Name: fanout.EventNewMessage, Data: dto})
	return dto, nil
}

// canMutate 是编辑与删除共用的门：必须是发送者本人，且在可改窗口内。
// 两种失败用不同的错误上报。
func canMutate(m *models.Message, actorID uint, now time.Time) error {
	if m.SenderID != actorID {
		return ErrNotSender
	}
	if now.Sub(m.CreatedAt) > MutabilityWindow {
		return ErrWindowExpired
	}
	return nil
}

// Edit 在可改窗口内更新消息文本并分发 messageEdited。
func (s *MessageService) Edit(actorID, messageID uint, text string) (*MessageDTO, error) {
	msg, err := s.load(messageID)
	if err != nil {
		return nil, err
	}
	if err := canMutate(msg, actorID, s.now()); err != nil {
		return nil, err
	}
	now := s.now()
	updates := map[string]interface{}{"text": text, "edited": true, "edited_at": now}
	if err := s.db.Model(&models.Message{}).Where("id = ?", messageID).Updates(updates).Error; err != nil {
		return nil, err
	}
	msg.Text = text
	msg.Edited = true
	msg.EditedAt = &now

	dto, err := s.toDTO(msg)
	if err != nil {
		return nil, err
	}
	s.router.Deliver(actorID, fanout.TargetOf(msg), fanout.Event{Name: fanout.EventMessageEdited, Data: dto})
	return dto, nil
}

// Delete 软删除：行保留用于回复与回执的引用，只分发消息 ID。
func (s *MessageService) Delete(actorID, messageID uint) error {
	msg, err := s.load(messageID)
	if err != nil {
		return err
	}
	if err := canMutate(msg, actorID, s.now()); err != nil {
		return err
	}
	now := s.now()
	updates := map[string]interface{}{"deleted": true, "deleted_at": now}
	if err := s.db.Model(&models.Message{}).Where("id = ?", messageID).Updates(updates).Error; err != nil {
		return err
	}
	s.router.Deliver(actorID, fanout.TargetOf(msg), fanout.Event{
		Name: fanout.EventMessageDeleted,
		Data: map[string]uint{"message_id": messageID},
	})
	return nil
}

// List 分页返回一个会话的消息，按创建时间倒序取页后再反转为时间正序。
func (s *MessageService) List(userID uint, target fanout.Target, page, limit int) ([]MessageDTO, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if page <= 0 {
		page = 1
	}
	q, err := s.conversationQuery(userID, target)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	err = q.Where("deleted = ?", false).
		Order("created_at desc").
		Offset((page - 1) * limit).
		Limit(limit).
		Preload("ReadBy").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}

	// 反转为时间正序
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return s.toDTOs(msgs)
}

// Search 在单个会话内做大小写不敏感的子串搜索。
func (s *MessageService) Search(userID uint, target fanout.Target, query string) ([]MessageDTO, error) {
	q, err := s.conversationQuery(userID, target)
	if err != nil {
		return nil, err
	}
	var msgs []models.Message
	err = q.Where("deleted = ?", false).
		Where("LOWER(text) LIKE ?", "%"+strings.ToLower(query)+"%").
		Order("created_at desc").
		Preload("ReadBy").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return s.toDTOs(msgs)
}

// MarkAsRead 幂等地追加已读回执；回执只增不删。
func (s *MessageService) MarkAsRead(messageID, readerID uint) error {
	msg, err := s.load(messageID)
	if err != nil {
		return err
	}
	canRead := false
	if msg.GroupID != nil {
		canRead, err = s.groups.IsMember(*msg.GroupID, readerID)
		if err != nil {
			return err
		}
	} else if msg.ReceiverID != nil {
		canRead = msg.SenderID == readerID || *msg.ReceiverID == readerID
	}
	if !canRead {
		return ErrNotParticipant
	}
	var count int64
	if err := s.db.Model(&models.MessageRead{}).
		Where("message_id = ? AND user_id = ?", messageID, readerID).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}
	rec := models.MessageRead{MessageID: messageID, UserID: readerID, ReadAt: s.now()}
	return s.db.Create(&rec).Error
}

func (s *MessageService) load(messageID uint) (*models.Message, error) {
	var msg models.Message
	if err := s.db.First(&msg, messageID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// conversationQuery 限定到一个会话：私聊取双向消息，群聊先验成员资格。
func (s *MessageService) conversationQuery(userID uint, target fanout.Target) (*gorm.DB, error) {
	switch {
	case target.IsGroup():
		member, err := s.groups.IsMember(target.GroupID(), userID)
		if err != nil {
			return nil, err
		}
		if !member {
			return nil, ErrNotGroupMember
		}
		return s.db.Model(&models.Message{}).Where("group_id = ?", target.GroupID()), nil
	case target.IsDirect():
		peer := target.PeerID()
		return s.db.Model(&models.Message{}).Where(
			"(sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?)",
			userID, peer, peer, userID,
		), nil
	default:
		return nil, ErrNoTarget
	}
}

func (s *MessageService) toDTO(m *models.Message) (*MessageDTO, error) {
	dto := &MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Text:       m.Text,
		Image:      m.Image,
		Edited:     m.Edited,
		EditedAt:   m.EditedAt,
		Deleted:    m.Deleted,
		ReadBy:     make([]ReadReceiptDTO, 0, len(m.ReadBy)),
		CreatedAt:  m.CreatedAt,
	}
	for _, r := range m.ReadBy {
		dto.ReadBy = append(dto.ReadBy, ReadReceiptDTO{UserID: r.UserID, ReadAt: r.ReadAt})
	}
	if m.ReplyToID != nil {
		var parent models.Message
		if err := s.db.First(&parent, *m.ReplyToID).Error; err == nil {
			reply, err := s.toShallowDTO(&parent)
			if err != nil {
				return nil, err
			}
			dto.ReplyTo = reply
		}
	}
	return dto, nil
}

// toShallowDTO 供 reply_to 嵌套使用，不再继续展开引用链。
func (s *MessageService) toShallowDTO(m *models.Message) (*MessageDTO, error) {
	return &MessageDTO{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		GroupID:    m.GroupID,
		Text:       m.Text,
		Image:      m.Image,
		Edited:     m.Edited,
		EditedAt:   m.EditedAt,
		Deleted:    m.Deleted,
		ReadBy:     []ReadReceiptDTO{},
		CreatedAt:  m.CreatedAt,
	}, nil
}

func (s *MessageService) toDTOs(msgs []models.Message) ([]MessageDTO, error) {
	out := make([]MessageDTO, 0, len(msgs))
	for i := range msgs {
		dto, err := s.toDTO(&msgs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *dto)
	}
	return out, nil
}
