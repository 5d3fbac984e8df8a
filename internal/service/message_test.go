package service

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"
)

func decodeEvent(t *testing.T, data []byte) (string, map[string]interface{}) {
	t.Helper()
	var frame struct {
		Event string          `json:"event"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("bad frame: %v", err)
	}
	var payload map[string]interface{}
	_ = json.Unmarshal(frame.Data, &payload)
	return frame.Event, payload
}

func TestSend_DirectDeliversToReceiverOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	ca := f.online(t, alice)
	cb := f.online(t, bob)

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "hi"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if msg.SenderID != alice || msg.ReceiverID == nil || *msg.ReceiverID != bob {
		t.Errorf("message endpoints wrong: %+v", msg)
	}

	if len(cb.sent) != 1 {
		t.Fatalf("receiver got %d frames, want 1", len(cb.sent))
	}
	name, payload := decodeEvent(t, cb.sent[0])
	if name != fanout.EventNewMessage {
		t.Errorf("event = %q, want newMessage", name)
	}
	if payload["text"] != "hi" || uint(payload["sender_id"].(float64)) != alice {
		t.Errorf("payload = %v", payload)
	}
	if len(ca.sent) != 0 {
		t.Errorf("sender got %d frames, want 0", len(ca.sent))
	}
}

func TestSend_OfflineReceiverStillPersists(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	// bob is offline

	if _, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "hello?"}); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// A later fetch by bob sees the message even though no event was delivered.
	msgs, err := f.msgs.List(bob, fanout.DirectTo(alice), 1, 50)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != "hello?" {
		t.Fatalf("List() = %+v, want the persisted message", msgs)
	}
}

func TestSend_Validation(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	if _, err := f.msgs.Send(alice, fanout.Target{}, SendInput{Text: "x"}); !errors.Is(err, ErrNoTarget) {
		t.Errorf("no target: err = %v, want ErrNoTarget", err)
	}
	if _, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{}); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty payload: err = %v, want ErrEmptyMessage", err)
	}
	if _, err := f.msgs.Send(alice, fanout.DirectTo(9999), SendInput{Text: "x"}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("unknown receiver: err = %v, want ErrUserNotFound", err)
	}
}

func TestSend_GroupRequiresMembership(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	mallory := f.mustUser(t, "mallory")
	group, err := f.groups.Create(alice, "team", "", []uint{bob})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if _, err := f.msgs.Send(mallory, fanout.GroupTo(group.ID), SendInput{Text: "let me in"}); !errors.Is(err, ErrNotGroupMember) {
		t.Errorf("outsider send: err = %v, want ErrNotGroupMember", err)
	}

	cb := f.online(t, bob)
	if _, err := f.msgs.Send(alice, fanout.GroupTo(group.ID), SendInput{Text: "standup"}); err != nil {
		t.Fatalf("member send error = %v", err)
	}
	if len(cb.sent) != 1 {
		t.Errorf("group member got %d frames, want 1", len(cb.sent))
	}
}

func TestMutabilityGate(t *testing.T) {
	now := time.Now()
	msg := &models.Message{SenderID: 1, CreatedAt: now}

	tests := []struct {
		name    string
		actor   uint
		at      time.Time
		wantErr error
	}{
		{"sender within window", 1, now.Add(time.Minute), nil},
		{"sender at 4:59", 1, now.Add(4*time.Minute + 59*time.Second), nil},
		{"sender at exactly 5:00", 1, now.Add(5 * time.Minute), nil},
		{"sender at 5:01", 1, now.Add(5*time.Minute + time.Second), ErrWindowExpired},
		{"other user within window", 2, now.Add(time.Minute), ErrNotSender},
		{"other user after window reports authorization", 2, now.Add(10 * time.Minute), ErrNotSender},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := canMutate(msg, tt.actor, tt.at)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("canMutate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestEdit_WithinWindow(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	cb := f.online(t, bob)

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "typo"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	edited, err := f.msgs.Edit(alice, msg.ID, "fixed")
	if err != nil {
		t.Fatalf("Edit() error = %v", err)
	}
	if !edited.Edited || edited.Text != "fixed" || edited.EditedAt == nil {
		t.Errorf("Edit() result = %+v", edited)
	}

	if len(cb.sent) != 2 {
		t.Fatalf("receiver got %d frames, want newMessage + messageEdited", len(cb.sent))
	}
	name, payload := decodeEvent(t, cb.sent[1])
	if name != fanout.EventMessageEdited || payload["text"] != "fixed" {
		t.Errorf("second frame = %q %v", name, payload)
	}
}

func TestEdit_AfterWindowRejected(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	cb := f.online(t, bob)

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "original"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	// Message is now six minutes old.
	f.msgs.now = func() time.Time { return msg.CreatedAt.Add(6 * time.Minute) }

	if _, err := f.msgs.Edit(alice, msg.ID, "too late"); !errors.Is(err, ErrWindowExpired) {
		t.Fatalf("Edit() err = %v, want ErrWindowExpired", err)
	}

	// Content unchanged, no messageEdited frame emitted.
	var row models.Message
	if err := f.db.First(&row, msg.ID).Error; err != nil {
		t.Fatalf("reload: %v", err)
	}
	if row.Text != "original" || row.Edited {
		t.Errorf("message mutated after rejection: %+v", row)
	}
	if len(cb.sent) != 1 {
		t.Errorf("receiver got %d frames, want only the original newMessage", len(cb.sent))
	}
}

func TestEdit_OnlySender(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "mine"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if _, err := f.msgs.Edit(bob, msg.ID, "hijack"); !errors.Is(err, ErrNotSender) {
		t.Errorf("Edit() by receiver err = %v, want ErrNotSender", err)
	}
}

func TestDelete_SoftDelete(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	cb := f.online(t, bob)

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "oops"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := f.msgs.Delete(alice, msg.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}

	// Row survives with the deleted flag set.
	var row models.Message
	if err := f.db.First(&row, msg.ID).Error; err != nil {
		t.Fatalf("row was hard-deleted: %v", err)
	}
	if !row.Deleted || row.DeletedAt == nil {
		t.Errorf("row not soft-deleted: %+v", row)
	}

	// Delete event carries the message id only.
	name, payload := decodeEvent(t, cb.sent[1])
	if name != fanout.EventMessageDeleted {
		t.Errorf("event = %q, want messageDeleted", name)
	}
	if uint(payload["message_id"].(float64)) != msg.ID {
		t.Errorf("payload = %v", payload)
	}
	if _, hasText := payload["text"]; hasText {
		t.Error("delete event should not carry message content")
	}

	// Deleted messages disappear from listings.
	msgs, err := f.msgs.List(bob, fanout.DirectTo(alice), 1, 50)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("List() returned %d messages, want 0", len(msgs))
	}
}

func TestList_PaginationOrder(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	base := time.Now().Add(-time.Hour)
	for i := 0; i < 5; i++ {
		receiver := bob
		m := models.Message{SenderID: alice, ReceiverID: &receiver, Text: string(rune('a' + i)), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		if err := f.db.Create(&m).Error; err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	// First page holds the newest two, reversed to chronological order.
	msgs, err := f.msgs.List(alice, fanout.DirectTo(bob), 1, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "d" || msgs[1].Text != "e" {
		t.Errorf("page 1 = %v", texts(msgs))
	}

	msgs, err = f.msgs.List(alice, fanout.DirectTo(bob), 2, 2)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(msgs) != 2 || msgs[0].Text != "b" || msgs[1].Text != "c" {
		t.Errorf("page 2 = %v", texts(msgs))
	}
}

func texts(msgs []MessageDTO) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Text)
	}
	return out
}

func TestSearch_CaseInsensitive(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	for _, text := range []string{"Deploy tonight", "lunch?", "deploy postponed"} {
		if _, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: text}); err != nil {
			t.Fatalf("Send() error = %v", err)
		}
	}

	msgs, err := f.msgs.Search(bob, fanout.DirectTo(alice), "DEPLOY")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(msgs) != 2 {
		t.Errorf("Search() found %d messages, want 2", len(msgs))
	}
}

func TestMarkAsRead_Idempotent(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "read me"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if err := f.msgs.MarkAsRead(msg.ID, bob); err != nil {
		t.Fatalf("MarkAsRead() error = %v", err)
	}
	if err := f.msgs.MarkAsRead(msg.ID, bob); err != nil {
		t.Fatalf("second MarkAsRead() error = %v", err)
	}

	var count int64
	f.db.Model(&models.MessageRead{}).Where("message_id = ?", msg.ID).Count(&count)
	if count != 1 {
		t.Errorf("receipt count = %d, want exactly 1", count)
	}
}

func TestMarkAsRead_ParticipantsOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	mallory := f.mustUser(t, "mallory")

	msg, err := f.msgs.Send(alice, fanout.DirectTo(bob), SendInput{Text: "private"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if err := f.msgs.MarkAsRead(msg.ID, mallory); !errors.Is(err, ErrNotParticipant) {
		t.Errorf("MarkAsRead() by outsider err = %v, want ErrNotParticipant", err)
	}
}
