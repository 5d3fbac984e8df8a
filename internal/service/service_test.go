package service

import (
	"path/filepath"
	"testing"

	"github.com/Nelly6002/fullstack-chat-app-master/internal/db"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/fanout"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/models"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/presence"
	"github.com/Nelly6002/fullstack-chat-app-master/internal/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// testDB opens a throwaway sqlite database with the full schema.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return gdb
}

type fakeSession struct {
	id   uint
	sent [][]byte
}

func (f *fakeSession) UserID() uint { return f.id }
func (f *fakeSession) Send(data []byte) bool {
	f.sent = append(f.sent, data)
	return true
}

// fixture wires real services against sqlite plus an in-memory presence table.
type fixture struct {
	db     *gorm.DB
	table  *presence.Table
	router *fanout.Router
	groups *GroupService
	msgs   *MessageService
	friend *FriendService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gdb := testDB(t)
	table := presence.NewTable()
	groups := NewGroupService(gdb)
	router := fanout.NewRouter(table, groups)
	images, err := storage.NewImageStore(t.TempDir())
	if err != nil {
		t.Fatalf("image store: %v", err)
	}
	return &fixture{
		db:     gdb,
		table:  table,
		router: router,
		groups: groups,
		msgs:   NewMessageService(gdb, router, groups, images),
		friend: NewFriendService(gdb, router),
	}
}

func (f *fixture) mustUser(t *testing.T, name string) uint {
	t.Helper()
	u := models.User{Email: name + "@example.com", FullName: name, PasswordHash: "x"}
	if err := f.db.Create(&u).Error; err != nil {
		t.Fatalf("create user %s: %v", name, err)
	}
	return u.ID
}

func (f *fixture) online(t *testing.T, userID uint) *fakeSession {
	t.Helper()
	s := &fakeSession{id: userID}
	f.table.Register(userID, s)
	return s
}
