package service

import (
	"errors"
	"testing"
)

func TestGroupCreate_CreatorIsMemberAndAdmin(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")

	// Creator left out of the member list on purpose.
	group, err := f.groups.Create(alice, "team", "standups", []uint{bob})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if len(group.Members) != 2 {
		t.Errorf("members = %d, want 2", len(group.Members))
	}
	member, err := f.groups.IsMember(group.ID, alice)
	if err != nil || !member {
		t.Errorf("creator not a member (err=%v)", err)
	}
	if len(group.Admins) != 1 || group.Admins[0] != alice {
		t.Errorf("admins = %v, want [creator]", group.Admins)
	}
}

func TestGroupCreate_UnknownMember(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	if _, err := f.groups.Create(alice, "team", "", []uint{9999}); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Create() err = %v, want ErrUserNotFound", err)
	}
}

func TestGroupAddMember_AdminOnly(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	carol := f.mustUser(t, "carol")
	group, err := f.groups.Create(alice, "team", "", []uint{bob})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if err := f.groups.AddMember(group.ID, bob, carol); !errors.Is(err, ErrNotGroupAdmin) {
		t.Errorf("non-admin add err = %v, want ErrNotGroupAdmin", err)
	}
	if err := f.groups.AddMember(group.ID, alice, carol); err != nil {
		t.Fatalf("admin add error = %v", err)
	}
	if err := f.groups.AddMember(group.ID, alice, carol); !errors.Is(err, ErrAlreadyMember) {
		t.Errorf("duplicate add err = %v, want ErrAlreadyMember", err)
	}

	members, err := f.groups.GroupMembers(group.ID)
	if err != nil {
		t.Fatalf("GroupMembers() error = %v", err)
	}
	if len(members) != 3 {
		t.Errorf("GroupMembers() = %v, want 3 ids", members)
	}
}

func TestGroupRemoveMember_SelfLeaveAndAdmin(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	carol := f.mustUser(t, "carol")
	group, err := f.groups.Create(alice, "team", "", []uint{bob, carol})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// A plain member cannot remove someone else, but can leave.
	if err := f.groups.RemoveMember(group.ID, bob, carol); !errors.Is(err, ErrNotGroupAdmin) {
		t.Errorf("member removing peer err = %v, want ErrNotGroupAdmin", err)
	}
	if err := f.groups.RemoveMember(group.ID, bob, bob); err != nil {
		t.Fatalf("self leave error = %v", err)
	}
	// Admin removes a member.
	if err := f.groups.RemoveMember(group.ID, alice, carol); err != nil {
		t.Fatalf("admin remove error = %v", err)
	}

	members, err := f.groups.GroupMembers(group.ID)
	if err != nil {
		t.Fatalf("GroupMembers() error = %v", err)
	}
	if len(members) != 1 || members[0] != alice {
		t.Errorf("GroupMembers() = %v, want just the admin", members)
	}
}

func TestGroupRemoveMember_LastAdminGuard(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	bob := f.mustUser(t, "bob")
	group, err := f.groups.Create(alice, "team", "", []uint{bob})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	// The sole admin cannot leave the group without an admin.
	if err := f.groups.RemoveMember(group.ID, alice, alice); !errors.Is(err, ErrLastAdmin) {
		t.Errorf("sole admin leave err = %v, want ErrLastAdmin", err)
	}
	member, err := f.groups.IsMember(group.ID, alice)
	if err != nil || !member {
		t.Error("rejected removal must leave membership intact")
	}
}

func TestGroupMembers_UnknownGroup(t *testing.T) {
	f := newFixture(t)
	alice := f.mustUser(t, "alice")
	if err := f.groups.AddMember(9999, alice, alice); !errors.Is(err, ErrGroupNotFound) {
		t.Errorf("AddMember() err = %v, want ErrGroupNotFound", err)
	}
}
