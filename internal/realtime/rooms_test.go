package realtime

import "testing"

func TestRoomSetAddRemove(t *testing.T) {
	set := NewRoomSet()

	if !set.Add("project:p1") {
		t.Fatalf("first add should report new membership")
	}
	if set.Add("project:p1") {
		t.Fatalf("second add of same room should report no change")
	}
	if !set.Contains("project:p1") {
		t.Fatalf("membership missing after add")
	}

	if !set.Remove("project:p1") {
		t.Fatalf("remove of held room should report change")
	}
	if set.Remove("project:p1") {
		t.Fatalf("remove of absent room should report no change")
	}
}

func TestRoomSetListIsSorted(t *testing.T) {
	set := NewRoomSet()
	set.Add("team:t9")
	set.Add("project:p1")
	set.Add("user:u3")

	rooms := set.List()
	if len(rooms) != 3 || rooms[0] != "project:p1" || rooms[1] != "team:t9" || rooms[2] != "user:u3" {
		t.Fatalf("list should be sorted, got=%v", rooms)
	}
}

func TestRoomSetIgnoresEmpty(t *testing.T) {
	set := NewRoomSet()
	if set.Add("") {
		t.Fatalf("empty room id must not be added")
	}
	set.Add("project:p1")
	set.Clear()
	if len(set.List()) != 0 {
		t.Fatalf("clear should drop all memberships")
	}
}
