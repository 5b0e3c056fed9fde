package model

import "testing"

func TestDedupeMembers(t *testing.T) {
	members := []GroupMember{
		{ID: "u1", Name: "Alice", Email: "alice@example.com"},
		{ID: "u2", Name: "Bob", Email: "bob@example.com"},
		// Same person re-added through a retried write; the cached name
		// drifted, but identity is the ID.
		{ID: "u1", Name: "Alice Smith", Email: "alice@example.com"},
	}

	got := DedupeMembers(members)

	if len(got) != 2 {
		t.Fatalf("DedupeMembers() returned %d members, want 2", len(got))
	}
	if got[0].ID != "u1" || got[1].ID != "u2" {
		t.Errorf("order = [%s %s], want first occurrences in place", got[0].ID, got[1].ID)
	}
	if got[0].Name != "Alice" {
		t.Errorf("kept Name = %q, want the first occurrence's %q", got[0].Name, "Alice")
	}
}

func TestDedupeMembers_Empty(t *testing.T) {
	if got := DedupeMembers(nil); len(got) != 0 {
		t.Errorf("DedupeMembers(nil) = %v, want empty", got)
	}
}
