package core

import (
	"testing"
)

//------------------------------------------------------------
// Helpers
//------------------------------------------------------------

func membersView(ids ...uint32) *View {
	members := make([]NodeID, len(ids))
	endpoints := make(map[NodeID]Endpoint, len(ids))
	for i, id := range ids {
		members[i] = NodeID(id)
		endpoints[NodeID(id)] = Endpoint{IP: "127.0.0.1", Port: 9000 + i}
	}
	return NewView(members, endpoints)
}

func nodeIDs(ids ...uint32) []NodeID {
	out := make([]NodeID, len(ids))
	for i, id := range ids {
		out[i] = NodeID(id)
	}
	return out
}

func assertMembers(t *testing.T, got []NodeID, want ...uint32) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("member count mismatch: got %v want %v", got, want)
	}
	for i := range got {
		if got[i] != NodeID(want[i]) {
			t.Fatalf("member %d mismatch: got %v want %v", i, got, want)
		}
	}
}

//------------------------------------------------------------
// S1: fresh even sharding
//------------------------------------------------------------

func TestGroupAdminFreshEvenSharding(t *testing.T) {
	policy := Policy{Entries: []PolicyEntry{
		{TypeTag: "kv", Policy: OneSubgroupPolicy(EvenSharding(2, 2))},
	}}
	ga := NewGroupAdmin(policy, nil)
	view := membersView(10, 11, 12, 13)

	layout, err := ga.Compute("kv", view)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	if layout.NumSubgroups() != 1 || layout.NumShards(0) != 2 {
		t.Fatalf("unexpected layout shape: %+v", layout)
	}
	assertMembers(t, layout[0][0].Members, 10, 11)
	assertMembers(t, layout[0][1].Members, 12, 13)
	if layout[0][0].Mode != Ordered || layout[0][1].Mode != Ordered {
		t.Fatalf("expected ORDERED delivery for both shards")
	}
	if ga.nextUnassigned != 4 {
		t.Fatalf("expected cursor at 4, got %d", ga.nextUnassigned)
	}
}

//------------------------------------------------------------
// S2: under-provisioned view fails and leaves state unchanged
//------------------------------------------------------------

func TestGroupAdminUnderProvisioned(t *testing.T) {
	policy := Policy{Entries: []PolicyEntry{
		{TypeTag: "kv", Policy: OneSubgroupPolicy(EvenSharding(2, 2))},
	}}
	ga := NewGroupAdmin(policy, nil)
	view := membersView(10, 11, 12)

	_, err := ga.Compute("kv", view)
	if !IsKind(err, ErrSubgroupProvisioning) {
		t.Fatalf("expected ErrSubgroupProvisioning, got %v", err)
	}
	if ga.nextUnassigned != 0 {
		t.Fatalf("cursor must not advance on failure, got %d", ga.nextUnassigned)
	}
	if ga.previousAssignment[0] != nil {
		t.Fatalf("previous assignment must not be set on failure")
	}
}

//------------------------------------------------------------
// S3: custom per-shard sizes and modes
//------------------------------------------------------------

func TestGroupAdminCustomSharding(t *testing.T) {
	policy := Policy{Entries: []PolicyEntry{
		{TypeTag: "log", Policy: OneSubgroupPolicy(CustomSharding(
			[]int{1, 2, 3},
			[]DeliveryMode{Ordered, Unordered, Ordered},
		))},
	}}
	ga := NewGroupAdmin(policy, nil)
	view := membersView(1, 2, 3, 4, 5, 6)

	layout, err := ga.Compute("log", view)
	if err != nil {
		t.Fatalf("Compute failed: %v", err)
	}
	assertMembers(t, layout[0][0].Members, 1)
	assertMembers(t, layout[0][1].Members, 2, 3)
	assertMembers(t, layout[0][2].Members, 4, 5, 6)
	if layout[0][0].Mode != Ordered || layout[0][1].Mode != Unordered || layout[0][2].Mode != Ordered {
		t.Fatalf("unexpected per-shard delivery modes: %+v", layout)
	}
}

//------------------------------------------------------------
// S4: stability across a view change
//------------------------------------------------------------

func TestGroupAdminStableReallocate(t *testing.T) {
	policy := Policy{Entries: []PolicyEntry{
		{TypeTag: "kv", Policy: OneSubgroupPolicy(EvenSharding(2, 2))},
	}}
	ga := NewGroupAdmin(policy, nil)

	if _, err := ga.Compute("kv", membersView(10, 11, 12, 13)); err != nil {
		t.Fatalf("initial Compute failed: %v", err)
	}

	next := membersView(10, 12, 13, 14)
	layout, err := ga.Compute("kv", next)
	if err != nil {
		t.Fatalf("reallocation Compute failed: %v", err)
	}
	assertMembers(t, layout[0][0].Members, 10, 14)
	assertMembers(t, layout[0][1].Members, 12, 13)
	if ga.nextUnassigned != 4 {
		t.Fatalf("expected cursor at 4 after reallocation, got %d", ga.nextUnassigned)
	}
}

//------------------------------------------------------------
// S5: reset after a provisioning failure restores fresh-allocation behavior
//------------------------------------------------------------

func TestGroupAdminResetAfterFailure(t *testing.T) {
	policy := Policy{Entries: []PolicyEntry{
		{TypeTag: "kv", Policy: OneSubgroupPolicy(EvenSharding(2, 2))},
	}}
	ga := NewGroupAdmin(policy, nil)

	if _, err := ga.Compute("kv", membersView(10, 11, 12)); !IsKind(err, ErrSubgroupProvisioning) {
		t.Fatalf("expected initial provisioning failure, got %v", err)
	}
	ga.Reset()

	view := membersView(10, 11, 12, 13)
	fresh, err := ga.Compute("kv", view)
	if err != nil {
		t.Fatalf("Compute after reset failed: %v", err)
	}

	control := NewGroupAdmin(policy, nil)
	want, err := control.Compute("kv", view)
	if err != nil {
		t.Fatalf("control Compute failed: %v", err)
	}
	assertMembers(t, fresh[0][0].Members, uint32FromNodeIDs(want[0][0].Members)...)
	assertMembers(t, fresh[0][1].Members, uint32FromNodeIDs(want[0][1].Members)...)
}

func uint32FromNodeIDs(ids []NodeID) []uint32 {
	out := make([]uint32, len(ids))
	for i, id := range ids {
		out[i] = uint32(id)
	}
	return out
}
