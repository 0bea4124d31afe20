package core

import "testing"

// TestCrossProductAllocate exercises S7: a source subgroup with shards
// [[A],[B,C]] (3 members, flattened in shard order: A, B, C) against a
// target subgroup with shards [[X,Y],[Z]] (2 target shards) produces
// 3 x 2 = 6 derived subgroups, source members flattened in shard order.
func TestCrossProductAllocate(t *testing.T) {
	view := membersView(1, 2, 3, 4, 5, 6) // A=1 B=2 C=3 X=4 Y=5 Z=6
	A, B, C, X, Y, Z := NodeID(1), NodeID(2), NodeID(3), NodeID(4), NodeID(5), NodeID(6)

	source := Layout{
		{
			mustSubView(t, view, []NodeID{A}, Ordered),
			mustSubView(t, view, []NodeID{B, C}, Ordered),
		},
	}
	target := Layout{
		{
			mustSubView(t, view, []NodeID{X, Y}, Ordered),
			mustSubView(t, view, []NodeID{Z}, Ordered),
		},
	}

	cp, err := CrossProductAllocate(view, source, target, 0, 0)
	if err != nil {
		t.Fatalf("CrossProductAllocate failed: %v", err)
	}
	if len(cp.Subgroups) != 6 {
		t.Fatalf("expected 6 derived subgroups, got %d", len(cp.Subgroups))
	}

	want := [][]NodeID{
		{A, X, Y},
		{A, Z},
		{B, X, Y},
		{B, Z},
		{C, X, Y},
		{C, Z},
	}
	for i, w := range want {
		got := cp.Subgroups[i][0].Members
		assertMembers(t, got, uint32FromNodeIDs(w)...)
		flags := cp.Subgroups[i][0].SenderFlags
		if !flags[0] {
			t.Fatalf("subgroup %d: expected source node to be a sender", i)
		}
		for _, f := range flags[1:] {
			if f {
				t.Fatalf("subgroup %d: expected only the source node to be a sender", i)
			}
		}
	}

	// C is the third source member overall (shard 1, rank 1); SubgroupIndex
	// addresses its pair with target shard 1 (Z) at i*numTargetShards+j = 2*2+1.
	idx := cp.SubgroupIndex(2, 1)
	assertMembers(t, cp.Subgroups[idx][0].Members, uint32(C), uint32(Z))
}

func mustSubView(t *testing.T, view *View, members []NodeID, mode DeliveryMode) SubView {
	t.Helper()
	sv, err := MakeSubView(view, members, mode, nil)
	if err != nil {
		t.Fatalf("MakeSubView failed: %v", err)
	}
	return sv
}
