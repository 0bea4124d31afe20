package core

import "testing"

func TestMakeSubViewRejectsNonMember(t *testing.T) {
	view := membersView(1, 2, 3)
	_, err := MakeSubView(view, []NodeID{1, 9}, Ordered, nil)
	if !IsKind(err, ErrInvalidNode) {
		t.Fatalf("expected ErrInvalidNode, got %v", err)
	}
}

func TestMakeSubViewDefaultSenderFlags(t *testing.T) {
	view := membersView(1, 2, 3)
	sv, err := MakeSubView(view, []NodeID{1, 2}, Ordered, nil)
	if err != nil {
		t.Fatalf("MakeSubView failed: %v", err)
	}
	for i, f := range sv.SenderFlags {
		if !f {
			t.Fatalf("expected default sender flag true at index %d", i)
		}
	}
}

func TestMakeSubViewSenderFlagsLengthMismatch(t *testing.T) {
	view := membersView(1, 2, 3)
	_, err := MakeSubView(view, []NodeID{1, 2}, Ordered, []bool{true})
	if err == nil {
		t.Fatalf("expected an error for mismatched sender_flags length")
	}
}
