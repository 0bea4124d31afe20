package core

import (
	"github.com/google/uuid"
)

// NodeID identifies a node within a View. INVALID_NODE_ID (the zero value's
// complement) is reserved and never assigned to a live node.
type NodeID uint32

// InvalidNodeID is the reserved sentinel node id.
const InvalidNodeID NodeID = 1<<32 - 1

// DeliveryMode selects the ordering guarantee a shard's replicated sends use.
type DeliveryMode int

const (
	// Ordered delivers updates to all replicas in the same total order.
	Ordered DeliveryMode = iota
	// Unordered delivers updates with no cross-replica ordering guarantee.
	Unordered
)

func (m DeliveryMode) String() string {
	if m == Ordered {
		return "ORDERED"
	}
	return "UNORDERED"
}

// Endpoint is the network address a node can be reached at.
type Endpoint struct {
	IP   string
	Port int
}

// View is an immutable snapshot of current membership: an ordered sequence
// of live node identities with their endpoints, plus a rank lookup. It does
// not carry per-type layouts; GroupAdmin keeps the previous assignment for
// each type. Constructing a View never fails; NewView accepts
// whatever membership it is given and leaves validation (e.g. "is this View
// rich enough for the Policy") to the Group Admin.
type View struct {
	// ID uniquely tags this installed View, the way storage.go tags cache
	// entries by content hash -- useful for logging and for correlating a
	// Layout back to the View it was computed against.
	ID uuid.UUID

	Members   []NodeID
	Endpoints map[NodeID]Endpoint

	rankOf map[NodeID]int
}

// NewView builds a View from an ordered member list and their endpoints.
// Members not present in endpoints are still valid (the endpoint map may be
// a partial, test-only stub); RankOf and Members are always derived from
// the member list itself.
func NewView(members []NodeID, endpoints map[NodeID]Endpoint) *View {
	v := &View{
		ID:        uuid.New(),
		Members:   append([]NodeID(nil), members...),
		Endpoints: endpoints,
		rankOf:    make(map[NodeID]int, len(members)),
	}
	for i, id := range v.Members {
		v.rankOf[id] = i
	}
	return v
}

// RankOf returns the zero-based position of id within the View's member
// order, or -1 if id is not a current member.
func (v *View) RankOf(id NodeID) int {
	if r, ok := v.rankOf[id]; ok {
		return r
	}
	return -1
}

// Size returns the number of live members in the View.
func (v *View) Size() int { return len(v.Members) }

// EndpointOf returns the endpoint registered for id and whether it was found.
func (v *View) EndpointOf(id NodeID) (Endpoint, bool) {
	e, ok := v.Endpoints[id]
	return e, ok
}
