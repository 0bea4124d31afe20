package core

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// GroupAdmin is the stateful allocation core. Given a Policy and successive
// Views, it computes a Layout per replicated type, preserving shard
// membership across views whenever possible. Concurrent calls to Compute are
// disallowed by contract (the view installer calls it serially); GroupAdmin
// only guards its own state with a mutex so misuse fails safely rather than
// racing.
type GroupAdmin struct {
	mu sync.Mutex

	policy Policy
	log    *logrus.Logger

	initOrder      []string
	typeIndex      map[string]int
	nextUnassigned int

	// previousAssignment[i] is nil until the first successful Compute for
	// initOrder[i]; it is discarded wholesale by Reset.
	previousAssignment []Layout

	// currentViewID/haveView identify which View next_unassigned_rank and
	// claimed are currently seeded for. Per spec §4.1 the cursor is "shared
	// across types within one view-computation" -- successive Compute calls
	// against the *same* View (the view installer calling it once per
	// replicated type) must share one cursor, but a *new* View requires a
	// fresh cursor seeded from that view's membership, not the ending value
	// left over from whichever view was computed before it.
	currentViewID uuid.UUID
	haveView      bool

	// claimed tracks, for the view-computation round currentViewID names,
	// which of that View's members are already spoken for -- by a kept
	// position in some type's previous assignment, or by a substitution
	// already handed out earlier in this same round. Consuming a node
	// always checks and updates claimed so that two types processed against
	// the same View, or a kept position and a later substitution, never
	// hand out the same node twice.
	claimed map[NodeID]bool
}

// NewGroupAdmin constructs an allocator for policy. log may be nil, in which
// case a default logrus.Logger is used.
func NewGroupAdmin(policy Policy, log *logrus.Logger) *GroupAdmin {
	if log == nil {
		log = logrus.New()
	}
	ga := &GroupAdmin{policy: policy, log: log}
	order := make([]string, 0, len(policy.Entries))
	for _, e := range policy.Entries {
		order = append(order, e.TypeTag)
	}
	ga.SetInitializationOrder(order)
	return ga
}

// SetInitializationOrder configures the positional index used for
// previous-assignment storage, and (re)sizes that storage to match. It
// follows the original group_admin.h's pattern of pre-sizing
// previous_assignment to subgroup_initialization_order.size() before any
// Compute call.
func (ga *GroupAdmin) SetInitializationOrder(order []string) {
	ga.mu.Lock()
	defer ga.mu.Unlock()
	ga.initOrder = append([]string(nil), order...)
	ga.typeIndex = make(map[string]int, len(order))
	for i, tag := range ga.initOrder {
		ga.typeIndex[tag] = i
	}
	ga.previousAssignment = make([]Layout, len(ga.initOrder))
	ga.haveView = false
}

// Reset discards all previous-assignment state across every type, used when
// the substrate reports that the candidate View was never installed. This
// mirrors reset_subgroup_membership_state in the original, which clears the
// whole previous_assignment vector in a single pass rather than per type.
func (ga *GroupAdmin) Reset() {
	ga.mu.Lock()
	defer ga.mu.Unlock()
	ga.nextUnassigned = 0
	ga.haveView = false
	ga.claimed = nil
	for i := range ga.previousAssignment {
		ga.previousAssignment[i] = nil
	}
}

func (ga *GroupAdmin) policyFor(typeTag string) (SubgroupPolicy, bool) {
	for _, e := range ga.policy.Entries {
		if e.TypeTag == typeTag {
			return e.Policy, true
		}
	}
	return SubgroupPolicy{}, false
}

// beginViewIfNeeded seeds next_unassigned_rank and the claimed set for a new
// view-computation round the first time Compute sees a View, and leaves both
// untouched on every subsequent call against that same View -- that sharing
// is what lets several replicated types draw from one pool of unclaimed
// members without colliding, per §4.1's "shared across types within one view
// computation". A member counts as claimed if some type's previous
// assignment still holds it in the new View; those are exactly the nodes a
// substitution must not be allowed to hand out again.
func (ga *GroupAdmin) beginViewIfNeeded(view *View) {
	if ga.haveView && ga.currentViewID == view.ID {
		return
	}
	ga.currentViewID = view.ID
	ga.haveView = true
	ga.nextUnassigned = 0

	claimed := make(map[NodeID]bool)
	for _, layout := range ga.previousAssignment {
		for _, subgroup := range layout {
			for _, shard := range subgroup {
				for _, m := range shard.Members {
					if view.RankOf(m) != -1 {
						claimed[m] = true
					}
				}
			}
		}
	}
	ga.claimed = claimed
}

// availableFrom counts the View members from the cursor onward that are not
// yet claimed -- the pool a fresh or custom shard allocation draws from. It
// generalizes the original's "members.size - next_unassigned_rank" bound to
// account for members already claimed by other types' kept positions.
func (ga *GroupAdmin) availableFrom(view *View) int {
	n := 0
	for i := ga.nextUnassigned; i < view.Size(); i++ {
		if !ga.claimed[view.Members[i]] {
			n++
		}
	}
	return n
}

// takeNext returns the next unclaimed View member at or after the cursor,
// marking it claimed and advancing the cursor past it. The cursor only ever
// moves forward, so it remains nondecreasing and never exceeds view.Size()
// (Testable Property 4) even though it may skip over already-claimed ranks.
func (ga *GroupAdmin) takeNext(view *View) (NodeID, bool) {
	for ga.nextUnassigned < view.Size() {
		m := view.Members[ga.nextUnassigned]
		ga.nextUnassigned++
		if !ga.claimed[m] {
			ga.claimed[m] = true
			return m, true
		}
	}
	return InvalidNodeID, false
}

// Compute produces a Layout for typeTag against currentView. It fails with
// an ErrSubgroupProvisioning CoreError if the View cannot satisfy the
// Policy. On success, the new Layout replaces the stored previous Layout for
// typeTag so the next Compute call can build on it for stability.
//
// SetInitializationOrder must have registered typeTag beforehand; calling
// Compute for an unregistered type is a programmer error and panics, the
// same way the original's std::distance against a not-found type_index
// produces undefined (here: loud) behavior rather than a recoverable error.
func (ga *GroupAdmin) Compute(typeTag string, currentView *View) (Layout, error) {
	ga.mu.Lock()
	defer ga.mu.Unlock()

	pos, ok := ga.typeIndex[typeTag]
	if !ok {
		panic("core: Compute called for type not in initialization order: " + typeTag)
	}
	subPolicy, ok := ga.policyFor(typeTag)
	if !ok {
		panic("core: Compute called for type not in policy: " + typeTag)
	}

	ga.beginViewIfNeeded(currentView)

	if subPolicy.NumSubgroups == 0 {
		ga.previousAssignment[pos] = Layout{}
		return Layout{}, nil
	}

	if ga.previousAssignment[pos] != nil {
		return ga.stableReallocate(pos, subPolicy, currentView)
	}
	return ga.freshAllocate(pos, subPolicy, currentView)
}

// freshAllocate implements §4.1's "Fresh allocation" procedure: it has no
// previous Layout to start from, so it greedily consumes unclaimed View
// members in order starting at next_unassigned_rank.
func (ga *GroupAdmin) freshAllocate(pos int, policy SubgroupPolicy, view *View) (Layout, error) {
	layout := make(Layout, 0, policy.NumSubgroups)

	// Snapshot cursor/claimed so a mid-way failure leaves both untouched,
	// matching §4.1's "drop any partial layout... on failure" -- nothing
	// this type consumed should be visible to the next attempt.
	savedCursor := ga.nextUnassigned
	savedClaimed := make(map[NodeID]bool, len(ga.claimed))
	for k, v := range ga.claimed {
		savedClaimed[k] = v
	}
	restore := func() {
		ga.nextUnassigned = savedCursor
		ga.claimed = savedClaimed
	}

	for s := 0; s < policy.NumSubgroups; s++ {
		shardPolicy := policy.shardPolicyFor(s)

		if shardPolicy.EvenShards {
			needed := shardPolicy.NumShards * shardPolicy.NodesPerShard
			if ga.availableFrom(view) < needed {
				restore()
				return nil, newErr(ErrSubgroupProvisioning, "view has too few remaining members for even sharding", nil)
			}
		}

		shards := make([]SubView, 0, shardPolicy.NumShards)
		for sh := 0; sh < shardPolicy.NumShards; sh++ {
			var k int
			var mode DeliveryMode
			if shardPolicy.EvenShards {
				k = shardPolicy.NodesPerShard
				mode = shardPolicy.ShardsMode
			} else {
				k = shardPolicy.NumNodesByShard[sh]
				mode = shardPolicy.ModesByShard[sh]
				// Per spec §4.1: the non-even bounds check uses a strict ">"
				// against members.size, not ">=" -- an exact-fit shard that
				// consumes precisely the remaining members is legal. See
				// DESIGN.md for the Open Question this resolves.
				if ga.availableFrom(view) < k {
					restore()
					return nil, newErr(ErrSubgroupProvisioning, "view has too few remaining members for custom shard", nil)
				}
			}

			desired := make([]NodeID, 0, k)
			for i := 0; i < k; i++ {
				m, ok := ga.takeNext(view)
				if !ok {
					restore()
					return nil, newErr(ErrSubgroupProvisioning, "view exhausted during fresh allocation", nil)
				}
				desired = append(desired, m)
			}

			sv, err := MakeSubView(view, desired, mode, nil)
			if err != nil {
				restore()
				return nil, err
			}
			shards = append(shards, sv)
		}
		layout = append(layout, shards)
	}

	ga.previousAssignment[pos] = layout
	return layout, nil
}

// stableReallocate implements §4.1's "Stable re-allocation" procedure: it
// copies the previous Layout, keeps every member still present in the
// current View at its existing position, and substitutes departed members
// with the next unclaimed member.
func (ga *GroupAdmin) stableReallocate(pos int, policy SubgroupPolicy, view *View) (Layout, error) {
	next := ga.previousAssignment[pos].clone()

	for s := 0; s < policy.NumSubgroups && s < len(next); s++ {
		for sh := 0; sh < len(next[s]); sh++ {
			shard := &next[s][sh]
			for rank := 0; rank < len(shard.Members); rank++ {
				if view.RankOf(shard.Members[rank]) != -1 {
					continue
				}
				replacement, ok := ga.takeNext(view)
				if !ok {
					return nil, newErr(ErrSubgroupProvisioning, "view exhausted while substituting departed member", nil)
				}
				shard.Members[rank] = replacement
				ep, _ := view.EndpointOf(replacement)
				shard.Endpoints[rank] = ep
			}
			shard.clearTransient()
		}
	}

	ga.previousAssignment[pos] = next
	return next, nil
}
