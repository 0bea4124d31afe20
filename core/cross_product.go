package core

// CrossProductLayout is the result of CrossProductAllocate: one subgroup per
// (source member, target shard) pair, each holding a single shard whose
// members are [sourceNode, targetShardMembers...].
type CrossProductLayout struct {
	Subgroups       Layout
	numTargetShards int
}

// SubgroupIndex returns the index into Subgroups for multicasting from the
// sourceMemberIdx-th source member to the targetShardIdx-th target shard,
// following the addressing scheme documented (but not returned as a helper)
// in the original subgroup_functions.cpp: i*numTargetShards + j.
func (c CrossProductLayout) SubgroupIndex(sourceMemberIdx, targetShardIdx int) int {
	return sourceMemberIdx*c.numTargetShards + targetShardIdx
}

// CrossProductAllocate produces |source members| x |target shards| derived
// subgroups implementing all source->target send pairs. Each derived
// subgroup has exactly one shard: [sourceNode, targetShard.Members...], with
// SenderFlags = [true, false, false, ...] (only the source node sends).
// Delivery mode is always Ordered. Unlike GroupAdmin.Compute, this does not
// advance any external cursor: it layers over an already-committed
// allocation and consumes no new nodes.
//
// Source members are enumerated shard-then-intra-shard, matching the
// original's iteration order; if the same node appears in more than one
// source shard it is NOT deduplicated (flagged as an Open Question in
// DESIGN.md), so it yields one derived subgroup set per occurrence.
func CrossProductAllocate(view *View, source, target Layout, sourceSubgroup, targetSubgroup int) (CrossProductLayout, error) {
	if sourceSubgroup < 0 || sourceSubgroup >= len(source) {
		return CrossProductLayout{}, newErr(ErrSubgroupProvisioning, "source subgroup index out of range", nil)
	}
	if targetSubgroup < 0 || targetSubgroup >= len(target) {
		return CrossProductLayout{}, newErr(ErrSubgroupProvisioning, "target subgroup index out of range", nil)
	}

	sourceShards := source[sourceSubgroup]
	targetShards := target[targetSubgroup]
	numTargetShards := len(targetShards)

	result := CrossProductLayout{numTargetShards: numTargetShards}

	for _, sourceShard := range sourceShards {
		for _, sourceNode := range sourceShard.Members {
			for _, targetShard := range targetShards {
				desired := make([]NodeID, 0, len(targetShard.Members)+1)
				desired = append(desired, sourceNode)
				desired = append(desired, targetShard.Members...)

				senderFlags := make([]bool, len(desired))
				senderFlags[0] = true

				sv, err := MakeSubView(view, desired, Ordered, senderFlags)
				if err != nil {
					return CrossProductLayout{}, err
				}
				result.Subgroups = append(result.Subgroups, []SubView{sv})
			}
		}
	}

	return result, nil
}
