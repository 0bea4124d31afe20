package core

// ShardPolicy describes how one subgroup is divided into shards: either
// `num_shards` identically-sized shards (even sharding) or a per-shard
// vector of sizes and delivery modes (custom sharding).
type ShardPolicy struct {
	NumShards int

	// EvenShards selects the uniform-size branch: every shard holds
	// NodesPerShard nodes and uses ShardsMode.
	EvenShards    bool
	NodesPerShard int
	ShardsMode    DeliveryMode

	// Custom-sharding branch: both slices have length NumShards.
	NumNodesByShard []int
	ModesByShard    []DeliveryMode
}

// SubgroupPolicy describes one replicated type's subgroups: either a single
// ShardPolicy applied identically to every subgroup, or one ShardPolicy per
// subgroup.
type SubgroupPolicy struct {
	NumSubgroups int

	Identical     bool
	ShardPolicies []ShardPolicy // length 1 if Identical, else length NumSubgroups
}

// shardPolicyFor returns the ShardPolicy governing subgroup index s.
func (sp SubgroupPolicy) shardPolicyFor(s int) ShardPolicy {
	if sp.Identical {
		return sp.ShardPolicies[0]
	}
	return sp.ShardPolicies[s]
}

// PolicyEntry pairs a replicated type's stable tag with its SubgroupPolicy.
type PolicyEntry struct {
	TypeTag string
	Policy  SubgroupPolicy
}

// Policy is the ordered sequence of (type tag, SubgroupPolicy) governing an
// entire deployment. Type tags must be unique.
type Policy struct {
	Entries []PolicyEntry
}

//-----------------------------------------------------------------------
// Pure constructors (§4.3). These never fail and hold no state: they just
// assemble the data-only Policy/SubgroupPolicy/ShardPolicy values above.
//-----------------------------------------------------------------------

// EvenSharding builds an ordered-delivery ShardPolicy with numShards equal
// shards of nodesPerShard nodes each.
func EvenSharding(numShards, nodesPerShard int) ShardPolicy {
	return ShardPolicy{
		NumShards:     numShards,
		EvenShards:    true,
		NodesPerShard: nodesPerShard,
		ShardsMode:    Ordered,
	}
}

// EvenShardingUnordered is EvenSharding with UNORDERED delivery.
func EvenShardingUnordered(numShards, nodesPerShard int) ShardPolicy {
	p := EvenSharding(numShards, nodesPerShard)
	p.ShardsMode = Unordered
	return p
}

// CustomSharding builds a ShardPolicy from a per-shard size and delivery
// mode vector. Both slices must have the same length.
func CustomSharding(numNodesByShard []int, modesByShard []DeliveryMode) ShardPolicy {
	return ShardPolicy{
		NumShards:       len(numNodesByShard),
		EvenShards:      false,
		NumNodesByShard: append([]int(nil), numNodesByShard...),
		ModesByShard:    append([]DeliveryMode(nil), modesByShard...),
	}
}

// OneSubgroupPolicy wraps a single ShardPolicy as a one-subgroup SubgroupPolicy.
func OneSubgroupPolicy(policy ShardPolicy) SubgroupPolicy {
	return SubgroupPolicy{NumSubgroups: 1, Identical: true, ShardPolicies: []ShardPolicy{policy}}
}

// IdenticalSubgroupsPolicy wraps one ShardPolicy applied identically across
// numSubgroups subgroups.
func IdenticalSubgroupsPolicy(numSubgroups int, policy ShardPolicy) SubgroupPolicy {
	return SubgroupPolicy{NumSubgroups: numSubgroups, Identical: true, ShardPolicies: []ShardPolicy{policy}}
}

// DistinctSubgroupsPolicy assembles a SubgroupPolicy where each subgroup
// carries its own ShardPolicy. len(policies) becomes NumSubgroups.
func DistinctSubgroupsPolicy(policies []ShardPolicy) SubgroupPolicy {
	return SubgroupPolicy{
		NumSubgroups:  len(policies),
		Identical:     false,
		ShardPolicies: append([]ShardPolicy(nil), policies...),
	}
}
