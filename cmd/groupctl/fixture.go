package main

import (
	"os"

	"gopkg.in/yaml.v3"

	"groupcore/core"
)

// viewFixture is the YAML shape of a View fed to groupctl: a flat list of
// member node ids and their endpoints. Member order is significant -- it is
// the order freshAllocate consumes ranks from.
type viewFixture struct {
	Members []struct {
		ID   uint32 `yaml:"id"`
		IP   string `yaml:"ip"`
		Port int    `yaml:"port"`
	} `yaml:"members"`
}

func (f viewFixture) toView() *core.View {
	members := make([]core.NodeID, len(f.Members))
	endpoints := make(map[core.NodeID]core.Endpoint, len(f.Members))
	for i, m := range f.Members {
		members[i] = core.NodeID(m.ID)
		endpoints[core.NodeID(m.ID)] = core.Endpoint{IP: m.IP, Port: m.Port}
	}
	return core.NewView(members, endpoints)
}

// shardPolicyFixture mirrors core.ShardPolicy's two branches.
type shardPolicyFixture struct {
	EvenShards      bool   `yaml:"even_shards"`
	NumShards       int    `yaml:"num_shards"`
	NodesPerShard   int    `yaml:"nodes_per_shard"`
	Unordered       bool   `yaml:"unordered"`
	NumNodesByShard []int  `yaml:"num_nodes_by_shard"`
	ModesByShard    []bool `yaml:"unordered_by_shard"` // true means Unordered
}

func (f shardPolicyFixture) toShardPolicy() core.ShardPolicy {
	if f.EvenShards {
		if f.Unordered {
			return core.EvenShardingUnordered(f.NumShards, f.NodesPerShard)
		}
		return core.EvenSharding(f.NumShards, f.NodesPerShard)
	}
	modes := make([]core.DeliveryMode, len(f.ModesByShard))
	for i, unordered := range f.ModesByShard {
		if unordered {
			modes[i] = core.Unordered
		} else {
			modes[i] = core.Ordered
		}
	}
	return core.CustomSharding(f.NumNodesByShard, modes)
}

// policyEntryFixture mirrors core.PolicyEntry.
type policyEntryFixture struct {
	TypeTag      string               `yaml:"type_tag"`
	NumSubgroups int                  `yaml:"num_subgroups"`
	Identical    bool                 `yaml:"identical"`
	Shards       []shardPolicyFixture `yaml:"shards"`
}

func (f policyEntryFixture) toPolicyEntry() core.PolicyEntry {
	shards := make([]core.ShardPolicy, len(f.Shards))
	for i, s := range f.Shards {
		shards[i] = s.toShardPolicy()
	}
	var sp core.SubgroupPolicy
	if f.Identical {
		sp = core.IdenticalSubgroupsPolicy(f.NumSubgroups, shards[0])
	} else {
		sp = core.DistinctSubgroupsPolicy(shards)
	}
	return core.PolicyEntry{TypeTag: f.TypeTag, Policy: sp}
}

type policyFixture struct {
	Entries []policyEntryFixture `yaml:"entries"`
}

func (f policyFixture) toPolicy() core.Policy {
	entries := make([]core.PolicyEntry, len(f.Entries))
	for i, e := range f.Entries {
		entries[i] = e.toPolicyEntry()
	}
	return core.Policy{Entries: entries}
}

func loadViewFixture(path string) (*core.View, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var f viewFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	return f.toView(), nil
}

func loadPolicyFixture(path string) (core.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return core.Policy{}, err
	}
	var f policyFixture
	if err := yaml.Unmarshal(data, &f); err != nil {
		return core.Policy{}, err
	}
	return f.toPolicy(), nil
}
