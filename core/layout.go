package core

// Layout is the per-type subgroups-and-shards table produced once per View:
// Layout[subgroupIndex][shardIndex] is that shard's SubView.
type Layout [][]SubView

// clone makes a deep-enough copy of a Layout for in-place mutation during
// stable re-allocation: the outer/inner slices and each SubView's Members,
// Endpoints and SenderFlags are copied, so substituting a member never
// writes through to the previous Layout. Joined and Departed still share
// their backing arrays with the original.
func (l Layout) clone() Layout {
	out := make(Layout, len(l))
	for i, subgroup := range l {
		out[i] = make([]SubView, len(subgroup))
		copy(out[i], subgroup)
		for j := range out[i] {
			out[i][j].Members = append([]NodeID(nil), subgroup[j].Members...)
			out[i][j].Endpoints = append([]Endpoint(nil), subgroup[j].Endpoints...)
			out[i][j].SenderFlags = append([]bool(nil), subgroup[j].SenderFlags...)
		}
	}
	return out
}

// NumSubgroups reports the number of subgroups in the layout.
func (l Layout) NumSubgroups() int { return len(l) }

// NumShards reports the number of shards in subgroup s, or 0 if s is out of range.
func (l Layout) NumShards(s int) int {
	if s < 0 || s >= len(l) {
		return 0
	}
	return len(l[s])
}
