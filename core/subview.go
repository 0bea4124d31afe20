package core

// SubView describes one shard's membership: the ordered node list, their
// endpoints, the delivery mode the shard uses, which members are senders,
// and the transient joined/departed sets the messaging substrate fills in
// when it installs a new View over this shard.
type SubView struct {
	Members      []NodeID
	Endpoints    []Endpoint
	Mode         DeliveryMode
	SenderFlags  []bool
	Joined       []NodeID
	Departed     []NodeID
}

// MakeSubView builds a shard descriptor for desiredNodes against view,
// preserving desiredNodes' order. Every desired node must already be a
// member of view. When senderFlags is nil, every member is marked as a
// sender; otherwise its length must equal len(desiredNodes).
func MakeSubView(view *View, desiredNodes []NodeID, mode DeliveryMode, senderFlags []bool) (SubView, error) {
	if senderFlags != nil && len(senderFlags) != len(desiredNodes) {
		return SubView{}, newErr(ErrInvalidNode, "sender_flags length must match desired_nodes length", nil)
	}

	members := append([]NodeID(nil), desiredNodes...)
	endpoints := make([]Endpoint, len(members))
	for i, id := range members {
		if view.RankOf(id) == -1 {
			return SubView{}, newErr(ErrInvalidNode, "desired node is not a member of the view", nil)
		}
		ep, _ := view.EndpointOf(id)
		endpoints[i] = ep
	}

	flags := senderFlags
	if flags == nil {
		flags = make([]bool, len(members))
		for i := range flags {
			flags[i] = true
		}
	} else {
		flags = append([]bool(nil), flags...)
	}

	return SubView{
		Members:     members,
		Endpoints:   endpoints,
		Mode:        mode,
		SenderFlags: flags,
	}, nil
}

// clearTransient resets the joined/departed sets, which the substrate
// recomputes whenever it installs a new View over this shard.
func (s *SubView) clearTransient() {
	s.Joined = nil
	s.Departed = nil
}
