package graph

import "github.com/OFFIS-RIT/netunion/pkg/common"

// Union maps every element it has seen to a stamp, the size class of the
// network that most recently contributed it. Elements are never removed
// and Keys preserves first-insertion order.
type Union[K comparable] struct {
	stamps map[K]int
	order  []K
}

// NewUnion returns an empty union.
func NewUnion[K comparable]() *Union[K] {
	return &Union[K]{stamps: make(map[K]int)}
}

// Add inserts key, or restamps it if it is already present.
func (u *Union[K]) Add(key K, stamp int) {
	if _, ok := u.stamps[key]; !ok {
		u.order = append(u.order, key)
	}
	u.stamps[key] = stamp
}

// Merge adds every key with the given stamp and returns how many keys were
// new.
func (u *Union[K]) Merge(keys []K, stamp int) int {
	before := len(u.order)
	for _, k := range keys {
		u.Add(k, stamp)
	}
	return len(u.order) - before
}

// Increase returns the number of distinct keys that are not in the union,
// i.e. by how much Merge(keys) would grow it. It does not modify u.
func (u *Union[K]) Increase(keys []K) int {
	n := 0
	var pending map[K]struct{}
	for _, k := range keys {
		if _, ok := u.stamps[k]; ok {
			continue
		}
		if pending == nil {
			pending = make(map[K]struct{})
		}
		if _, ok := pending[k]; ok {
			continue
		}
		pending[k] = struct{}{}
		n++
	}
	return n
}

// Stamp returns the stamp of key and whether key is present.
func (u *Union[K]) Stamp(key K) (int, bool) {
	s, ok := u.stamps[key]
	return s, ok
}

// Contains reports whether key is in the union.
func (u *Union[K]) Contains(key K) bool {
	_, ok := u.stamps[key]
	return ok
}

// Len returns the number of keys.
func (u *Union[K]) Len() int {
	return len(u.order)
}

// Keys returns the keys in first-insertion order. The slice must not be
// modified.
func (u *Union[K]) Keys() []K {
	return u.order
}

// UnionState is the pair of unions maintained during one selection run.
type UnionState struct {
	Nodes *Union[common.NodeID]
	Edges *Union[common.EdgeKey]
}

// NewUnionState returns an empty node and edge union.
func NewUnionState() *UnionState {
	return &UnionState{
		Nodes: NewUnion[common.NodeID](),
		Edges: NewUnion[common.EdgeKey](),
	}
}

// Merge merges the network's nodes and edges into both unions with the
// given stamp and returns the growth of each.
func (s *UnionState) Merge(network *common.Network, stamp int) (nodeGrowth, edgeGrowth int) {
	nodeGrowth = s.Nodes.Merge(network.Nodes, stamp)
	edgeGrowth = s.Edges.Merge(network.EdgeKeys(), stamp)
	return nodeGrowth, edgeGrowth
}
