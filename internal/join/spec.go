// Package join reconstructs nested object graphs from flat per-kind record
// collections: given a join specification it attaches related records (or
// record lists) under their parent records, without ever writing back into
// the normalized store.
package join

import (
	"slices"
)

// Node is one edge of a normalized join tree: join Key into Parent, then
// join each child into Key. Sibling joins under one parent and deep chains
// are both expressible from a single flat-or-nested input shape.
type Node struct {
	Key      string
	Parent   string
	Children []Node
}

// Normalize converts a loose join specification into a tree of nodes.
//
// Accepted shapes:
//   - string:          "team"
//   - array:           ["team", "shifts"] (parallel joins, also mixed shapes)
//   - object:          {"employment_type": "category"} (parent → children)
//   - nested object:   {"employment_type": {"category": "subcategory"}}
//
// Object keys are sorted so the same specification always yields the same
// tree; the tree feeds memo keys, which must be deterministic.
func Normalize(input any, parentKey string) []Node {
	switch val := input.(type) {
	case nil:
		return nil
	case string:
		return []Node{{Key: val, Parent: parentKey}}
	case []string:
		var nodes []Node
		for _, s := range val {
			nodes = append(nodes, Node{Key: s, Parent: parentKey})
		}
		return nodes
	case []any:
		var nodes []Node
		for _, item := range val {
			nodes = append(nodes, Normalize(item, parentKey)...)
		}
		return nodes
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		slices.Sort(keys)
		var nodes []Node
		for _, k := range keys {
			nodes = append(nodes, Node{
				Key:      k,
				Parent:   parentKey,
				Children: Normalize(val[k], k),
			})
		}
		return nodes
	default:
		return nil
	}
}

// Flatten returns every kind named anywhere in the tree, deduplicated in
// first-seen order. The view layer uses this to restrict its store read to
// the kinds a join actually touches.
func Flatten(nodes []Node) []string {
	var out []string
	seen := map[string]bool{}
	var walk func(ns []Node)
	walk = func(ns []Node) {
		for _, n := range ns {
			if !seen[n.Key] {
				seen[n.Key] = true
				out = append(out, n.Key)
			}
			walk(n.Children)
		}
	}
	walk(nodes)
	return out
}

// Keys returns the top-level keys of the tree.
func Keys(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Key
	}
	return out
}
