// Package graph derives the rendered edge set of an idea from its nodes'
// connection lists. Edges are never stored; they are a function of node
// state.
package graph

import "fmt"

// Vertex is the projection of a node that edge derivation needs.
type Vertex struct {
	ID          string
	Connections []string
}

// Edge is a directed edge drawn from Source's connection list. Ordinal is
// the index of Target inside that list, which keeps duplicate edges
// distinguishable.
type Edge struct {
	Source  string `json:"source"`
	Target  string `json:"target"`
	Ordinal int    `json:"ordinal"`
}

// ID is a stable identifier for rendering.
func (e Edge) ID() string {
	return fmt.Sprintf("%s-%s-%d", e.Source, e.Target, e.Ordinal)
}

// DeriveEdges flattens every vertex's connections into (id -> target)
// pairs, in vertex order then connection order.
func DeriveEdges(vertices []Vertex) []Edge {
	total := 0
	for _, v := range vertices {
		total += len(v.Connections)
	}
	edges := make([]Edge, 0, total)
	for _, v := range vertices {
		for i, target := range v.Connections {
			edges = append(edges, Edge{Source: v.ID, Target: target, Ordinal: i})
		}
	}
	return edges
}

// IncomingIndex maps each referenced id to the distinct vertices that
// point at it, in vertex order.
func IncomingIndex(vertices []Vertex) map[string][]string {
	index := make(map[string][]string)
	for _, v := range vertices {
		seen := make(map[string]struct{}, len(v.Connections))
		for _, target := range v.Connections {
			if _, ok := seen[target]; ok {
				continue
			}
			seen[target] = struct{}{}
			index[target] = append(index[target], v.ID)
		}
	}
	return index
}

// DanglingEdges returns the edges whose target is not one of vertices.
func DanglingEdges(vertices []Vertex) []Edge {
	present := make(map[string]struct{}, len(vertices))
	for _, v := range vertices {
		present[v.ID] = struct{}{}
	}
	var dangling []Edge
	for _, e := range DeriveEdges(vertices) {
		if _, ok := present[e.Target]; !ok {
			dangling = append(dangling, e)
		}
	}
	return dangling
}
