package relationship

import (
	"context"

	"github.com/smallnest/memograph/memory"
)

// Direction selects which edges a traversal follows.
type Direction string

// Traversal directions.
const (
	DirectionOut  Direction = "out"
	DirectionIn   Direction = "in"
	DirectionBoth Direction = "both"
)

// Traversal bounds.
const (
	MaxTraverseDepth = 5
	MaxGraphDepth    = 3
	MaxGraphNodes    = 100
)

// Related is one memory discovered by traversal, with the edge that led to
// it and the depth at which it was first reached.
type Related struct {
	Memory *memory.Entry        `json:"memory"`
	Edge   *memory.Relationship `json:"edge"`
	Depth  int                  `json:"depth"`
}

// GraphNode is one visited memory with all its incident edges.
type GraphNode struct {
	Memory *memory.Entry          `json:"memory"`
	Edges  []*memory.Relationship `json:"edges"`
	Depth  int                    `json:"depth"`
}

// Graph is the bounded neighborhood around a root memory.
type Graph struct {
	Root            string                `json:"root"`
	Nodes           map[string]*GraphNode `json:"nodes"`
	TotalNodes      int                   `json:"total_nodes"`
	MaxDepthReached int                   `json:"max_depth_reached"`
}

// GetRelated walks the graph breadth-first from root, following edges in the
// given direction up to depth levels, optionally restricted to certain edge
// types. The root itself is never emitted, and each memory appears at most
// once (at its shallowest depth).
func (e *Engine) GetRelated(ctx context.Context, rootID string, depth int, direction Direction, types []memory.RelationshipType) ([]*Related, error) {
	if depth < 1 || depth > MaxTraverseDepth {
		return nil, memory.Errorf(memory.KindInvalidInput, "depth %d out of range [1,%d]", depth, MaxTraverseDepth)
	}
	switch direction {
	case DirectionOut, DirectionIn, DirectionBoth:
	default:
		return nil, memory.Errorf(memory.KindInvalidInput, "unknown direction %q", direction)
	}

	root, err := e.memories.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", rootID)
	}

	typeFilter := make(map[memory.RelationshipType]bool, len(types))
	for _, t := range types {
		typeFilter[t] = true
	}

	type frame struct {
		id    string
		depth int
	}
	visited := map[string]bool{rootID: true}
	queue := []frame{{id: rootID, depth: 0}}
	var results []*Related

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= depth {
			continue
		}

		steps, err := e.neighborEdges(ctx, cur.id, direction)
		if err != nil {
			return nil, err
		}
		for _, st := range steps {
			if len(typeFilter) > 0 && !typeFilter[st.edge.RelationshipType] {
				continue
			}
			if visited[st.neighbor] {
				continue
			}
			visited[st.neighbor] = true
			m, err := e.memories.Get(ctx, st.neighbor)
			if err != nil {
				return nil, err
			}
			if m == nil {
				continue // stale edge; endpoint expired or was deleted
			}
			results = append(results, &Related{Memory: m, Edge: st.edge, Depth: cur.depth + 1})
			queue = append(queue, frame{id: st.neighbor, depth: cur.depth + 1})
		}
	}
	return results, nil
}

// GetGraph collects the bounded neighborhood around root: every visited
// memory with all its incident edges, stopping at maxDepth levels or
// maxNodes nodes, whichever comes first. The root is node zero.
func (e *Engine) GetGraph(ctx context.Context, rootID string, maxDepth, maxNodes int) (*Graph, error) {
	if maxDepth < 1 || maxDepth > MaxGraphDepth {
		return nil, memory.Errorf(memory.KindInvalidInput, "max_depth %d out of range [1,%d]", maxDepth, MaxGraphDepth)
	}
	if maxNodes < 1 || maxNodes > MaxGraphNodes {
		return nil, memory.Errorf(memory.KindInvalidInput, "max_nodes %d out of range [1,%d]", maxNodes, MaxGraphNodes)
	}

	root, err := e.memories.Get(ctx, rootID)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, memory.Errorf(memory.KindNotFound, "memory %s not found", rootID)
	}

	g := &Graph{Root: rootID, Nodes: make(map[string]*GraphNode)}

	type frame struct {
		entry *memory.Entry
		depth int
	}
	queue := []frame{{entry: root, depth: 0}}
	visited := map[string]bool{rootID: true}

	for len(queue) > 0 && len(g.Nodes) < maxNodes {
		cur := queue[0]
		queue = queue[1:]

		out, in, err := e.GetMemoryRelationships(ctx, cur.entry.ID)
		if err != nil {
			return nil, err
		}
		g.Nodes[cur.entry.ID] = &GraphNode{
			Memory: cur.entry,
			Edges:  append(out, in...),
			Depth:  cur.depth,
		}
		if cur.depth > g.MaxDepthReached {
			g.MaxDepthReached = cur.depth
		}
		if cur.depth >= maxDepth {
			continue
		}

		for _, st := range neighborSteps(cur.entry.ID, out, in) {
			if visited[st.neighbor] {
				continue
			}
			visited[st.neighbor] = true
			m, err := e.memories.Get(ctx, st.neighbor)
			if err != nil {
				return nil, err
			}
			if m == nil {
				continue
			}
			queue = append(queue, frame{entry: m, depth: cur.depth + 1})
		}
	}
	g.TotalNodes = len(g.Nodes)
	return g, nil
}

type step struct {
	neighbor string
	edge     *memory.Relationship
}

// neighborEdges lists the (neighbor, edge) pairs reachable from one memory
// in the given direction.
func (e *Engine) neighborEdges(ctx context.Context, memoryID string, direction Direction) ([]step, error) {
	var out, in []*memory.Relationship
	var err error
	if direction == DirectionOut || direction == DirectionBoth {
		if out, err = e.outgoing(ctx, memoryID); err != nil {
			return nil, err
		}
	}
	if direction == DirectionIn || direction == DirectionBoth {
		if in, err = e.incoming(ctx, memoryID); err != nil {
			return nil, err
		}
	}
	return neighborSteps(memoryID, out, in), nil
}

func neighborSteps(memoryID string, out, in []*memory.Relationship) []step {
	steps := make([]step, 0, len(out)+len(in))
	for _, rel := range out {
		steps = append(steps, step{neighbor: rel.ToMemoryID, edge: rel})
	}
	for _, rel := range in {
		steps = append(steps, step{neighbor: rel.FromMemoryID, edge: rel})
	}
	return steps
}
