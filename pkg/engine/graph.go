package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/conduit/pkg/models"
)

// ErrInvalidGraph matches every GraphError.
var ErrInvalidGraph = errors.New("invalid flow graph")

// GraphError rejects a flow before any node runs: cycles, dangling edges, duplicate or
// reserved ids, unknown node types, malformed configs and loop body boundary violations.
type GraphError struct {
	NodeID  string
	EdgeID  string
	Message string
	Err     error
}

func (e *GraphError) Error() string {
	msg := e.Message
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}

	switch {
	case e.NodeID != "":
		return fmt.Sprintf("invalid flow graph: node %q: %s", e.NodeID, msg)
	case e.EdgeID != "":
		return fmt.Sprintf("invalid flow graph: edge %q: %s", e.EdgeID, msg)
	default:
		return "invalid flow graph: " + msg
	}
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

func (e *GraphError) Is(target error) bool {
	return target == ErrInvalidGraph
}

func nodeError(nodeID string, err error, format string, args ...any) *GraphError {
	return &GraphError{NodeID: nodeID, Message: fmt.Sprintf(format, args...), Err: err}
}

func edgeError(edge *models.Edge, format string, args ...any) *GraphError {
	id := edge.ID
	if id == "" {
		id = edge.From + "->" + edge.To
	}

	return &GraphError{EdgeID: id, Message: fmt.Sprintf(format, args...)}
}

// mainFrame is the frame id of nodes outside any loop body.
const mainFrame = ""

// graph is the validated, indexed form of a flow. Nodes are grouped into frames: the
// main frame and one frame per loop holding the loop's body. Back-edges from a body to
// its loop are dropped.
type graph struct {
	nodes []*models.Node
	byID  map[string]*models.Node
	out   map[string][]*models.Edge
	in    map[string][]*models.Edge
	owner map[string]string
	// frames lists node ids per frame in definition order.
	frames map[string][]string
	// sinks lists the body nodes of a loop without outgoing edges.
	sinks map[string][]string
}

func buildGraph(flow *models.Flow, known func(models.NodeType) bool) (*graph, error) {
	g := &graph{
		byID:   make(map[string]*models.Node, len(flow.Nodes)),
		out:    make(map[string][]*models.Edge),
		in:     make(map[string][]*models.Edge),
		owner:  make(map[string]string),
		frames: make(map[string][]string),
		sinks:  make(map[string][]string),
	}

	err := g.addNodes(flow.Nodes, known)
	if err != nil {
		return nil, err
	}

	err = g.checkEdges(flow.Edges)
	if err != nil {
		return nil, err
	}

	err = g.assignFrames(flow.Edges)
	if err != nil {
		return nil, err
	}

	for frame, ids := range g.frames {
		err = g.checkAcyclic(frame, ids)
		if err != nil {
			return nil, err
		}
	}

	return g, nil
}

func (g *graph) addNodes(nodes []*models.Node, known func(models.NodeType) bool) error {
	for _, node := range nodes {
		if node == nil {
			return &GraphError{Message: "nil node"}
		}

		switch node.ID {
		case "":
			return &GraphError{Message: "node id is required"}
		case models.ScopeInput, models.ScopeLoop:
			return nodeError(node.ID, nil, "id is reserved")
		}

		if _, exists := g.byID[node.ID]; exists {
			return nodeError(node.ID, nil, "duplicate node id")
		}

		if !known(node.Type) {
			return nodeError(node.ID, nil, "unknown node type %q", node.Type)
		}

		err := models.CheckNodeConfig(node.Type, node.Config)
		if err != nil && !errors.Is(err, models.ErrUnknownNodeType) {
			return nodeError(node.ID, err, "malformed config")
		}

		g.nodes = append(g.nodes, node)
		g.byID[node.ID] = node
	}

	return nil
}

func (g *graph) checkEdges(edges []*models.Edge) error {
	for _, edge := range edges {
		if edge == nil {
			return &GraphError{Message: "nil edge"}
		}

		from, ok := g.byID[edge.From]
		if !ok {
			return edgeError(edge, "source node %q does not exist", edge.From)
		}

		if _, ok := g.byID[edge.To]; !ok {
			return edgeError(edge, "target node %q does not exist", edge.To)
		}

		switch edge.Branch {
		case models.BranchNone:
		case models.BranchTrue, models.BranchFalse:
			if from.Type != models.NodeTypeCondition {
				return edgeError(edge, "branch %q can only leave a condition node", edge.Branch)
			}
		case models.BranchBody:
			if !g.isLoop(edge.From) {
				return edgeError(edge, "body edges can only leave a loop node")
			}
		default:
			return edgeError(edge, "unknown branch %q", edge.Branch)
		}
	}

	return nil
}

// assignFrames computes loop body membership. The body of a loop is everything reachable
// from its body edges without passing back through the loop itself. A node reachable from
// several loops belongs to the innermost one.
func (g *graph) assignFrames(edges []*models.Edge) error {
	successors := make(map[string][]*models.Edge)
	for _, edge := range edges {
		successors[edge.From] = append(successors[edge.From], edge)
	}

	reach := make(map[string]map[string]bool)

	for _, node := range g.nodes {
		if !g.isLoop(node.ID) {
			continue
		}

		body := make(map[string]bool)
		stack := []string{}

		for _, edge := range successors[node.ID] {
			if edge.Branch == models.BranchBody && edge.To != node.ID {
				stack = append(stack, edge.To)
			}
		}

		for len(stack) > 0 {
			id := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if body[id] {
				continue
			}

			body[id] = true

			for _, edge := range successors[id] {
				if edge.To != node.ID && !body[edge.To] {
					stack = append(stack, edge.To)
				}
			}
		}

		reach[node.ID] = body
	}

	for loopID, body := range reach {
		for otherID := range body {
			if other, ok := reach[otherID]; ok && other[loopID] {
				return nodeError(loopID, nil, "loop body reaches enclosing loop %q", otherID)
			}
		}
	}

	for _, node := range g.nodes {
		owner := mainFrame
		size := 0

		for loopID, body := range reach {
			if !body[node.ID] {
				continue
			}

			if owner == mainFrame || len(body) < size || (len(body) == size && loopID < owner) {
				owner = loopID
				size = len(body)
			}
		}

		g.owner[node.ID] = owner
		g.frames[owner] = append(g.frames[owner], node.ID)
	}

	for _, edge := range edges {
		fromOwner, toOwner := g.owner[edge.From], g.owner[edge.To]

		switch {
		case edge.Branch == models.BranchBody:
			if toOwner != edge.From {
				return edgeError(edge, "body edge target %q belongs to another frame", edge.To)
			}
		case fromOwner == edge.To:
			// back-edge from a body node to its loop
			continue
		case fromOwner != toOwner:
			return edgeError(edge, "edge crosses a loop body boundary")
		}

		g.out[edge.From] = append(g.out[edge.From], edge)
		g.in[edge.To] = append(g.in[edge.To], edge)
	}

	for loopID := range reach {
		for _, id := range g.frames[loopID] {
			if len(g.out[id]) == 0 {
				g.sinks[loopID] = append(g.sinks[loopID], id)
			}
		}
	}

	return nil
}

// checkAcyclic runs Kahn's algorithm over the edges inside one frame.
func (g *graph) checkAcyclic(frame string, ids []string) error {
	inDegree := make(map[string]int, len(ids))

	for _, id := range ids {
		inDegree[id] = 0
	}

	for _, id := range ids {
		for _, edge := range g.out[id] {
			if edge.Branch == models.BranchBody {
				continue
			}

			inDegree[edge.To]++
		}
	}

	queue := make([]string, 0, len(ids))

	for _, id := range ids {
		if inDegree[id] == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++

		for _, edge := range g.out[id] {
			if edge.Branch == models.BranchBody {
				continue
			}

			inDegree[edge.To]--
			if inDegree[edge.To] == 0 {
				queue = append(queue, edge.To)
			}
		}
	}

	if visited == len(ids) {
		return nil
	}

	var cyclic []string

	for id, degree := range inDegree {
		if degree > 0 {
			cyclic = append(cyclic, id)
		}
	}

	sort.Strings(cyclic)

	if frame == mainFrame {
		return &GraphError{Message: fmt.Sprintf("cycle between nodes %v", cyclic)}
	}

	return nodeError(frame, nil, "cycle inside loop body between nodes %v", cyclic)
}

// isLoop reports whether id is a loop node.
func (g *graph) isLoop(id string) bool {
	node, ok := g.byID[id]

	return ok && node.Type == models.NodeTypeLoop
}
