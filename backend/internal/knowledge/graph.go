package knowledge

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jlwestsr/nebulus-gantry/backend/pkg/errors"
	"github.com/jlwestsr/nebulus-gantry/backend/pkg/logger"
	"go.uber.org/zap"
)

// Relation is one traversed edge returned by GetRelated. Entity is the node
// the traversal stood on, ConnectedEntity the node reached through the edge.
type Relation struct {
	Entity          string `json:"entity"`
	Relationship    string `json:"relationship"`
	ConnectedEntity string `json:"connected_entity"`
}

// Graph is a directed knowledge graph for a single user. Mutations stay
// in memory until Save is called; one edge per ordered (source, target) pair,
// a repeated AddFact overwrites the prior attributes.
//
// Not goroutine-safe: concurrent turns against the same user's graph are
// unguarded and Save is last-writer-wins.
type Graph struct {
	userID int64
	path   string

	nodes     map[string]map[string]any
	nodeOrder []string
	edges     map[string]map[string]map[string]any
	edgeOrder [][2]string
	out       map[string][]string
	in        map[string][]string

	logger *zap.Logger
}

func newGraph(userID int64, path string) *Graph {
	return &Graph{
		userID: userID,
		path:   path,
		nodes:  make(map[string]map[string]any),
		edges:  make(map[string]map[string]map[string]any),
		out:    make(map[string][]string),
		in:     make(map[string][]string),
		logger: logger.Get(),
	}
}

// NodeCount returns the number of nodes in the graph
func (g *Graph) NodeCount() int {
	return len(g.nodeOrder)
}

// EdgeCount returns the number of edges in the graph
func (g *Graph) EdgeCount() int {
	return len(g.edgeOrder)
}

// NodeAttrs returns a node's attributes, or nil if the node is unknown
func (g *Graph) NodeAttrs(id string) map[string]any {
	return g.nodes[id]
}

// EdgeAttrs returns the attributes of the source→target edge, or nil
func (g *Graph) EdgeAttrs(source, target string) map[string]any {
	if targets, ok := g.edges[source]; ok {
		return targets[target]
	}
	return nil
}

func (g *Graph) ensureNode(id string) {
	if _, ok := g.nodes[id]; ok {
		return
	}
	g.nodes[id] = make(map[string]any)
	g.nodeOrder = append(g.nodeOrder, id)
}

// AddFact records source -[relationship]-> target. Missing nodes are created.
// The metadata keys "source_type" and "target_type" become node type
// attributes; everything else lands on the edge alongside the relationship
// label, overwriting prior values for the same pair.
func (g *Graph) AddFact(source, relationship, target string, metadata map[string]any) {
	attrs := map[string]any{"relationship": relationship}
	for k, v := range metadata {
		switch k {
		case "source_type":
			g.ensureNode(source)
			g.nodes[source]["type"] = v
		case "target_type":
			g.ensureNode(target)
			g.nodes[target]["type"] = v
		default:
			attrs[k] = v
		}
	}

	g.ensureNode(source)
	g.ensureNode(target)

	if _, ok := g.edges[source]; !ok {
		g.edges[source] = make(map[string]map[string]any)
	}
	existing, ok := g.edges[source][target]
	if !ok {
		g.edges[source][target] = attrs
		g.edgeOrder = append(g.edgeOrder, [2]string{source, target})
		g.out[source] = append(g.out[source], target)
		g.in[target] = append(g.in[target], source)
	} else {
		// Last write wins on each attribute key
		for k, v := range attrs {
			existing[k] = v
		}
	}

	g.logger.Debug("Added fact",
		zap.Int64("user_id", g.userID),
		zap.String("source", source),
		zap.String("relationship", relationship),
		zap.String("target", target),
	)
}

// GetRelated walks outward from entity for the given number of hops,
// following edges in both directions while keeping each edge's own label.
// Each hop expands only from nodes first reached in the previous hop; the
// visited set suppresses cycles. Unknown entities yield no relations.
func (g *Graph) GetRelated(entity string, hops int) []Relation {
	if _, ok := g.nodes[entity]; !ok {
		return nil
	}

	var related []Relation
	visited := map[string]struct{}{entity: {}}
	frontier := []string{entity}

	for hop := 0; hop < hops; hop++ {
		var next []string
		for _, current := range frontier {
			for _, target := range g.out[current] {
				if _, seen := visited[target]; seen {
					continue
				}
				visited[target] = struct{}{}
				next = append(next, target)
				related = append(related, Relation{
					Entity:          current,
					Relationship:    g.relationshipLabel(current, target),
					ConnectedEntity: target,
				})
			}
			for _, source := range g.in[current] {
				if _, seen := visited[source]; seen {
					continue
				}
				visited[source] = struct{}{}
				next = append(next, source)
				related = append(related, Relation{
					Entity:          current,
					Relationship:    g.relationshipLabel(source, current),
					ConnectedEntity: source,
				})
			}
		}
		frontier = next
	}

	return related
}

func (g *Graph) relationshipLabel(source, target string) string {
	if attrs := g.EdgeAttrs(source, target); attrs != nil {
		if rel, ok := attrs["relationship"].(string); ok {
			return rel
		}
	}
	return "related_to"
}

// nodeLinkDocument mirrors the node-link JSON layout: node and edge
// attributes are flattened next to the id / source / target keys.
type nodeLinkDocument struct {
	Directed   bool             `json:"directed"`
	Multigraph bool             `json:"multigraph"`
	Graph      map[string]any   `json:"graph"`
	Nodes      []map[string]any `json:"nodes"`
	Links      []map[string]any `json:"links"`
}

// Save writes the graph to its per-user JSON file. Write failures propagate:
// silently losing the graph would be a correctness bug, not a degraded lookup.
func (g *Graph) Save() error {
	doc := nodeLinkDocument{
		Directed:   true,
		Multigraph: false,
		Graph:      map[string]any{},
		Nodes:      make([]map[string]any, 0, len(g.nodeOrder)),
		Links:      make([]map[string]any, 0, len(g.edgeOrder)),
	}

	for _, id := range g.nodeOrder {
		node := map[string]any{"id": id}
		for k, v := range g.nodes[id] {
			node[k] = v
		}
		doc.Nodes = append(doc.Nodes, node)
	}
	for _, pair := range g.edgeOrder {
		link := map[string]any{"source": pair[0], "target": pair[1]}
		for k, v := range g.edges[pair[0]][pair[1]] {
			link[k] = v
		}
		doc.Links = append(doc.Links, link)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.NewGraphSaveFailed(g.userID, g.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return errors.NewGraphSaveFailed(g.userID, g.path, err)
	}
	if err := os.WriteFile(g.path, data, 0o644); err != nil {
		return errors.NewGraphSaveFailed(g.userID, g.path, err)
	}

	g.logger.Info("Saved knowledge graph",
		zap.Int64("user_id", g.userID),
		zap.Int("nodes", g.NodeCount()),
		zap.Int("edges", g.EdgeCount()),
	)
	return nil
}

func (g *Graph) loadFrom(data []byte) error {
	var doc nodeLinkDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return errors.NewGraphFileCorrupt(g.path, err)
	}

	for _, node := range doc.Nodes {
		id, ok := node["id"].(string)
		if !ok {
			return errors.NewGraphFileCorrupt(g.path, fmt.Errorf("node without string id"))
		}
		g.ensureNode(id)
		for k, v := range node {
			if k != "id" {
				g.nodes[id][k] = v
			}
		}
	}

	for _, link := range doc.Links {
		source, sok := link["source"].(string)
		target, tok := link["target"].(string)
		if !sok || !tok {
			return errors.NewGraphFileCorrupt(g.path, fmt.Errorf("link without string endpoints"))
		}
		g.ensureNode(source)
		g.ensureNode(target)
		attrs := make(map[string]any)
		for k, v := range link {
			if k != "source" && k != "target" {
				attrs[k] = v
			}
		}
		if _, ok := g.edges[source]; !ok {
			g.edges[source] = make(map[string]map[string]any)
		}
		if _, ok := g.edges[source][target]; !ok {
			g.edgeOrder = append(g.edgeOrder, [2]string{source, target})
			g.out[source] = append(g.out[source], target)
			g.in[target] = append(g.in[target], source)
		}
		g.edges[source][target] = attrs
	}

	return nil
}
