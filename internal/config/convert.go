package config

import (
	"fmt"
	"strings"

	"github.com/modeld/fleet/internal/pipeline"
)

// ToNodesAndEdges converts a document-level PipelineEntry into the
// []pipeline.NodeInfo/[]pipeline.Edge pair PipelineFactory.CreateDefinition
// consumes, translating the document's string node kind into
// pipeline.NodeKind and its Connections/Bindings into pipeline.Edge.
func (p PipelineEntry) ToNodesAndEdges() ([]pipeline.NodeInfo, []pipeline.Edge, error) {
	nodes := make([]pipeline.NodeInfo, 0, len(p.Nodes))
	for _, n := range p.Nodes {
		kind, err := nodeKind(n.Kind)
		if err != nil {
			return nil, nil, fmt.Errorf("pipeline %q node %q: %w", p.Name, n.NodeName, err)
		}
		nodes = append(nodes, pipeline.NodeInfo{
			Name:         n.NodeName,
			Kind:         kind,
			ModelName:    n.ModelName,
			ModelVersion: n.ModelVersion,
			OutputAlias:  n.Outputs,
		})
	}

	edges := make([]pipeline.Edge, 0, len(p.Connections))
	for _, c := range p.Connections {
		bindings := make([]pipeline.Binding, 0, len(c.Bindings))
		for _, b := range c.Bindings {
			bindings = append(bindings, pipeline.Binding{SourceAlias: b.SourceAlias, DestInput: b.DestInput})
		}
		edges = append(edges, pipeline.Edge{From: c.From, To: c.To, Bindings: bindings})
	}

	return nodes, edges, nil
}

func nodeKind(s string) (pipeline.NodeKind, error) {
	switch strings.ToLower(s) {
	case "entry":
		return pipeline.NodeKindEntry, nil
	case "dl":
		return pipeline.NodeKindDL, nil
	case "exit":
		return pipeline.NodeKindExit, nil
	default:
		return "", fmt.Errorf("unknown node kind %q", s)
	}
}
