package config

import (
	"testing"

	"github.com/modeld/fleet/internal/pipeline"
)

func TestPipelineEntryToNodesAndEdges(t *testing.T) {
	p := PipelineEntry{
		Name: "face-pipe",
		Nodes: []NodeEntry{
			{NodeName: "entry", Kind: "Entry"},
			{NodeName: "detect", Kind: "DL", ModelName: "detector", Outputs: map[string]string{"faces": "detection_out"}},
			{NodeName: "exit", Kind: "Exit"},
		},
		Connections: []ConnectionEntry{
			{From: "entry", To: "detect", Bindings: []BindingEntry{{SourceAlias: "req", DestInput: "input"}}},
			{From: "detect", To: "exit", Bindings: []BindingEntry{{SourceAlias: "faces", DestInput: "response_tensor"}}},
		},
	}

	nodes, edges, err := p.ToNodesAndEdges()
	if err != nil {
		t.Fatalf("ToNodesAndEdges: %v", err)
	}
	if len(nodes) != 3 || len(edges) != 2 {
		t.Fatalf("nodes=%d edges=%d, want 3/2", len(nodes), len(edges))
	}
	if nodes[0].Kind != pipeline.NodeKindEntry || nodes[1].Kind != pipeline.NodeKindDL || nodes[2].Kind != pipeline.NodeKindExit {
		t.Fatalf("unexpected kinds: %+v", nodes)
	}
	if nodes[1].ModelName != "detector" || nodes[1].OutputAlias["faces"] != "detection_out" {
		t.Fatalf("unexpected DL node: %+v", nodes[1])
	}
	if edges[0].Bindings[0].SourceAlias != "req" || edges[0].Bindings[0].DestInput != "input" {
		t.Fatalf("unexpected edge: %+v", edges[0])
	}
}

func TestPipelineEntryToNodesAndEdgesRejectsUnknownKind(t *testing.T) {
	p := PipelineEntry{Name: "bad", Nodes: []NodeEntry{{NodeName: "n1", Kind: "bogus"}}}
	if _, _, err := p.ToNodesAndEdges(); err == nil {
		t.Fatal("expected error for unknown node kind")
	}
}
