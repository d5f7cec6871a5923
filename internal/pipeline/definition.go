package pipeline

import (
	"sync"

	"github.com/modeld/fleet/internal/backend"
	"github.com/modeld/fleet/internal/modelfleet"
)

// PipelineDefinition is immutable after a successful validate(): a
// pipeline name, its declared nodes, and the source->destination edges
// between them (spec §4.E). validate() is performed once, under an
// exclusive lock, before the definition is published to a
// PipelineFactory.
type PipelineDefinition struct {
	Name string

	mu       sync.RWMutex
	nodeList []NodeInfo
	edges    []Edge

	nodes     map[string]NodeInfo
	entryName string
	exitName  string
	validated bool
}

// NewDefinition constructs an unvalidated PipelineDefinition. It must
// be passed to validate (via PipelineFactory.CreateDefinition) before
// create() will accept it.
func NewDefinition(name string, nodes []NodeInfo, edges []Edge) *PipelineDefinition {
	return &PipelineDefinition{Name: name, nodeList: nodes, edges: edges}
}

// validate implements spec §4.E's five-step check, in order: node-name
// uniqueness, exactly-one-Entry/Exit, per-DL-node model resolution
// (rejecting dynamic batch/shape), edge validation (alias expansion,
// declared-input membership, non-empty bindings), and acyclicity via a
// reverse-graph DFS from Exit.
func (d *PipelineDefinition) validate(manager *modelfleet.Manager) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	nodes := make(map[string]NodeInfo, len(d.nodeList))
	var entryName, exitName string
	entryCount, exitCount := 0, 0
	for _, n := range d.nodeList {
		if _, dup := nodes[n.Name]; dup {
			return ErrNodeNameDuplicate(d.Name, n.Name)
		}
		nodes[n.Name] = n
		switch n.Kind {
		case NodeKindEntry:
			entryCount++
			entryName = n.Name
		case NodeKindExit:
			exitCount++
			exitName = n.Name
		}
	}
	if entryCount == 0 || exitCount == 0 {
		return ErrMissingEntryOrExit(d.Name)
	}
	if entryCount > 1 {
		return ErrMultipleEntryNodes(d.Name)
	}
	if exitCount > 1 {
		return ErrMultipleExitNodes(d.Name)
	}

	ioByNode := make(map[string]backend.IOSpec, len(nodes))
	for _, n := range nodes {
		if n.Kind != NodeKindDL {
			continue
		}
		mdl, ok := manager.LookupModel(n.ModelName)
		if !ok {
			return modelfleet.ErrModelNameMissing(n.ModelName)
		}
		var inst *modelfleet.Instance
		var err error
		if n.ModelVersion == 0 {
			inst, err = mdl.GetDefaultModelInstance()
		} else {
			inst, err = mdl.GetInstanceByVersion(n.ModelVersion)
		}
		if err != nil {
			return err
		}
		if inst.IsDynamic() {
			return ErrForbiddenModelDynamicParameter(d.Name, n.Name, n.ModelName)
		}
		ioByNode[n.Name] = inst.IO()
	}

	for _, e := range d.edges {
		src, ok := nodes[e.From]
		if !ok {
			return ErrMissingDependency(d.Name, e.From)
		}
		dst, ok := nodes[e.To]
		if !ok {
			return ErrMissingDependency(d.Name, e.To)
		}
		if len(e.Bindings) == 0 {
			return ErrMissingDependencyMapping(d.Name, e.From, e.To)
		}
		for _, b := range e.Bindings {
			if src.Kind == NodeKindDL {
				real := resolveAlias(src.OutputAlias, b.SourceAlias)
				if _, ok := ioByNode[e.From].Outputs[real]; !ok {
					return ErrMissingOutput(d.Name, e.From, b.SourceAlias)
				}
			}
			if dst.Kind == NodeKindDL {
				if _, ok := ioByNode[e.To].Inputs[b.DestInput]; !ok {
					return ErrMissingInput(d.Name, e.To, b.DestInput)
				}
			}
		}
	}

	if err := checkAcyclicAndConnected(d.Name, nodes, d.edges, exitName); err != nil {
		return err
	}

	d.nodes = nodes
	d.entryName = entryName
	d.exitName = exitName
	d.validated = true
	return nil
}

// checkAcyclicAndConnected walks predecessors of exitName with an
// iterative DFS, tracking a visited set and an active-path set. A
// revisit of an active-path node is a cycle; any node never visited
// from Exit lies on no Entry->Exit path.
func checkAcyclicAndConnected(pipelineName string, nodes map[string]NodeInfo, edges []Edge, exitName string) error {
	pred := make(map[string][]string, len(nodes))
	for _, e := range edges {
		pred[e.To] = append(pred[e.To], e.From)
	}

	type frame struct {
		node string
		idx  int
	}

	visited := make(map[string]bool, len(nodes))
	onPath := make(map[string]bool, len(nodes))
	stack := []frame{{node: exitName}}
	visited[exitName] = true
	onPath[exitName] = true

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		preds := pred[top.node]
		if top.idx < len(preds) {
			next := preds[top.idx]
			top.idx++
			if onPath[next] {
				return ErrCycleFound(pipelineName, next, top.node)
			}
			if !visited[next] {
				visited[next] = true
				onPath[next] = true
				stack = append(stack, frame{node: next})
			}
			continue
		}
		onPath[top.node] = false
		stack = stack[:len(stack)-1]
	}

	for name := range nodes {
		if !visited[name] {
			return ErrUnconnectedNodes(pipelineName, name)
		}
	}
	return nil
}
