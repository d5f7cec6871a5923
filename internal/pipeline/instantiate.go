package pipeline

import (
	"context"
	"time"

	"github.com/modeld/fleet/internal/modelfleet"
)

// Pipeline is a transient per-request instance: it owns one runtimeNode
// per NodeInfo, holds a LivenessGuard for every DL node's ModelInstance
// for the duration of execution, and shares — never owns — those
// instances (spec §4.E, ownership summary in §3).
type Pipeline struct {
	definitionName string
	nodes          map[string]*runtimeNode
	edges          []Edge
}

// create instantiates request into an Entry node, response into an Exit
// node, and resolves a fresh LivenessGuard for every DL node (spec
// §4.E create()). If any guard cannot be acquired, every guard already
// acquired for this call is released and construction fails with
// whatever error FindModelInstance produced (typically
// MODEL_VERSION_NOT_LOADED_ANYMORE) — no partial Node set survives.
func (d *PipelineDefinition) create(requestInputs map[string][]byte, response *map[string][]byte, manager *modelfleet.Manager) (*Pipeline, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if !d.validated {
		return nil, ErrDefinitionNotValidated(d.Name)
	}

	nodes := make(map[string]*runtimeNode, len(d.nodes))
	var acquired []*modelfleet.LivenessGuard
	release := func() {
		for _, g := range acquired {
			g.Release()
		}
	}

	for name, info := range d.nodes {
		switch info.Kind {
		case NodeKindEntry:
			nodes[name] = &runtimeNode{info: info, requestInputs: requestInputs}
		case NodeKindExit:
			nodes[name] = &runtimeNode{info: info, response: response}
		case NodeKindDL:
			inst, guard, err := manager.FindModelInstance(info.ModelName, info.ModelVersion)
			if err != nil {
				release()
				return nil, err
			}
			acquired = append(acquired, guard)
			nodes[name] = &runtimeNode{info: info, instance: inst, guard: guard}
		}
	}

	return &Pipeline{definitionName: d.Name, nodes: nodes, edges: d.edges}, nil
}

// Release drops every LivenessGuard the Pipeline holds. Callers must
// call Release exactly once after Run returns, regardless of outcome;
// a Pipeline's lifetime is strictly nested inside the call that
// constructed it.
func (p *Pipeline) Release() {
	for _, n := range p.nodes {
		if n.guard != nil {
			n.guard.Release()
		}
	}
}

// Run executes the pipeline: a Kahn's-algorithm topological walk over
// the forward graph, starting at Entry, feeding each edge's bound
// tensors into its destination's accumulated input map, and writing
// the Exit node's accumulated inputs into response. The graph is
// guaranteed acyclic by validate(), so this always terminates having
// visited every node exactly once.
func (p *Pipeline) Run(ctx context.Context, maxWait time.Duration) error {
	forward := make(map[string][]Edge, len(p.nodes))
	indegree := make(map[string]int, len(p.nodes))
	for name := range p.nodes {
		indegree[name] = 0
	}
	for _, e := range p.edges {
		forward[e.From] = append(forward[e.From], e)
		indegree[e.To]++
	}

	accumulated := make(map[string]map[string][]byte, len(p.nodes))
	for name := range p.nodes {
		accumulated[name] = make(map[string][]byte)
	}

	var queue []string
	for name, deg := range indegree {
		if deg == 0 {
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		node := p.nodes[name]

		outputs, err := execNode(ctx, maxWait, node, accumulated[name])
		if err != nil {
			return err
		}

		for _, e := range forward[name] {
			for _, b := range e.Bindings {
				val, ok := outputs[resolveAlias(node.info.OutputAlias, b.SourceAlias)]
				if !ok {
					val = outputs[b.SourceAlias]
				}
				accumulated[e.To][b.DestInput] = val
			}
			indegree[e.To]--
			if indegree[e.To] == 0 {
				queue = append(queue, e.To)
			}
		}
	}
	return nil
}

// execNode dispatches over the node's tag: Entry surfaces the request's
// tensors as its "outputs", DL runs inference against its guarded
// instance, and Exit writes its accumulated inputs into the response.
func execNode(ctx context.Context, maxWait time.Duration, node *runtimeNode, in map[string][]byte) (map[string][]byte, error) {
	switch node.info.Kind {
	case NodeKindEntry:
		return node.requestInputs, nil
	case NodeKindDL:
		// DL nodes never bind to a dynamic instance (FORBIDDEN_MODEL_
		// DYNAMIC_PARAMETER is enforced at pipeline creation), so there is
		// never a per-request batch/shape to negotiate here.
		return node.instance.Infer(ctx, maxWait, in, 0, nil)
	case NodeKindExit:
		*node.response = in
		return nil, nil
	default:
		return nil, nil
	}
}
