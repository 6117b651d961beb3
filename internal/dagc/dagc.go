// Package dagc synthesizes the executable DAG from an optimized IR graph
//: a ModuleNode per module call, a DataNode per produced value
// (input, inline-transform result, or module output), consumer edges,
// topological order with cycle detection, and a structural hash.
package dagc

import (
	"fmt"
	"sort"

	"github.com/flowrun/flowrun/internal/ast"
	"github.com/flowrun/flowrun/internal/errors"
	"github.com/flowrun/flowrun/internal/ir"
	"github.com/flowrun/flowrun/internal/modreg"
	"github.com/flowrun/flowrun/internal/value"
)

// DataNode is a single-producer value in the execution graph: an input,
// an inline-transform result, or a module's produced record. Exactly one
// Completable cell is allocated per DataNode at execution start.
type DataNode struct {
	ID   ir.NodeID
	Name string // bound variable name, "" for an anonymous intermediate
	Type value.Type
	Node ir.Node // the underlying IR node (inline transform, input, or module call)

	// Nicknames associates each consuming ModuleNode's id with the
	// parameter name it binds this DataNode to.
	Nicknames map[ir.NodeID]string
}

// ModuleNode is one module invocation.
type ModuleNode struct {
	ID       ir.NodeID
	Module   string
	Desc     *modreg.Descriptor
	Consumes map[string]ir.NodeID // param name -> source DataNode id
	Options  ir.ModuleOptions
}

// ProducedFields returns the output field names this module produces, in
// declared order.
func (m *ModuleNode) ProducedFields() []string {
	if m.Desc == nil {
		return nil
	}
	names := make([]string, len(m.Desc.Signature.Produces))
	for i, p := range m.Desc.Signature.Produces {
		names[i] = p.Name
	}
	return names
}

// DAG is the synthesized dependency graph ready for execution or
// content-addressed storage.
type DAG struct {
	Data    map[ir.NodeID]*DataNode
	Modules map[ir.NodeID]*ModuleNode // subset of Data whose producer is a module call

	// InEdges[id] are the node ids that id directly depends on;
	// OutEdges[id] are the node ids that directly depend on id.
	InEdges  map[ir.NodeID][]ir.NodeID
	OutEdges map[ir.NodeID][]ir.NodeID

	Order   []ir.NodeID // topological order, producers before consumers
	Outputs map[string]ir.NodeID

	// Inputs are the DataNode ids that must be supplied externally at run
	// start, keyed by declared input name. A higher-order lambda's bound
	// parameter compiles to the same DataNode shape but is never listed
	// here (ir.Graph.Inputs), so the executor can tell a pipeline input
	// apart from a per-element placeholder filled in by its enclosing
	// map/filter/all/any.
	Inputs map[string]ir.NodeID

	// PatternTypes mirrors ir.Graph.PatternTypes, carried through so the
	// executor can test a match scrutinee against a TypePattern's
	// resolved type without access to the original IR graph.
	PatternTypes map[*ast.TypePattern]value.Type

	Hash string
}

// Compile synthesizes a DAG from an IR graph. Callers should run
// ir.Optimize(g) first; Compile does not optimize.
func Compile(g *ir.Graph) (*DAG, error) {
	d := &DAG{
		Data:     map[ir.NodeID]*DataNode{},
		Modules:  map[ir.NodeID]*ModuleNode{},
		InEdges:  map[ir.NodeID][]ir.NodeID{},
		OutEdges: map[ir.NodeID][]ir.NodeID{},
		Outputs:      map[string]ir.NodeID{},
		Inputs:       map[string]ir.NodeID{},
		PatternTypes: g.PatternTypes,
	}

	names := map[ir.NodeID]string{}
	for name, id := range g.Bindings {
		names[id] = name
	}

	for _, id := range g.Order {
		n := g.Nodes[id]
		d.Data[id] = &DataNode{
			ID:        id,
			Name:      names[id],
			Type:      g.NodeType(id),
			Node:      n,
			Nicknames: map[ir.NodeID]string{},
		}
		if mc, ok := n.(*ir.ModuleCallNode); ok {
			d.Modules[id] = &ModuleNode{
				ID:       id,
				Module:   mc.Module,
				Desc:     mc.Desc,
				Consumes: mc.Args,
				Options:  mc.Options,
			}
		}
	}

	// Edges + nicknames: a module's Consumes map is the only place a
	// parameter name attaches to an edge; every other consumer (inline
	// transforms) references its operand positionally.
	for _, id := range g.Order {
		for _, src := range ir.Operands(g.Nodes[id]) {
			d.InEdges[id] = append(d.InEdges[id], src)
			d.OutEdges[src] = append(d.OutEdges[src], id)
		}
	}
	for modID, m := range d.Modules {
		for param, src := range m.Consumes {
			if dn, ok := d.Data[src]; ok {
				dn.Nicknames[modID] = param
			}
		}
	}

	for name, id := range g.Outputs {
		d.Outputs[name] = id
	}
	for name, id := range g.Inputs {
		d.Inputs[name] = id
	}

	order, err := topologicalOrder(d)
	if err != nil {
		return nil, err
	}
	d.Order = order

	d.Hash = structuralHash(d)
	return d, nil
}

// topologicalOrder computes a deterministic topological order over d's
// nodes using Kahn's algorithm (indegree counting, ready queue sorted by
// id for determinism at each level). A non-empty remainder after the
// queue drains means a cycle, reported as DAG001.
func topologicalOrder(d *DAG) ([]ir.NodeID, error) {
	indegree := make(map[ir.NodeID]int, len(d.Data))
	for id := range d.Data {
		indegree[id] = len(d.InEdges[id])
	}

	var ready []ir.NodeID
	for id, deg := range indegree {
		if deg == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	var order []ir.NodeID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		id := ready[0]
		ready = ready[1:]
		order = append(order, id)

		for _, next := range d.OutEdges[id] {
			indegree[next]--
			if indegree[next] == 0 {
				ready = append(ready, next)
			}
		}
	}

	if len(order) != len(d.Data) {
		return nil, errors.Wrap(errors.New(errors.DAG001, "dagc", "cycle detected in pipeline graph", nil))
	}
	return order, nil
}

func (d *DAG) String() string {
	return fmt.Sprintf("dagc.DAG{%d data nodes, %d modules, hash=%s}", len(d.Data), len(d.Modules), d.Hash)
}
