package dagc

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/flowrun/flowrun/internal/ir"
)

// structuralHash computes a content hash of the DAG's shape: every node's kind, its operand hashes, and any
// literal payload, combined bottom-up in topological order so two
// pipelines with identical shape but different node ids hash identically.
// Used by internal/store to content-address a compiled pipeline.
func structuralHash(d *DAG) string {
	nodeHash := make(map[ir.NodeID]string, len(d.Data))
	for _, id := range d.Order {
		nodeHash[id] = hashNode(d, id, nodeHash)
	}

	outNames := make([]string, 0, len(d.Outputs))
	for name := range d.Outputs {
		outNames = append(outNames, name)
	}
	sort.Strings(outNames)

	var b strings.Builder
	for _, name := range outNames {
		fmt.Fprintf(&b, "%s=%s;", name, nodeHash[d.Outputs[name]])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func hashNode(d *DAG, id ir.NodeID, prior map[ir.NodeID]string) string {
	n := d.Data[id].Node
	ops := ir.Operands(n)
	opHashes := make([]string, len(ops))
	for i, op := range ops {
		opHashes[i] = prior[op]
	}

	var shape string
	switch t := n.(type) {
	case *ir.InputNode:
		shape = fmt.Sprintf("input:%s:%s", t.Name, t.Type)
	case *ir.ModuleCallNode:
		shape = fmt.Sprintf("module:%s:%s", t.Module, argShape(t.Args))
	case *ir.LiteralTransform:
		if t.Value != nil {
			shape = fmt.Sprintf("lit:%s", t.Value.String())
		} else {
			shape = "lit:<unbound>"
		}
	case *ir.FieldAccessTransform:
		shape = fmt.Sprintf("field:%s", t.Field)
	case *ir.ProjectTransform:
		shape = fmt.Sprintf("project:%v", t.Fields)
	case *ir.CompareTransform:
		shape = fmt.Sprintf("cmp:%s", t.Op)
	case *ir.MapTransform:
		shape = "map"
	case *ir.FilterTransform:
		shape = "filter"
	case *ir.AllTransform:
		shape = "all"
	case *ir.AnyTransform:
		shape = "any"
	default:
		shape = fmt.Sprintf("%T", n)
	}

	h := sha256.Sum256([]byte(fmt.Sprintf("%s|%s", shape, strings.Join(opHashes, ","))))
	return hex.EncodeToString(h[:])
}

// argShape renders a module call's argument binding in a stable,
// order-independent form (parameter name -> operand hash is resolved by
// the caller via opHashes, so here we only need the set of bound
// parameter names for shape comparison).
func argShape(args map[string]ir.NodeID) string {
	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}
