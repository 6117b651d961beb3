// Package dtree compiles a match expression's case list into a decision
// tree that dispatches on a union value's shape in a single pass instead
// of testing each case in sequence, and flags non-exhaustive matches
// (TC009) before the pipeline ever runs.
package dtree

import (
	"fmt"

	"github.com/flowrun/flowrun/internal/ast"
)

// DecisionTree is the compiled form of a match expression.
type DecisionTree interface {
	isDecisionTree()
	String() string
}

// LeafNode is a match: which case fired, its guards, and its body.
type LeafNode struct {
	CaseIndex int
	Guards    []ast.Expr
	Body      ast.Expr
}

func (l *LeafNode) isDecisionTree() {}
func (l *LeafNode) String() string  { return fmt.Sprintf("Leaf(case=%d)", l.CaseIndex) }

// FailNode means no case matches — the match is non-exhaustive.
type FailNode struct{}

func (f *FailNode) isDecisionTree() {}
func (f *FailNode) String() string  { return "Fail" }

// discriminator is the key a SwitchNode dispatches on: a literal value,
// a type shape, or the presence of a record field.
type discriminator struct {
	kind string // "literal", "type", "record"
	key  string
}

// SwitchNode tests the value reachable via Path against Cases, falling
// through to Default for wildcard/bind rows.
type SwitchNode struct {
	Path    []int
	Cases   map[discriminator]DecisionTree
	Default DecisionTree
}

func (s *SwitchNode) isDecisionTree() {}
func (s *SwitchNode) String() string {
	return fmt.Sprintf("Switch(path=%v, cases=%d, default=%v)", s.Path, len(s.Cases), s.Default != nil)
}

// Compiler compiles a match's case list into a DecisionTree.
type Compiler struct {
	cases []ast.MatchCase
}

// NewCompiler creates a new compiler for the given match cases, in
// source order.
func NewCompiler(cases []ast.MatchCase) *Compiler {
	return &Compiler{cases: cases}
}

type matchRow struct {
	patterns  []ast.Pattern
	caseIndex int
	guards    []ast.Expr
	body      ast.Expr
}

// Compile builds the decision tree. The returned tree contains a
// reachable FailNode iff the case list is non-exhaustive.
func (c *Compiler) Compile() DecisionTree {
	matrix := make([]matchRow, 0, len(c.cases))
	for i, cs := range c.cases {
		pat, guards := unwrapGuards(cs.Pattern)
		matrix = append(matrix, matchRow{
			patterns:  []ast.Pattern{pat},
			caseIndex: i,
			guards:    guards,
			body:      cs.Body,
		})
	}
	return c.compileMatrix(matrix, []int{})
}

// unwrapGuards strips any GuardedPattern wrapper, returning the inner
// pattern and the accumulated guard conditions (outermost last).
func unwrapGuards(p ast.Pattern) (ast.Pattern, []ast.Expr) {
	var guards []ast.Expr
	for {
		gp, ok := p.(*ast.GuardedPattern)
		if !ok {
			return p, guards
		}
		guards = append(guards, gp.Cond)
		p = gp.Inner
	}
}

func (c *Compiler) compileMatrix(matrix []matchRow, path []int) DecisionTree {
	if len(matrix) == 0 {
		return &FailNode{}
	}

	if isDefaultRow(matrix[0]) {
		return &LeafNode{CaseIndex: matrix[0].caseIndex, Guards: matrix[0].guards, Body: matrix[0].body}
	}

	colIndex := 0
	if colIndex >= len(matrix[0].patterns) {
		return &LeafNode{CaseIndex: matrix[0].caseIndex, Guards: matrix[0].guards, Body: matrix[0].body}
	}

	return c.buildSwitch(matrix, path, colIndex)
}

// isDefaultRow reports whether a row matches unconditionally: every
// column is a wildcard, a bind, or the `otherwise` catch-all.
func isDefaultRow(row matchRow) bool {
	for _, pat := range row.patterns {
		switch pat.(type) {
		case *ast.WildcardPattern, *ast.BindPattern, *ast.OtherwisePattern:
			continue
		default:
			return false
		}
	}
	return true
}

func (c *Compiler) buildSwitch(matrix []matchRow, path []int, colIndex int) DecisionTree {
	cases := make(map[discriminator][]matchRow)
	var defaultRows []matchRow
	boolCovered := map[bool]bool{}

	for _, row := range matrix {
		if colIndex >= len(row.patterns) {
			defaultRows = append(defaultRows, row)
			continue
		}

		switch p := row.patterns[colIndex].(type) {
		case *ast.LiteralPattern:
			cases[discriminator{"literal", fmt.Sprintf("%v", p.Value)}] = append(cases[discriminator{"literal", fmt.Sprintf("%v", p.Value)}], row)
			if b, ok := p.Value.(bool); ok {
				boolCovered[b] = true
			}

		case *ast.TypePattern:
			cases[discriminator{"type", p.Type.String()}] = append(cases[discriminator{"type", p.Type.String()}], row)

		case *ast.RecordPattern:
			cases[discriminator{"record", recordShapeKey(p)}] = append(cases[discriminator{"record", recordShapeKey(p)}], row)

		case *ast.WildcardPattern, *ast.BindPattern, *ast.OtherwisePattern:
			defaultRows = append(defaultRows, row)

		default:
			defaultRows = append(defaultRows, row)
		}
	}

	if len(cases) == 0 && len(defaultRows) > 0 {
		return &LeafNode{CaseIndex: defaultRows[0].caseIndex, Guards: defaultRows[0].guards, Body: defaultRows[0].body}
	}

	node := &SwitchNode{Path: append(append([]int{}, path...), colIndex), Cases: make(map[discriminator]DecisionTree)}

	for key, rows := range cases {
		specialized := specializeRows(rows, colIndex)
		node.Cases[key] = c.compileMatrix(specialized, node.Path)
	}

	if len(defaultRows) > 0 {
		specialized := specializeRows(defaultRows, colIndex)
		node.Default = c.compileMatrix(specialized, node.Path)
	} else if !(boolCovered[true] && boolCovered[false]) {
		// Literal cases for both true and false cover every Boolean and
		// need no default; any other switch without default rows fails.
		node.Default = &FailNode{}
	}

	return node
}

// recordShapeKey builds a stable key from a record pattern's field
// names, used to group rows destructuring the same field set.
func recordShapeKey(p *ast.RecordPattern) string {
	key := ""
	for _, f := range p.Fields {
		key += f.Name + ","
	}
	return key
}

// specializeRows drops the matched column, expanding a record pattern's
// field sub-patterns into new columns (row width grows by fields-1).
func specializeRows(rows []matchRow, colIndex int) []matchRow {
	result := make([]matchRow, 0, len(rows))
	for _, row := range rows {
		newPatterns := make([]ast.Pattern, 0, len(row.patterns))
		for i, pat := range row.patterns {
			if i != colIndex {
				newPatterns = append(newPatterns, pat)
				continue
			}
			if rp, ok := pat.(*ast.RecordPattern); ok {
				for _, f := range rp.Fields {
					newPatterns = append(newPatterns, f.Pattern)
				}
			}
		}
		result = append(result, matchRow{
			patterns:  newPatterns,
			caseIndex: row.caseIndex,
			guards:    row.guards,
			body:      row.body,
		})
	}
	return result
}

// IsExhaustive walks the compiled tree and reports whether any branch
// reaches a FailNode.
func IsExhaustive(t DecisionTree) bool {
	switch n := t.(type) {
	case *FailNode:
		return false
	case *LeafNode:
		return true
	case *SwitchNode:
		if n.Default != nil && !IsExhaustive(n.Default) {
			return false
		}
		for _, sub := range n.Cases {
			if !IsExhaustive(sub) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// CanCompileToTree reports whether a match's cases are worth compiling
// into a dispatch table rather than tested in sequence: true once there
// are at least two literal/type/record discriminations to dispatch on.
func CanCompileToTree(cases []ast.MatchCase) bool {
	count := 0
	for _, cs := range cases {
		pat, _ := unwrapGuards(cs.Pattern)
		switch pat.(type) {
		case *ast.LiteralPattern, *ast.TypePattern, *ast.RecordPattern:
			count++
		}
	}
	return count >= 2
}
