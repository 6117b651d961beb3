package dtree

import (
	"testing"

	"github.com/flowrun/flowrun/internal/ast"
)

func intLit(n int64) *ast.Literal {
	return &ast.Literal{Kind: ast.IntLit, Value: n}
}

func litPattern(v interface{}) *ast.LiteralPattern {
	return &ast.LiteralPattern{Kind: ast.IntLit, Value: v}
}

// TestDecisionTree_SimpleBoolMatch tests decision tree compilation for a
// two-way literal discrimination.
func TestDecisionTree_SimpleBoolMatch(t *testing.T) {
	cases := []ast.MatchCase{
		{Pattern: litPattern(true), Body: intLit(1)},
		{Pattern: litPattern(false), Body: intLit(0)},
	}

	tree := NewCompiler(cases).Compile()

	switchNode, ok := tree.(*SwitchNode)
	if !ok {
		t.Fatalf("Expected SwitchNode, got %T", tree)
	}

	if len(switchNode.Cases) != 2 {
		t.Errorf("Expected 2 cases, got %d", len(switchNode.Cases))
	}

	if _, ok := switchNode.Cases[discriminator{"literal", "true"}]; !ok {
		t.Error("Missing case for true")
	}
	if _, ok := switchNode.Cases[discriminator{"literal", "false"}]; !ok {
		t.Error("Missing case for false")
	}

	if !IsExhaustive(tree) {
		t.Error("expected exhaustive match with no default")
	}
}

// TestDecisionTree_WithWildcard tests decision tree with a wildcard
// fallback.
func TestDecisionTree_WithWildcard(t *testing.T) {
	cases := []ast.MatchCase{
		{Pattern: litPattern(true), Body: intLit(1)},
		{Pattern: &ast.WildcardPattern{}, Body: intLit(0)},
	}

	tree := NewCompiler(cases).Compile()

	switchNode, ok := tree.(*SwitchNode)
	if !ok {
		t.Fatalf("Expected SwitchNode, got %T", tree)
	}

	if switchNode.Default == nil {
		t.Error("Expected default branch for wildcard")
	}
	if !IsExhaustive(tree) {
		t.Error("expected exhaustive match with wildcard default")
	}
}

// TestDecisionTree_AllWildcards tests a match whose only case is a
// wildcard, which compiles directly to a leaf.
func TestDecisionTree_AllWildcards(t *testing.T) {
	cases := []ast.MatchCase{
		{Pattern: &ast.WildcardPattern{}, Body: intLit(42)},
	}

	tree := NewCompiler(cases).Compile()

	leaf, ok := tree.(*LeafNode)
	if !ok {
		t.Fatalf("Expected LeafNode for wildcard-only match, got %T", tree)
	}

	if leaf.CaseIndex != 0 {
		t.Errorf("Expected case index 0, got %d", leaf.CaseIndex)
	}
}

// TestDecisionTree_NonExhaustive tests that a match lacking a default
// case compiles to a tree whose Switch has no fallback.
func TestDecisionTree_NonExhaustive(t *testing.T) {
	cases := []ast.MatchCase{
		{Pattern: litPattern(true), Body: intLit(1)},
	}

	tree := NewCompiler(cases).Compile()
	if IsExhaustive(tree) {
		t.Error("expected non-exhaustive match (only the true case is covered)")
	}
}

// TestDecisionTree_GuardedCase tests that a guarded pattern's condition
// is carried onto the leaf rather than discriminated on.
func TestDecisionTree_GuardedCase(t *testing.T) {
	cond := &ast.Variable{Name: "flagged"}
	cases := []ast.MatchCase{
		{Pattern: &ast.GuardedPattern{Inner: &ast.WildcardPattern{}, Cond: cond}, Body: intLit(1)},
	}

	tree := NewCompiler(cases).Compile()
	leaf, ok := tree.(*LeafNode)
	if !ok {
		t.Fatalf("Expected LeafNode, got %T", tree)
	}
	if len(leaf.Guards) != 1 || leaf.Guards[0] != cond {
		t.Errorf("expected guard condition to be carried onto the leaf")
	}
}

// TestCanCompileToTree tests the heuristic for when to use decision
// trees over sequential case testing.
func TestCanCompileToTree(t *testing.T) {
	tests := []struct {
		name     string
		cases    []ast.MatchCase
		expected bool
	}{
		{
			name:     "single case - not worth it",
			cases:    []ast.MatchCase{{Pattern: litPattern(true)}},
			expected: false,
		},
		{
			name: "two wildcards - not worth it",
			cases: []ast.MatchCase{
				{Pattern: &ast.WildcardPattern{}},
				{Pattern: &ast.WildcardPattern{}},
			},
			expected: false,
		},
		{
			name: "multiple literals - worth it",
			cases: []ast.MatchCase{
				{Pattern: litPattern(true)},
				{Pattern: litPattern(false)},
				{Pattern: &ast.WildcardPattern{}},
			},
			expected: true,
		},
		{
			name: "multiple type patterns - worth it",
			cases: []ast.MatchCase{
				{Pattern: &ast.TypePattern{Type: &ast.PrimitiveType{Kind: ast.TInt}}},
				{Pattern: &ast.TypePattern{Type: &ast.PrimitiveType{Kind: ast.TString}}},
			},
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CanCompileToTree(tt.cases)
			if result != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, result)
			}
		})
	}
}
