// Package phplint checks PHP sources for syntax errors using the tree-sitter
// PHP grammar. It is used to make sure minification never turns a valid file
// into an invalid one.
package phplint

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/php"
)

// Report describes the outcome of a syntax check
type Report struct {
	HasError bool
	// Line and Column locate the first error node, 1-based
	Line   int
	Column int
	// Node is the tree-sitter node type at the error ("ERROR" or the missing token)
	Node string
}

func (r Report) String() string {
	if !r.HasError {
		return "ok"
	}

	return fmt.Sprintf("syntax error at %d:%d (%s)", r.Line, r.Column, r.Node)
}

// Linter parses PHP sources. A Linter is not safe for concurrent use.
type Linter struct {
	parser *sitter.Parser
}

// New creates a linter with the PHP grammar loaded
func New() *Linter {
	parser := sitter.NewParser()
	parser.SetLanguage(php.GetLanguage())

	return &Linter{parser: parser}
}

// Close releases the underlying parser
func (l *Linter) Close() {
	l.parser.Close()
}

// Check parses src and reports the first syntax error, if any
func (l *Linter) Check(ctx context.Context, src []byte) (Report, error) {
	tree, err := l.parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return Report{}, fmt.Errorf("failed to parse: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return Report{}, nil
	}

	node := firstError(root)
	if node == nil {
		node = root
	}

	pt := node.StartPoint()

	nodeType := node.Type()
	if node.IsMissing() {
		nodeType = "missing " + nodeType
	}

	return Report{
		HasError: true,
		Line:     int(pt.Row) + 1,
		Column:   int(pt.Column) + 1,
		Node:     nodeType,
	}, nil
}

// Check is a convenience wrapper that parses src with a fresh linter
func Check(ctx context.Context, src []byte) (Report, error) {
	l := New()
	defer l.Close()

	return l.Check(ctx, src)
}

// firstError walks the tree depth first and returns the earliest error node
func firstError(n *sitter.Node) *sitter.Node {
	if n.IsError() || n.IsMissing() {
		return n
	}

	if !n.HasError() {
		return nil
	}

	for i := 0; i < int(n.ChildCount()); i++ {
		if found := firstError(n.Child(i)); found != nil {
			return found
		}
	}

	return nil
}
