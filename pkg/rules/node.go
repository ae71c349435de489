// Package rules compiles configuration documents into rule graphs and
// evaluates them against line values.
package rules

import (
	"fmt"
	"regexp"
	"strings"
)

// Node is a compiled rule. Validate returns nil when value satisfies the
// rule and a *ValidationError otherwise. Nodes hold no mutable state; side
// effects go to ctx.
type Node interface {
	Validate(value string, ctx *Context) error
	String() string
}

// True accepts every value. It is compiled from a null specification.
type True struct{}

func (True) Validate(string, *Context) error { return nil }
func (True) String() string                  { return "true" }

// And requires every child to pass, in order, stopping at the first failure.
type And struct {
	children []Node
}

func (n *And) Validate(value string, ctx *Context) error {
	for _, child := range n.children {
		if err := child.Validate(value, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *And) String() string {
	parts := make([]string, len(n.children))
	for i, child := range n.children {
		parts[i] = child.String()
	}
	return strings.Join(parts, " && ")
}

// Children returns the conjuncts.
func (n *And) Children() []Node {
	return n.children
}

// As requires the pattern to match somewhere in the value and every named
// group of the match to pass its own rule.
type As struct {
	pat   *pattern
	table *Table
}

func (n *As) Validate(value string, ctx *Context) error {
	loc := n.pat.re.FindStringSubmatchIndex(value)
	if loc == nil {
		return patternNotMatch(n.pat, value)
	}
	return n.pat.checkGroups(n.table, value, loc, ctx)
}

func (n *As) String() string {
	return n.pat.String()
}

// Find checks the named groups of every non-overlapping match. A value
// without any match passes.
type Find struct {
	pat   *pattern
	table *Table
}

func (n *Find) Validate(value string, ctx *Context) error {
	for _, loc := range n.pat.re.FindAllStringSubmatchIndex(value, -1) {
		if err := n.pat.checkGroups(n.table, value, loc, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Find) String() string {
	return "?" + n.pat.String()
}

// Split partitions the value by a delimiter pattern and applies the inner
// rule to every non-empty part.
type Split struct {
	by    *regexp.Regexp
	inner Node
}

func (n *Split) Validate(value string, ctx *Context) error {
	if value == "" {
		return nil
	}
	for _, part := range n.by.Split(value, -1) {
		if part == "" {
			continue
		}
		if err := n.inner.Validate(part, ctx); err != nil {
			return err
		}
	}
	return nil
}

func (n *Split) String() string {
	return fmt.Sprintf("split(by=%q, as=%s)", n.by.String(), n.inner)
}

// Count increments a named counter and always passes.
type Count struct {
	name string
}

func (n *Count) Validate(_ string, ctx *Context) error {
	ctx.count(n.name)
	return nil
}

func (n *Count) String() string {
	return "count(" + n.name + ")"
}

// Group tallies the value under a named bucket and always passes.
type Group struct {
	name string
}

func (n *Group) Validate(value string, ctx *Context) error {
	ctx.group(n.name, value)
	return nil
}

func (n *Group) String() string {
	return "group(" + n.name + ")"
}

// Reference delegates to the compiled rule of another key. All references
// to a key share the same target node.
type Reference struct {
	key    string
	target Node
}

func (n *Reference) Validate(value string, ctx *Context) error {
	return n.target.Validate(value, ctx)
}

func (n *Reference) String() string {
	return "$" + n.key
}

// Key returns the referenced rule key.
func (n *Reference) Key() string {
	return n.key
}

// Target returns the referenced node.
func (n *Reference) Target() Node {
	return n.target
}
