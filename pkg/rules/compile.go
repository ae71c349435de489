package rules

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"

	"github.com/ccollicutt/validata/pkg/config"
)

// Structured rule keys.
const (
	keyAs    = "as"
	keyFind  = "find"
	keySplit = "split"
	keyCount = "count"
	keyGroup = "group"
	keyBy    = "by"
)

// Compile builds the rule table of doc. Every rule key compiles to exactly
// one node; references to it share that node. A missing "all" rule, an
// invalid pattern, an unknown structured key or a reference cycle is a
// configuration error.
func Compile(doc *config.Document) (*Table, error) {
	root, ok := doc.Entry(RootRule)
	if !ok || root.Kind != config.KindRule {
		return nil, &config.Error{Path: doc.Path, Key: RootRule, Err: fmt.Errorf("rule %q must be defined", RootRule)}
	}

	c := &compiler{doc: doc, table: newTable()}

	for _, e := range doc.Entries(config.KindConstantSet, config.KindExternalList) {
		set := make(map[string]struct{}, len(e.Values))
		for _, v := range e.Values {
			set[v] = struct{}{}
		}
		c.table.sets[e.Key] = set
	}

	for _, e := range doc.Entries(config.KindRule) {
		if _, done := c.table.rules[e.Key]; done {
			continue
		}
		if _, err := c.compileKey(e.Key, make(map[string]bool)); err != nil {
			return nil, err
		}
	}
	return c.table, nil
}

type compiler struct {
	doc   *config.Document
	table *Table
}

func (c *compiler) errorf(key, format string, args ...any) error {
	return &config.Error{Path: c.doc.Path, Key: key, Err: fmt.Errorf(format, args...)}
}

// compileKey returns the memoized node of key, compiling it on first use.
// inProgress holds the keys on the current reference chain.
func (c *compiler) compileKey(key string, inProgress map[string]bool) (Node, error) {
	if n, ok := c.table.rules[key]; ok {
		return n, nil
	}
	if inProgress[key] {
		return nil, &config.Error{Path: c.doc.Path, Key: key, Err: fmt.Errorf("%w: rule %q references itself", config.ErrCycle, key)}
	}

	e, ok := c.doc.Entry(key)
	if !ok {
		return nil, c.errorf(key, "reference to undefined rule %q", key)
	}
	if e.Kind != config.KindRule {
		return nil, c.errorf(key, "cannot reference %s %q as a rule", e.Kind, key)
	}

	inProgress[key] = true
	n, err := c.compile(key, e.Spec, inProgress)
	if err != nil {
		return nil, err
	}
	c.table.rules[key] = n
	return n, nil
}

// compile turns one specification into a node. key names the rule being
// compiled, for error messages.
func (c *compiler) compile(key string, spec any, inProgress map[string]bool) (Node, error) {
	switch s := spec.(type) {
	case nil:
		return True{}, nil

	case []any:
		children := make([]Node, 0, len(s))
		for _, item := range s {
			n, err := c.compile(key, item, inProgress)
			if err != nil {
				return nil, err
			}
			children = append(children, n)
		}
		return &And{children: children}, nil

	case map[string]any:
		return c.compileObject(key, s, inProgress)

	case string:
		switch {
		case strings.HasPrefix(s, "?"):
			return c.find(key, s[1:])
		case strings.HasPrefix(s, "$"):
			target, err := c.compileKey(s[1:], inProgress)
			if err != nil {
				return nil, err
			}
			return &Reference{key: s[1:], target: target}, nil
		default:
			p, err := compilePattern(s)
			if err != nil {
				return nil, c.errorf(key, "%v", err)
			}
			return &As{pat: p, table: c.table}, nil
		}

	default:
		return nil, c.errorf(key, "unsupported rule specification %v (%T)", spec, spec)
	}
}

func (c *compiler) find(key, src string) (Node, error) {
	p, err := compilePattern(src)
	if err != nil {
		return nil, c.errorf(key, "%v", err)
	}
	return &Find{pat: p, table: c.table}, nil
}

// compileObject handles the structured form. split stands alone; the other
// keys are compiled in the order as, find, count, group and joined with And.
func (c *compiler) compileObject(key string, obj map[string]any, inProgress map[string]bool) (Node, error) {
	for _, k := range slices.Sorted(maps.Keys(obj)) {
		switch k {
		case keyAs, keyFind, keySplit, keyCount, keyGroup:
		default:
			return nil, c.errorf(key, "unknown rule key %q (want as, find, split, count or group)", k)
		}
	}

	if split, ok := obj[keySplit]; ok {
		return c.compileSplit(key, split, inProgress)
	}

	var nodes []Node
	if spec, ok := obj[keyAs]; ok {
		n, err := c.compile(key, spec, inProgress)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if spec, ok := obj[keyFind]; ok {
		s, ok := spec.(string)
		if !ok {
			return nil, c.errorf(key, "find must be a pattern, got %T", spec)
		}
		n, err := c.find(key, strings.TrimPrefix(s, "?"))
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	if spec, ok := obj[keyCount]; ok {
		name, err := c.name(key, keyCount, spec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Count{name: name})
	}
	if spec, ok := obj[keyGroup]; ok {
		name, err := c.name(key, keyGroup, spec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, &Group{name: name})
	}

	switch len(nodes) {
	case 0:
		return True{}, nil
	case 1:
		return nodes[0], nil
	default:
		return &And{children: nodes}, nil
	}
}

func (c *compiler) compileSplit(key string, spec any, inProgress map[string]bool) (Node, error) {
	obj, ok := spec.(map[string]any)
	if !ok {
		return nil, c.errorf(key, "split must be a mapping with by and as, got %T", spec)
	}
	for k := range obj {
		if k != keyBy && k != keyAs {
			return nil, c.errorf(key, "unknown split key %q (want by and as)", k)
		}
	}

	by, ok := obj[keyBy].(string)
	if !ok {
		return nil, c.errorf(key, "split requires a by pattern")
	}
	inner, ok := obj[keyAs]
	if !ok {
		return nil, c.errorf(key, "split requires an as rule")
	}

	re, err := regexp.Compile(by)
	if err != nil {
		return nil, c.errorf(key, "invalid split pattern %q: %v", by, err)
	}
	n, err := c.compile(key, inner, inProgress)
	if err != nil {
		return nil, err
	}
	return &Split{by: re, inner: n}, nil
}

func (c *compiler) name(key, field string, spec any) (string, error) {
	s, ok := spec.(string)
	if !ok || s == "" {
		return "", c.errorf(key, "%s must be a name, got %v", field, spec)
	}
	return s, nil
}
