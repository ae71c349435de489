package rules

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
)

type namedGroup struct {
	name  string
	index int
}

// pattern is a compiled regular expression with its named groups in
// sorted order, so group checks run in a stable order.
type pattern struct {
	src    string
	re     *regexp.Regexp
	groups []namedGroup
}

func compilePattern(src string) (*pattern, error) {
	re, err := regexp.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", src, err)
	}

	p := &pattern{src: src, re: re}
	for i, name := range re.SubexpNames() {
		if name != "" {
			p.groups = append(p.groups, namedGroup{name: name, index: i})
		}
	}
	slices.SortStableFunc(p.groups, func(a, b namedGroup) int {
		return cmp.Compare(a.name, b.name)
	})
	return p, nil
}

func (p *pattern) String() string {
	return p.src
}

// checkGroups validates every named group that took part in the match.
// loc is a submatch index slice as returned by FindStringSubmatchIndex.
func (p *pattern) checkGroups(t *Table, value string, loc []int, ctx *Context) error {
	if ctx == nil {
		ctx = &Context{}
	}
	for _, g := range p.groups {
		start, end := loc[2*g.index], loc[2*g.index+1]
		if start < 0 {
			continue
		}
		sub := value[start:end]

		if set, ok := t.sets[g.name]; ok {
			if _, member := set[sub]; !member {
				return invalidValue(g.name, sub, nil)
			}
			continue
		}

		rule, ok := t.rules[g.name]
		if !ok {
			return undefinedRule(g.name)
		}
		if !ctx.enter(g.name, sub) {
			return invalidValue(g.name, sub, fmt.Errorf("%w: %q dispatched back to itself", ErrRecursion, g.name))
		}
		err := rule.Validate(sub, ctx)
		ctx.leave(g.name, sub)
		if err != nil {
			return invalidValue(g.name, sub, err)
		}
	}
	return nil
}
