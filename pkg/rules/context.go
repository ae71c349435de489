package rules

// Context is the mutable state of one file check. Count and Group nodes
// write to it; it is reset before each file.
type Context struct {
	Counts map[string]int
	Groups map[string]map[string]int

	// active holds the group dispatches currently being evaluated.
	active map[dispatch]struct{}
}

type dispatch struct {
	rule, value string
}

// NewContext returns an empty context.
func NewContext() *Context {
	return &Context{
		Counts: make(map[string]int),
		Groups: make(map[string]map[string]int),
	}
}

// Reset clears all counters.
func (c *Context) Reset() {
	clear(c.Counts)
	clear(c.Groups)
	clear(c.active)
}

// enter marks rule as validating value. It reports false when the same
// pair is already being evaluated further up the stack.
func (c *Context) enter(rule, value string) bool {
	key := dispatch{rule, value}
	if _, ok := c.active[key]; ok {
		return false
	}
	if c.active == nil {
		c.active = make(map[dispatch]struct{})
	}
	c.active[key] = struct{}{}
	return true
}

func (c *Context) leave(rule, value string) {
	delete(c.active, dispatch{rule, value})
}

func (c *Context) count(name string) {
	if c == nil {
		return
	}
	if c.Counts == nil {
		c.Counts = make(map[string]int)
	}
	c.Counts[name]++
}

func (c *Context) group(name, value string) {
	if c == nil {
		return
	}
	if c.Groups == nil {
		c.Groups = make(map[string]map[string]int)
	}
	bucket, ok := c.Groups[name]
	if !ok {
		bucket = make(map[string]int)
		c.Groups[name] = bucket
	}
	bucket[value]++
}
