package router

import "strings"

// cmdNode is one node in the command route tree. A node either carries a
// concrete Command (leaf/handler) or acts as a container for subcommands.
type cmdNode struct {
	name     string
	cmd      *Command
	children map[string]*cmdNode
}

func newRoot() *cmdNode {
	return &cmdNode{children: map[string]*cmdNode{}}
}

func (n *cmdNode) add(route []string, c Command) {
	cur := n
	for _, tok := range route {
		if cur.children == nil {
			cur.children = map[string]*cmdNode{}
		}
		nxt, ok := cur.children[tok]
		if !ok {
			nxt = &cmdNode{name: tok, children: map[string]*cmdNode{}}
			cur.children[tok] = nxt
		}
		cur = nxt
	}
	cur.cmd = &c
}

func (n *cmdNode) find(route []string) *cmdNode {
	cur := n
	for _, tok := range route {
		nxt, ok := cur.children[tok]
		if !ok {
			return nil
		}
		cur = nxt
	}
	return cur
}

func (n *cmdNode) child(name string) (*cmdNode, bool) {
	c, ok := n.children[name]
	return c, ok
}

// splitRoute normalizes a route string into lower-case tokens.
func splitRoute(route string) []string {
	fields := strings.Fields(strings.ToLower(strings.TrimSpace(route)))
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(f, "/")
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
