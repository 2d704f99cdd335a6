package router

import (
	"html"
	"sort"
	"strings"
)

// helpText renders help for the whole tree, or for the subtree at path.
func (m *CommandManager) helpText(path []string) string {
	m.mu.RLock()
	root := m.root
	alias := m.alias
	m.mu.RUnlock()

	node := root
	if len(path) > 0 {
		if n := root.find(path); n != nil {
			node = n
		} else if leaf, ok := alias[path[0]]; ok && len(path) == 1 {
			node = leaf
		} else {
			return "no such command: /" + html.EscapeString(strings.Join(path, " "))
		}
	}

	var b strings.Builder
	if len(path) == 0 {
		b.WriteString("<b>Commands</b>\n")
	} else {
		b.WriteString("<b>/" + html.EscapeString(strings.Join(path, " ")) + "</b>\n")
	}

	if node.cmd != nil {
		c := node.cmd
		if c.Description != "" {
			b.WriteString(html.EscapeString(c.Description) + "\n")
		}
		if c.Usage != "" {
			b.WriteString("usage: <code>" + html.EscapeString(c.Usage) + "</code>\n")
		}
		if len(c.Aliases) > 0 {
			b.WriteString("aliases: /" + html.EscapeString(strings.Join(c.Aliases, ", /")) + "\n")
		}
	}

	names := make([]string, 0, len(node.children))
	for n := range node.children {
		names = append(names, n)
	}
	sort.Strings(names)

	if len(names) > 0 && len(path) > 0 {
		b.WriteString("\n<b>Subcommands</b>\n")
	}
	prefix := ""
	if len(path) > 0 {
		prefix = strings.Join(path, " ") + " "
	}
	for _, n := range names {
		child := node.children[n]
		line := "/" + prefix + n
		if child.cmd != nil && child.cmd.Description != "" {
			line += " - " + child.cmd.Description
		}
		b.WriteString(html.EscapeString(line) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
