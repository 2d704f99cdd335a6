package router

import (
	"sort"
	"strings"

	kit "remibot/internal/transport"
)

// menuCommandName converts a route to a Telegram-legal command name
// (lowercase a-z, 0-9, underscore, max 32 chars). Multi-token routes
// collapse with underscores.
func menuCommandName(route []string) (string, bool) {
	joined := strings.ToLower(strings.Join(route, "_"))
	var b strings.Builder
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			// skip anything Telegram would reject
		}
	}
	name := b.String()
	if name == "" || len(name) > 32 {
		return "", false
	}
	return name, true
}

// buildMenuCommands flattens the tree into the Telegram command menu list.
func buildMenuCommands(root *cmdNode) []kit.BotCommand {
	var out []kit.BotCommand
	var walk func(n *cmdNode, route []string)
	walk = func(n *cmdNode, route []string) {
		if n.cmd != nil {
			if name, ok := menuCommandName(route); ok {
				desc := n.cmd.Description
				if desc == "" {
					desc = "/" + strings.Join(route, " ")
				}
				out = append(out, kit.BotCommand{Command: name, Description: desc})
			}
		}
		names := make([]string, 0, len(n.children))
		for c := range n.children {
			names = append(names, c)
		}
		sort.Strings(names)
		for _, c := range names {
			walk(n.children[c], append(route, c))
		}
	}
	walk(root, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].Command < out[j].Command })
	return out
}
