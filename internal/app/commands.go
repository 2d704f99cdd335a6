package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"remibot/internal/calc"
	"remibot/internal/reminders"
	kit "remibot/internal/transport"
	"remibot/internal/transport/telegram/router"
	logx "remibot/pkg/logx"
)

func reply(ctx context.Context, req *router.Request, text string) error {
	_, err := req.Adapter.SendText(ctx, req.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

func (a *App) commands() []router.Command {
	return []router.Command{
		{
			Route:       "remind",
			Aliases:     []string{"remindme"},
			Description: "Schedule a reminder",
			Usage:       "/remind <span> [reason]  (e.g. /remind 1h30m take out trash)",
			Handle:      a.cmdRemind,
		},
		{
			Route:       "reminders",
			Description: "List your pending reminders",
			Handle:      a.cmdRemindersList,
		},
		{
			Route:       "reminders cancel",
			Description: "Cancel reminders by list number",
			Usage:       "/reminders cancel <n>  or  /reminders cancel <n>-<m>",
			Handle:      a.cmdRemindersCancel,
		},
		{
			Route:       "rpn",
			Description: "Evaluate a reverse polish notation expression",
			Usage:       "/rpn 3 4 + 2 *",
			Handle:      cmdRPN,
		},
		{
			Route:       "fact",
			Description: "Compute a factorial (rate limited per user)",
			Usage:       "/fact <n>",
			Handle:      a.cmdFact,
		},
		{
			Route:       "rev",
			Description: "Reverse text (-w to reverse word order)",
			Usage:       "/rev [-w] <text>",
			Handle:      cmdRev,
		},
		{
			Route:       "len",
			Description: "Count characters (-w to count words)",
			Usage:       "/len [-w] <text>",
			Handle:      cmdLen,
		},
		{
			Route:       "status",
			Description: "Runtime status",
			Access:      router.AccessOwnerOnly,
			Handle:      a.cmdStatus,
		},
	}
}

// splitSpanPrefix consumes leading tokens that parse as a time span
// ("1h30m", or "1h 30m" across tokens) and returns the total plus the
// remaining tokens.
func splitSpanPrefix(tokens []string) (time.Duration, []string, error) {
	n := 0
	for n < len(tokens) {
		if _, err := reminders.ParseSpan(tokens[n]); err != nil {
			break
		}
		n++
	}
	if n == 0 {
		return 0, tokens, errors.New("no time span given")
	}
	d, err := reminders.ParseSpan(strings.Join(tokens[:n], " "))
	if err != nil {
		return 0, tokens, err
	}
	return d, tokens[n:], nil
}

func (a *App) cmdRemind(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "usage: /remind <span> [reason], e.g. /remind 1h30m take out trash")
	}
	span, rest, err := splitSpanPrefix(req.Args)
	if err != nil {
		return reply(ctx, req, "couldn't read the time span, try something like 10m, 1h30m or 2d 4h")
	}
	text := strings.TrimSpace(strings.Join(rest, " "))
	if text == "" {
		text = "(no reason)"
	}

	rem, err := a.rem.Schedule(ctx, req.FromID, req.Chat, text, span)
	switch {
	case errors.Is(err, reminders.ErrEmptyText):
		return reply(ctx, req, "what should I remind you about?")
	case errors.Is(err, reminders.ErrTooMany):
		return reply(ctx, req, "you have too many pending reminders, cancel some first (/reminders)")
	case errors.Is(err, reminders.ErrSpanTooShort):
		return reply(ctx, req, "that's too soon")
	case errors.Is(err, reminders.ErrSpanTooLong):
		return reply(ctx, req, "that's too far in the future")
	case err != nil:
		req.Logger.Error("reminder schedule failed", logx.Err(err))
		return reply(ctx, req, "couldn't save the reminder, try again later")
	}
	return reply(ctx, req, fmt.Sprintf("ok, reminding you in %s: %s",
		reminders.FormatSpan(time.Until(rem.Meta().FireAt)), rem.Text))
}

func (a *App) cmdRemindersList(ctx context.Context, req *router.Request) error {
	list, err := a.rem.List(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("reminder list failed", logx.Err(err))
		return reply(ctx, req, "couldn't load your reminders, try again later")
	}
	if len(list) == 0 {
		return reply(ctx, req, "no pending reminders")
	}
	var b strings.Builder
	b.WriteString("your reminders:\n")
	for i, r := range list {
		fmt.Fprintf(&b, "%d. in %s: %s\n", i+1, reminders.FormatSpan(time.Until(r.Meta().FireAt)), r.Text)
	}
	b.WriteString("\ncancel with /reminders cancel <n>")
	return reply(ctx, req, b.String())
}

// parseCancelRange accepts "3" or "2-5" (1-based, inclusive).
func parseCancelRange(s string) (from, to int, err error) {
	if i := strings.IndexByte(s, '-'); i > 0 {
		from, err = strconv.Atoi(s[:i])
		if err != nil {
			return 0, 0, err
		}
		to, err = strconv.Atoi(s[i+1:])
		if err != nil {
			return 0, 0, err
		}
		return from, to, nil
	}
	from, err = strconv.Atoi(s)
	return from, from, err
}

func (a *App) cmdRemindersCancel(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "usage: /reminders cancel <n> or /reminders cancel <n>-<m>")
	}
	from, to, err := parseCancelRange(req.Args[0])
	if err != nil || from < 1 || to < 1 {
		return reply(ctx, req, "give me a list number (or range) from /reminders")
	}
	n, err := a.rem.Cancel(ctx, req.FromID, from, to)
	switch {
	case errors.Is(err, reminders.ErrBadIndex):
		return reply(ctx, req, "that number isn't on your list, check /reminders")
	case err != nil:
		req.Logger.Error("reminder cancel failed", logx.Err(err))
		return reply(ctx, req, "couldn't cancel, try again later")
	}
	if n == 1 {
		return reply(ctx, req, "canceled 1 reminder")
	}
	return reply(ctx, req, fmt.Sprintf("canceled %d reminders", n))
}

func cmdRPN(ctx context.Context, req *router.Request) error {
	res, err := calc.EvalRPN(req.Args)
	switch {
	case errors.Is(err, calc.ErrNoInput):
		return reply(ctx, req, "usage: /rpn <expression>, e.g. /rpn 3 4 + 2 *")
	case errors.Is(err, calc.ErrDivideByZero):
		return reply(ctx, req, "division by zero")
	case err != nil:
		return reply(ctx, req, "bad expression: "+err.Error())
	}
	return reply(ctx, req, strconv.FormatInt(res, 10))
}

// factResultLimit caps the digits shown inline; 50000! has over 200k
// digits and would flood the chat.
const factResultLimit = 2000

func (a *App) cmdFact(ctx context.Context, req *router.Request) error {
	if len(req.Args) != 1 {
		return reply(ctx, req, "usage: /fact <n>")
	}
	n, err := strconv.Atoi(req.Args[0])
	if err != nil {
		return reply(ctx, req, "usage: /fact <n>")
	}

	left, err := a.gate.Remaining(ctx, req.FromID)
	if err != nil {
		req.Logger.Error("cooldown check failed", logx.Err(err))
		return reply(ctx, req, "try again later")
	}
	if left > 0 {
		return reply(ctx, req, "slow down, try again in "+reminders.FormatSpan(left))
	}

	v, err := calc.Factorial(n)
	if err != nil {
		return reply(ctx, req, err.Error())
	}
	if err := a.gate.Open(ctx, req.FromID); err != nil {
		req.Logger.Warn("cooldown open failed", logx.Err(err))
	}

	s := v.String()
	if len(s) > factResultLimit {
		s = fmt.Sprintf("%s... (%d digits)", s[:factResultLimit], len(s))
	}
	return reply(ctx, req, s)
}

func cmdRev(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "usage: /rev [-w] <text>")
	}
	if req.BoolFlags["w"] {
		out := make([]string, len(req.Args))
		for i, w := range req.Args {
			out[len(out)-1-i] = w
		}
		return reply(ctx, req, strings.Join(out, " "))
	}
	r := []rune(req.ArgText())
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return reply(ctx, req, string(r))
}

func cmdLen(ctx context.Context, req *router.Request) error {
	if len(req.Args) == 0 {
		return reply(ctx, req, "usage: /len [-w] <text>")
	}
	if req.BoolFlags["w"] {
		return reply(ctx, req, fmt.Sprintf("%d words", len(req.Args)))
	}
	n := len([]rune(req.ArgText()))
	return reply(ctx, req, fmt.Sprintf("%d characters", n))
}

func (a *App) cmdStatus(ctx context.Context, req *router.Request) error {
	var b strings.Builder
	fmt.Fprintf(&b, "uptime: %s\n", reminders.FormatSpan(time.Since(a.startedAt)))
	fmt.Fprintf(&b, "storage: %s\n", a.driver)
	fmt.Fprintf(&b, "armed timers: %d\n", a.registry.Pending())
	if recs, err := a.store.ListCategory(ctx, reminders.Category); err == nil {
		fmt.Fprintf(&b, "pending reminders (all users): %d\n", len(recs))
	}
	active, started := a.sup.Counters()
	fmt.Fprintf(&b, "goroutines: %d active / %d started", active, started)
	return reply(ctx, req, b.String())
}
