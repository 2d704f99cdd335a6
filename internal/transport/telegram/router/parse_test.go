package router

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"/remind 1h30m take out trash", []string{"/remind", "1h30m", "take", "out", "trash"}},
		{`/remind "buy milk" 2h`, []string{"/remind", "buy milk", "2h"}},
		{"  spaced\tout\ntokens  ", []string{"spaced", "out", "tokens"}},
		{`"unterminated quote keeps going`, []string{"unterminated quote keeps going"}},
		{"", nil},
	}
	for _, tc := range cases {
		got := tokenize(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseFlags([]string{"a", "--key=value", "b", "--name", "bob", "--dry", "-w", "c"})
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(pos, want) {
		t.Errorf("pos = %v, want %v", pos, want)
	}
	if flags["key"] != "value" || flags["name"] != "bob" {
		t.Errorf("flags = %v", flags)
	}
	if !bools["dry"] || !bools["w"] {
		t.Errorf("bools = %v", bools)
	}
}

func TestParseFlagsKeepsNegativeNumbers(t *testing.T) {
	t.Parallel()
	pos, _, bools := parseFlags([]string{"3", "-4", "+"})
	if want := []string{"3", "-4", "+"}; !reflect.DeepEqual(pos, want) {
		t.Errorf("pos = %v, want %v", pos, want)
	}
	if len(bools) != 0 {
		t.Errorf("bools = %v, want empty", bools)
	}
}

func TestSplitRoute(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{"remind", []string{"remind"}},
		{"/Reminders Cancel", []string{"reminders", "cancel"}},
		{"  reminders   cancel  ", []string{"reminders", "cancel"}},
		{"", []string{}},
	}
	for _, tc := range cases {
		got := splitRoute(tc.in)
		if !reflect.DeepEqual(got, tc.want) {
			t.Errorf("splitRoute(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestTreeAddFind(t *testing.T) {
	t.Parallel()
	root := newRoot()
	root.add([]string{"reminders"}, Command{Route: "reminders"})
	root.add([]string{"reminders", "cancel"}, Command{Route: "reminders cancel"})

	n := root.find([]string{"reminders", "cancel"})
	if n == nil || n.cmd == nil || n.cmd.Route != "reminders cancel" {
		t.Fatalf("find(reminders cancel) = %#v", n)
	}
	if root.find([]string{"nope"}) != nil {
		t.Errorf("find(nope) should be nil")
	}
	if n := root.find([]string{"reminders"}); n == nil || n.cmd == nil {
		t.Errorf("parent route should keep its own command")
	}
}

func TestMenuCommandName(t *testing.T) {
	t.Parallel()
	cases := []struct {
		route []string
		want  string
		ok    bool
	}{
		{[]string{"remind"}, "remind", true},
		{[]string{"reminders", "cancel"}, "reminders_cancel", true},
		{[]string{"UPPER"}, "upper", true},
		{[]string{"bad!name"}, "badname", true},
		{[]string{"!!!"}, "", false},
	}
	for _, tc := range cases {
		got, ok := menuCommandName(tc.route)
		if got != tc.want || ok != tc.ok {
			t.Errorf("menuCommandName(%v) = %q, %v; want %q, %v", tc.route, got, ok, tc.want, tc.ok)
		}
	}
}
