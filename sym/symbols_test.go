package sym

import (
	"testing"
	"unicode/utf8"
)

func TestSymbolToCommandAndCommandToSymbolAreBidirectional(t *testing.T) {
	for symbol, cmd := range SymbolToCommand {
		got, ok := CommandToSymbol[cmd]
		if !ok {
			t.Errorf("SymbolToCommand has %q → %q, but CommandToSymbol has no entry for %q", symbol, cmd, cmd)
			continue
		}
		if got != symbol {
			t.Errorf("bidirectional mismatch: SymbolToCommand[%q] = %q, but CommandToSymbol[%q] = %q", symbol, cmd, cmd, got)
		}
	}

	if len(SymbolToCommand) != len(CommandToSymbol) {
		t.Errorf("map size mismatch: SymbolToCommand has %d entries, CommandToSymbol has %d",
			len(SymbolToCommand), len(CommandToSymbol))
	}
}

func TestSymbolsAreSingleRunes(t *testing.T) {
	for _, s := range []string{AM, Job, Resource, Mapping, Server, Draft, Published, Deployed, DB, Scheduler} {
		if n := utf8.RuneCountInString(s); n != 1 {
			t.Errorf("symbol %q has %d runes, want 1", s, n)
		}
	}
}

func TestForState(t *testing.T) {
	cases := map[string]string{
		"DRAFT":     Draft,
		"PUBLISHED": Published,
		"DEPLOYED":  Deployed,
		"ARCHIVED":  "",
	}
	for state, want := range cases {
		if got := ForState(state); got != want {
			t.Errorf("ForState(%q) = %q, want %q", state, got, want)
		}
	}
}
