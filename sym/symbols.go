// Package sym defines canonical symbols for dataloader commands, lifecycle
// states and system markers. They are stable across CLI output and logs.
package sym

// Command glyphs
const (
	AM       = "≡" // am: configuration
	Job      = "⌬" // job: job configuration lifecycle
	Resource = "⨳" // resource: connection catalog
	Mapping  = "⋈" // mapping: field mappings
	Server   = "⊨" // server: HTTP API
)

// Lifecycle state glyphs
const (
	Draft     = "◌" // DRAFT: editable, unversioned
	Published = "◉" // PUBLISHED: immutable, published version assigned
	Deployed  = "⟶" // DEPLOYED: handed to the scheduler
)

// System markers
const (
	DB        = "⊔" // database/storage layer
	Scheduler = "꩜" // scheduler gateway
)

// SymbolToCommand maps command glyphs to CLI command names
var SymbolToCommand = map[string]string{
	AM:       "am",
	Job:      "job",
	Resource: "resource",
	Mapping:  "mapping",
	Server:   "server",
}

// CommandToSymbol is the reverse of SymbolToCommand
var CommandToSymbol = map[string]string{
	"am":       AM,
	"job":      Job,
	"resource": Resource,
	"mapping":  Mapping,
	"server":   Server,
}

// ForState returns the glyph for a lifecycle state name, or "" if unknown
func ForState(state string) string {
	switch state {
	case "DRAFT":
		return Draft
	case "PUBLISHED":
		return Published
	case "DEPLOYED":
		return Deployed
	}
	return ""
}
