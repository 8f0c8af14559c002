// Package prefs implements the reader's display preferences: how a value is
// chosen at start-up, how it is persisted, and how every holder of the same
// preference is kept in agreement.
//
// Values are stored as strings ("true"/"false", "hutter"/"delitzsch", ...) so
// that values persisted by earlier releases keep working; typed accessors such
// as BoolPreference convert at the edge.
package prefs

import (
	"slices"
	"strings"
)

// Key names a preference in the persistent store.
type Key string

// Built-in preference keys.
const (
	KeyNikud        Key = "nikud"
	KeyCantillation Key = "cantillation"
	KeySefer        Key = "sefer"
	KeyTextSource   Key = "textSource"
	KeyTheme        Key = "theme"
)

// Text sources.
const (
	TextSourceHutter    = "hutter"
	TextSourceDelitzsch = "delitzsch"
)

// Themes.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

var boolValues = []string{"true", "false"}

// Definition describes one preference: its store key, default, closed value
// set and the document attribute mirroring it.
type Definition struct {
	Key       Key
	Default   string
	Attribute string
	Values    []string
}

// Valid reports whether v belongs to the preference's value set.
func (d Definition) Valid(v string) bool {
	return slices.Contains(d.Values, v)
}

// IsBool reports whether the preference is a "true"/"false" toggle.
func (d Definition) IsBool() bool {
	return slices.Equal(d.Values, boolValues)
}

var builtin = []Definition{
	{Key: KeyNikud, Default: "true", Attribute: "data-nikud", Values: boolValues},
	{Key: KeyCantillation, Default: "true", Attribute: "data-cantillation", Values: boolValues},
	{Key: KeySefer, Default: "false", Attribute: "data-sefer", Values: boolValues},
	{Key: KeyTextSource, Default: TextSourceHutter, Attribute: "data-text-source",
		Values: []string{TextSourceHutter, TextSourceDelitzsch}},
	{Key: KeyTheme, Default: ThemeLight, Attribute: "data-theme",
		Values: []string{ThemeLight, ThemeDark}},
}

// Definitions returns the built-in preferences in display order.
func Definitions() []Definition {
	out := make([]Definition, len(builtin))
	copy(out, builtin)
	return out
}

// Lookup finds the built-in definition for key.
func Lookup(key Key) (Definition, bool) {
	for _, d := range builtin {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// LookupName finds a definition by key, ignoring case, so CLI and URL input
// like "textsource" resolves.
func LookupName(name string) (Definition, bool) {
	for _, d := range builtin {
		if strings.EqualFold(string(d.Key), name) {
			return d, true
		}
	}
	return Definition{}, false
}
