// Package render turns raw verse text into the string shown to the reader.
//
// Verse applies a fixed pipeline: pick the source text, drop the word
// separators, then strip cantillation and nikud as the options ask. Every
// step is a pure function and is exported on its own.
package render

import (
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"

	"github.com/FocuswithJustin/JuniperReader/core/prefs"
	"github.com/FocuswithJustin/JuniperReader/core/scripture"
)

// WordSeparator marks word boundaries in the source encoding. It is never
// displayed.
const WordSeparator = '|'

// NoTextMarker stands in for a verse whose selected text is empty.
const NoTextMarker = "[no text available]"

// Cantillation marks (ta'amim): U+0591 through U+05AF.
var cantillation = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0591, Hi: 0x05AF, Stride: 1},
	},
}

// Vowel points (nikud), including meteg, rafe, the shin/sin dots, the upper
// and lower dots and qamats qatan.
var nikud = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x05B0, Hi: 0x05BD, Stride: 1},
		{Lo: 0x05BF, Hi: 0x05BF, Stride: 1},
		{Lo: 0x05C1, Hi: 0x05C2, Stride: 1},
		{Lo: 0x05C4, Hi: 0x05C5, Stride: 1},
		{Lo: 0x05C7, Hi: 0x05C7, Stride: 1},
	},
}

// Options are the display preferences the pipeline depends on.
type Options struct {
	Nikud        bool
	Cantillation bool
	TextSource   string
}

// DefaultOptions matches the preference defaults.
func DefaultOptions() Options {
	return Options{Nikud: true, Cantillation: true, TextSource: prefs.TextSourceHutter}
}

// OptionsFromSnapshot reads Options out of a preference snapshot. Missing
// keys keep their defaults.
func OptionsFromSnapshot(snap map[prefs.Key]string) Options {
	opts := DefaultOptions()
	if v, ok := snap[prefs.KeyNikud]; ok {
		opts.Nikud = v != "false"
	}
	if v, ok := snap[prefs.KeyCantillation]; ok {
		opts.Cantillation = v != "false"
	}
	if v, ok := snap[prefs.KeyTextSource]; ok && v != "" {
		opts.TextSource = v
	}
	return opts
}

// Verse renders one verse.
func Verse(v scripture.Verse, opts Options) string {
	s := SelectText(v, opts.TextSource)
	s = StripSeparators(s)
	if !opts.Cantillation {
		s = StripCantillation(s)
	}
	if !opts.Nikud {
		s = StripNikud(s)
	}
	return s
}

// SelectText picks the Delitzsch text when asked for and present, the
// primary text otherwise, and NoTextMarker when the pick is empty.
func SelectText(v scripture.Verse, source string) string {
	text := v.TextNikud
	if source == prefs.TextSourceDelitzsch && v.HasAlternate() {
		text = v.TextNikudDelitzsch
	}
	if text == "" {
		return NoTextMarker
	}
	return text
}

// StripSeparators removes every WordSeparator.
func StripSeparators(s string) string {
	return remove(s, runes.Predicate(func(r rune) bool { return r == WordSeparator }))
}

// StripCantillation removes cantillation marks.
func StripCantillation(s string) string {
	return remove(s, runes.In(cantillation))
}

// StripNikud removes vowel points.
func StripNikud(s string) string {
	return remove(s, runes.In(nikud))
}

func remove(s string, set runes.Set) string {
	out, _, err := transform.String(runes.Remove(set), s)
	if err != nil {
		return s
	}
	return out
}
