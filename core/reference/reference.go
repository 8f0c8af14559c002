// Package reference parses verse references such as "Psalms 3:1",
// "1 Kgs 8" or "ps.3.1".
package reference

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Reference is a book and chapter with an optional verse. Verse 0 addresses
// a chapter's lead-in.
type Reference struct {
	Book    string
	Chapter int
	Verse   *int
}

// grammar is the parse tree; Book is resolved to an identifier afterwards.
type grammar struct {
	Book    string `parser:"@Book"`
	Chapter int    `parser:"@Number"`
	Verse   *int   `parser:"( Sep @Number )?"`
}

var referenceLexer = lexer.MustSimple([]lexer.SimpleRule{
	// "Psalms", "1 Kings", "1Kgs.", "song-of-songs", "Song of Solomon"
	{Name: "Book", Pattern: `(?:\d[\s-]*)?[A-Za-z]+(?:[\s-]+[A-Za-z]+)*\.?`},
	{Name: "Number", Pattern: `\d+`},
	{Name: "Sep", Pattern: `[:.]`},
	{Name: "Whitespace", Pattern: `\s+`},
})

var referenceParser = participle.MustBuild[grammar](
	participle.Lexer(referenceLexer),
	participle.Elide("Whitespace"),
)

// Parse parses input into a Reference with a resolved book identifier.
func Parse(input string) (*Reference, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil, rerrors.NewValidation("reference", input, "empty reference")
	}
	g, err := referenceParser.ParseString("", input)
	if err != nil {
		return nil, rerrors.NewParse("reference", "", fmt.Sprintf("cannot parse %q: %v", input, err), nil)
	}
	id, ok := BookID(g.Book)
	if !ok {
		return nil, rerrors.NewValidation("book", strings.TrimSpace(g.Book), "unknown book")
	}
	if g.Chapter < 1 {
		return nil, rerrors.NewValidation("chapter", fmt.Sprint(g.Chapter), "chapter must be positive")
	}
	return &Reference{Book: id, Chapter: g.Chapter, Verse: g.Verse}, nil
}

// HasVerse reports whether a verse was given.
func (r *Reference) HasVerse() bool { return r.Verse != nil }

// VerseNumber returns the verse, or -1 for a whole-chapter reference.
func (r *Reference) VerseNumber() int {
	if r.Verse == nil {
		return -1
	}
	return *r.Verse
}

// String formats the reference as "book chapter[:verse]".
func (r *Reference) String() string {
	if r.Verse == nil {
		return fmt.Sprintf("%s %d", r.Book, r.Chapter)
	}
	return fmt.Sprintf("%s %d:%d", r.Book, r.Chapter, *r.Verse)
}
