// Package scripture defines the book, chapter and verse data served by the
// reader and loads it from a directory of JSON files.
package scripture

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Verse is one verse of a chapter. Number 0 is the chapter's lead-in
// (superscription) and carries no verse label.
type Verse struct {
	Number             int             `json:"number"`
	TextNikud          string          `json:"text_nikud"`
	TextNikudDelitzsch string          `json:"text_nikud_delitzsch,omitempty"`
	SourceFiles        []string        `json:"source_files,omitempty"`
	VisualUncertainty  json.RawMessage `json:"visual_uncertainty,omitempty"`
}

// HasAlternate reports whether the verse carries the Delitzsch translation.
func (v Verse) HasAlternate() bool {
	return v.TextNikudDelitzsch != ""
}

// IsLeadIn reports whether the verse is a chapter superscription.
func (v Verse) IsLeadIn() bool {
	return v.Number == 0
}

// Chapter is a numbered chapter with its Hebrew-letter label.
type Chapter struct {
	Number       int     `json:"number"`
	HebrewLetter string  `json:"hebrew_letter"`
	Verses       []Verse `json:"verses"`
}

// Verse returns the verse with the given number.
func (c *Chapter) Verse(n int) (Verse, bool) {
	for _, v := range c.Verses {
		if v.Number == n {
			return v, true
		}
	}
	return Verse{}, false
}

// VerseNumbers lists the numbered verses, skipping the lead-in.
func (c *Chapter) VerseNumbers() []int {
	out := make([]int, 0, len(c.Verses))
	for _, v := range c.Verses {
		if !v.IsLeadIn() {
			out = append(out, v.Number)
		}
	}
	return out
}

// Book is a whole book as stored on disk.
type Book struct {
	ID              string    `json:"-"`
	BookName        string    `json:"book_name"`
	Author          string    `json:"author,omitempty"`
	PublicationYear Year      `json:"publication_year,omitempty"`
	Chapters        []Chapter `json:"chapters"`
}

// Chapter returns the chapter with the given number.
func (b *Book) Chapter(n int) (*Chapter, bool) {
	for i := range b.Chapters {
		if b.Chapters[i].Number == n {
			return &b.Chapters[i], true
		}
	}
	return nil, false
}

// Year is a publication year. Source files write it either as a number or
// as a string such as "1885" or "c. 1877".
type Year string

func (y *Year) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*y = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*y = Year(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*y = Year(n.String())
	return nil
}

func (y Year) MarshalJSON() ([]byte, error) {
	if n, err := strconv.Atoi(string(y)); err == nil {
		return []byte(strconv.Itoa(n)), nil
	}
	return json.Marshal(string(y))
}

// Decode parses a book document. path is only used in error messages.
func Decode(data []byte, path string) (*Book, error) {
	var b Book
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, rerrors.NewParse("json", path, "invalid book document", err)
	}
	for _, ch := range b.Chapters {
		if ch.Number < 1 {
			return nil, rerrors.NewParse("json", path,
				"chapter number must be positive", nil)
		}
		for _, v := range ch.Verses {
			if v.Number < 0 {
				return nil, rerrors.NewParse("json", path,
					"verse number must not be negative", nil)
			}
		}
	}
	return &b, nil
}
