package render

import (
	"strconv"
	"strings"

	"github.com/FocuswithJustin/JuniperReader/core/scripture"
)

// Line is one rendered verse.
type Line struct {
	Number    int    `json:"number"`
	Label     string `json:"label,omitempty"`
	Alternate string `json:"alternate,omitempty"`
	Text      string `json:"text"`
}

// Page is a rendered chapter. In sefer mode Paragraph holds the verses run
// together and Lines still carries each verse for anchors.
type Page struct {
	Chapter      int    `json:"chapter"`
	HebrewLetter string `json:"hebrew_letter"`
	Sefer        bool   `json:"sefer"`
	LeadIn       string `json:"lead_in,omitempty"`
	Lines        []Line `json:"lines"`
	Paragraph    string `json:"paragraph,omitempty"`
}

// Chapter renders every verse of ch. alternates maps verse numbers to their
// reference in the other numbering tradition; it may be nil.
func Chapter(ch *scripture.Chapter, opts Options, sefer bool, alternates map[int]string) Page {
	page := Page{
		Chapter:      ch.Number,
		HebrewLetter: ch.HebrewLetter,
		Sefer:        sefer,
		Lines:        make([]Line, 0, len(ch.Verses)),
	}

	var para []string
	for _, v := range ch.Verses {
		text := Verse(v, opts)
		if v.IsLeadIn() {
			page.LeadIn = text
			continue
		}
		alt := alternates[v.Number]
		page.Lines = append(page.Lines, Line{
			Number:    v.Number,
			Label:     VerseLabel(v.Number, alt),
			Alternate: alt,
			Text:      text,
		})
		if sefer {
			para = append(para, text)
		}
	}
	if sefer {
		page.Paragraph = strings.Join(para, " ")
	}
	return page
}

// VerseLabel formats a verse number with its alternate reference, e.g.
// "1 [3:2]". The lead-in has no label.
func VerseLabel(number int, alternate string) string {
	if number == 0 {
		return ""
	}
	label := strconv.Itoa(number)
	if alternate != "" {
		label += " [" + alternate + "]"
	}
	return label
}
