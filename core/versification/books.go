// Package versification maps verse addresses between the Masoretic
// numbering used by the Hebrew text and the numbering of English Bibles.
package versification

// canonicalCodes lists the books whose chapter or verse boundaries differ
// between the two traditions, keyed by the reader's book identifier. Every
// other book numbers identically and never needs the dataset.
var canonicalCodes = map[string]string{
	"genesis":       "Gen",
	"exodus":        "Exod",
	"leviticus":     "Lev",
	"numbers":       "Num",
	"deuteronomy":   "Deut",
	"1-samuel":      "1Sam",
	"2-samuel":      "2Sam",
	"1-kings":       "1Kgs",
	"2-kings":       "2Kgs",
	"1-chronicles":  "1Chr",
	"2-chronicles":  "2Chr",
	"nehemiah":      "Neh",
	"job":           "Job",
	"psalms":        "Ps",
	"ecclesiastes":  "Eccl",
	"song-of-songs": "Song",
	"isaiah":        "Isa",
	"jeremiah":      "Jer",
	"ezekiel":       "Ezek",
	"daniel":        "Dan",
	"hosea":         "Hos",
	"joel":          "Joel",
	"jonah":         "Jonah",
	"micah":         "Mic",
	"nahum":         "Nah",
	"zechariah":     "Zech",
	"malachi":       "Mal",
}

// CanonicalCode returns the dataset code for bookID. ok is false for books
// without a numbering divergence.
func CanonicalCode(bookID string) (code string, ok bool) {
	code, ok = canonicalCodes[bookID]
	return code, ok
}

// DivergentBooks returns the identifiers of every book with a code.
func DivergentBooks() []string {
	out := make([]string, 0, len(canonicalCodes))
	for id := range canonicalCodes {
		out = append(out, id)
	}
	return out
}
