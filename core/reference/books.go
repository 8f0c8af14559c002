package reference

import (
	"strings"
	"unicode"
)

// bookIDs is every book identifier in canonical order.
var bookIDs = []string{
	"genesis", "exodus", "leviticus", "numbers", "deuteronomy", "joshua",
	"judges", "ruth", "1-samuel", "2-samuel", "1-kings", "2-kings",
	"1-chronicles", "2-chronicles", "ezra", "nehemiah", "esther", "job",
	"psalms", "proverbs", "ecclesiastes", "song-of-songs", "isaiah",
	"jeremiah", "lamentations", "ezekiel", "daniel", "hosea", "joel", "amos",
	"obadiah", "jonah", "micah", "nahum", "habakkuk", "zephaniah", "haggai",
	"zechariah", "malachi",
	"matthew", "mark", "luke", "john", "acts", "romans", "1-corinthians",
	"2-corinthians", "galatians", "ephesians", "philippians", "colossians",
	"1-thessalonians", "2-thessalonians", "1-timothy", "2-timothy", "titus",
	"philemon", "hebrews", "james", "1-peter", "2-peter", "1-john", "2-john",
	"3-john", "jude", "revelation",
}

// Abbreviations of unnumbered books.
var bookAliases = map[string]string{
	"gen": "genesis", "ge": "genesis", "gn": "genesis",
	"exod": "exodus", "exo": "exodus", "ex": "exodus",
	"lev": "leviticus", "lv": "leviticus",
	"num": "numbers", "nu": "numbers", "nm": "numbers",
	"deut": "deuteronomy", "dt": "deuteronomy", "deu": "deuteronomy",
	"josh": "joshua", "jos": "joshua",
	"judg": "judges", "jdg": "judges",
	"ru": "ruth", "rth": "ruth",
	"ezr": "ezra",
	"neh": "nehemiah", "ne": "nehemiah",
	"esth": "esther", "est": "esther",
	"jb": "job",
	"ps": "psalms", "psa": "psalms", "psalm": "psalms", "pss": "psalms",
	"prov": "proverbs", "pr": "proverbs", "prv": "proverbs",
	"eccl": "ecclesiastes", "ecc": "ecclesiastes", "qoheleth": "ecclesiastes",
	"song": "song-of-songs", "song-of-solomon": "song-of-songs", "sos": "song-of-songs",
	"canticles": "song-of-songs",
	"isa": "isaiah", "is": "isaiah",
	"jer": "jeremiah", "je": "jeremiah",
	"lam": "lamentations", "la": "lamentations",
	"ezek": "ezekiel", "eze": "ezekiel", "ezk": "ezekiel",
	"dan": "daniel", "dn": "daniel",
	"hos": "hosea", "ho": "hosea",
	"jl": "joel",
	"am": "amos",
	"obad": "obadiah", "ob": "obadiah",
	"jon": "jonah", "jnh": "jonah",
	"mic": "micah", "mi": "micah",
	"nah": "nahum", "na": "nahum",
	"hab": "habakkuk", "hb": "habakkuk",
	"zeph": "zephaniah", "zep": "zephaniah",
	"hag": "haggai", "hg": "haggai",
	"zech": "zechariah", "zec": "zechariah",
	"mal": "malachi", "ml": "malachi",
	"matt": "matthew", "mt": "matthew", "mat": "matthew",
	"mk": "mark", "mrk": "mark",
	"lk": "luke", "luk": "luke",
	"jn": "john", "jhn": "john",
	"ac": "acts",
	"rom": "romans", "ro": "romans",
	"gal": "galatians", "ga": "galatians",
	"eph": "ephesians",
	"phil": "philippians", "php": "philippians",
	"col": "colossians",
	"tit": "titus",
	"phlm": "philemon", "phm": "philemon",
	"heb": "hebrews",
	"jas": "james", "jm": "james",
	"jud": "jude",
	"rev": "revelation", "re": "revelation", "revelations": "revelation",
}

// Abbreviations of the name part of numbered books ("1 Sam", "2 Kgs").
var numberedAliases = map[string][]string{
	"samuel":        {"sam", "sa", "sm"},
	"kings":         {"kgs", "ki", "kin"},
	"chronicles":    {"chr", "chron", "ch"},
	"corinthians":   {"cor", "co"},
	"thessalonians": {"thess", "thes", "th"},
	"timothy":       {"tim", "ti"},
	"peter":         {"pet", "pe", "pt"},
	"john":          {"jn", "jhn", "jo"},
}

var bookIndex = buildBookIndex()

func buildBookIndex() map[string]string {
	idx := make(map[string]string, len(bookIDs)*3)
	for _, id := range bookIDs {
		idx[id] = id
	}
	for alias, id := range bookAliases {
		idx[alias] = id
	}
	for _, id := range bookIDs {
		num, name, ok := strings.Cut(id, "-")
		if !ok || len(num) != 1 || !unicode.IsDigit(rune(num[0])) {
			continue
		}
		for _, short := range numberedAliases[name] {
			idx[num+"-"+short] = id
		}
	}
	return idx
}

// Books returns every book identifier in canonical order.
func Books() []string {
	out := make([]string, len(bookIDs))
	copy(out, bookIDs)
	return out
}

// BookID maps a book name or abbreviation ("Ps", "1 Kings", "song of
// solomon") to its identifier.
func BookID(name string) (string, bool) {
	id, ok := bookIndex[normalizeBookName(name)]
	return id, ok
}

// normalizeBookName lowercases, drops periods, joins words with hyphens and
// separates a leading book number from the name: "1Kgs." -> "1-kgs".
func normalizeBookName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, ".", "")
	fields := strings.FieldsFunc(name, func(r rune) bool {
		return unicode.IsSpace(r) || r == '-' || r == '_'
	})
	if len(fields) > 0 {
		first := fields[0]
		if len(first) > 1 && unicode.IsDigit(rune(first[0])) && unicode.IsLetter(rune(first[1])) {
			fields = append([]string{first[:1], first[1:]}, fields[1:]...)
		}
	}
	return strings.Join(fields, "-")
}
