package versification

import (
	"encoding/json"
	"strconv"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Mapping is one book's entry in the dataset. SimpleMap is keyed by
// chapter, then verse, both as decimal strings.
type Mapping struct {
	SimpleMap map[string]map[string]string `json:"simple_map"`
}

// Dataset is the whole versification table keyed by canonical code.
type Dataset map[string]Mapping

// Lookup returns the alternate reference for code chapter:verse. A missing
// key at any level is reported as ok == false.
func (d Dataset) Lookup(code string, chapter, verse int) (string, bool) {
	m, ok := d[code]
	if !ok {
		return "", false
	}
	verses, ok := m.SimpleMap[strconv.Itoa(chapter)]
	if !ok {
		return "", false
	}
	ref, ok := verses[strconv.Itoa(verse)]
	if !ok || ref == "" {
		return "", false
	}
	return ref, true
}

// Decode parses a versification document. origin names the document in
// errors.
func Decode(data []byte, origin string) (Dataset, error) {
	var d Dataset
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, rerrors.NewParse("json", origin, "invalid versification document", err)
	}
	if d == nil {
		d = Dataset{}
	}
	return d, nil
}
