package prefs

import (
	"maps"
	"sync"

	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
)

// Document holds the attributes the page shell writes before any preference
// is opened. It is the hand-off between whoever knows the persisted values
// first (the bootstrap script) and the preference holders created later.
type Document struct {
	mu    sync.RWMutex
	attrs map[string]string
}

// NewDocument returns a document with no attributes.
func NewDocument() *Document {
	return &Document{attrs: make(map[string]string)}
}

// NewDocumentFrom returns a document pre-seeded with attrs, as sent back by a
// client whose bootstrap script already ran.
func NewDocumentFrom(attrs map[string]string) *Document {
	d := NewDocument()
	maps.Copy(d.attrs, attrs)
	return d
}

// Attr returns the named attribute.
func (d *Document) Attr(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	v, ok := d.attrs[name]
	return v, ok
}

// SetAttr writes the named attribute.
func (d *Document) SetAttr(name, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.attrs[name] = value
}

// Attrs returns a copy of every attribute.
func (d *Document) Attrs() map[string]string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return maps.Clone(d.attrs)
}

// Bootstrap copies each persisted, well-formed value onto its attribute.
// Absent or malformed values leave the attribute unset so Initial falls
// through to the default. An unreadable store is not an error here.
func Bootstrap(doc *Document, store kvstore.Store, defs []Definition) {
	for _, def := range defs {
		v, ok, err := store.Get(string(def.Key))
		if err != nil || !ok || !def.Valid(v) {
			continue
		}
		doc.SetAttr(def.Attribute, v)
	}
}

// Initial resolves a preference's starting value: the document attribute if
// present, else the persisted value, else defaultValue. For built-in keys a
// value outside the closed set counts as absent; other keys accept any
// non-empty value unchanged.
func Initial(doc *Document, store kvstore.Store, key Key, defaultValue, attrName string) string {
	def, known := Lookup(key)
	usable := func(v string) bool {
		if v == "" {
			return false
		}
		return !known || def.Valid(v)
	}

	if doc != nil {
		if v, ok := doc.Attr(attrName); ok && usable(v) {
			return v
		}
	}
	if store != nil {
		if v, ok, err := store.Get(string(key)); err == nil && ok && usable(v) {
			return v
		}
	}
	return defaultValue
}
