package prefs

import (
	"sync"

	"github.com/google/uuid"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// Context is one browsing context (a tab): its document, its same-context
// bus, and its handle on the shared store. Contexts sharing a store see each
// other's changes through the store's change feed.
type Context struct {
	id    string
	store kvstore.Store
	doc   *Document
	bus   *Bus

	mu       sync.Mutex
	degraded bool

	cancelMirror func()
	closeOnce    sync.Once
}

// NewContext boots a fresh context over store: a new ID, a new document, and
// the bootstrap pass that mirrors persisted values onto it.
func NewContext(store kvstore.Store) *Context {
	doc := NewDocument()
	Bootstrap(doc, store, Definitions())
	return NewContextWithDocument(uuid.NewString(), store, doc)
}

// NewContextWithDocument creates a context whose document was already
// bootstrapped elsewhere, such as by a client that reported its attributes.
func NewContextWithDocument(id string, store kvstore.Store, doc *Document) *Context {
	if id == "" {
		id = uuid.NewString()
	}
	if doc == nil {
		doc = NewDocument()
	}
	c := &Context{
		id:    id,
		store: store,
		doc:   doc,
		bus:   NewBus(),
	}
	c.cancelMirror = store.Subscribe(id, c.mirror)
	return c
}

// mirror copies another context's change onto the document, so holders
// opened later resolve to the current value even when no holder of the key
// was open when the change arrived.
func (c *Context) mirror(ch kvstore.Change) {
	def, ok := Lookup(Key(ch.Key))
	if !ok || !def.Valid(ch.Value) || c.Degraded() {
		return
	}
	c.doc.SetAttr(def.Attribute, ch.Value)
}

// Close stops following the store's change feed. Holders opened from the
// context must be closed separately.
func (c *Context) Close() {
	c.closeOnce.Do(c.cancelMirror)
}

// ID returns the context's identifier, used as the origin of its writes.
func (c *Context) ID() string { return c.id }

// Document returns the context's attribute mirror.
func (c *Context) Document() *Document { return c.doc }

// Bus returns the context's same-context bus.
func (c *Context) Bus() *Bus { return c.bus }

// Store returns the shared persistent store.
func (c *Context) Store() kvstore.Store { return c.store }

// Degraded reports whether the context gave up on the persistent store.
func (c *Context) Degraded() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.degraded
}

// readStore returns the store while it is usable, nil once degraded.
func (c *Context) readStore() kvstore.Store {
	if c.Degraded() {
		return nil
	}
	return c.store
}

// persist writes through to the store. A storage failure switches the
// context to in-memory operation for the rest of its life; it is logged,
// never returned.
func (c *Context) persist(key Key, value string) bool {
	c.mu.Lock()
	if c.degraded {
		c.mu.Unlock()
		return false
	}
	c.mu.Unlock()

	err := c.store.Set(c.id, string(key), value)
	if err == nil {
		return true
	}
	if rerrors.IsStorageFailure(err) {
		c.mu.Lock()
		c.degraded = true
		c.mu.Unlock()
		logging.StorageDegraded(c.id, c.store.Backend(), err, "key", string(key))
		return false
	}
	logging.Warn("preference write failed", "browsing_context", c.id, "key", string(key), "error", err)
	return false
}

// Open creates a holder for the built-in preference key, resolving its
// starting value and subscribing it to both change channels.
func (c *Context) Open(key Key) (*Preference, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, rerrors.NewValidation("key", string(key), "unknown preference")
	}
	return c.OpenDefinition(def), nil
}

// OpenBool opens a "true"/"false" preference.
func (c *Context) OpenBool(key Key) (*BoolPreference, error) {
	def, ok := Lookup(key)
	if !ok {
		return nil, rerrors.NewValidation("key", string(key), "unknown preference")
	}
	if !def.IsBool() {
		return nil, rerrors.NewValidation("key", string(key), "not a boolean preference")
	}
	return &BoolPreference{Preference: c.OpenDefinition(def)}, nil
}

// OpenDefinition opens a holder for any definition, built-in or not.
func (c *Context) OpenDefinition(def Definition) *Preference {
	p := &Preference{ctx: c, def: def}

	// Subscribe before resolving so a change landing in between is not
	// lost; deliveries wait on p.mu until the initial value is in place.
	p.mu.Lock()
	p.busID, p.cancelBus = c.bus.Subscribe(p.onLocal)
	p.cancelStore = c.store.Subscribe(c.id, p.onRemote)
	p.value = Initial(c.doc, c.readStore(), def.Key, def.Default, def.Attribute)
	p.mu.Unlock()
	return p
}

// Snapshot returns the current value of every built-in preference as seen by
// this context.
func (c *Context) Snapshot() map[Key]string {
	store := c.readStore()
	out := make(map[Key]string, len(builtin))
	for _, def := range builtin {
		out[def.Key] = Initial(c.doc, store, def.Key, def.Default, def.Attribute)
	}
	return out
}
