package prefs

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/kvstore"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// Preference is one holder of a preference value inside a context, the
// equivalent of a mounted widget bound to the key. Holders of the same key
// agree once Set returns (same context) or once the store's change feed is
// delivered (other contexts).
type Preference struct {
	ctx *Context
	def Definition

	mu        sync.RWMutex
	value     string
	listeners []func(string)
	closed    bool

	busID       int
	cancelBus   func()
	cancelStore func()
}

// Key returns the preference key.
func (p *Preference) Key() Key { return p.def.Key }

// Definition returns the preference definition.
func (p *Preference) Definition() Definition { return p.def }

// Get returns the current value.
func (p *Preference) Get() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.value
}

// OnChange registers fn to run whenever the value changes, whoever changed it.
func (p *Preference) OnChange(fn func(string)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, fn)
}

// Set persists value, mirrors it onto the document, updates this holder and
// every other holder of the key in the context before returning. Only a value
// outside the preference's value set is an error; storage trouble is not.
func (p *Preference) Set(value string) error {
	if !p.def.Valid(value) {
		return rerrors.NewValidation(string(p.def.Key), value,
			fmt.Sprintf("must be one of %s", strings.Join(p.def.Values, ", ")))
	}

	persisted := p.ctx.persist(p.def.Key, value)
	p.ctx.doc.SetAttr(p.def.Attribute, value)
	p.apply(value)
	p.ctx.bus.Publish(Event{Key: p.def.Key, Value: value, Source: p.busID})

	logging.PreferenceChanged(p.ctx.id, string(p.def.Key), value, "persisted", persisted)
	return nil
}

// Close unsubscribes the holder from both channels. Its value stays readable.
func (p *Preference) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()

	p.cancelBus()
	p.cancelStore()
}

func (p *Preference) onLocal(e Event) {
	if e.Key != p.def.Key {
		return
	}
	p.apply(e.Value)
}

// onRemote handles a change made by another context. Malformed values are
// ignored rather than adopted, and a degraded context no longer follows the
// store.
func (p *Preference) onRemote(c kvstore.Change) {
	if c.Key != string(p.def.Key) || !p.def.Valid(c.Value) || p.ctx.Degraded() {
		return
	}
	p.ctx.doc.SetAttr(p.def.Attribute, c.Value)
	p.apply(c.Value)
}

func (p *Preference) apply(value string) {
	p.mu.Lock()
	if p.value == value {
		p.mu.Unlock()
		return
	}
	p.value = value
	listeners := make([]func(string), len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	for _, fn := range listeners {
		fn(value)
	}
}

// BoolPreference is a Preference over "true"/"false".
type BoolPreference struct {
	*Preference
}

// Bool returns the value as a bool.
func (b *BoolPreference) Bool() bool {
	v, err := strconv.ParseBool(b.Get())
	return err == nil && v
}

// SetBool stores v as "true" or "false".
func (b *BoolPreference) SetBool(v bool) {
	// Both strings are in every boolean value set.
	_ = b.Set(strconv.FormatBool(v))
}

// Toggle flips the value and returns the new one.
func (b *BoolPreference) Toggle() bool {
	next := !b.Bool()
	b.SetBool(next)
	return next
}
