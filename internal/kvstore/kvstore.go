// Package kvstore provides the persistent key/value stores that back reader
// preferences, together with their cross-context change feed.
//
// A store is shared by every browsing context of one storage origin. A
// successful Set is announced asynchronously to every subscriber whose origin
// differs from the writer's; the writer itself never hears its own change.
package kvstore

import (
	"fmt"
	"sync"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

// Change describes a write made through a store.
// Origin is the browsing context that made it, or "" for writes observed from
// outside the process.
type Change struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Origin string `json:"origin,omitempty"`
}

// Store is a string key/value store with a cross-context change feed.
type Store interface {
	// Get returns the stored value and whether it exists.
	Get(key string) (string, bool, error)
	// Set writes value under key on behalf of origin.
	Set(origin, key, value string) error
	// All returns a copy of every stored pair.
	All() (map[string]string, error)
	// Subscribe registers fn for changes made by any origin other than origin.
	// The returned function unsubscribes.
	Subscribe(origin string, fn func(Change)) (cancel func())
	// Backend names the implementation for logs and errors.
	Backend() string
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendNone   = "none"
)

// Options configures Open.
type Options struct {
	Backend string
	Path    string
	// MaxBytes caps the total size of stored keys and values; 0 means no cap.
	MaxBytes int
	// Watch enables external change detection for the file backend.
	Watch bool
}

// Open creates the store described by opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case BackendMemory, "":
		return NewMemoryStore(opts.MaxBytes), nil
	case BackendFile:
		return OpenFileStore(opts.Path, FileOptions{MaxBytes: opts.MaxBytes, Watch: opts.Watch})
	case BackendSQLite:
		return OpenSQLiteStore(opts.Path)
	case BackendNone:
		return Unavailable{}, nil
	default:
		return nil, rerrors.NewValidation("backend", opts.Backend,
			fmt.Sprintf("unknown store backend %q", opts.Backend))
	}
}

// size returns the storage footprint used for quota checks.
func size(data map[string]string) int {
	n := 0
	for k, v := range data {
		n += len(k) + len(v)
	}
	return n
}

// notifier fans changes out to subscribers, one ordered queue per subscriber.
type notifier struct {
	mu   sync.RWMutex
	next int
	subs map[int]*subscriber
}

type subscriber struct {
	origin string
	fn     func(Change)

	mu    sync.Mutex
	queue []Change
	wake  chan struct{}
	done  chan struct{}
	once  sync.Once
}

func (n *notifier) subscribe(origin string, fn func(Change)) func() {
	s := &subscriber{
		origin: origin,
		fn:     fn,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	n.mu.Lock()
	if n.subs == nil {
		n.subs = make(map[int]*subscriber)
	}
	id := n.next
	n.next++
	n.subs[id] = s
	n.mu.Unlock()

	go s.run()

	return func() {
		n.mu.Lock()
		delete(n.subs, id)
		n.mu.Unlock()
		s.once.Do(func() { close(s.done) })
	}
}

// notify queues c for every subscriber not belonging to c.Origin.
// Delivery happens on the subscriber's own goroutine, never the caller's.
func (n *notifier) notify(c Change) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, s := range n.subs {
		if c.Origin != "" && s.origin == c.Origin {
			continue
		}
		s.push(c)
	}
}

func (n *notifier) closeAll() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for id, s := range n.subs {
		s.once.Do(func() { close(s.done) })
		delete(n.subs, id)
	}
}

func (s *subscriber) push(c Change) {
	s.mu.Lock()
	s.queue = append(s.queue, c)
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *subscriber) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}
		for {
			s.mu.Lock()
			if len(s.queue) == 0 {
				s.mu.Unlock()
				break
			}
			c := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case <-s.done:
				return
			default:
			}
			s.fn(c)
		}
	}
}
