package versification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/FocuswithJustin/JuniperReader/internal/logging"
	"github.com/FocuswithJustin/JuniperReader/internal/workerpool"
)

// State is the resolver's load state.
type State int

const (
	Unloaded State = iota
	Loading
	Loaded
)

func (s State) String() string {
	switch s {
	case Unloaded:
		return "unloaded"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	}
	return "unknown"
}

// Stats describes the resolver for health and diagnostics output.
type Stats struct {
	State   string `json:"state"`
	Source  string `json:"source"`
	Fetches int    `json:"fetches"`
	Books   int    `json:"books"`
	Error   string `json:"error,omitempty"`
}

// Resolver answers alternate-reference lookups from a dataset it loads once
// on first use. Concurrent callers share the one load; a failed load leaves
// an empty dataset in place for the resolver's lifetime.
type Resolver struct {
	source  Source
	workers int

	mu      sync.Mutex
	state   State
	done    chan struct{}
	data    Dataset
	loadErr error
	fetches int
}

// NewResolver creates a resolver over source. workers bounds the fan-out of
// ResolveChapter; zero picks the pool default.
func NewResolver(source Source, workers int) *Resolver {
	return &Resolver{source: source, workers: workers}
}

// Resolve returns the alternate reference for bookID chapter:verse. Books
// without a canonical code return immediately without loading anything. A
// caller whose ctx ends before the load finishes gets ok == false; the load
// itself carries on for later callers.
func (r *Resolver) Resolve(ctx context.Context, bookID string, chapter, verse int) (string, bool) {
	code, ok := CanonicalCode(bookID)
	if !ok {
		return "", false
	}
	d, ok := r.dataset(ctx)
	if !ok {
		return "", false
	}
	return d.Lookup(code, chapter, verse)
}

type lookup struct {
	verse int
	ref   string
	ok    bool
}

// ResolveChapter resolves every verse of one chapter concurrently and returns
// the verses that have an alternate reference.
func (r *Resolver) ResolveChapter(ctx context.Context, bookID string, chapter int, verses []int) map[int]string {
	out := make(map[int]string)
	if _, ok := CanonicalCode(bookID); !ok || len(verses) == 0 {
		return out
	}
	results := workerpool.Map(r.workers, verses, func(v int) lookup {
		ref, ok := r.Resolve(ctx, bookID, chapter, v)
		return lookup{verse: v, ref: ref, ok: ok}
	})
	for _, res := range results {
		if res.ok {
			out[res.verse] = res.ref
		}
	}
	return out
}

// Warm starts the load if nothing has yet and waits for it. It returns the
// load error, if any, which Resolve never reports.
func (r *Resolver) Warm(ctx context.Context) error {
	if _, ok := r.dataset(ctx); !ok {
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.loadErr
}

// Stats returns a snapshot of the resolver state.
func (r *Resolver) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	s := Stats{
		State:   r.state.String(),
		Source:  r.source.Name(),
		Fetches: r.fetches,
		Books:   len(r.data),
	}
	if r.loadErr != nil {
		s.Error = r.loadErr.Error()
	}
	return s
}

// dataset returns the loaded dataset, starting the load on first call.
func (r *Resolver) dataset(ctx context.Context) (Dataset, bool) {
	r.mu.Lock()
	switch r.state {
	case Loaded:
		d := r.data
		r.mu.Unlock()
		return d, true
	case Unloaded:
		r.state = Loading
		r.done = make(chan struct{})
		r.fetches++
		go r.load(context.WithoutCancel(ctx))
	}
	done := r.done
	r.mu.Unlock()

	select {
	case <-done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.data, true
	case <-ctx.Done():
		return nil, false
	}
}

// load fetches the dataset once. Whatever happens, including a panicking
// source, the resolver ends up Loaded and waiting callers are released.
func (r *Resolver) load(ctx context.Context) {
	start := time.Now()
	var (
		d   Dataset
		err error
	)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("versification source %s panicked: %v", r.source.Name(), p)
		}
		if err != nil || d == nil {
			d = Dataset{}
		}
		logging.VersificationLoaded(r.source.Name(), len(d), time.Since(start), err)

		r.mu.Lock()
		r.data = d
		r.loadErr = err
		r.state = Loaded
		close(r.done)
		r.mu.Unlock()
	}()

	d, err = r.source.Load(ctx)
}
