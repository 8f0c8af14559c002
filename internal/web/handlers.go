package web

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/zeebo/blake3"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/core/prefs"
	"github.com/FocuswithJustin/JuniperReader/core/reference"
	"github.com/FocuswithJustin/JuniperReader/core/render"
	"github.com/FocuswithJustin/JuniperReader/core/scripture"
	"github.com/FocuswithJustin/JuniperReader/core/versification"
	"github.com/FocuswithJustin/JuniperReader/internal/cache"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

const (
	maxPrefBodyBytes = 1 << 10
	comingSoonText   = "This book is coming soon."
)

// ChapterResponse is a rendered chapter with the book's metadata and the
// preferences it was rendered with.
type ChapterResponse struct {
	Book            string            `json:"book"`
	BookName        string            `json:"book_name"`
	Author          string            `json:"author,omitempty"`
	PublicationYear scripture.Year    `json:"publication_year,omitempty"`
	Preferences     map[string]string `json:"preferences"`
	render.Page
}

// ComingSoon stands in for a book or chapter that is not published yet.
type ComingSoon struct {
	Book       string `json:"book"`
	Chapter    int    `json:"chapter"`
	ComingSoon bool   `json:"coming_soon"`
	Message    string `json:"message"`
}

// PreferenceValue is the body of the single-preference endpoints.
type PreferenceValue struct {
	Key       string `json:"key"`
	Value     string `json:"value"`
	Persisted *bool  `json:"persisted,omitempty"`
}

// HealthStatus is the /healthz payload.
type HealthStatus struct {
	Status        string               `json:"status"`
	Store         string               `json:"store"`
	SyncClients   int                  `json:"sync_clients"`
	PageCache     cache.Stats          `json:"page_cache"`
	Versification *versification.Stats `json:"versification,omitempty"`
}

// pageKey identifies a rendered chapter. The digest changes whenever the
// book file does.
type pageKey struct {
	book    string
	digest  string
	chapter int
	opts    render.Options
	sefer   bool
}

// requestContext builds a short-lived browsing context for r. Query
// parameters named after preference keys stand in for the document
// attributes the client already carries, so they win over stored values.
func (s *Server) requestContext(r *http.Request) *prefs.Context {
	attrs := make(map[string]string)
	q := r.URL.Query()
	for _, def := range prefs.Definitions() {
		if v := q.Get(string(def.Key)); v != "" {
			attrs[def.Attribute] = v
		}
	}
	id := logging.GetBrowsingContext(r.Context())
	return prefs.NewContextWithDocument(id, s.store, prefs.NewDocumentFrom(attrs))
}

// requestSnapshot resolves every preference for r.
func (s *Server) requestSnapshot(r *http.Request) map[prefs.Key]string {
	ctx := s.requestContext(r)
	defer ctx.Close()
	return ctx.Snapshot()
}

func stringSnapshot(snap map[prefs.Key]string) map[string]string {
	out := make(map[string]string, len(snap))
	for k, v := range snap {
		out[string(k)] = v
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:      "ok",
		Store:       s.store.Backend(),
		SyncClients: s.hub.Len(),
		PageCache:   s.pages.Stats(),
	}
	if s.resolver != nil {
		stats := s.resolver.Stats()
		status.Versification = &stats
	}
	respond(w, http.StatusOK, status)
}

func (s *Server) handleBooks(w http.ResponseWriter, r *http.Request) {
	ids, err := s.library.Books()
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	respondMeta(w, http.StatusOK, ids, len(ids))
}

func (s *Server) handleChapter(w http.ResponseWriter, r *http.Request) {
	bookID := chi.URLParam(r, "book")
	number, err := strconv.Atoi(chi.URLParam(r, "chapter"))
	if err != nil || number < 1 {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "chapter must be a positive integer")
		return
	}

	loaded, err := s.library.Load(bookID)
	if errors.Is(err, rerrors.ErrNotFound) {
		respond(w, http.StatusOK, ComingSoon{Book: bookID, Chapter: number, ComingSoon: true, Message: comingSoonText})
		return
	}
	if err != nil {
		respondErr(w, r, err)
		return
	}
	ch, ok := loaded.Book.Chapter(number)
	if !ok {
		respond(w, http.StatusOK, ComingSoon{Book: bookID, Chapter: number, ComingSoon: true, Message: comingSoonText})
		return
	}

	snap := s.requestSnapshot(r)
	key := pageKey{
		book:    bookID,
		digest:  loaded.Digest,
		chapter: number,
		opts:    render.OptionsFromSnapshot(snap),
		sefer:   snap[prefs.KeySefer] == "true",
	}
	page, ok := s.pages.Get(key)
	if !ok {
		var alternates map[int]string
		if s.resolver != nil {
			alternates = s.resolver.ResolveChapter(r.Context(), bookID, number, ch.VerseNumbers())
		}
		page = render.Chapter(ch, key.opts, key.sefer, alternates)
		// A cancelled request may have missed its alternates.
		if r.Context().Err() == nil {
			s.pages.Put(key, page)
		}
	}

	resp := ChapterResponse{
		Book:            bookID,
		BookName:        loaded.Book.BookName,
		Author:          loaded.Book.Author,
		PublicationYear: loaded.Book.PublicationYear,
		Preferences:     stringSnapshot(snap),
		Page:            page,
	}

	etag, err := contentETag(resp)
	if err == nil {
		if match := r.Header.Get("If-None-Match"); match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", etag)
	}
	respond(w, http.StatusOK, resp)
}

// contentETag hashes the response payload, so it changes with the book file,
// the preferences and the alternate numbers alike.
func contentETag(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return `"` + hex.EncodeToString(sum[:16]) + `"`, nil
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	ref, err := reference.Parse(r.URL.Query().Get("ref"))
	if err != nil {
		respondErr(w, r, err)
		return
	}
	if !ref.HasVerse() {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "reference must name a verse")
		return
	}
	result := struct {
		Reference string `json:"reference"`
		Alternate string `json:"alternate,omitempty"`
		Found     bool   `json:"found"`
	}{Reference: ref.String()}
	if s.resolver != nil {
		result.Alternate, result.Found = s.resolver.Resolve(r.Context(), ref.Book, ref.Chapter, ref.VerseNumber())
	}
	respond(w, http.StatusOK, result)
}

func (s *Server) handlePrefs(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, stringSnapshot(s.requestSnapshot(r)))
}

func (s *Server) handlePrefGet(w http.ResponseWriter, r *http.Request) {
	def, ok := prefs.LookupName(chi.URLParam(r, "key"))
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown preference")
		return
	}
	snap := s.requestSnapshot(r)
	respond(w, http.StatusOK, PreferenceValue{Key: string(def.Key), Value: snap[def.Key]})
}

func (s *Server) handlePrefSet(w http.ResponseWriter, r *http.Request) {
	def, ok := prefs.LookupName(chi.URLParam(r, "key"))
	if !ok {
		respondError(w, http.StatusNotFound, "NOT_FOUND", "unknown preference")
		return
	}

	var body PreferenceValue
	data, err := io.ReadAll(io.LimitReader(r.Body, maxPrefBodyBytes))
	if err != nil || json.Unmarshal(data, &body) != nil {
		respondError(w, http.StatusBadRequest, "INVALID_INPUT", "body must be {\"value\": \"...\"}")
		return
	}

	ctx := s.requestContext(r)
	defer ctx.Close()
	p := ctx.OpenDefinition(def)
	defer p.Close()
	if err := p.Set(body.Value); err != nil {
		respondErr(w, r, err)
		return
	}

	persisted := !ctx.Degraded()
	respond(w, http.StatusOK, PreferenceValue{Key: string(def.Key), Value: p.Get(), Persisted: &persisted})
}
