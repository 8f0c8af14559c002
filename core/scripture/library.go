package scripture

import (
	"bytes"
	"encoding/hex"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ulikunitz/xz"
	"github.com/zeebo/blake3"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/cache"
)

const (
	jsonExt = ".json"
	xzExt   = ".json.xz"
)

var bookIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)

// ValidBookID reports whether id is a well-formed book identifier such as
// "psalms" or "1-kings".
func ValidBookID(id string) bool {
	return bookIDPattern.MatchString(id)
}

// Loaded is a decoded book together with the BLAKE3 digest of its
// uncompressed document.
type Loaded struct {
	Book   *Book
	Digest string
}

// Library serves books from a directory holding <id>.json or <id>.json.xz
// files. Decoded books are cached for the configured TTL.
type Library struct {
	dir   string
	books *cache.TTLCache[string, *Loaded]
}

// NewLibrary creates a library over dir. A ttl of zero keeps books cached
// for the life of the process.
func NewLibrary(dir string, ttl time.Duration) *Library {
	return &Library{
		dir:   dir,
		books: cache.New[string, *Loaded](ttl),
	}
}

// Dir returns the library directory.
func (l *Library) Dir() string { return l.dir }

// Load returns the book with the given id.
func (l *Library) Load(id string) (*Loaded, error) {
	if !ValidBookID(id) {
		return nil, rerrors.NewValidation("book", id, "invalid book identifier")
	}
	return l.books.Remember(id, func() (*Loaded, error) {
		return l.read(id)
	})
}

// Book is Load without the digest.
func (l *Library) Book(id string) (*Book, error) {
	loaded, err := l.Load(id)
	if err != nil {
		return nil, err
	}
	return loaded.Book, nil
}

// Chapter returns one chapter of a book.
func (l *Library) Chapter(id string, number int) (*Chapter, error) {
	b, err := l.Book(id)
	if err != nil {
		return nil, err
	}
	ch, ok := b.Chapter(number)
	if !ok {
		return nil, rerrors.NewNotFound("chapter", id+" "+strconv.Itoa(number))
	}
	return ch, nil
}

// Books lists the identifiers of every book in the directory.
func (l *Library) Books() ([]string, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, rerrors.NewIO("read", l.dir, err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		var id string
		switch {
		case strings.HasSuffix(name, xzExt):
			id = strings.TrimSuffix(name, xzExt)
		case strings.HasSuffix(name, jsonExt):
			id = strings.TrimSuffix(name, jsonExt)
		default:
			continue
		}
		if ValidBookID(id) && !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// Invalidate drops every cached book.
func (l *Library) Invalidate() {
	l.books.Invalidate()
}

func (l *Library) read(id string) (*Loaded, error) {
	for _, ext := range []string{jsonExt, xzExt} {
		path := filepath.Join(l.dir, id+ext)
		data, err := ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		b, err := Decode(data, path)
		if err != nil {
			return nil, err
		}
		b.ID = id
		sum := blake3.Sum256(data)
		return &Loaded{Book: b, Digest: hex.EncodeToString(sum[:])}, nil
	}
	return nil, rerrors.NewNotFound("book", id)
}

// ReadFile reads a data file, decompressing it when the name ends in ".xz".
func ReadFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, rerrors.NewIO("read", path, err)
	}
	if !strings.HasSuffix(path, ".xz") {
		return raw, nil
	}
	r, err := xz.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, rerrors.NewParse("xz", path, "invalid xz stream", err)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, rerrors.NewParse("xz", path, "truncated xz stream", err)
	}
	return data, nil
}
