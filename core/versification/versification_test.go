package versification

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ulikunitz/xz"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

const datasetJSON = `{
  "Ps": {"simple_map": {"3": {"1": "3:2", "2": "3:3"}, "51": {"0": "51:1-2"}}},
  "Mal": {"simple_map": {"3": {"19": "4:1"}}}
}`

func testDataset(t *testing.T) Dataset {
	t.Helper()
	d, err := Decode([]byte(datasetJSON), "test")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return d
}

// countingSource counts loads and optionally blocks until released.
type countingSource struct {
	data  Dataset
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (s *countingSource) Name() string { return "counting" }

func (s *countingSource) Load(ctx context.Context) (Dataset, error) {
	s.calls.Add(1)
	if s.gate != nil {
		<-s.gate
	}
	return s.data, s.err
}

func TestCanonicalCode(t *testing.T) {
	tests := []struct {
		book string
		code string
		ok   bool
	}{
		{"psalms", "Ps", true},
		{"malachi", "Mal", true},
		{"1-kings", "1Kgs", true},
		{"matthew", "", false},
		{"ruth", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		code, ok := CanonicalCode(tt.book)
		if code != tt.code || ok != tt.ok {
			t.Errorf("CanonicalCode(%q) = %q, %v; want %q, %v", tt.book, code, ok, tt.code, tt.ok)
		}
	}
	if len(DivergentBooks()) != len(canonicalCodes) {
		t.Error("DivergentBooks should list every coded book")
	}
}

func TestDatasetLookup(t *testing.T) {
	d := testDataset(t)
	tests := []struct {
		code           string
		chapter, verse int
		want           string
		ok             bool
	}{
		{"Ps", 3, 1, "3:2", true},
		{"Ps", 51, 0, "51:1-2", true},
		{"Mal", 3, 19, "4:1", true},
		{"Ps", 3, 9, "", false},
		{"Ps", 4, 1, "", false},
		{"Gen", 1, 1, "", false},
	}
	for _, tt := range tests {
		got, ok := d.Lookup(tt.code, tt.chapter, tt.verse)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Lookup(%s %d:%d) = %q, %v", tt.code, tt.chapter, tt.verse, got, ok)
		}
	}
}

func TestDecodeInvalid(t *testing.T) {
	_, err := Decode([]byte(`{"Ps": [`), "broken.json")
	var perr *rerrors.ParseError
	if !errors.As(err, &perr) {
		t.Errorf("err = %v, want ParseError", err)
	}
	d, err := Decode([]byte(`null`), "null.json")
	if err != nil || d == nil {
		t.Errorf("null document = %v, %v; want empty dataset", d, err)
	}
}

func TestResolveWithoutCodeSkipsLoad(t *testing.T) {
	src := &countingSource{data: testDataset(t)}
	r := NewResolver(src, 0)

	if ref, ok := r.Resolve(context.Background(), "matthew", 5, 3); ok || ref != "" {
		t.Errorf("Resolve(matthew) = %q, %v", ref, ok)
	}
	if n := src.calls.Load(); n != 0 {
		t.Errorf("source loaded %d times, want 0", n)
	}
	if s := r.Stats(); s.State != "unloaded" || s.Fetches != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestResolve(t *testing.T) {
	r := NewResolver(StaticSource{Data: testDataset(t)}, 0)
	ctx := context.Background()

	if ref, ok := r.Resolve(ctx, "psalms", 3, 1); !ok || ref != "3:2" {
		t.Errorf("Resolve(psalms 3:1) = %q, %v; want 3:2", ref, ok)
	}
	if _, ok := r.Resolve(ctx, "psalms", 3, 40); ok {
		t.Error("missing verse should not resolve")
	}
	if _, ok := r.Resolve(ctx, "genesis", 31, 55); ok {
		t.Error("coded book without an entry should not resolve")
	}
	s := r.Stats()
	if s.State != "loaded" || s.Fetches != 1 || s.Books != 2 || s.Source != "static" {
		t.Errorf("Stats = %+v", s)
	}
}

func TestResolveConcurrentSingleFetch(t *testing.T) {
	src := &countingSource{data: testDataset(t), gate: make(chan struct{})}
	r := NewResolver(src, 0)

	const callers = 25
	var wg sync.WaitGroup
	refs := make([]string, callers)
	oks := make([]bool, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			refs[i], oks[i] = r.Resolve(context.Background(), "psalms", 3, 1)
		}(i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if s := r.Stats(); s.State != "loading" {
		t.Errorf("state while blocked = %q, want loading", s.State)
	}
	close(src.gate)
	wg.Wait()

	for i := range refs {
		if !oks[i] || refs[i] != "3:2" {
			t.Fatalf("caller %d got %q, %v", i, refs[i], oks[i])
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}
}

func TestResolveFailureCachesEmpty(t *testing.T) {
	src := &countingSource{err: errors.New("offline")}
	r := NewResolver(src, 0)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, ok := r.Resolve(ctx, "psalms", 3, 1); ok {
			t.Fatal("failed load should resolve nothing")
		}
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}
	if err := r.Warm(ctx); err == nil || err.Error() != "offline" {
		t.Errorf("Warm = %v, want the load error", err)
	}
	if s := r.Stats(); s.Error != "offline" || s.Books != 0 {
		t.Errorf("Stats = %+v", s)
	}
}

func TestResolvePanickingSourceDegrades(t *testing.T) {
	r := NewResolver(SourceFunc(func(context.Context) (Dataset, error) {
		panic("corrupt table")
	}), 0)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, ok := r.Resolve(ctx, "psalms", 3, 1); ok {
		t.Fatal("panicking load should resolve nothing")
	}
	if ctx.Err() != nil {
		t.Fatal("Resolve waited for a load that never finished")
	}
	s := r.Stats()
	if s.State != "loaded" || s.Books != 0 || !strings.Contains(s.Error, "corrupt table") {
		t.Errorf("Stats = %+v", s)
	}
}

func TestResolveCallerGivesUp(t *testing.T) {
	src := &countingSource{data: testDataset(t), gate: make(chan struct{})}
	r := NewResolver(src, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, ok := r.Resolve(ctx, "psalms", 3, 1); ok {
		t.Fatal("expired caller should get no result")
	}

	// The load survives the caller and serves the next one.
	close(src.gate)
	if ref, ok := r.Resolve(context.Background(), "psalms", 3, 1); !ok || ref != "3:2" {
		t.Errorf("Resolve after load = %q, %v", ref, ok)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}
}

func TestResolveChapter(t *testing.T) {
	src := &countingSource{data: testDataset(t)}
	r := NewResolver(src, 4)
	ctx := context.Background()

	got := r.ResolveChapter(ctx, "psalms", 3, []int{1, 2, 3, 4, 5, 6, 7, 8, 9})
	if len(got) != 2 || got[1] != "3:2" || got[2] != "3:3" {
		t.Errorf("ResolveChapter = %v", got)
	}
	if n := src.calls.Load(); n != 1 {
		t.Errorf("source loaded %d times, want 1", n)
	}

	if got := r.ResolveChapter(ctx, "john", 3, []int{16}); len(got) != 0 {
		t.Errorf("ResolveChapter(john) = %v, want empty", got)
	}
}

func TestFileSource(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "versification.json")
	if err := os.WriteFile(plain, []byte(datasetJSON), 0o644); err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	w, _ := xz.NewWriter(&buf)
	w.Write([]byte(datasetJSON))
	w.Close()
	packed := filepath.Join(dir, "versification.json.xz")
	if err := os.WriteFile(packed, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, path := range []string{plain, packed} {
		d, err := FileSource{Path: path}.Load(context.Background())
		if err != nil {
			t.Fatalf("Load(%s): %v", path, err)
		}
		if ref, ok := d.Lookup("Ps", 3, 1); !ok || ref != "3:2" {
			t.Errorf("%s: Lookup = %q, %v", path, ref, ok)
		}
	}

	_, err := FileSource{Path: filepath.Join(dir, "missing.json")}.Load(context.Background())
	if !errors.Is(err, rerrors.ErrNotFound) {
		t.Errorf("missing file err = %v, want ErrNotFound", err)
	}
}

func TestHTTPSource(t *testing.T) {
	var packed bytes.Buffer
	w, _ := xz.NewWriter(&packed)
	w.Write([]byte(datasetJSON))
	w.Close()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); ua != "juniper-reader/1.0" {
			t.Errorf("User-Agent = %q", ua)
		}
		switch r.URL.Path {
		case "/versification.json":
			w.Write([]byte(datasetJSON))
		case "/versification.json.xz":
			w.Write(packed.Bytes())
		case "/broken":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	for _, path := range []string{"/versification.json", "/versification.json.xz"} {
		d, err := NewHTTPSource(srv.URL + path).Load(ctx)
		if err != nil {
			t.Fatalf("Load(%s): %v", path, err)
		}
		if ref, ok := d.Lookup("Mal", 3, 19); !ok || ref != "4:1" {
			t.Errorf("%s: Lookup = %q, %v", path, ref, ok)
		}
	}

	if _, err := NewHTTPSource(srv.URL + "/nope").Load(ctx); !errors.Is(err, rerrors.ErrNotFound) {
		t.Errorf("404 err = %v, want ErrNotFound", err)
	}
	var herr *HTTPError
	if _, err := NewHTTPSource(srv.URL + "/broken").Load(ctx); !errors.As(err, &herr) || herr.StatusCode != 500 {
		t.Errorf("500 err = %v, want HTTPError", err)
	}
	if _, err := NewHTTPSource("ftp://example.com/v.json").Load(ctx); !errors.Is(err, rerrors.ErrInvalidInput) {
		t.Errorf("ftp err = %v, want ErrInvalidInput", err)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{Unloaded: "unloaded", Loading: "loading", Loaded: "loaded", State(9): "unknown"} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %q, want %q", s, s.String(), want)
		}
	}
}
