package kvstore

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
)

func waitChange(t *testing.T, ch <-chan Change) Change {
	t.Helper()
	select {
	case c := <-ch:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
		return Change{}
	}
}

func expectNoChange(t *testing.T, ch <-chan Change) {
	t.Helper()
	select {
	case c := <-ch:
		t.Fatalf("unexpected change %+v", c)
	case <-time.After(50 * time.Millisecond):
	}
}

func collect(s Store, origin string) (<-chan Change, func()) {
	ch := make(chan Change, 16)
	cancel := s.Subscribe(origin, func(c Change) { ch <- c })
	return ch, cancel
}

func TestMemoryStoreGetSet(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	if _, ok, err := s.Get("nikud"); ok || err != nil {
		t.Fatalf("Get on empty store = ok %v, err %v", ok, err)
	}
	if err := s.Set("tab-a", "nikud", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	v, ok, err := s.Get("nikud")
	if err != nil || !ok || v != "false" {
		t.Errorf("Get = %q, %v, %v; want false, true, nil", v, ok, err)
	}

	all, _ := s.All()
	all["nikud"] = "mutated"
	if v, _, _ := s.Get("nikud"); v != "false" {
		t.Error("All must return a copy")
	}
}

func TestMemoryStoreQuota(t *testing.T) {
	s := NewMemoryStore(20)
	defer s.Close()

	if err := s.Set("t", "theme", "dark"); err != nil {
		t.Fatalf("first Set: %v", err)
	}
	err := s.Set("t", "textSource", "delitzsch")
	if !errors.Is(err, rerrors.ErrQuotaExceeded) {
		t.Fatalf("Set over quota = %v, want ErrQuotaExceeded", err)
	}
	if !rerrors.IsStorageFailure(err) {
		t.Error("quota error should be a storage failure")
	}
	// Overwriting an existing key only counts the difference.
	if err := s.Set("t", "theme", "lite"); err != nil {
		t.Errorf("overwrite within quota: %v", err)
	}
}

func TestSubscribeSkipsOrigin(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	self, cancelSelf := collect(s, "tab-a")
	defer cancelSelf()
	other, cancelOther := collect(s, "tab-b")
	defer cancelOther()

	if err := s.Set("tab-a", "cantillation", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c := waitChange(t, other)
	if c.Key != "cantillation" || c.Value != "false" || c.Origin != "tab-a" {
		t.Errorf("change = %+v", c)
	}
	expectNoChange(t, self)
}

func TestSubscribeUnchangedValueIsSilent(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()
	_ = s.Set("tab-a", "theme", "dark")

	other, cancel := collect(s, "tab-b")
	defer cancel()

	_ = s.Set("tab-a", "theme", "dark")
	expectNoChange(t, other)
}

func TestSubscribePreservesOrder(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})
	cancel := s.Subscribe("reader", func(c Change) {
		mu.Lock()
		got = append(got, c.Value)
		n := len(got)
		mu.Unlock()
		if n == 4 {
			close(done)
		}
	})
	defer cancel()

	for _, v := range []string{"light", "dark", "light", "dark"} {
		if err := s.Set("writer", "theme", v); err != nil {
			t.Fatalf("Set: %v", err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
	mu.Lock()
	defer mu.Unlock()
	want := []string{"light", "dark", "light", "dark"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order = %v, want %v", got, want)
		}
	}
}

func TestSubscribeCancel(t *testing.T) {
	s := NewMemoryStore(0)
	defer s.Close()

	ch, cancel := collect(s, "tab-b")
	cancel()
	cancel() // idempotent

	_ = s.Set("tab-a", "sefer", "true")
	expectNoChange(t, ch)
}

func TestUnavailable(t *testing.T) {
	var s Store = Unavailable{}
	if _, _, err := s.Get("nikud"); !errors.Is(err, rerrors.ErrUnavailable) {
		t.Errorf("Get err = %v, want ErrUnavailable", err)
	}
	if err := s.Set("t", "nikud", "true"); !errors.Is(err, rerrors.ErrUnavailable) {
		t.Errorf("Set err = %v, want ErrUnavailable", err)
	}
	if _, err := s.All(); err == nil {
		t.Error("All should fail")
	}
	s.Subscribe("t", func(Change) {})()
}

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		opts    Options
		backend string
		wantErr bool
	}{
		{Options{}, BackendMemory, false},
		{Options{Backend: BackendFile, Path: filepath.Join(dir, "prefs.json")}, BackendFile, false},
		{Options{Backend: BackendSQLite, Path: filepath.Join(dir, "prefs.db")}, BackendSQLite, false},
		{Options{Backend: BackendNone}, BackendNone, false},
		{Options{Backend: "redis"}, "", true},
		{Options{Backend: BackendFile}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.opts.Backend, func(t *testing.T) {
			s, err := Open(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.Is(err, rerrors.ErrInvalidInput) {
					t.Errorf("err = %v, want ErrInvalidInput", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()
			if s.Backend() != tt.backend {
				t.Errorf("Backend = %q, want %q", s.Backend(), tt.backend)
			}
		})
	}
}

func TestFileStorePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "prefs.json")

	s, err := OpenFileStore(path, FileOptions{})
	if err != nil {
		t.Fatalf("OpenFileStore: %v", err)
	}
	if err := s.Set("tab", "textSource", "delitzsch"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	s.Close()

	reopened, err := OpenFileStore(path, FileOptions{})
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if v, ok, _ := reopened.Get("textSource"); !ok || v != "delitzsch" {
		t.Errorf("Get after reopen = %q, %v", v, ok)
	}
}

func TestFileStoreMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := OpenFileStore(path, FileOptions{})
	if err != nil {
		t.Fatalf("malformed file should open empty, got %v", err)
	}
	defer s.Close()
	all, _ := s.All()
	if len(all) != 0 {
		t.Errorf("All = %v, want empty", all)
	}
	if err := s.Set("t", "theme", "dark"); err != nil {
		t.Fatalf("Set over malformed file: %v", err)
	}
}

func TestFileStoreQuota(t *testing.T) {
	s, err := OpenFileStore(filepath.Join(t.TempDir(), "prefs.json"), FileOptions{MaxBytes: 10})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	if err := s.Set("t", "cantillation", "false"); !errors.Is(err, rerrors.ErrQuotaExceeded) {
		t.Errorf("Set = %v, want ErrQuotaExceeded", err)
	}
	if _, ok, _ := s.Get("cantillation"); ok {
		t.Error("rejected write must not be visible")
	}
}

func TestFileStoreFailedSetAnnouncesMergedWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	other, err := OpenFileStore(path, FileOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer other.Close()
	s, err := OpenFileStore(path, FileOptions{MaxBytes: 12})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	ch, cancel := collect(s, "tab-a")
	defer cancel()

	if err := other.Set("tab-b", "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("tab-a", "cantillation", "false"); !errors.Is(err, rerrors.ErrQuotaExceeded) {
		t.Fatalf("Set = %v, want ErrQuotaExceeded", err)
	}

	c := waitChange(t, ch)
	if c.Key != "theme" || c.Value != "dark" || c.Origin != "" {
		t.Errorf("change = %+v, want external theme=dark", c)
	}
	expectNoChange(t, ch)
}

func TestSQLiteStoreConcurrentSetAnnouncesOnce(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	ch, cancel := collect(s, "observer")
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.Set("tab-a", "theme", "dark"); err != nil {
				t.Errorf("Set: %v", err)
			}
		}()
	}
	wg.Wait()

	if c := waitChange(t, ch); c.Key != "theme" || c.Value != "dark" {
		t.Errorf("change = %+v", c)
	}
	expectNoChange(t, ch)
}

func TestFileStoreWatchAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")

	writer, err := OpenFileStore(path, FileOptions{})
	if err != nil {
		t.Fatal(err)
	}
	defer writer.Close()
	reader, err := OpenFileStore(path, FileOptions{Watch: true})
	if err != nil {
		t.Fatal(err)
	}
	defer reader.Close()

	ch, cancel := collect(reader, "reader-tab")
	defer cancel()

	if err := writer.Set("writer-tab", "nikud", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	c := waitChange(t, ch)
	if c.Key != "nikud" || c.Value != "false" || c.Origin != "" {
		t.Errorf("change = %+v, want external nikud=false", c)
	}
	if v, _, _ := reader.Get("nikud"); v != "false" {
		t.Errorf("reader Get = %q, want false", v)
	}
}

func TestFileStoreOwnWritesNotEchoed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prefs.json")
	s, err := OpenFileStore(path, FileOptions{Watch: true})
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	self, cancel := collect(s, "tab-a")
	defer cancel()

	if err := s.Set("tab-a", "theme", "dark"); err != nil {
		t.Fatal(err)
	}
	expectNoChange(t, self)
}

func TestSQLiteStore(t *testing.T) {
	s, err := OpenSQLiteStore(filepath.Join(t.TempDir(), "prefs.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore: %v", err)
	}
	defer s.Close()

	other, cancel := collect(s, "tab-b")
	defer cancel()

	if err := s.Set("tab-a", "sefer", "true"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := s.Set("tab-a", "sefer", "false"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v, ok, err := s.Get("sefer"); err != nil || !ok || v != "false" {
		t.Errorf("Get = %q, %v, %v", v, ok, err)
	}

	first := waitChange(t, other)
	second := waitChange(t, other)
	if first.Value != "true" || second.Value != "false" {
		t.Errorf("changes = %+v, %+v", first, second)
	}

	all, err := s.All()
	if err != nil || len(all) != 1 || all["sefer"] != "false" {
		t.Errorf("All = %v, %v", all, err)
	}
}
