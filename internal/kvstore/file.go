package kvstore

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	rerrors "github.com/FocuswithJustin/JuniperReader/core/errors"
	"github.com/FocuswithJustin/JuniperReader/internal/logging"
)

// FileOptions configures a FileStore.
type FileOptions struct {
	// MaxBytes caps the total size of stored keys and values; 0 means no cap.
	MaxBytes int
	// Watch reports writes made to the file by other processes as changes.
	Watch bool
}

// FileStore keeps preferences in a JSON object on disk. Several processes may
// share one file; with Watch enabled each of them sees the others' writes.
type FileStore struct {
	path     string
	maxBytes int

	mu       sync.Mutex
	data     map[string]string
	notifier notifier

	watcher *fsnotify.Watcher
	stop    chan struct{}
	wg      sync.WaitGroup
}

// OpenFileStore loads path (a missing file is an empty store) and optionally
// starts watching it.
func OpenFileStore(path string, opts FileOptions) (*FileStore, error) {
	if path == "" {
		return nil, rerrors.NewValidation("path", path, "file store requires a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, rerrors.NewStorage(BackendFile, "", rerrors.NewIO("create directory", filepath.Dir(path), err))
	}

	s := &FileStore{
		path:     path,
		maxBytes: opts.MaxBytes,
		stop:     make(chan struct{}),
	}
	data, err := s.read()
	if err != nil {
		return nil, err
	}
	s.data = data

	if opts.Watch {
		if err := s.watch(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// read loads the file. A missing file is empty; an unparseable one is treated
// as empty too, since malformed stored data counts as absent.
func (s *FileStore) read() (map[string]string, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, rerrors.NewStorage(BackendFile, "", rerrors.NewIO("read", s.path, err))
	}
	data := map[string]string{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		logging.Warn("ignoring malformed preference file", "path", s.path, "error", err)
		return map[string]string{}, nil
	}
	return data, nil
}

// write replaces the file atomically. MUST be called with s.mu held.
func (s *FileStore) write(data map[string]string) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *FileStore) Set(origin, key, value string) error {
	external, changed, err := s.set(key, value)

	// Writes merged in from other processes are in memory now, so later
	// reloads see no difference: announce them whether or not ours landed.
	for _, c := range external {
		if err != nil || c.Key != key {
			s.notifier.notify(c)
		}
	}
	if err != nil {
		return err
	}
	if changed {
		s.notifier.notify(Change{Key: key, Value: value, Origin: origin})
	}
	return nil
}

// set merges the file into memory, then writes key. It returns the keys other
// processes changed since the last read and whether key's value changed.
func (s *FileStore) set(key, value string) ([]Change, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var external []Change
	if current, err := s.read(); err == nil {
		external = diff(s.data, current)
		s.data = current
	}
	old, existed := s.data[key]

	next := make(map[string]string, len(s.data)+1)
	for k, v := range s.data {
		next[k] = v
	}
	next[key] = value
	if s.maxBytes > 0 && size(next) > s.maxBytes {
		return external, false, rerrors.NewStorage(BackendFile, key, rerrors.ErrQuotaExceeded)
	}
	if err := s.write(next); err != nil {
		return external, false, rerrors.NewStorage(BackendFile, key, rerrors.NewIO("write", s.path, err))
	}
	s.data = next
	return external, !existed || old != value, nil
}

func (s *FileStore) All() (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out, nil
}

func (s *FileStore) Subscribe(origin string, fn func(Change)) func() {
	return s.notifier.subscribe(origin, fn)
}

func (s *FileStore) Backend() string { return BackendFile }

// Path returns the backing file.
func (s *FileStore) Path() string { return s.path }

func (s *FileStore) Close() error {
	select {
	case <-s.stop:
		return nil
	default:
		close(s.stop)
	}
	var err error
	if s.watcher != nil {
		err = s.watcher.Close()
	}
	s.wg.Wait()
	s.notifier.closeAll()
	return err
}

// watch observes the parent directory, since atomic replacement swaps the
// file's inode and a watch on the file itself would be lost.
func (s *FileStore) watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return rerrors.NewStorage(BackendFile, "", err)
	}
	if err := w.Add(filepath.Dir(s.path)); err != nil {
		w.Close()
		return rerrors.NewStorage(BackendFile, "", rerrors.NewIO("watch", filepath.Dir(s.path), err))
	}
	s.watcher = w

	s.wg.Add(1)
	go s.processEvents()
	return nil
}

func (s *FileStore) processEvents() {
	defer s.wg.Done()
	target := filepath.Clean(s.path)
	for {
		select {
		case <-s.stop:
			return
		case event, ok := <-s.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			s.reload()
		case err, ok := <-s.watcher.Errors:
			if !ok {
				return
			}
			logging.Warn("preference file watcher error", "path", s.path, "error", err)
		}
	}
}

// reload diffs the file against memory and announces keys that changed
// underneath us. Our own writes are already in memory and produce no diff.
func (s *FileStore) reload() {
	s.mu.Lock()
	current, err := s.read()
	if err != nil {
		s.mu.Unlock()
		logging.Warn("preference file reload failed", "path", s.path, "error", err)
		return
	}
	changes := diff(s.data, current)
	s.data = current
	s.mu.Unlock()

	for _, c := range changes {
		s.notifier.notify(c)
	}
}

// diff lists keys whose value in next is new or differs from prev.
func diff(prev, next map[string]string) []Change {
	var changes []Change
	for k, v := range next {
		if old, ok := prev[k]; !ok || old != v {
			changes = append(changes, Change{Key: k, Value: v})
		}
	}
	return changes
}
