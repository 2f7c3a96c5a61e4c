package rules

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store owns the persisted rule list and the in-memory snapshot used for matching.
//
// Writes are serialized by mu and replace the file via rename; readers take the
// current snapshot without locking. Every successful Save installs a new slice, so a
// snapshot handed out earlier is never modified.
type Store struct {
	path string

	mu      sync.Mutex
	current atomic.Pointer[RuleSet]

	notifier *Notifier

	watchMu sync.Mutex
	watcher *fsnotify.Watcher
}

// NewStore creates a store backed by the JSON file at path. Nothing is read until
// Load or Snapshot is called.
func NewStore(path string) *Store {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return &Store{
		path:     path,
		notifier: NewNotifier(),
	}
}

// Path returns the absolute rules file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the rules file and installs it as the current snapshot.
//
// A missing file or an unparsable one falls back to Defaults, which are then written
// as the new baseline (best effort). A file that exists but cannot be read also
// falls back to Defaults but is left untouched.
func (s *Store) Load() RuleSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs := s.loadLocked()
	s.install(rs)
	return rs.Clone()
}

func (s *Store) loadLocked() RuleSet {
	rs, err := s.read()
	if err == nil {
		slog.Debug("Loaded rules", "path", s.path, "count", len(rs))
		return rs
	}

	defaults := Defaults()
	switch {
	case errors.Is(err, os.ErrNotExist):
		// 首次运行：把默认规则落盘，作为后续编辑的基线。
		slog.Info("Rules file not found, writing defaults", "path", s.path, "count", len(defaults))
		if werr := s.writeLocked(defaults); werr != nil {
			slog.Warn("Failed to persist default rules", "path", s.path, "error", werr)
		}
	case errors.Is(err, ErrParse):
		// 先把损坏的文件挪开再写默认值，避免用户手工编辑的内容被直接覆盖。
		backup := s.path + ".corrupt"
		slog.Warn("Rules file is invalid, falling back to defaults", "path", s.path, "backup", backup, "error", err)
		if rerr := os.Rename(s.path, backup); rerr != nil {
			slog.Warn("Failed to move invalid rules file aside; defaults not persisted", "path", s.path, "error", rerr)
			break
		}
		if werr := s.writeLocked(defaults); werr != nil {
			slog.Warn("Failed to persist default rules", "path", s.path, "error", werr)
		}
	default:
		slog.Error("Failed to read rules file, using defaults", "path", s.path, "error", err)
	}
	return defaults
}

// read returns the decoded file content or a *PersistError.
func (s *Store) read() (RuleSet, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &PersistError{Op: "read", Path: s.path, Err: err}
	}
	rs, err := Decode(data)
	if err != nil {
		return nil, &PersistError{Op: "parse", Path: s.path, Err: err}
	}
	return rs, nil
}

// Save atomically replaces the rules file, installs rs as the current snapshot and
// signals subscribers. Anything Load can return is accepted, so an unmodified
// snapshot always saves back.
func (s *Store) Save(rs RuleSet) error {
	s.mu.Lock()
	err := s.writeLocked(rs)
	if err == nil {
		s.install(rs)
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	slog.Info("Rules saved", "path", s.path, "count", len(rs))
	s.notifier.Notify()
	return nil
}

// Reset replaces the stored rules with Defaults.
func (s *Store) Reset() error {
	return s.Save(Defaults())
}

// writeLocked writes rs to a temp file next to the target and renames it into place.
func (s *Store) writeLocked(rs RuleSet) (err error) {
	fail := func(e error) error {
		return &PersistError{Op: "write", Path: s.path, Err: e}
	}

	data, err := Encode(rs)
	if err != nil {
		return fail(err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fail(err)
	}

	tmp, err := os.CreateTemp(dir, ".rules-*.tmp")
	if err != nil {
		return fail(err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fail(err)
	}
	if err := tmp.Close(); err != nil {
		return fail(err)
	}
	if runtime.GOOS != "windows" {
		_ = os.Chmod(tmpPath, 0o600)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fail(err)
	}
	return nil
}

func (s *Store) install(rs RuleSet) {
	snap := rs.Clone()
	s.current.Store(&snap)
}

// Snapshot returns the current rule list, loading it on first use.
// The returned slice is shared and must be treated as read-only.
func (s *Store) Snapshot() RuleSet {
	if p := s.current.Load(); p != nil {
		return *p
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if p := s.current.Load(); p != nil {
		return *p
	}
	rs := s.loadLocked()
	s.install(rs)
	return *s.current.Load()
}

// Subscribe registers a listener for the "rules changed" signal.
func (s *Store) Subscribe(buf int) (<-chan struct{}, func()) {
	return s.notifier.Subscribe(buf)
}

// Watch reloads the snapshot when the rules file is edited outside this process.
// Subscribers are signalled only when the reloaded content differs from the
// snapshot, so the store's own renames do not produce duplicate signals.
func (s *Store) Watch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		return nil // Already watching
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		_ = watcher.Close()
		return err
	}
	s.watcher = watcher

	target := filepath.Clean(s.path)
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				s.reloadFromDisk()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Error("Rules watcher error", "error", err)
			}
		}
	}()

	return nil
}

func (s *Store) reloadFromDisk() {
	s.mu.Lock()
	rs, err := s.read()
	if err != nil {
		s.mu.Unlock()
		// 编辑器保存过程中文件可能短暂缺失或内容不完整：保留当前快照，等待下一次事件。
		if !errors.Is(err, os.ErrNotExist) {
			slog.Warn("Ignoring unreadable rules file change", "path", s.path, "error", err)
		}
		return
	}
	if cur := s.current.Load(); cur != nil && cur.Equal(rs) {
		s.mu.Unlock()
		return
	}
	s.install(rs)
	s.mu.Unlock()

	slog.Info("Rules file changed, reloaded", "path", s.path, "count", len(rs))
	s.notifier.Notify()
}

// Close stops the file watcher.
func (s *Store) Close() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()

	if s.watcher != nil {
		err := s.watcher.Close()
		s.watcher = nil
		return err
	}
	return nil
}
