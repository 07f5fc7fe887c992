// Package artifacts manages the files produced by download jobs: naming,
// temporary publication and delayed deletion.
package artifacts

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/suzxlabs/ytserver/pkg/logging"
)

// DefaultPrefix is the URL path artifacts are published under
const DefaultPrefix = "/downloads"

// ErrOutputMissing is returned by Finalize when the worker left no usable file
var ErrOutputMissing = errors.New("worker output not found")

// Reclaim results reported to the observer
const (
	ReclaimDeleted = "deleted"
	ReclaimMissing = "missing"
	ReclaimError   = "error"
)

// Artifact is one staged output file
type Artifact struct {
	Name string // "<sanitized title>-<8 hex>.<ext>"
	Base string // Name without the extension
	Ext  string
	Path string // absolute path under the managed directory
}

// Observer receives reclaim outcomes. Implemented by the metrics package.
type Observer interface {
	ArtifactReclaimed(result string)
}

// Store owns the managed download directory
type Store struct {
	dir      string
	prefix   string
	logger   *logging.Logger
	observer Observer
	suffix   func() string

	mu       sync.Mutex
	reserved map[string]struct{}
	timers   map[string]*time.Timer
}

// NewStore creates the managed directory if needed
func NewStore(dir string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.Discard()
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve download dir %s: %w", dir, err)
	}
	if err := os.MkdirAll(abs, 0755); err != nil {
		return nil, fmt.Errorf("failed to create download dir %s: %w", abs, err)
	}

	return &Store{
		dir:      abs,
		prefix:   DefaultPrefix,
		logger:   logger.WithField("component", "artifacts"),
		suffix:   randomSuffix,
		reserved: make(map[string]struct{}),
		timers:   make(map[string]*time.Timer),
	}, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// Dir returns the absolute managed directory
func (s *Store) Dir() string { return s.dir }

// Prefix returns the URL path prefix used by Publish and Handler
func (s *Store) Prefix() string { return s.prefix }

// SetObserver attaches a reclaim observer
func (s *Store) SetObserver(o Observer) { s.observer = o }

// Stage reserves a unique artifact name for title. Nothing is written to disk.
func (s *Store) Stage(title, ext string) (Artifact, error) {
	stem := SanitizeFilename(title)
	if stem == "" {
		stem = "download"
	}

	for attempt := 0; attempt < 10; attempt++ {
		base := stem + "-" + s.suffix()
		if !s.reserve(base) {
			continue
		}
		// The directory scan runs outside s.mu; the reservation already
		// keeps concurrent stagers off this base.
		if len(s.siblings(base)) > 0 {
			s.unreserve(base)
			continue
		}
		name := base + "." + ext
		return Artifact{Name: name, Base: base, Ext: ext, Path: filepath.Join(s.dir, name)}, nil
	}
	return Artifact{}, fmt.Errorf("failed to stage artifact for %q: no free name", stem)
}

func (s *Store) reserve(base string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, taken := s.reserved[base]; taken {
		return false
	}
	s.reserved[base] = struct{}{}
	return true
}

func (s *Store) unreserve(base string) {
	s.unreserve(base)
}

// inUse reports whether name belongs to a staged or published artifact of
// this process. Such files are reclaimed by their own timer, never by age.
func (s *Store) inUse(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.timers[filepath.Join(s.dir, name)]; ok {
		return true
	}
	for base := range s.reserved {
		if strings.HasPrefix(name, base+".") {
			return true
		}
	}
	return false
}

// OutputTemplate is the yt-dlp -o value that writes to the artifact's base name.
// Literal percent signs are doubled so yt-dlp does not expand them.
func (s *Store) OutputTemplate(a Artifact) string {
	return strings.ReplaceAll(filepath.Join(s.dir, a.Base), "%", "%%") + ".%(ext)s"
}

// siblings lists files in the managed dir named "<base>.<anything>"
func (s *Store) siblings(base string) []string {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), base+".") {
			out = append(out, e.Name())
		}
	}
	return out
}

// isIntermediate reports yt-dlp's partial, per-format and temp files
func isIntermediate(rest string) bool {
	if strings.Contains(rest, ".") {
		return true
	}
	switch rest {
	case "part", "ytdl", "temp", "tmp":
		return true
	}
	return false
}

// Finalize makes sure the worker's output is at a.Path, renaming a single
// "<base>.<other ext>" file if the tool chose a different container.
func (s *Store) Finalize(a Artifact) error {
	if info, err := os.Stat(a.Path); err == nil && !info.IsDir() {
		return nil
	}

	var candidates []string
	for _, name := range s.siblings(a.Base) {
		if !isIntermediate(strings.TrimPrefix(name, a.Base+".")) {
			candidates = append(candidates, name)
		}
	}

	switch len(candidates) {
	case 0:
		return fmt.Errorf("%w: %s", ErrOutputMissing, a.Name)
	case 1:
		src := filepath.Join(s.dir, candidates[0])
		if err := os.Rename(src, a.Path); err != nil {
			return fmt.Errorf("failed to move %s to %s: %w", candidates[0], a.Name, err)
		}
		s.logger.Debug("Relocated worker output", logging.Fields{"from": candidates[0], "to": a.Name})
		return nil
	default:
		return fmt.Errorf("%w: ambiguous outputs %v", ErrOutputMissing, candidates)
	}
}

// Publish returns the retrieval path for a
func (s *Store) Publish(a Artifact) string {
	return s.prefix + "/" + url.PathEscape(a.Name)
}

// ScheduleReclaim deletes path after delay. Failures are logged, never raised.
func (s *Store) ScheduleReclaim(path string, delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.timers[path]; ok {
		t.Stop()
	}
	s.timers[path] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, path)
		s.mu.Unlock()
		s.reclaim(path)
	})
}

// Pending returns the number of scheduled reclaims
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

func (s *Store) reclaim(path string) {
	result := ReclaimDeleted
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			result = ReclaimMissing
		} else {
			result = ReclaimError
			s.logger.Warn("Failed to reclaim artifact", logging.Fields{"path": path, "error": err.Error()})
		}
	} else {
		s.logger.Info("Reclaimed artifact", logging.Fields{"file": filepath.Base(path)})
	}

	s.release(path)
	if s.observer != nil {
		s.observer.ArtifactReclaimed(result)
	}
}

func (s *Store) release(path string) {
	name := filepath.Base(path)
	s.unreserve(strings.TrimSuffix(name, filepath.Ext(name)))
}

// Discard removes everything a failed run may have left behind
func (s *Store) Discard(a Artifact) {
	for _, name := range s.siblings(a.Base) {
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to remove partial output", logging.Fields{"file": name, "error": err.Error()})
		}
	}
	s.unreserve(a.Base)
}

// Close cancels pending reclaim timers. Files left behind are picked up by
// the sweeper on the next start.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, t := range s.timers {
		t.Stop()
		delete(s.timers, path)
	}
}

// Handler serves artifacts read-only under Prefix. Directories are not listed.
func (s *Store) Handler() http.Handler {
	files := http.FileServer(fileOnlyFS{http.Dir(s.dir)})
	return http.StripPrefix(s.prefix, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		files.ServeHTTP(w, r)
	}))
}

// fileOnlyFS hides directories so the file server answers 404 for them
type fileOnlyFS struct {
	fs http.FileSystem
}

func (f fileOnlyFS) Open(name string) (http.File, error) {
	file, err := f.fs.Open(name)
	if err != nil {
		return nil, err
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if info.IsDir() {
		file.Close()
		return nil, os.ErrNotExist
	}
	return file, nil
}
