package skills

import (
	"encoding/hex"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/fsnotify/fsnotify"
	"lukechampine.com/blake3"
)

// Registry discovers skills from a list of directories. Reload swaps
// the whole skill set; readers always see a consistent snapshot.
type Registry struct {
	dirs []string

	mu     sync.RWMutex
	skills []*Skill

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// NewRegistry creates a registry over dirs and performs the initial
// load. Skills that fail to parse are dropped and logged.
func NewRegistry(dirs []string) (*Registry, error) {
	r := &Registry{dirs: dirs}
	r.Reload()
	return r, nil
}

// Reload rescans every configured directory and swaps the skill set.
func (r *Registry) Reload() {
	var loaded []*Skill
	seen := make(map[string]bool)

	for _, root := range r.dirs {
		entries, err := os.ReadDir(root)
		if err != nil {
			slog.Debug("skill dir unreadable", "dir", root, "error", err)
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			dir := filepath.Join(root, entry.Name())
			if _, err := os.Stat(filepath.Join(dir, "SKILL.md")); err != nil {
				continue
			}
			skill, err := ParseSkillDir(dir)
			if err != nil {
				slog.Warn("skipping unparsable skill", "dir", dir, "error", err)
				continue
			}
			if seen[skill.Name] {
				slog.Warn("duplicate skill name, keeping first", "name", skill.Name)
				continue
			}
			seen[skill.Name] = true
			loaded = append(loaded, skill)
		}
	}

	sort.Slice(loaded, func(i, j int) bool { return loaded[i].Name < loaded[j].Name })

	r.mu.Lock()
	r.skills = loaded
	r.mu.Unlock()
}

// All returns the current skill snapshot.
func (r *Registry) All() []*Skill {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Skill, len(r.skills))
	copy(out, r.skills)
	return out
}

// Get returns the named skill.
func (r *Registry) Get(name string) (*Skill, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.skills {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Fingerprint hashes the (name, content-hash) pairs of the current
// skill set. The matcher resyncs whenever this changes.
func (r *Registry) Fingerprint() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	hasher := blake3.New(32, nil)
	for _, s := range r.skills {
		hasher.Write([]byte(s.Name))
		hasher.Write([]byte{0})
		hasher.Write([]byte(s.Hash))
		hasher.Write([]byte{0})
	}
	return hex.EncodeToString(hasher.Sum(nil))
}

// Watch starts a filesystem watcher that reloads the registry on any
// change under the configured directories. onReload, when non-nil,
// runs after each reload (the matcher hooks its resync here).
func (r *Registry) Watch(onReload func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	for _, dir := range r.dirs {
		if err := watcher.Add(dir); err != nil {
			slog.Debug("cannot watch skill dir", "dir", dir, "error", err)
		}
	}

	r.watcher = watcher
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case <-r.done:
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				r.Reload()
				if onReload != nil {
					onReload()
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("skill watcher error", "error", err)
			}
		}
	}()
	return nil
}

// Close stops the watcher.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
