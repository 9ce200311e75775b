// Package settings implements the auto-saving JSON settings document that
// backs the hub's shared, node-addressable configuration tree.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Store is a concurrency-safe JSON document that persists itself to disk
// after every mutation. One mutex guards the whole tree, mirroring the
// teacher's one-mutex-per-shared-map convention rather than locking at a
// finer grain the spec never asks for.
type Store struct {
	mu   sync.Mutex
	path string
	tree map[string]any
}

// Open loads path into memory, creating an empty document if the file does
// not exist. A non-empty file that fails to parse is a fatal condition at
// startup per the spec; Open returns that error for the caller to surface.
func Open(path string) (*Store, error) {
	s := &Store{path: path, tree: map[string]any{}}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("settings: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.tree); err != nil {
		return nil, fmt.Errorf("settings: parse %s: %w", path, err)
	}
	return s, nil
}

// splitPath splits a dotted path ("node.flags.debug") into its segments.
// Store methods take only this dotted string form; there is no
// pre-segmented ([]string) form.
func splitPath(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, ".")
}

// Get returns the value at path and whether it was present. Dotted path
// segments that traverse through a non-map value report not-found rather
// than panicking.
func (s *Store) Get(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return get(s.tree, splitPath(path))
}

func get(node map[string]any, segs []string) (any, bool) {
	if len(segs) == 0 {
		return node, true
	}
	v, ok := node[segs[0]]
	if !ok {
		return nil, false
	}
	if len(segs) == 1 {
		return v, true
	}
	child, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return get(child, segs[1:])
}

// Set writes value at path, creating intermediate maps as needed, then
// persists the document before returning.
func (s *Store) Set(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("settings: empty path")
	}
	setPath(s.tree, segs, value)
	return s.saveLocked()
}

func setPath(node map[string]any, segs []string, value any) {
	if len(segs) == 1 {
		node[segs[0]] = value
		return
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		node[segs[0]] = child
	}
	setPath(child, segs[1:], value)
}

// Unset removes the value at path, persisting afterward. Unsetting a path
// that does not exist is a no-op, not an error.
func (s *Store) Unset(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := splitPath(path)
	if len(segs) == 0 {
		return fmt.Errorf("settings: empty path")
	}
	unsetPath(s.tree, segs)
	return s.saveLocked()
}

func unsetPath(node map[string]any, segs []string) {
	if len(segs) == 1 {
		delete(node, segs[0])
		return
	}
	child, ok := node[segs[0]].(map[string]any)
	if !ok {
		return
	}
	unsetPath(child, segs[1:])
}

// Append pushes value onto the slice at path, creating it as a new slice if
// absent. Appending to a non-slice value is an error.
func (s *Store) Append(path string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := splitPath(path)
	cur, ok := get(s.tree, segs)
	var list []any
	if ok {
		existing, isList := cur.([]any)
		if !isList {
			return fmt.Errorf("settings: %s is not a list", path)
		}
		list = existing
	}
	list = append(list, value)
	setPath(s.tree, segs, list)
	return s.saveLocked()
}

// Pop removes and returns the last element of the slice at path. It
// reports false if the path is absent, not a slice, or empty.
func (s *Store) Pop(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segs := splitPath(path)
	cur, ok := get(s.tree, segs)
	if !ok {
		return nil, false
	}
	list, isList := cur.([]any)
	if !isList || len(list) == 0 {
		return nil, false
	}
	last := list[len(list)-1]
	setPath(s.tree, segs, list[:len(list)-1])
	if err := s.saveLocked(); err != nil {
		return nil, false
	}
	return last, true
}

// Empty truncates the entire document to an empty tree and persists it.
func (s *Store) Empty() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tree = map[string]any{}
	return s.saveLocked()
}

// ToObject returns a deep copy of the document, safe for the caller to
// mutate without affecting the store.
func (s *Store) ToObject() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deepCopy(s.tree)
}

func deepCopy(m map[string]any) map[string]any {
	cp := make(map[string]any, len(m))
	for k, v := range m {
		if child, ok := v.(map[string]any); ok {
			cp[k] = deepCopy(child)
			continue
		}
		if list, ok := v.([]any); ok {
			cl := make([]any, len(list))
			copy(cl, list)
			cp[k] = cl
			continue
		}
		cp[k] = v
	}
	return cp
}

// Save forces a persist of the current in-memory tree, even though every
// mutator above already does so before returning.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// saveLocked writes the document to a temp file in the same directory then
// renames it into place, so a crash mid-write never leaves a truncated or
// half-written file behind for a future Open to choke on.
func (s *Store) saveLocked() error {
	data, err := json.MarshalIndent(s.tree, "", "  ")
	if err != nil {
		return fmt.Errorf("settings: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".settings-*.tmp")
	if err != nil {
		return fmt.Errorf("settings: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("settings: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: close temp: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("settings: rename into place: %w", err)
	}
	return nil
}

// EnsurePackageRecord seeds packages.<name> with the full §4.2 default
// record if no entry exists yet, and is a no-op otherwise. This is what
// lets a node that has never been seen before call setSettings/getSettings
// immediately after registering, without a separate provisioning step.
func (s *Store) EnsurePackageRecord(name string) error {
	path := fmt.Sprintf("packages.%s", name)
	if _, ok := s.Get(path); ok {
		return nil
	}
	return s.Set(path, map[string]any{
		"version":     "1.0.0",
		"development": false,
		"installed":   false,
		"enabled":     true,
		"persistent":  false,
		"mandatory":   false,
		"link":        "",
		"settings":    map[string]any{},
	})
}

// SeedPackageRecord writes the hub's own package entry — installed,
// persistent, and mandatory — the one record every fresh settings document
// must contain per §4.2.
func (s *Store) SeedPackageRecord(hubName string) error {
	if err := s.EnsurePackageRecord(hubName); err != nil {
		return err
	}
	path := fmt.Sprintf("packages.%s", hubName)
	for _, field := range []string{"installed", "persistent", "mandatory"} {
		if err := s.Set(path+"."+field, true); err != nil {
			return err
		}
	}
	return nil
}
