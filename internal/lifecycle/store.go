package lifecycle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/drover-sh/drover/internal/errors"
)

// registryFile is the unit registry's file name under the state directory.
const registryFile = "units.json"

// Store persists the unit registry as a single JSON document. Every command
// invocation loads it fresh; upserts take a cross-process flock so
// concurrent agent reports against the same state directory cannot lose
// each other's writes.
type Store struct {
	path string
	lock *FileLock
}

// NewStore creates a Store under stateDir.
func NewStore(stateDir string) *Store {
	return &Store{
		path: filepath.Join(stateDir, registryFile),
		lock: NewFileLock(stateDir),
	}
}

// Path returns the registry file path.
func (s *Store) Path() string {
	return s.path
}

type registry struct {
	Units map[string]*Unit `json:"units"`
}

// Load reads the registry. A missing file is an empty registry.
func (s *Store) Load() (map[string]*Unit, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]*Unit{}, nil
		}
		return nil, errors.Wrap(err, "failed to read unit registry")
	}

	var reg registry
	if err := json.Unmarshal(data, &reg); err != nil {
		return nil, errors.Wrap(err, "failed to parse unit registry")
	}
	if reg.Units == nil {
		reg.Units = map[string]*Unit{}
	}
	return reg.Units, nil
}

// Save atomically replaces the registry.
func (s *Store) Save(units map[string]*Unit) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return errors.Wrap(err, "failed to create state directory")
	}

	data, err := json.MarshalIndent(registry{Units: units}, "", "  ")
	if err != nil {
		return errors.Wrap(err, "failed to encode unit registry")
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), registryFile+".*.tmp")
	if err != nil {
		return errors.Wrap(err, "failed to create temp registry file")
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to write unit registry")
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to close unit registry")
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return errors.Wrap(err, "failed to finalize unit registry")
	}
	return nil
}

// Get loads one unit. A missing suffix wraps errors.ErrUnitNotFound.
func (s *Store) Get(suffix string) (*Unit, error) {
	units, err := s.Load()
	if err != nil {
		return nil, err
	}
	unit, ok := units[suffix]
	if !ok {
		return nil, errors.NewLifecycleError("no work unit for suffix", errors.ErrUnitNotFound).
			WithSuffix(suffix)
	}
	return unit, nil
}

// Put upserts one unit. The read-modify-write is guarded by the registry
// flock.
func (s *Store) Put(unit *Unit) error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	units, err := s.Load()
	if err != nil {
		return err
	}
	units[unit.Suffix] = unit
	return s.Save(units)
}

// List returns all units ordered by suffix.
func (s *Store) List() ([]*Unit, error) {
	units, err := s.Load()
	if err != nil {
		return nil, err
	}

	suffixes := make([]string, 0, len(units))
	for suffix := range units {
		suffixes = append(suffixes, suffix)
	}
	sort.Strings(suffixes)

	out := make([]*Unit, 0, len(units))
	for _, suffix := range suffixes {
		out = append(out, units[suffix])
	}
	return out, nil
}
