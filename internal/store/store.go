// Package store persists the ordered rule list and serves snapshots of it.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"firestige.xyz/trafficguard/internal/core"
	"firestige.xyz/trafficguard/internal/log"
)

// RuleStore is the persistence interface for the rule list.
// Rules are addressed by zero-based position; order is preserved by every operation.
// All implementations must be safe for concurrent use.
type RuleStore interface {
	// Load returns the full rule list. A missing store is created empty.
	// A malformed store yields an empty list together with core.ErrStoreFormat.
	Load() ([]core.Rule, error)
	// Append adds rule at the end.
	Append(rule core.Rule) error
	// Replace overwrites the rule at index.
	Replace(index int, rule core.Rule) error
	// Delete removes and returns the rule at index.
	Delete(index int) (core.Rule, error)
}

// FileRuleStore keeps the rule list in a single JSON or YAML file.
// Mutations are read-modify-write under an exclusive lock on <file>.lock and
// land through temp-file + rename, so readers never see a partial file.
type FileRuleStore struct {
	path  string
	codec codec
	mu    sync.Mutex // serializes mutations within the process
}

// NewFileRuleStore creates a store backed by path. The file is not touched until first use.
func NewFileRuleStore(path string) *FileRuleStore {
	return &FileRuleStore{path: path, codec: codecFor(path)}
}

// Path returns the backing file path.
func (s *FileRuleStore) Path() string { return s.path }

// Load implements RuleStore.
func (s *FileRuleStore) Load() ([]core.Rule, error) {
	rules, err := s.read()
	if errors.Is(err, fs.ErrNotExist) {
		return s.createEmpty()
	}
	if err != nil {
		if errors.Is(err, core.ErrStoreFormat) {
			return []core.Rule{}, err
		}
		return nil, err
	}
	return rules, nil
}

// Append implements RuleStore.
func (s *FileRuleStore) Append(rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.mutate(func(rules []core.Rule) ([]core.Rule, error) {
		return append(rules, rule), nil
	})
}

// Replace implements RuleStore.
func (s *FileRuleStore) Replace(index int, rule core.Rule) error {
	if err := rule.Validate(); err != nil {
		return err
	}
	return s.mutate(func(rules []core.Rule) ([]core.Rule, error) {
		if index < 0 || index >= len(rules) {
			return nil, &core.IndexError{Index: index, Len: len(rules)}
		}
		rules[index] = rule
		return rules, nil
	})
}

// Delete implements RuleStore.
func (s *FileRuleStore) Delete(index int) (core.Rule, error) {
	var removed core.Rule
	err := s.mutate(func(rules []core.Rule) ([]core.Rule, error) {
		if index < 0 || index >= len(rules) {
			return nil, &core.IndexError{Index: index, Len: len(rules)}
		}
		removed = rules[index]
		return append(rules[:index], rules[index+1:]...), nil
	})
	if err != nil {
		return core.Rule{}, err
	}
	return removed, nil
}

// read decodes the file without locking. fs.ErrNotExist is passed through unwrapped.
func (s *FileRuleStore) read() ([]core.Rule, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: read %s: %v", core.ErrStoreIO, s.path, err)
	}
	rules, err := s.codec.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("rule store %s: %w", s.path, err)
	}
	return rules, nil
}

// createEmpty writes an empty list unless another writer got there first.
func (s *FileRuleStore) createEmpty() ([]core.Rule, error) {
	var rules []core.Rule
	err := s.mutate(func(current []core.Rule) ([]core.Rule, error) {
		rules = current
		return current, nil
	})
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []core.Rule{}
	}
	return rules, nil
}

// mutate runs fn over the current list under the process mutex and the file lock,
// then persists the result. fn's error aborts the write.
func (s *FileRuleStore) mutate(fn func([]core.Rule) ([]core.Rule, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("%w: create directory for %s: %v", core.ErrStoreIO, s.path, err)
	}
	lock, err := lockFile(s.path + ".lock")
	if err != nil {
		return fmt.Errorf("%w: lock %s: %v", core.ErrStoreIO, s.path, err)
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			log.GetLogger().WithError(uerr).Warnf("rule store: unlock %s", s.path)
		}
	}()

	rules, err := s.read()
	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		rules = []core.Rule{}
	case errors.Is(err, core.ErrStoreFormat):
		log.GetLogger().WithError(err).Warn("rule store: malformed content replaced by an empty list")
		rules = []core.Rule{}
	default:
		return err
	}

	next, err := fn(rules)
	if err != nil {
		return err
	}
	return s.writeAtomic(next)
}

// writeAtomic writes rules to a unique temp file in the same directory, then renames it over the target.
func (s *FileRuleStore) writeAtomic(rules []core.Rule) error {
	data, err := s.codec.Encode(rules)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", core.ErrStoreIO, s.path, err)
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmpFile, err := os.CreateTemp(dir, "."+base+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file for %s: %v", core.ErrStoreIO, s.path, err)
	}
	tmpName := tmpFile.Name()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: write %s: %v", core.ErrStoreIO, tmpName, err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: sync %s: %v", core.ErrStoreIO, tmpName, err)
	}
	if err := tmpFile.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: close %s: %v", core.ErrStoreIO, tmpName, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: chmod %s: %v", core.ErrStoreIO, tmpName, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: rename %s: %v", core.ErrStoreIO, tmpName, err)
	}
	return nil
}
