package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/netops-tools/sastre/pkg/log"
)

// dirStore is the writable directory backend.
type dirStore struct {
	root   string
	locked bool
}

// Open opens an existing backup for reading. A path ending in .zip, or a
// regular file, is opened as a zip backup; anything else must be a
// directory.
func Open(path string) (Store, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("opening backup %s: %w", path, err)
	}
	if !fi.IsDir() {
		return openZip(path)
	}
	return &dirStore{root: path}, nil
}

// Create prepares a fresh writable workdir. An existing directory is first
// rolled over unless keep is set, in which case new files land on top of
// the old ones. The workdir is locked until Close.
func Create(path string, keep bool) (Store, error) {
	if !keep {
		if _, err := Rollover(path); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating workdir %s: %w", path, err)
	}
	s := &dirStore{root: path}
	if err := s.lock(); err != nil {
		return nil, err
	}
	return s, nil
}

// Rollover renames an existing directory to the first free numbered
// sibling (<path>_1 through <path>_99) and returns the new name. A missing
// directory is a no-op.
func Rollover(path string) (string, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	for n := 1; n <= rolloverMax; n++ {
		dest := fmt.Sprintf("%s_%d", path, n)
		if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
			if err := os.Rename(path, dest); err != nil {
				return "", fmt.Errorf("rolling over %s: %w", path, err)
			}
			logger := log.WithComponent("store")
			logger.Info().
				Str("from", path).Str("to", dest).Msg("Rolled over existing workdir")
			return dest, nil
		}
	}
	return "", fmt.Errorf("rolling over %s: all %d slots taken", path, rolloverMax)
}

func (s *dirStore) lock() error {
	f, err := os.OpenFile(filepath.Join(s.root, lockFile), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("workdir %s is locked by another run", s.root)
		}
		return fmt.Errorf("locking workdir %s: %w", s.root, err)
	}
	s.locked = true
	return f.Close()
}

func (s *dirStore) Root() string   { return s.root }
func (s *dirStore) ReadOnly() bool { return false }

func (s *dirStore) WriteJSON(dir, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s/%s: %w", dir, name, err)
	}
	return s.writeFile(dir, name+jsonExt, append(data, '\n'))
}

func (s *dirStore) ReadJSON(dir, name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.root, dir, name+jsonExt))
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", dir, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s/%s: %w", dir, name, err)
	}
	return nil
}

func (s *dirStore) WriteText(dir, name, text string) error {
	return s.writeFile(dir, name, []byte(text))
}

// writeFile lands content atomically: temp file in the target directory,
// then rename over the final name.
func (s *dirStore) writeFile(dir, name string, data []byte) error {
	target := filepath.Join(s.root, dir)
	if err := os.MkdirAll(target, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", target, err)
	}
	tmp, err := os.CreateTemp(target, "."+name+".tmp*")
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", dir, name, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s/%s: %w", dir, name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing %s/%s: %w", dir, name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(target, name)); err != nil {
		return fmt.Errorf("writing %s/%s: %w", dir, name, err)
	}
	return nil
}

func (s *dirStore) List(dir string) ([]string, error) {
	ents, err := os.ReadDir(filepath.Join(s.root, dir))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}
	var names []string
	for _, ent := range ents {
		if ent.IsDir() || !strings.HasSuffix(ent.Name(), jsonExt) {
			continue
		}
		names = append(names, strings.TrimSuffix(ent.Name(), jsonExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *dirStore) Exists(dir, name string) bool {
	_, err := os.Stat(filepath.Join(s.root, dir, name+jsonExt))
	return err == nil
}

func (s *dirStore) Close() error {
	if !s.locked {
		return nil
	}
	s.locked = false
	return os.Remove(filepath.Join(s.root, lockFile))
}
