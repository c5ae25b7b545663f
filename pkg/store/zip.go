package store

import (
	"archive/zip"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/netops-tools/sastre/pkg/types"
)

// zipStore serves a backup packed as a zip archive. Archives created by
// zipping a workdir may carry the workdir name as a common top-level
// directory; that prefix is detected on open and stripped transparently.
type zipStore struct {
	root   string
	rc     *zip.ReadCloser
	prefix string
	files  map[string]*zip.File
}

func openZip(p string) (Store, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %s", types.ErrInvalidBackup, p, err)
	}
	s := &zipStore{root: p, rc: rc, files: make(map[string]*zip.File)}
	s.prefix = commonPrefix(rc.File)
	for _, f := range rc.File {
		if f.FileInfo().IsDir() {
			continue
		}
		s.files[strings.TrimPrefix(f.Name, s.prefix)] = f
	}
	return s, nil
}

// commonPrefix returns the single top-level directory shared by every
// archive member, or "" when members live at the archive root.
func commonPrefix(files []*zip.File) string {
	top := ""
	for _, f := range files {
		name := f.Name
		i := strings.IndexByte(name, '/')
		if i < 0 {
			return ""
		}
		switch dir := name[:i+1]; {
		case top == "":
			top = dir
		case top != dir:
			return ""
		}
	}
	return top
}

func (s *zipStore) Root() string   { return s.root }
func (s *zipStore) ReadOnly() bool { return true }

func (s *zipStore) WriteJSON(dir, name string, v any) error {
	return fmt.Errorf("backup %s is a zip archive, writes not supported", s.root)
}

func (s *zipStore) WriteText(dir, name, text string) error {
	return fmt.Errorf("backup %s is a zip archive, writes not supported", s.root)
}

func (s *zipStore) ReadJSON(dir, name string, v any) error {
	f, ok := s.files[path.Join(dir, name+jsonExt)]
	if !ok {
		return fmt.Errorf("reading %s/%s: not in archive", dir, name)
	}
	r, err := f.Open()
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", dir, name, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading %s/%s: %w", dir, name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing %s/%s: %w", dir, name, err)
	}
	return nil
}

func (s *zipStore) List(dir string) ([]string, error) {
	prefix := ""
	if clean := path.Join(dir); clean != "." {
		prefix = clean + "/"
	}
	var names []string
	for name := range s.files {
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, jsonExt) {
			continue
		}
		base := strings.TrimPrefix(name, prefix)
		if strings.Contains(base, "/") {
			continue
		}
		names = append(names, strings.TrimSuffix(base, jsonExt))
	}
	sort.Strings(names)
	return names, nil
}

func (s *zipStore) Exists(dir, name string) bool {
	_, ok := s.files[path.Join(dir, name+jsonExt)]
	return ok
}

func (s *zipStore) Close() error {
	return s.rc.Close()
}
