package store

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/netops-tools/sastre/pkg/types"
)

const (
	// ServerInfoFile sits at the backup root and records the source
	// controller.
	ServerInfoFile = "server_info.json"

	lockFile = ".lock"
	jsonExt  = ".json"

	// rolloverMax bounds how many numbered siblings of a workdir are
	// probed before giving up.
	rolloverMax = 99
)

// Store is one backup workdir. Directory backups support reads and writes;
// zip backups are read only.
type Store interface {
	// Root returns the workdir path this store was opened on.
	Root() string

	// ReadOnly indicates whether writes are supported.
	ReadOnly() bool

	// WriteJSON marshals v with sorted keys and two-space indentation
	// into dir/name.json, creating dir as needed.
	WriteJSON(dir, name string, v any) error

	// ReadJSON unmarshals dir/name.json into v.
	ReadJSON(dir, name string, v any) error

	// WriteText stores raw text (device configurations) into dir/name.
	WriteText(dir, name, text string) error

	// List returns the base names (without the .json extension) of the
	// JSON files in dir, sorted. A missing dir yields an empty list.
	List(dir string) ([]string, error)

	// Exists reports whether dir/name.json is present.
	Exists(dir, name string) bool

	// Close releases the workdir lock, if any.
	Close() error
}

var unsafeChars = regexp.MustCompile(`[^\w\s-]`)

// SafeFilename maps an item name to its backup file base name. Characters
// outside word characters, whitespace and dashes become underscores.
func SafeFilename(name string) string {
	return unsafeChars.ReplaceAllString(name, "_")
}

// ExtendedFilename disambiguates colliding safe names by appending the
// item id.
func ExtendedFilename(name, id string) string {
	return SafeFilename(name) + "_" + id
}

// NeedExtendedNames reports whether any two of the given item names map to
// the same safe file name. When true, every item of the kind must be
// stored under its extended name.
func NeedExtendedNames(names []string) bool {
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		safe := SafeFilename(name)
		if seen[safe] {
			return true
		}
		seen[safe] = true
	}
	return false
}

// ItemFilename picks the file base name for one item of a kind, given
// whether the kind needs extended names.
func ItemFilename(name, id string, extended bool) string {
	if extended {
		return ExtendedFilename(name, id)
	}
	return SafeFilename(name)
}

// SaveServerInfo writes server_info.json at the backup root.
func SaveServerInfo(s Store, info types.ServerInfo) error {
	return s.WriteJSON(".", strings.TrimSuffix(ServerInfoFile, jsonExt), info)
}

// LoadServerInfo reads server_info.json from the backup root.
func LoadServerInfo(s Store) (types.ServerInfo, error) {
	var info types.ServerInfo
	if err := s.ReadJSON(".", strings.TrimSuffix(ServerInfoFile, jsonExt), &info); err != nil {
		return info, fmt.Errorf("%w: %s", types.ErrInvalidBackup, err)
	}
	return info, nil
}
