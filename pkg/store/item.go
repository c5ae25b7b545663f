package store

import (
	"fmt"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/types"
)

// Directories under the backup root that are not tied to a catalog kind.
const (
	DirAttached      = "device_templates/attached"
	DirValues        = "device_templates/values"
	DirInventory     = "inventory"
	DirCertificates  = "certificates"
	DirDeviceConfigs = "device_configs"
)

// indexFile is the per-kind item index stored next to the item bodies.
const indexFile = "item_index"

// SaveItems persists every item of one kind. When two item names collide
// on the same safe file name, the whole kind switches to extended names.
func SaveItems(s Store, d catalog.Descriptor, items []types.Item) error {
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	extended := NeedExtendedNames(names)

	for _, item := range items {
		file := ItemFilename(item.Name, item.ID, extended)
		if err := s.WriteJSON(d.StoreDir, file, item.Body); err != nil {
			return fmt.Errorf("saving %s %s: %w", d.Info, item.Name, err)
		}
	}

	index := types.Index{Kind: d.Kind, Entries: make([]types.IndexEntry, len(items))}
	for i, item := range items {
		index.Entries[i] = types.IndexEntry{
			ID:             item.ID,
			Name:           item.Name,
			FactoryDefault: item.FactoryDefault,
		}
	}
	return SaveIndex(s, d, index)
}

// SaveIndex persists the kind's item index. Backups write it after the
// items so entries the controller would not hand over can be marked
// omitted.
func SaveIndex(s Store, d catalog.Descriptor, index types.Index) error {
	if err := s.WriteJSON(d.StoreDir, indexFile, index); err != nil {
		return fmt.Errorf("saving %s index: %w", d.Info, err)
	}
	return nil
}

// LoadIndex reads back the kind's item index. A kind that was never
// backed up yields an empty index; stored items without an index mean the
// backup is incomplete.
func LoadIndex(s Store, d catalog.Descriptor) (types.Index, error) {
	var index types.Index
	if !s.Exists(d.StoreDir, indexFile) {
		files, err := s.List(d.StoreDir)
		if err != nil {
			return index, err
		}
		if len(files) == 0 {
			return index, nil
		}
		return index, fmt.Errorf("%w: %s has items but no %s",
			types.ErrInvalidBackup, d.StoreDir, indexFile)
	}
	if err := s.ReadJSON(d.StoreDir, indexFile, &index); err != nil {
		return index, fmt.Errorf("%w: %s", types.ErrInvalidBackup, err)
	}
	return index, nil
}

// LoadItems reads back every stored item of one kind. Identity fields are
// recovered from the item bodies using the descriptor's field names. A
// kind with no backup directory yields an empty slice.
func LoadItems(s Store, d catalog.Descriptor) ([]types.Item, error) {
	files, err := s.List(d.StoreDir)
	if err != nil {
		return nil, err
	}

	items := make([]types.Item, 0, len(files))
	for _, file := range files {
		if file == indexFile {
			continue
		}
		var body map[string]any
		if err := s.ReadJSON(d.StoreDir, file, &body); err != nil {
			return nil, fmt.Errorf("%w: %s", types.ErrInvalidBackup, err)
		}
		item := types.Item{Kind: d.Kind, Body: body}
		item.ID, _ = body[d.IDField].(string)
		item.Name, _ = body[d.NameField].(string)
		item.FactoryDefault, _ = body[d.FactoryDefault()].(bool)
		item.Owner, _ = body["owner"].(string)
		if item.Name == "" {
			return nil, fmt.Errorf("%w: %s/%s has no %s field",
				types.ErrInvalidBackup, d.StoreDir, file, d.NameField)
		}
		items = append(items, item)
	}
	return items, nil
}

// SaveAttachment records the devices and input values attached to one
// device template.
func SaveAttachment(s Store, file string, att types.Attachment) error {
	if err := s.WriteJSON(DirAttached, file, att.Devices); err != nil {
		return err
	}
	if len(att.Values) > 0 {
		return s.WriteJSON(DirValues, file, att.Values)
	}
	return nil
}

// LoadAttachment reads one template's attachment, if present.
func LoadAttachment(s Store, file string) (types.Attachment, bool, error) {
	var att types.Attachment
	if !s.Exists(DirAttached, file) {
		return att, false, nil
	}
	if err := s.ReadJSON(DirAttached, file, &att.Devices); err != nil {
		return att, false, fmt.Errorf("%w: %s", types.ErrInvalidBackup, err)
	}
	if s.Exists(DirValues, file) {
		if err := s.ReadJSON(DirValues, file, &att.Values); err != nil {
			return att, false, fmt.Errorf("%w: %s", types.ErrInvalidBackup, err)
		}
	}
	return att, true, nil
}
