package task

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/nametpl"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

// allKindsVersion makes Expand return every kind. Transform and migrate
// operate on backup files, so controller version gating does not apply.
const allKindsVersion = "999.0"

// Transform renames items of a backup according to a recipe, producing a
// new backup workdir. In rename mode item ids are untouched, so
// cross-references stay valid; in copy mode the selected items are
// duplicated under the new name with a fresh id, and the copies keep
// referencing the originals' dependencies.
type Transform struct {
	SrcDir string
	DstDir string
	Recipe *nametpl.Recipe
	Copy   bool
	DryRun bool

	logger zerolog.Logger
}

// Run executes the transform.
func (t *Transform) Run(ctx context.Context) (Tally, error) {
	t.logger = log.WithTask("transform")
	var tally Tally

	src, err := store.Open(t.SrcDir)
	if err != nil {
		return tally, err
	}
	defer src.Close()

	info, err := store.LoadServerInfo(src)
	if err != nil {
		return tally, err
	}

	var dst store.Store
	if !t.DryRun {
		if dst, err = store.Create(t.DstDir, false); err != nil {
			return tally, err
		}
		defer dst.Close()
		if err := store.SaveServerInfo(dst, info); err != nil {
			return tally, err
		}
	}

	for _, d := range catalog.Expand([]types.Tag{types.TagAll}, allKindsVersion, false) {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := t.transformKind(ctx, src, dst, d, &tally); err != nil {
			return tally, err
		}
	}

	t.logger.Info().Str("tally", tally.String()).Msg("Transform complete")
	return tally, nil
}

// transformKind renames the selected items of one kind and writes the
// kind through to the destination.
func (t *Transform) transformKind(_ context.Context, src, dst store.Store,
	d catalog.Descriptor, tally *Tally) error {

	logger := t.logger.With().Str("kind", string(d.Kind)).Logger()
	items, err := store.LoadItems(src, d)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	oldNames := make([]string, len(items))
	seen := make(map[string]string) // new name -> old name, collision detection
	for i := range items {
		oldNames[i] = items[i].Name
	}
	oldExtended := store.NeedExtendedNames(oldNames)

	var copies []types.Item
	for i := range items {
		item := &items[i]
		oldName := item.Name
		if d.Tag == t.Recipe.Tag {
			if newName, ok := t.Recipe.Rename(oldName); ok {
				if newName == "" {
					return fmt.Errorf("%w: %s %q renders to an empty name",
						types.ErrInvalidRecipe, d.Info, oldName)
				}
				if t.Copy {
					logger.Info().Str("from", oldName).Str("to", newName).Msg("Copying")
					copies = append(copies, copyItem(d, *item, newName))
				} else {
					logger.Info().Str("from", oldName).Str("to", newName).Msg("Renaming")
					item.Name = newName
					item.Body[d.NameField] = newName
				}
				tally.Updated++
			}
		}
		if prev, clash := seen[item.Name]; clash {
			return fmt.Errorf("%w: %s items %q and %q both map to %q",
				types.ErrNameCollision, d.Info, prev, oldName, item.Name)
		}
		seen[item.Name] = oldName
	}
	for _, dup := range copies {
		if prev, clash := seen[dup.Name]; clash {
			return fmt.Errorf("%w: %s copy %q collides with item %q",
				types.ErrNameCollision, d.Info, dup.Name, prev)
		}
		seen[dup.Name] = dup.Name
		items = append(items, dup)
	}

	if t.DryRun {
		tally.Saved += len(items)
		return nil
	}
	if err := store.SaveItems(dst, d, items); err != nil {
		return err
	}
	tally.Saved += len(items)

	if d.Tag == types.TagDeviceTemplate {
		return t.copyAttachments(src, dst, items, oldNames, oldExtended)
	}
	return nil
}

// copyItem clones an item under a new name and a fresh id. The clone's
// body still references the original's dependencies.
func copyItem(d catalog.Descriptor, item types.Item, newName string) types.Item {
	body := make(map[string]any, len(item.Body))
	for k, v := range item.Body {
		body[k] = v
	}
	newID := uuid.NewString()
	body[d.IDField] = newID
	body[d.NameField] = newName
	return types.Item{Kind: item.Kind, ID: newID, Name: newName, Body: body}
}

// copyAttachments carries device template attachments over, re-filed
// under the templates' new names.
func (t *Transform) copyAttachments(src, dst store.Store, items []types.Item,
	oldNames []string, oldExtended bool) error {

	newNames := make([]string, len(items))
	for i, item := range items {
		newNames[i] = item.Name
	}
	newExtended := store.NeedExtendedNames(newNames)

	// Copies carry no attachments, only the original items do.
	for i := range oldNames {
		item := items[i]
		oldFile := store.ItemFilename(oldNames[i], item.ID, oldExtended)
		att, found, err := store.LoadAttachment(src, oldFile)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		newFile := store.ItemFilename(item.Name, item.ID, newExtended)
		if err := store.SaveAttachment(dst, newFile, att); err != nil {
			return err
		}
	}
	return nil
}
