package task

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/migrate"
	"github.com/netops-tools/sastre/pkg/nametpl"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

// Migrate rewrites a pre-20.1 backup so it can be restored onto a 20.1
// target. Feature and device templates get the recipe rules applied and a
// new name; everything else is carried through unchanged. Attachments are
// not migrated, templates must be re-attached after restore.
type Migrate struct {
	SrcDir string
	DstDir string
	Recipe *migrate.Recipe
	// NameTemplate overrides the recipe's rename template.
	NameTemplate string
	DryRun       bool

	logger zerolog.Logger
}

// Run executes the migration.
func (m *Migrate) Run(ctx context.Context) (Tally, error) {
	m.logger = log.WithTask("migrate")
	var tally Tally

	src, err := store.Open(m.SrcDir)
	if err != nil {
		return tally, err
	}
	defer src.Close()

	info, err := store.LoadServerInfo(src)
	if err != nil {
		return tally, err
	}
	if !m.Recipe.Applies(info.Version) {
		return tally, fmt.Errorf("%w: no migration from %s to %s",
			types.ErrVersionUnsupported, info.Version, m.Recipe.ToVersion)
	}

	tplSrc := m.NameTemplate
	if tplSrc == "" {
		tplSrc = m.Recipe.NameTemplate
	}
	nameTpl, err := nametpl.Compile(tplSrc)
	if err != nil {
		return tally, err
	}
	m.logger.Info().Str("from", info.Version).Str("to", m.Recipe.ToVersion).
		Str("workdir", m.SrcDir).Msg("Starting migration")

	var dst store.Store
	if !m.DryRun {
		if dst, err = store.Create(m.DstDir, false); err != nil {
			return tally, err
		}
		defer dst.Close()
		info.Version = m.Recipe.ToVersion
		if err := store.SaveServerInfo(dst, info); err != nil {
			return tally, err
		}
	}

	for _, d := range catalog.Expand([]types.Tag{types.TagAll}, allKindsVersion, false) {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := m.migrateKind(src, dst, d, nameTpl, &tally); err != nil {
			return tally, err
		}
	}

	m.logger.Info().Str("tally", tally.String()).Msg("Migration complete")
	return tally, nil
}

// migrateKind applies the recipe to one kind and writes it through.
func (m *Migrate) migrateKind(src, dst store.Store, d catalog.Descriptor,
	nameTpl *nametpl.Template, tally *Tally) error {

	logger := m.logger.With().Str("kind", string(d.Kind)).Logger()
	items, err := store.LoadItems(src, d)
	if err != nil {
		return err
	}
	if len(items) == 0 {
		return nil
	}

	isTemplate := d.Tag == types.TagFeatureTemplate || d.Tag == types.TagDeviceTemplate
	seen := map[string]string{}
	for i := range items {
		item := &items[i]
		if !isTemplate {
			continue
		}

		fired := 0
		if d.Tag == types.TagFeatureTemplate {
			fired = m.Recipe.ApplyFeature(item.Body)
		} else {
			fired = m.Recipe.ApplyDevice(item.Body)
		}

		oldName := item.Name
		newName := nameTpl.Render(oldName)
		if newName == "" {
			return fmt.Errorf("%w: name template renders %s %q to an empty name",
				types.ErrInvalidRecipe, d.Info, oldName)
		}
		if prev, clash := seen[newName]; clash {
			return fmt.Errorf("%w: %s items %q and %q both map to %q",
				types.ErrNameCollision, d.Info, prev, oldName, newName)
		}
		seen[newName] = oldName

		item.Name = newName
		item.Body[d.NameField] = newName
		logger.Debug().Str("from", oldName).Str("to", newName).
			Int("rules", fired).Msg("Template migrated")
		tally.Updated++
	}

	if m.DryRun {
		tally.Saved += len(items)
		return nil
	}
	if err := store.SaveItems(dst, d, items); err != nil {
		return err
	}
	tally.Saved += len(items)
	logger.Info().Int("items", len(items)).Msg("Kind migrated")
	return nil
}
