package task

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/types"
)

// Delete removes configuration items from the controller.
type Delete struct {
	Ctrl   Controller
	Acts   Actions
	Tags   []types.Tag
	Filter Filter

	// Detach first detaches device templates and deactivates the vSmart
	// policy so the items become deletable.
	Detach bool
	DryRun bool

	logger zerolog.Logger
}

// Run executes the delete.
func (d *Delete) Run(ctx context.Context) (Tally, error) {
	d.logger = log.WithTask("delete")
	version := d.Ctrl.ServerVersion()
	d.logger.Info().Str("version", version).Msg("Starting delete")

	var tally Tally
	if d.Detach {
		if err := d.detachAll(ctx); err != nil {
			return tally, err
		}
	}

	for _, desc := range catalog.Expand(d.Tags, version, false) {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := d.deleteKind(ctx, desc, &tally); err != nil {
			return tally, err
		}
	}

	d.logger.Info().Str("tally", tally.String()).Msg("Delete complete")
	return tally, nil
}

// detachAll unwinds attachments in the order the controller requires: WAN
// edge templates first, then the active vSmart policy, then controller
// templates.
func (d *Delete) detachAll(ctx context.Context) error {
	edges, controllers, err := d.attachedDevices(ctx)
	if err != nil {
		return err
	}

	if len(edges) > 0 {
		if d.DryRun {
			d.logger.Info().Int("devices", len(edges)).Msg("Would detach WAN edge templates")
		} else if _, err := d.Acts.Detach(ctx, edges); err != nil {
			return err
		}
	}

	if err := d.deactivatePolicy(ctx); err != nil {
		return err
	}

	if len(controllers) > 0 {
		if d.DryRun {
			d.logger.Info().Int("devices", len(controllers)).Msg("Would detach controller templates")
		} else if _, err := d.Acts.Detach(ctx, controllers); err != nil {
			return err
		}
	}
	return nil
}

// attachedDevices collects the devices currently attached to any device
// template, partitioned into WAN edges and controllers.
func (d *Delete) attachedDevices(ctx context.Context) (edges, controllers []types.AttachedDevice, err error) {
	desc, ok := catalog.Lookup(types.Kind(types.TagDeviceTemplate))
	if !ok {
		return nil, nil, nil
	}
	index, err := fetchIndex(ctx, d.Ctrl, desc)
	if err != nil {
		return nil, nil, err
	}
	for _, entry := range index.Entries {
		if entry.Attached == 0 {
			continue
		}
		rows, err := d.Ctrl.GetData(ctx, catalog.PathDeviceTemplateAttached+"/"+entry.ID)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			dev := types.AttachedDevice{}
			dev.UUID, _ = row["uuid"].(string)
			dev.Personality, _ = row["personality"].(string)
			dev.HostName, _ = row["host-name"].(string)
			dev.SystemIP, _ = row["deviceIP"].(string)
			if dev.Personality == "vedge" {
				edges = append(edges, dev)
			} else {
				controllers = append(controllers, dev)
			}
		}
	}
	return edges, controllers, nil
}

// deactivatePolicy clears the active vSmart policy, when one is active.
func (d *Delete) deactivatePolicy(ctx context.Context) error {
	desc, ok := catalog.Lookup("policy_vsmart")
	if !ok {
		return nil
	}
	index, err := fetchIndex(ctx, d.Ctrl, desc)
	if err != nil {
		d.logger.Warn().Err(err).Msg("Could not list vSmart policies")
		return nil
	}
	id, name := index.ActivePolicy()
	if id == "" {
		return nil
	}
	if d.DryRun {
		d.logger.Info().Str("policy", name).Msg("Would deactivate vSmart policy")
		return nil
	}
	outcome, err := d.Acts.DeactivatePolicy(ctx, id, name)
	if err != nil {
		return err
	}
	if !outcome.OK() {
		d.logger.Warn().Str("policy", name).Msg("vSmart policy deactivation failed")
	}
	return nil
}

// deleteKind removes the selected items of one kind. Factory defaults and
// items the controller refuses to drop are skipped, not fatal.
//
// Within a kind, items go in controller index order. The cross-kind tag
// order covers the real dependency chains; a sibling reference inside one
// kind at most costs a conflict error on the first pass, and the item
// goes on a later run once its referrer is gone.
func (d *Delete) deleteKind(ctx context.Context, desc catalog.Descriptor, tally *Tally) error {
	logger := d.logger.With().Str("kind", string(desc.Kind)).Logger()
	index, err := fetchIndex(ctx, d.Ctrl, desc)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not list items, skipping kind")
		return nil
	}

	for _, entry := range index.Entries {
		if !d.Filter.Selects(entry.Name) {
			continue
		}
		if entry.FactoryDefault {
			tally.Skipped++
			continue
		}
		if d.DryRun {
			logger.Info().Str("name", entry.Name).Msg("Would delete")
			tally.Deleted++
			continue
		}
		if err := d.Ctrl.Delete(ctx, desc.Path.Delete, entry.ID); err != nil {
			logger.Warn().Err(err).Str("name", entry.Name).Msg("Could not delete item")
			metrics.ItemFailuresTotal.WithLabelValues("delete").Inc()
			tally.Failed++
			continue
		}
		logger.Info().Str("name", entry.Name).Msg("Deleted")
		metrics.ItemsDeletedTotal.Inc()
		tally.Deleted++
	}
	return nil
}
