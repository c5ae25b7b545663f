package task

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

// configWorkers bounds concurrent running-config reads.
const configWorkers = 10

// Backup saves controller configuration items to a local workdir.
type Backup struct {
	Ctrl    Controller
	Workdir string
	Tags    []types.Tag
	Filter  Filter

	// NoRollover reuses an existing workdir instead of renaming it away.
	NoRollover bool
	// SaveRunning also saves per-device CFS and RFS configurations.
	SaveRunning bool
	DryRun      bool

	logger zerolog.Logger
	st     store.Store
}

// Run executes the backup.
func (b *Backup) Run(ctx context.Context) (Tally, error) {
	b.logger = log.WithTask("backup")
	version := b.Ctrl.ServerVersion()
	b.logger.Info().Str("workdir", b.Workdir).Str("version", version).Msg("Starting backup")

	var tally Tally
	if !b.DryRun {
		st, err := store.Create(b.Workdir, b.NoRollover)
		if err != nil {
			return tally, err
		}
		defer st.Close()
		b.st = st

		info := types.ServerInfo{Version: version}
		info.Hostname, _ = b.Ctrl.ServerFacts()["hostname"].(string)
		if err := store.SaveServerInfo(st, info); err != nil {
			return tally, err
		}
	}

	if hasTag(b.Tags, types.TagAll) {
		if err := b.saveExtras(ctx, &tally); err != nil {
			return tally, err
		}
	}

	for _, d := range catalog.Expand(b.Tags, version, false) {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		if err := b.saveKind(ctx, d, &tally); err != nil {
			return tally, err
		}
	}

	b.logger.Info().Str("tally", tally.String()).Msg("Backup complete")
	return tally, nil
}

// saveKind walks one kind's index and saves each item body, plus the
// attachment data of device templates with devices attached.
func (b *Backup) saveKind(ctx context.Context, d catalog.Descriptor, tally *Tally) error {
	logger := b.logger.With().Str("kind", string(d.Kind)).Logger()
	index, err := fetchIndex(ctx, b.Ctrl, d)
	if err != nil {
		// Some endpoints only exist with the right licensing; skip the
		// kind rather than fail the backup.
		logger.Warn().Err(err).Msg("Could not list items, skipping kind")
		return nil
	}

	// Factory defaults are saved too: other items reference them by id, so
	// a restore onto a different controller needs their bodies around to
	// map those references.
	var items []types.Item
	var attachments []attachmentRef
	saved := types.Index{Kind: d.Kind}
	for _, entry := range index.Entries {
		if !b.Filter.Selects(entry.Name) {
			continue
		}
		if b.DryRun {
			logger.Info().Str("name", entry.Name).Msg("Would save")
			tally.Saved++
			continue
		}
		item, err := fetchItem(ctx, b.Ctrl, d, entry)
		if err != nil {
			logger.Warn().Err(err).Str("name", entry.Name).Msg("Could not retrieve item")
			metrics.ItemFailuresTotal.WithLabelValues("backup").Inc()
			entry.Omitted = true
			saved.Entries = append(saved.Entries, entry)
			tally.Failed++
			continue
		}
		items = append(items, item)
		saved.Entries = append(saved.Entries, entry)
		if d.Tag == types.TagDeviceTemplate && entry.Attached > 0 {
			attachments = append(attachments, attachmentRef{entry: entry})
		}
		tally.Saved++
		metrics.ItemsSavedTotal.WithLabelValues(string(d.Tag)).Inc()
	}

	if b.DryRun || len(saved.Entries) == 0 {
		return nil
	}
	if err := store.SaveItems(b.st, d, items); err != nil {
		return err
	}
	if err := store.SaveIndex(b.st, d, saved); err != nil {
		return err
	}

	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	extended := store.NeedExtendedNames(names)
	for _, ref := range attachments {
		if err := b.saveAttachment(ctx, ref.entry, extended); err != nil {
			logger.Warn().Err(err).Str("name", ref.entry.Name).Msg("Could not save attachment")
			tally.Failed++
		}
	}
	logger.Info().Int("items", len(items)).Msg("Kind saved")
	return nil
}

type attachmentRef struct {
	entry types.IndexEntry
}

// saveAttachment saves the device list and input values of one attached
// device template.
func (b *Backup) saveAttachment(ctx context.Context, entry types.IndexEntry, extended bool) error {
	rows, err := b.Ctrl.GetData(ctx, catalog.PathDeviceTemplateAttached+"/"+entry.ID)
	if err != nil {
		return err
	}
	att := types.Attachment{TemplateID: entry.ID, TemplateName: entry.Name}
	var deviceIDs []string
	for _, row := range rows {
		dev := types.AttachedDevice{}
		dev.UUID, _ = row["uuid"].(string)
		dev.Personality, _ = row["personality"].(string)
		dev.HostName, _ = row["host-name"].(string)
		dev.SystemIP, _ = row["deviceIP"].(string)
		att.Devices = append(att.Devices, dev)
		deviceIDs = append(deviceIDs, dev.UUID)
	}

	reply, err := b.Ctrl.PostJSON(ctx, catalog.PathDeviceTemplateInput, map[string]any{
		"templateId":     entry.ID,
		"deviceIds":      deviceIDs,
		"isEdited":       false,
		"isMasterEdited": false,
	})
	if err != nil {
		return err
	}
	for _, row := range valuesRows(reply) {
		att.Values = append(att.Values, row)
	}

	file := store.ItemFilename(entry.Name, entry.ID, extended)
	return store.SaveAttachment(b.st, file, att)
}

// saveExtras saves the artifacts outside the catalog: certificates,
// device inventories and, on request, running configurations.
func (b *Backup) saveExtras(ctx context.Context, tally *Tally) error {
	if b.DryRun {
		b.logger.Info().Msg("Would save certificates and device inventories")
		return nil
	}

	certs, err := b.Ctrl.GetData(ctx, catalog.PathEdgeCertificate)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Could not retrieve WAN edge certificates")
	} else if err := b.st.WriteJSON(store.DirCertificates, "wan_edge_certificates", certs); err != nil {
		return err
	}

	var devices []types.Device
	for name, path := range map[string]string{
		"wan_edges":   catalog.PathEdgeInventory,
		"controllers": catalog.PathControlInventory,
	} {
		rows, err := b.Ctrl.GetData(ctx, path)
		if err != nil {
			return fmt.Errorf("retrieving %s inventory: %w", name, err)
		}
		if err := b.st.WriteJSON(store.DirInventory, name, rows); err != nil {
			return err
		}
		for _, row := range rows {
			dev := types.Device{}
			dev.UUID, _ = row["uuid"].(string)
			dev.HostName, _ = row["host-name"].(string)
			dev.Reachable = row["reachability"] == "reachable"
			devices = append(devices, dev)
		}
	}

	if b.SaveRunning {
		b.saveDeviceConfigs(ctx, devices, tally)
	}
	return nil
}

// saveDeviceConfigs saves the CFS and RFS configuration of every reachable
// device, reading up to configWorkers devices concurrently.
func (b *Backup) saveDeviceConfigs(ctx context.Context, devices []types.Device, tally *Tally) {
	var mu sync.Mutex
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(configWorkers)

	for _, dev := range devices {
		if !dev.Reachable || dev.UUID == "" {
			continue
		}
		dev := dev
		g.Go(func() error {
			name := store.SafeFilename(dev.HostName)
			if name == "" {
				name = dev.UUID
			}
			for suffix, path := range map[string]string{
				".cfs.txt": catalog.PathDeviceConfig + "/" + dev.UUID,
				".rfs.txt": catalog.PathDeviceConfigRFS + "/" + dev.UUID,
			} {
				cfg, err := b.Ctrl.GetText(ctx, path)
				if err != nil {
					b.logger.Warn().Err(err).Str("device", dev.HostName).Msg("Could not retrieve device configuration")
					mu.Lock()
					tally.Failed++
					mu.Unlock()
					continue
				}
				if err := b.st.WriteText(store.DirDeviceConfigs, name+suffix, cfg); err != nil {
					b.logger.Warn().Err(err).Str("device", dev.HostName).Msg("Could not save device configuration")
					mu.Lock()
					tally.Failed++
					mu.Unlock()
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}

// valuesRows extracts the per-device input value rows from a template
// input reply, stringifying values.
func valuesRows(reply map[string]any) []map[string]string {
	var out []map[string]string
	rawList, _ := reply["data"].([]any)
	for _, raw := range rawList {
		row, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		values := make(map[string]string, len(row))
		for k, v := range row {
			if s, ok := v.(string); ok {
				values[k] = s
			} else {
				values[k] = fmt.Sprint(v)
			}
		}
		out = append(out, values)
	}
	return out
}

func hasTag(tags []types.Tag, tag types.Tag) bool {
	for _, t := range tags {
		if t == tag {
			return true
		}
	}
	return false
}
