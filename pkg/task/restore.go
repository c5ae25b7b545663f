package task

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/action"
	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/graph"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

// Restore pushes items from a backup workdir to the controller.
type Restore struct {
	Ctrl    Controller
	Acts    Actions
	Workdir string
	Tags    []types.Tag
	Filter  Filter

	// Update overwrites items that already exist under the same name.
	Update bool
	// Attach re-attaches device templates and re-activates the vSmart
	// policy after the push.
	Attach bool
	DryRun bool

	logger zerolog.Logger
	st     store.Store
	// idMap translates backup item ids to their ids on the target.
	idMap map[string]string
	// needReattach holds target-side device template ids whose attached
	// devices must be re-pushed after an update touched them.
	needReattach map[string]bool

	vbondChecked bool
	vbondOK      bool
}

// Run executes the restore.
func (r *Restore) Run(ctx context.Context) (Tally, error) {
	r.logger = log.WithTask("restore")
	r.idMap = make(map[string]string)
	r.needReattach = make(map[string]bool)

	var tally Tally
	st, err := store.Open(r.Workdir)
	if err != nil {
		return tally, err
	}
	defer st.Close()
	r.st = st

	info, err := store.LoadServerInfo(st)
	if err != nil {
		return tally, err
	}
	version := r.Ctrl.ServerVersion()
	if types.VersionNewer(version, info.Version) {
		r.logger.Warn().Str("backup", info.Version).Str("target", version).
			Msg("Backup comes from a newer release than the target, some items may be rejected")
	}
	r.logger.Info().Str("workdir", r.Workdir).Str("version", version).Msg("Starting restore")

	var vsmartPolicies []types.Item
	for _, d := range catalog.Expand(r.Tags, version, true) {
		if err := ctx.Err(); err != nil {
			return tally, err
		}
		// Device templates cannot land on a controller without a vBond
		// address: every attach would fail. Leave the whole kind out.
		if d.Kind == types.Kind(types.TagDeviceTemplate) && !r.vbondConfigured(ctx) {
			r.logger.Warn().
				Msg("vBond address is not configured on the target, skipping device templates")
			continue
		}
		pushed, err := r.pushKind(ctx, d, &tally)
		if err != nil {
			return tally, err
		}
		if d.Kind == "policy_vsmart" {
			vsmartPolicies = pushed
		}
	}

	if err := r.reattachAffected(ctx, &tally); err != nil {
		return tally, err
	}

	if r.Attach {
		if !r.vbondConfigured(ctx) {
			r.logger.Warn().Msg("vBond address is not configured on the target, skipping attach")
		} else {
			if err := r.reattach(ctx, &tally); err != nil {
				return tally, err
			}
			if err := r.reactivate(ctx, vsmartPolicies); err != nil {
				return tally, err
			}
		}
	}

	r.logger.Info().Str("tally", tally.String()).Msg("Restore complete")
	return tally, nil
}

// pushKind pushes one kind's stored items in reference order, filling the
// id map as target ids become known. It returns the items it considered.
func (r *Restore) pushKind(ctx context.Context, d catalog.Descriptor, tally *Tally) ([]types.Item, error) {
	logger := r.logger.With().Str("kind", string(d.Kind)).Logger()

	items, err := store.LoadItems(r.st, d)
	if err != nil {
		return nil, err
	}
	backupIndex, err := store.LoadIndex(r.st, d)
	if err != nil {
		return nil, err
	}
	for _, entry := range backupIndex.Entries {
		if entry.Omitted {
			logger.Warn().Str("name", entry.Name).
				Msg("Item body was omitted from the backup and cannot be restored")
		}
	}
	if len(items) == 0 {
		return nil, nil
	}
	index, err := fetchIndex(ctx, r.Ctrl, d)
	if err != nil {
		logger.Warn().Err(err).Msg("Could not list target items, skipping kind")
		return nil, nil
	}
	ordered, err := graph.PushOrder(items)
	if err != nil {
		return nil, err
	}

	// Backup ids of items pushed without the controller echoing the new
	// id back; resolved by re-reading the index afterwards.
	pendingID := map[string]string{} // name -> backup id
	for _, item := range ordered {
		if !r.Filter.Selects(item.Name) {
			tally.Skipped++
			continue
		}

		// The id mapping is recorded for every item found on the target,
		// protected ones included: references to factory defaults still
		// need rewriting to the target's own ids.
		existing, exists := index.FindByName(item.Name)
		if exists {
			r.idMap[item.ID] = existing.ID
			if item.IsProtected() || !r.Update {
				tally.Skipped++
				continue
			}
			if err := r.updateItem(ctx, d, item, existing, tally, logger); err != nil {
				return nil, err
			}
			continue
		}

		body := item.Body
		if item.FactoryDefault {
			// A factory default missing on the target, typically a
			// different software release. Push it as a regular item so
			// references to it keep resolving.
			logger.Warn().Str("name", item.Name).
				Msg("Factory default not found on target, creating it as a regular item")
			body = make(map[string]any, len(item.Body))
			for k, v := range item.Body {
				body[k] = v
			}
			body[d.FactoryDefault()] = false
		} else if item.IsProtected() {
			tally.Skipped++
			continue
		}

		rewritten, _, err := graph.Rewrite(body, r.idMap)
		if err != nil {
			return nil, err
		}
		if r.DryRun {
			logger.Info().Str("name", item.Name).Msg("Would push")
			tally.Pushed++
			continue
		}
		reply, err := r.Ctrl.PostJSON(ctx, postPath(d, rewritten), postPayload(d, rewritten))
		if err != nil {
			logger.Warn().Err(err).Str("name", item.Name).Msg("Could not push item")
			metrics.ItemFailuresTotal.WithLabelValues("restore").Inc()
			tally.Failed++
			continue
		}
		if newID, _ := reply[d.IDField].(string); newID != "" {
			r.idMap[item.ID] = newID
		} else {
			pendingID[item.Name] = item.ID
		}
		logger.Info().Str("name", item.Name).Msg("Pushed")
		metrics.ItemsPushedTotal.WithLabelValues("create").Inc()
		tally.Pushed++
	}

	if len(pendingID) > 0 {
		index, err := fetchIndex(ctx, r.Ctrl, d)
		if err != nil {
			return nil, fmt.Errorf("resolving new %s ids: %w", d.Info, err)
		}
		for _, entry := range index.Entries {
			if backupID, ok := pendingID[entry.Name]; ok {
				r.idMap[backupID] = entry.ID
			}
		}
	}
	return ordered, nil
}

// updateItem overwrites an existing item in place, but only when the
// stored body actually differs from what the target already has.
func (r *Restore) updateItem(ctx context.Context, d catalog.Descriptor, item types.Item,
	existing types.IndexEntry, tally *Tally, logger zerolog.Logger) error {

	rewritten, _, err := graph.Rewrite(item.Body, r.idMap)
	if err != nil {
		return err
	}

	current, err := fetchItem(ctx, r.Ctrl, d, existing)
	if err != nil {
		logger.Debug().Err(err).Str("name", item.Name).
			Msg("Could not read current item for comparison, updating anyway")
	} else if sameCanonical(d, rewritten, current.Body) {
		logger.Debug().Str("name", item.Name).Msg("Target item already matches, no update needed")
		tally.Skipped++
		return nil
	}

	if r.DryRun {
		logger.Info().Str("name", item.Name).Msg("Would update")
		tally.Updated++
		return nil
	}

	payload := postPayload(d, rewritten)
	payload[d.IDField] = existing.ID
	reply, err := r.Ctrl.PutJSON(ctx, d.Path.Put+"/"+existing.ID, payload)
	if err != nil {
		logger.Warn().Err(err).Str("name", item.Name).Msg("Could not update item")
		metrics.ItemFailuresTotal.WithLabelValues("restore").Inc()
		tally.Failed++
		return nil
	}

	eval := evalUpdate(reply)
	if eval.ProcessID != "" {
		logger.Info().Str("name", item.Name).Str("action", eval.ProcessID).
			Msg("Update triggered a device update action")
	}
	for _, id := range eval.MasterTemplates {
		r.needReattach[id] = true
	}
	metrics.ItemsPushedTotal.WithLabelValues("update").Inc()
	tally.Updated++
	return nil
}

// vbondConfigured checks the target has a vBond address set. Attaching
// WAN edge templates on a controller without one always fails. The result
// is checked once per run.
func (r *Restore) vbondConfigured(ctx context.Context) bool {
	if r.vbondChecked {
		return r.vbondOK
	}
	r.vbondChecked = true
	r.vbondOK = false

	rows, err := r.Ctrl.GetData(ctx, catalog.PathSettingsVbond)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Could not verify vBond configuration, proceeding")
		r.vbondOK = true
		return true
	}
	for _, row := range rows {
		if ip, _ := row["domainIp"].(string); ip != "" {
			r.vbondOK = true
			break
		}
	}
	return r.vbondOK
}

// reattachAffected re-pushes the current attachments of device templates
// the controller flagged during updates. This runs regardless of the
// attach option: the affected devices are already attached on the target
// and fall out of sync otherwise. Unlike reattach, device lists and input
// values come from the target, not the backup.
func (r *Restore) reattachAffected(ctx context.Context, tally *Tally) error {
	if len(r.needReattach) == 0 {
		return nil
	}
	d, ok := catalog.Lookup(types.Kind(types.TagDeviceTemplate))
	if !ok {
		return nil
	}
	index, err := fetchIndex(ctx, r.Ctrl, d)
	if err != nil {
		return fmt.Errorf("listing device templates for re-attach: %w", err)
	}

	var specs []action.AttachSpec
	for _, entry := range index.Entries {
		if !r.needReattach[entry.ID] {
			continue
		}
		spec, err := r.targetAttachSpec(ctx, entry)
		if err != nil {
			r.logger.Warn().Err(err).Str("name", entry.Name).
				Msg("Could not read current attachment, skipping re-attach")
			tally.Failed++
			continue
		}
		if len(spec.Devices) == 0 {
			continue
		}
		specs = append(specs, spec)
	}
	if len(specs) == 0 {
		return nil
	}

	r.logger.Info().Int("templates", len(specs)).
		Msg("Re-attaching device templates affected by updates")
	outcome, err := r.Acts.Attach(ctx, specs)
	if err != nil {
		return err
	}
	tally.Failed += outcome.Failed
	if !outcome.OK() {
		r.logger.Warn().Int("failed", outcome.Failed).Msg("Some template re-attachments failed")
	}
	return nil
}

// targetAttachSpec builds an attach spec from the template's current
// attachment state on the target.
func (r *Restore) targetAttachSpec(ctx context.Context, entry types.IndexEntry) (action.AttachSpec, error) {
	spec := action.AttachSpec{
		TemplateID:   entry.ID,
		TemplateName: entry.Name,
		IsCLI:        entry.ConfigType == "file",
	}
	rows, err := r.Ctrl.GetData(ctx, catalog.PathDeviceTemplateAttached+"/"+entry.ID)
	if err != nil {
		return spec, err
	}
	var deviceIDs []string
	for _, row := range rows {
		dev := types.AttachedDevice{}
		dev.UUID, _ = row["uuid"].(string)
		dev.Personality, _ = row["personality"].(string)
		dev.HostName, _ = row["host-name"].(string)
		dev.SystemIP, _ = row["deviceIP"].(string)
		spec.Devices = append(spec.Devices, dev)
		deviceIDs = append(deviceIDs, dev.UUID)
	}
	if len(deviceIDs) == 0 {
		return spec, nil
	}
	reply, err := r.Ctrl.PostJSON(ctx, catalog.PathDeviceTemplateInput, map[string]any{
		"templateId":     entry.ID,
		"deviceIds":      deviceIDs,
		"isEdited":       false,
		"isMasterEdited": false,
	})
	if err != nil {
		return spec, err
	}
	spec.Values = valuesRows(reply)
	return spec, nil
}

// reattach re-binds devices to the restored device templates using the
// attachment data saved with the backup.
func (r *Restore) reattach(ctx context.Context, tally *Tally) error {
	d, ok := catalog.Lookup(types.Kind(types.TagDeviceTemplate))
	if !ok {
		return nil
	}
	items, err := store.LoadItems(r.st, d)
	if err != nil {
		return err
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	extended := store.NeedExtendedNames(names)

	var specs []action.AttachSpec
	for _, item := range items {
		if !r.Filter.Selects(item.Name) {
			continue
		}
		file := store.ItemFilename(item.Name, item.ID, extended)
		att, found, err := store.LoadAttachment(r.st, file)
		if err != nil {
			return err
		}
		if !found || len(att.Devices) == 0 {
			continue
		}
		targetID, ok := r.idMap[item.ID]
		if !ok {
			r.logger.Warn().Str("name", item.Name).
				Msg("Template was not restored, skipping attach")
			continue
		}
		specs = append(specs, action.AttachSpec{
			TemplateID:   targetID,
			TemplateName: item.Name,
			IsCLI:        isCLITemplate(item.Body),
			Devices:      att.Devices,
			Values:       retargetValues(att.Values, targetID),
		})
	}
	if len(specs) == 0 {
		return nil
	}
	// WAN edge templates attach before controller templates.
	sort.SliceStable(specs, func(i, j int) bool {
		return !attachesController(specs[i]) && attachesController(specs[j])
	})
	if r.DryRun {
		r.logger.Info().Int("templates", len(specs)).Msg("Would attach device templates")
		return nil
	}

	outcome, err := r.Acts.Attach(ctx, specs)
	if err != nil {
		return err
	}
	tally.Failed += outcome.Failed
	if !outcome.OK() {
		r.logger.Warn().Int("failed", outcome.Failed).Msg("Some template attachments failed")
	}
	return nil
}

// reactivate re-activates the vSmart policy that was active when the
// backup was taken.
func (r *Restore) reactivate(ctx context.Context, policies []types.Item) error {
	for _, item := range policies {
		if active, _ := item.Body["isPolicyActivated"].(bool); !active {
			continue
		}
		targetID, ok := r.idMap[item.ID]
		if !ok {
			continue
		}
		if r.DryRun {
			r.logger.Info().Str("policy", item.Name).Msg("Would activate vSmart policy")
			return nil
		}
		outcome, err := r.Acts.ActivatePolicy(ctx, targetID, item.Name)
		if err != nil {
			return err
		}
		if !outcome.OK() {
			r.logger.Warn().Str("policy", item.Name).Msg("vSmart policy activation failed")
		}
		return nil
	}
	return nil
}

// attachesController reports whether any device of the spec is a
// controller rather than a WAN edge.
func attachesController(spec action.AttachSpec) bool {
	for _, dev := range spec.Devices {
		if dev.Personality != "" && dev.Personality != "vedge" {
			return true
		}
	}
	return false
}

// retargetValues rewrites the template id column of saved input values to
// the restored template's id.
func retargetValues(values []map[string]string, templateID string) []map[string]string {
	out := make([]map[string]string, len(values))
	for i, row := range values {
		newRow := make(map[string]string, len(row))
		for k, v := range row {
			newRow[k] = v
		}
		if _, ok := newRow["csv-templateId"]; ok {
			newRow["csv-templateId"] = templateID
		}
		out[i] = newRow
	}
	return out
}
