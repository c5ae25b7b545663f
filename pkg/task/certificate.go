package task

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

// Certificate manages WAN edge certificate validity: either restoring the
// per-device status recorded in a backup, or forcing every device to one
// status. Changes are pushed to the controllers with a certificate sync.
type Certificate struct {
	Ctrl Controller
	Acts Actions

	// Workdir selects restore mode: statuses come from the backup.
	Workdir string
	// Validity selects set mode: every WAN edge gets this status.
	Validity string
	DryRun   bool

	logger zerolog.Logger
}

// Run executes the certificate task.
func (c *Certificate) Run(ctx context.Context) (Tally, error) {
	c.logger = log.WithTask("certificate")
	var tally Tally

	wanted, err := c.wantedValidity(ctx)
	if err != nil {
		return tally, err
	}

	current, err := c.Ctrl.GetData(ctx, catalog.PathEdgeCertificate)
	if err != nil {
		return tally, fmt.Errorf("retrieving WAN edge certificates: %w", err)
	}

	var changes []any
	for _, row := range current {
		chassis, _ := row["chasisNumber"].(string)
		serial, _ := row["serialNumber"].(string)
		validity, _ := row["validity"].(string)
		if chassis == "" || serial == "" {
			continue
		}
		target, ok := wanted(chassis)
		if !ok || target == validity {
			tally.Skipped++
			continue
		}
		c.logger.Info().Str("chassis", chassis).Str("from", validity).Str("to", target).
			Msg("Certificate status change")
		changes = append(changes, map[string]any{
			"chasisNumber": chassis,
			"serialNumber": serial,
			"validity":     target,
		})
		tally.Updated++
	}

	if len(changes) == 0 {
		c.logger.Info().Msg("No certificate status changes needed")
		return tally, nil
	}
	if c.DryRun {
		c.logger.Info().Int("devices", len(changes)).Msg("Would update certificate statuses")
		return tally, nil
	}

	if _, err := c.Ctrl.PostJSON(ctx, catalog.PathCertificateSave, changes); err != nil {
		return tally, fmt.Errorf("saving certificate statuses: %w", err)
	}
	outcome, err := c.Acts.SyncCertificates(ctx)
	if err != nil {
		return tally, err
	}
	if !outcome.OK() {
		c.logger.Warn().Msg("Certificate sync reported failures")
		tally.Failed += outcome.Failed
	}
	c.logger.Info().Str("tally", tally.String()).Msg("Certificate task complete")
	return tally, nil
}

// wantedValidity returns a lookup from chassis number to the desired
// status, from the backup in restore mode or constant in set mode.
func (c *Certificate) wantedValidity(_ context.Context) (func(string) (string, bool), error) {
	if c.Workdir == "" {
		if c.Validity == "" {
			return nil, fmt.Errorf("%w: either a workdir or a validity status is required",
				types.ErrInvalidArg)
		}
		return func(string) (string, bool) { return c.Validity, true }, nil
	}

	st, err := store.Open(c.Workdir)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	var rows []map[string]any
	if err := st.ReadJSON(store.DirCertificates, "wan_edge_certificates", &rows); err != nil {
		return nil, fmt.Errorf("%w: backup has no certificate data: %s",
			types.ErrInvalidBackup, err)
	}
	saved := make(map[string]string, len(rows))
	for _, row := range rows {
		chassis, _ := row["chasisNumber"].(string)
		validity, _ := row["validity"].(string)
		if chassis != "" && validity != "" {
			saved[chassis] = validity
		}
	}
	return func(chassis string) (string, bool) {
		v, ok := saved[chassis]
		return v, ok
	}, nil
}
