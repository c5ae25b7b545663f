package action

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/log"
	"github.com/netops-tools/sastre/pkg/metrics"
	"github.com/netops-tools/sastre/pkg/rest"
	"github.com/netops-tools/sastre/pkg/types"
)

const (
	// chunkSize caps the devices per submitted action.
	chunkSize = 10
	// poolSize bounds concurrent action status pollers.
	poolSize = 10
)

// api is the slice of the REST client the manager needs. Kept narrow so
// tests can substitute a fake.
type api interface {
	PostJSON(ctx context.Context, path string, body any) (map[string]any, error)
	PollAction(ctx context.Context, actionID string, timeout, interval time.Duration) (rest.ActionResult, error)
}

// Manager submits controller actions and waits for their completion.
type Manager struct {
	api      api
	timeout  time.Duration
	interval time.Duration
	logger   zerolog.Logger
}

// NewManager wires a manager to a REST client. Zero timeout and interval
// fall back to the client defaults.
func NewManager(client *rest.Client, timeout, interval time.Duration) *Manager {
	return newManager(client, timeout, interval)
}

func newManager(a api, timeout, interval time.Duration) *Manager {
	return &Manager{
		api:      a,
		timeout:  timeout,
		interval: interval,
		logger:   log.WithComponent("action"),
	}
}

// Outcome folds the terminal states of a batch of actions.
type Outcome struct {
	Actions []rest.ActionResult
	Failed  int // actions that finished with at least one failed record
}

// OK indicates every action completed successfully.
func (o Outcome) OK() bool { return o.Failed == 0 }

// AttachSpec is one template attach request: the devices to bind and the
// per-device input values.
type AttachSpec struct {
	TemplateID   string
	TemplateName string
	IsCLI        bool
	Devices      []types.AttachedDevice
	Values       []map[string]string
}

// Attach binds devices to their device templates. Requests are chunked by
// device and submitted per template; feature and CLI templates go to
// their respective endpoints.
func (m *Manager) Attach(ctx context.Context, specs []AttachSpec) (Outcome, error) {
	var ids []string
	for _, spec := range specs {
		path := catalog.PathAttachFeature
		if spec.IsCLI {
			path = catalog.PathAttachCLI
		}
		for _, chunk := range chunkDevices(spec.Devices) {
			payload := attachPayload(spec, chunk)
			reply, err := m.api.PostJSON(ctx, path, payload)
			if err != nil {
				return Outcome{}, fmt.Errorf("attaching template %s: %w", spec.TemplateName, err)
			}
			id, err := actionID(reply)
			if err != nil {
				return Outcome{}, fmt.Errorf("attaching template %s: %w", spec.TemplateName, err)
			}
			m.logger.Info().Str("template", spec.TemplateName).
				Int("devices", len(chunk)).Str("action", id).Msg("Attach submitted")
			metrics.ActionsSubmittedTotal.WithLabelValues("attach").Inc()
			ids = append(ids, id)
		}
	}
	return m.wait(ctx, "attach", ids)
}

// Detach puts devices back in CLI mode, unbinding them from their device
// templates. Devices are grouped by personality as the endpoint requires.
func (m *Manager) Detach(ctx context.Context, devices []types.AttachedDevice) (Outcome, error) {
	byType := map[string][]types.AttachedDevice{}
	for _, dev := range devices {
		deviceType := "vedge"
		if dev.Personality == "vmanage" || dev.Personality == "vsmart" || dev.Personality == "vbond" {
			deviceType = "controller"
		}
		byType[deviceType] = append(byType[deviceType], dev)
	}

	var ids []string
	for _, deviceType := range []string{"controller", "vedge"} {
		for _, chunk := range chunkDevices(byType[deviceType]) {
			payload := detachPayload(deviceType, chunk)
			reply, err := m.api.PostJSON(ctx, catalog.PathDeviceModeCLI, payload)
			if err != nil {
				return Outcome{}, fmt.Errorf("detaching %s devices: %w", deviceType, err)
			}
			id, err := actionID(reply)
			if err != nil {
				return Outcome{}, fmt.Errorf("detaching %s devices: %w", deviceType, err)
			}
			m.logger.Info().Str("deviceType", deviceType).
				Int("devices", len(chunk)).Str("action", id).Msg("Detach submitted")
			metrics.ActionsSubmittedTotal.WithLabelValues("detach").Inc()
			ids = append(ids, id)
		}
	}
	return m.wait(ctx, "detach", ids)
}

// ActivatePolicy makes the given vSmart policy the active one.
func (m *Manager) ActivatePolicy(ctx context.Context, policyID, policyName string) (Outcome, error) {
	reply, err := m.api.PostJSON(ctx,
		catalog.PathVsmartActivate+"/"+policyID+"?confirm=true", map[string]any{})
	if err != nil {
		return Outcome{}, fmt.Errorf("activating policy %s: %w", policyName, err)
	}
	id, err := actionID(reply)
	if err != nil {
		return Outcome{}, fmt.Errorf("activating policy %s: %w", policyName, err)
	}
	m.logger.Info().Str("policy", policyName).Str("action", id).Msg("Policy activate submitted")
	metrics.ActionsSubmittedTotal.WithLabelValues("activate").Inc()
	return m.wait(ctx, "activate", []string{id})
}

// DeactivatePolicy clears the active vSmart policy.
func (m *Manager) DeactivatePolicy(ctx context.Context, policyID, policyName string) (Outcome, error) {
	reply, err := m.api.PostJSON(ctx, catalog.PathVsmartDeactivate+"/"+policyID, map[string]any{})
	if err != nil {
		return Outcome{}, fmt.Errorf("deactivating policy %s: %w", policyName, err)
	}
	id, err := actionID(reply)
	if err != nil {
		return Outcome{}, fmt.Errorf("deactivating policy %s: %w", policyName, err)
	}
	m.logger.Info().Str("policy", policyName).Str("action", id).Msg("Policy deactivate submitted")
	metrics.ActionsSubmittedTotal.WithLabelValues("deactivate").Inc()
	return m.wait(ctx, "deactivate", []string{id})
}

// SyncCertificates pushes the WAN edge certificate list to the
// controllers.
func (m *Manager) SyncCertificates(ctx context.Context) (Outcome, error) {
	reply, err := m.api.PostJSON(ctx, catalog.PathEdgeCertificateSync, map[string]any{})
	if err != nil {
		return Outcome{}, fmt.Errorf("syncing certificates: %w", err)
	}
	id, err := actionID(reply)
	if err != nil {
		return Outcome{}, fmt.Errorf("syncing certificates: %w", err)
	}
	metrics.ActionsSubmittedTotal.WithLabelValues("cert-sync").Inc()
	return m.wait(ctx, "cert-sync", []string{id})
}

// wait polls every action to completion with a bounded pool. Poll errors
// abort the whole wait; failed device records only mark the outcome.
func (m *Manager) wait(ctx context.Context, category string, ids []string) (Outcome, error) {
	outcome := Outcome{}
	if len(ids) == 0 {
		return outcome, nil
	}
	start := time.Now()
	defer func() {
		metrics.ActionDuration.WithLabelValues(category).Observe(time.Since(start).Seconds())
	}()

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(poolSize)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			result, err := m.api.PollAction(gctx, id, m.timeout, m.interval)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			outcome.Actions = append(outcome.Actions, result)
			if !result.Success {
				outcome.Failed++
				for _, rec := range result.Records {
					if rec.Status != "Success" && rec.Status != "Done" {
						m.logger.Warn().Str("action", id).Str("device", rec.HostName).
							Str("status", rec.Status).Str("activity", rec.Activity).
							Msg("Action failed on device")
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return outcome, err
	}
	return outcome, nil
}

// chunkDevices sorts devices by system IP and splits them into groups of
// at most chunkSize.
func chunkDevices(devices []types.AttachedDevice) [][]types.AttachedDevice {
	sorted := make([]types.AttachedDevice, len(devices))
	copy(sorted, devices)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].SystemIP < sorted[j].SystemIP })

	var chunks [][]types.AttachedDevice
	for len(sorted) > 0 {
		n := min(chunkSize, len(sorted))
		chunks = append(chunks, sorted[:n])
		sorted = sorted[n:]
	}
	return chunks
}

// attachPayload builds the deviceTemplateList body for one chunk, carrying
// only the value rows belonging to the chunk's devices.
func attachPayload(spec AttachSpec, devices []types.AttachedDevice) map[string]any {
	inChunk := make(map[string]bool, len(devices))
	for _, dev := range devices {
		inChunk[dev.UUID] = true
	}
	var inputs []any
	for _, row := range spec.Values {
		if inChunk[row["csv-deviceId"]] {
			inputs = append(inputs, row)
		}
	}
	return map[string]any{
		"deviceTemplateList": []any{
			map[string]any{
				"templateId":     spec.TemplateID,
				"device":         inputs,
				"isEdited":       false,
				"isMasterEdited": false,
			},
		},
	}
}

func detachPayload(deviceType string, devices []types.AttachedDevice) map[string]any {
	list := make([]any, 0, len(devices))
	for _, dev := range devices {
		list = append(list, map[string]any{
			"deviceId": dev.UUID,
			"deviceIP": dev.SystemIP,
		})
	}
	return map[string]any{
		"deviceType": deviceType,
		"devices":    list,
	}
}

func actionID(reply map[string]any) (string, error) {
	id, _ := reply["id"].(string)
	if id == "" {
		return "", fmt.Errorf("controller reply carries no action id")
	}
	return id, nil
}
