package task

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/netops-tools/sastre/pkg/action"
	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/types"
)

// Controller is the slice of the REST client the tasks consume.
type Controller interface {
	ServerVersion() string
	ServerFacts() map[string]any
	GetJSON(ctx context.Context, path string) (map[string]any, error)
	GetData(ctx context.Context, path string) ([]map[string]any, error)
	GetText(ctx context.Context, path string) (string, error)
	PostJSON(ctx context.Context, path string, body any) (map[string]any, error)
	PutJSON(ctx context.Context, path string, body any) (map[string]any, error)
	Delete(ctx context.Context, path, key string) error
}

// Actions is the slice of the action manager the tasks consume.
type Actions interface {
	Attach(ctx context.Context, specs []action.AttachSpec) (action.Outcome, error)
	Detach(ctx context.Context, devices []types.AttachedDevice) (action.Outcome, error)
	ActivatePolicy(ctx context.Context, policyID, policyName string) (action.Outcome, error)
	DeactivatePolicy(ctx context.Context, policyID, policyName string) (action.Outcome, error)
	SyncCertificates(ctx context.Context) (action.Outcome, error)
}

// Tally counts what a task did to individual items.
type Tally struct {
	Saved   int
	Pushed  int
	Updated int
	Deleted int
	Skipped int
	Failed  int
}

// Add folds another tally into this one.
func (t *Tally) Add(other Tally) {
	t.Saved += other.Saved
	t.Pushed += other.Pushed
	t.Updated += other.Updated
	t.Deleted += other.Deleted
	t.Skipped += other.Skipped
	t.Failed += other.Failed
}

func (t Tally) String() string {
	return fmt.Sprintf("saved %d, pushed %d, updated %d, deleted %d, skipped %d, failed %d",
		t.Saved, t.Pushed, t.Updated, t.Deleted, t.Skipped, t.Failed)
}

// Filter selects items by name.
type Filter struct {
	Include *regexp.Regexp // nil selects everything
	Exclude *regexp.Regexp
}

// NewFilter compiles the optional include and exclude regular expressions.
func NewFilter(include, exclude string) (Filter, error) {
	var f Filter
	var err error
	if include != "" {
		if f.Include, err = regexp.Compile(include); err != nil {
			return f, fmt.Errorf("%w: invalid regex %q: %s", types.ErrInvalidArg, include, err)
		}
	}
	if exclude != "" {
		if f.Exclude, err = regexp.Compile(exclude); err != nil {
			return f, fmt.Errorf("%w: invalid regex %q: %s", types.ErrInvalidArg, exclude, err)
		}
	}
	return f, nil
}

// Selects reports whether the filter picks the given item name.
func (f Filter) Selects(name string) bool {
	if f.Include != nil && !f.Include.MatchString(name) {
		return false
	}
	if f.Exclude != nil && f.Exclude.MatchString(name) {
		return false
	}
	return true
}

// indexPath returns the list endpoint of a kind. The DELETE base path
// doubles as the index path for every kind in the catalog.
func indexPath(d catalog.Descriptor) string {
	return d.Path.Delete
}

// itemPath returns the endpoint for one item's full body.
func itemPath(d catalog.Descriptor, id string) string {
	return d.Path.Get + "/" + id
}

// fetchIndex lists the items of one kind currently on the controller.
func fetchIndex(ctx context.Context, ctrl Controller, d catalog.Descriptor) (types.Index, error) {
	rows, err := ctrl.GetData(ctx, indexPath(d))
	if err != nil {
		return types.Index{}, fmt.Errorf("listing %s: %w", d.Info, err)
	}

	index := types.Index{Kind: d.Kind}
	for _, row := range rows {
		entry := types.IndexEntry{}
		entry.ID, _ = row[d.IDField].(string)
		entry.Name, _ = row[d.NameField].(string)
		entry.FactoryDefault, _ = row[d.FactoryDefault()].(bool)
		entry.ConfigType, _ = row["configType"].(string)
		entry.Active, _ = row["isPolicyActivated"].(bool)
		if n, ok := row["devicesAttached"].(float64); ok {
			entry.Attached = int(n)
		}
		if entry.ID == "" {
			continue
		}
		index.Entries = append(index.Entries, entry)
	}
	return index, nil
}

// fetchItem retrieves one item's full body.
func fetchItem(ctx context.Context, ctrl Controller, d catalog.Descriptor, entry types.IndexEntry) (types.Item, error) {
	body, err := ctrl.GetJSON(ctx, itemPath(d, entry.ID))
	if err != nil {
		return types.Item{}, fmt.Errorf("retrieving %s %s: %w", d.Info, entry.Name, err)
	}
	item := types.Item{
		Kind:           d.Kind,
		ID:             entry.ID,
		Name:           entry.Name,
		FactoryDefault: entry.FactoryDefault,
		Body:           body,
	}
	item.ReadOnly, _ = body["readOnly"].(bool)
	item.Owner, _ = body["owner"].(string)
	return item, nil
}

// alwaysFiltered are body fields never included in POST payloads.
var alwaysFiltered = []string{"@rid", "createdOn", "createdBy", "lastUpdatedOn", "lastUpdatedBy"}

// postPayload builds a creation payload from an item body: the id field
// and the controller-owned metadata fields are dropped.
func postPayload(d catalog.Descriptor, body map[string]any) map[string]any {
	payload := make(map[string]any, len(body))
	for k, v := range body {
		payload[k] = v
	}
	delete(payload, d.IDField)
	for _, field := range alwaysFiltered {
		delete(payload, field)
	}
	for _, field := range d.PostFiltered {
		delete(payload, field)
	}
	return payload
}

// postPath picks the creation endpoint: CLI device templates post to the
// alternate path.
func postPath(d catalog.Descriptor, body map[string]any) string {
	if d.AltPost != "" {
		if configType, _ := body["configType"].(string); strings.EqualFold(configType, "file") {
			return d.AltPost
		}
	}
	return d.Path.Post
}

// sameCanonical reports whether two item bodies match once the id field,
// the controller-owned metadata and the kind's volatile fields are set
// aside. Map keys marshal in sorted order, so the comparison is stable.
func sameCanonical(d catalog.Descriptor, a, b map[string]any) bool {
	ca, errA := canonicalBody(d, a)
	cb, errB := canonicalBody(d, b)
	return errA == nil && errB == nil && bytes.Equal(ca, cb)
}

func canonicalBody(d catalog.Descriptor, body map[string]any) ([]byte, error) {
	trimmed := make(map[string]any, len(body))
	for k, v := range body {
		trimmed[k] = v
	}
	delete(trimmed, d.IDField)
	for _, field := range alwaysFiltered {
		delete(trimmed, field)
	}
	for _, field := range d.PostFiltered {
		delete(trimmed, field)
	}
	for _, field := range d.SkipCmp {
		delete(trimmed, field)
	}
	return json.Marshal(trimmed)
}

// isCLITemplate reports whether a device template body is CLI based.
func isCLITemplate(body map[string]any) bool {
	configType, _ := body["configType"].(string)
	return strings.EqualFold(configType, "file")
}

// updateEval classifies a PUT reply. Updating a template in use makes the
// controller either kick off a device update action (a processId comes
// back) or report the master templates that now need a re-attach.
type updateEval struct {
	ProcessID       string
	MasterTemplates []string
}

func evalUpdate(reply map[string]any) updateEval {
	var eval updateEval
	if reply == nil {
		return eval
	}
	eval.ProcessID, _ = reply["processId"].(string)
	if list, ok := reply["masterTemplatesAffected"].([]any); ok {
		for _, entry := range list {
			if id, ok := entry.(string); ok {
				eval.MasterTemplates = append(eval.MasterTemplates, id)
			}
		}
	}
	return eval
}
