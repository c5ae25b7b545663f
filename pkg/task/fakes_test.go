package task

import (
	"context"
	"fmt"

	"github.com/netops-tools/sastre/pkg/action"
	"github.com/netops-tools/sastre/pkg/types"
)

// fakeController is an in-memory Controller for task tests.
type fakeController struct {
	version string
	facts   map[string]any
	data    map[string][]map[string]any // GetData replies by path
	json    map[string]map[string]any   // GetJSON replies by path
	text    map[string]string

	posts   []ctrlCall
	puts    []ctrlCall
	deletes []string

	// postReply, when set, computes POST replies; otherwise empty reply.
	postReply func(path string, body any) (map[string]any, error)
	putReply  func(path string, body any) (map[string]any, error)
}

type ctrlCall struct {
	path string
	body any
}

func newFakeController(version string) *fakeController {
	return &fakeController{
		version: version,
		facts:   map[string]any{"hostname": "vmanage1"},
		data:    map[string][]map[string]any{},
		json:    map[string]map[string]any{},
		text:    map[string]string{},
	}
}

func (f *fakeController) ServerVersion() string       { return f.version }
func (f *fakeController) ServerFacts() map[string]any { return f.facts }

func (f *fakeController) GetJSON(_ context.Context, path string) (map[string]any, error) {
	if reply, ok := f.json[path]; ok {
		return reply, nil
	}
	return nil, fmt.Errorf("%w: GET %s", types.ErrNotFound, path)
}

func (f *fakeController) GetData(_ context.Context, path string) ([]map[string]any, error) {
	if rows, ok := f.data[path]; ok {
		return rows, nil
	}
	return nil, fmt.Errorf("%w: GET %s", types.ErrNotFound, path)
}

func (f *fakeController) GetText(_ context.Context, path string) (string, error) {
	if text, ok := f.text[path]; ok {
		return text, nil
	}
	return "", fmt.Errorf("%w: GET %s", types.ErrNotFound, path)
}

func (f *fakeController) PostJSON(_ context.Context, path string, body any) (map[string]any, error) {
	f.posts = append(f.posts, ctrlCall{path: path, body: body})
	if f.postReply != nil {
		return f.postReply(path, body)
	}
	return nil, nil
}

func (f *fakeController) PutJSON(_ context.Context, path string, body any) (map[string]any, error) {
	f.puts = append(f.puts, ctrlCall{path: path, body: body})
	if f.putReply != nil {
		return f.putReply(path, body)
	}
	return nil, nil
}

func (f *fakeController) Delete(_ context.Context, path, key string) error {
	f.deletes = append(f.deletes, path+"/"+key)
	return nil
}

// fakeActions records action manager calls and succeeds.
type fakeActions struct {
	attached    [][]action.AttachSpec
	detached    [][]types.AttachedDevice
	activated   []string
	deactivated []string
	synced      int
}

func (f *fakeActions) Attach(_ context.Context, specs []action.AttachSpec) (action.Outcome, error) {
	f.attached = append(f.attached, specs)
	return action.Outcome{}, nil
}

func (f *fakeActions) Detach(_ context.Context, devices []types.AttachedDevice) (action.Outcome, error) {
	f.detached = append(f.detached, devices)
	return action.Outcome{}, nil
}

func (f *fakeActions) ActivatePolicy(_ context.Context, policyID, _ string) (action.Outcome, error) {
	f.activated = append(f.activated, policyID)
	return action.Outcome{}, nil
}

func (f *fakeActions) DeactivatePolicy(_ context.Context, policyID, _ string) (action.Outcome, error) {
	f.deactivated = append(f.deactivated, policyID)
	return action.Outcome{}, nil
}

func (f *fakeActions) SyncCertificates(_ context.Context) (action.Outcome, error) {
	f.synced++
	return action.Outcome{}, nil
}
