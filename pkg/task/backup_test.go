package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

const (
	siteListID = "11111111-1111-1111-1111-111111111111"
	defListID  = "22222222-2222-2222-2222-222222222222"
	tmplID     = "33333333-3333-3333-3333-333333333333"
)

func TestBackupPolicyLists(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data["template/policy/list/site"] = []map[string]any{
		{"listId": siteListID, "name": "corp"},
		{"listId": defListID, "name": "Default_Site", "factoryDefault": true},
	}
	ctrl.json["template/policy/list/site/"+siteListID] = map[string]any{
		"listId": siteListID, "name": "corp", "entries": []any{map[string]any{"siteId": "100"}},
	}
	ctrl.json["template/policy/list/site/"+defListID] = map[string]any{
		"listId": defListID, "name": "Default_Site", "factoryDefault": true,
	}

	workdir := filepath.Join(t.TempDir(), "backup")
	b := &Backup{
		Ctrl:    ctrl,
		Workdir: workdir,
		Tags:    []types.Tag{types.TagPolicyList},
	}
	tally, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, tally.Saved, "factory defaults are saved too")
	assert.Zero(t, tally.Failed)

	st, err := store.Open(workdir)
	require.NoError(t, err)
	defer st.Close()

	info, err := store.LoadServerInfo(st)
	require.NoError(t, err)
	assert.Equal(t, "20.4.1", info.Version)
	assert.Equal(t, "vmanage1", info.Hostname)

	d, _ := catalog.Lookup("policy_list/site")
	items, err := store.LoadItems(st, d)
	require.NoError(t, err)
	require.Len(t, items, 2)

	index, err := store.LoadIndex(st, d)
	require.NoError(t, err)
	require.Len(t, index.Entries, 2)
	entry, ok := index.FindByName("Default_Site")
	require.True(t, ok)
	assert.True(t, entry.FactoryDefault)
}

func TestBackupMarksUnreadableItemsOmitted(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data["template/policy/list/site"] = []map[string]any{
		{"listId": siteListID, "name": "corp"},
		{"listId": defListID, "name": "broken"},
	}
	// Only corp's body is retrievable.
	ctrl.json["template/policy/list/site/"+siteListID] = map[string]any{
		"listId": siteListID, "name": "corp",
	}

	workdir := filepath.Join(t.TempDir(), "backup")
	b := &Backup{
		Ctrl:    ctrl,
		Workdir: workdir,
		Tags:    []types.Tag{types.TagPolicyList},
	}
	tally, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Saved)
	assert.Equal(t, 1, tally.Failed)

	st, err := store.Open(workdir)
	require.NoError(t, err)
	defer st.Close()

	d, _ := catalog.Lookup("policy_list/site")
	index, err := store.LoadIndex(st, d)
	require.NoError(t, err)
	require.Len(t, index.Entries, 2)
	entry, ok := index.FindByName("broken")
	require.True(t, ok)
	assert.True(t, entry.Omitted)
	entry, ok = index.FindByName("corp")
	require.True(t, ok)
	assert.False(t, entry.Omitted)
}

func TestBackupDeviceTemplateAttachment(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data["template/device"] = []map[string]any{
		{"templateId": tmplID, "templateName": "Branch", "devicesAttached": float64(1)},
	}
	ctrl.json["template/device/object/"+tmplID] = map[string]any{
		"templateId": tmplID, "templateName": "Branch", "configType": "template",
	}
	ctrl.data[catalog.PathDeviceTemplateAttached+"/"+tmplID] = []map[string]any{
		{"uuid": "dev-1", "personality": "vedge", "host-name": "br1", "deviceIP": "10.0.0.1"},
	}
	ctrl.postReply = func(path string, _ any) (map[string]any, error) {
		if path == catalog.PathDeviceTemplateInput {
			return map[string]any{"data": []any{
				map[string]any{"csv-deviceId": "dev-1", "csv-host-name": "br1"},
			}}, nil
		}
		return nil, nil
	}

	workdir := filepath.Join(t.TempDir(), "backup")
	b := &Backup{
		Ctrl:    ctrl,
		Workdir: workdir,
		Tags:    []types.Tag{types.TagDeviceTemplate},
	}
	tally, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Saved)

	st, err := store.Open(workdir)
	require.NoError(t, err)
	defer st.Close()

	att, found, err := store.LoadAttachment(st, "Branch")
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, att.Devices, 1)
	assert.Equal(t, "dev-1", att.Devices[0].UUID)
	require.Len(t, att.Values, 1)
	assert.Equal(t, "br1", att.Values[0]["csv-host-name"])
}

func TestBackupFilter(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data["template/policy/list/site"] = []map[string]any{
		{"listId": siteListID, "name": "corp"},
		{"listId": defListID, "name": "lab"},
	}
	ctrl.json["template/policy/list/site/"+defListID] = map[string]any{
		"listId": defListID, "name": "lab",
	}

	filter, err := NewFilter("^lab", "")
	require.NoError(t, err)

	b := &Backup{
		Ctrl:    ctrl,
		Workdir: filepath.Join(t.TempDir(), "backup"),
		Tags:    []types.Tag{types.TagPolicyList},
		Filter:  filter,
	}
	tally, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Saved)
}

func TestBackupDryRunWritesNothing(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data["template/policy/list/site"] = []map[string]any{
		{"listId": siteListID, "name": "corp"},
	}

	workdir := filepath.Join(t.TempDir(), "backup")
	b := &Backup{
		Ctrl:    ctrl,
		Workdir: workdir,
		Tags:    []types.Tag{types.TagPolicyList},
		DryRun:  true,
	}
	tally, err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Saved)

	_, err = store.Open(workdir)
	assert.Error(t, err, "dry run must not create the workdir")
}
