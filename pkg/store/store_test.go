package store

import (
	"archive/zip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/types"
)

func TestSafeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Branch_Template", "Branch_Template"},
		{"slash and colon", "VPN 10: corp/dmz", "VPN 10_ corp_dmz"},
		{"dash and space kept", "G Branch-201", "G Branch-201"},
		{"unicode punctuation", "edge(v2)", "edge_v2_"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SafeFilename(tt.in))
		})
	}
}

func TestNeedExtendedNames(t *testing.T) {
	assert.False(t, NeedExtendedNames([]string{"one", "two"}))
	// Distinct names colliding after sanitizing.
	assert.True(t, NeedExtendedNames([]string{"vpn/10", "vpn:10"}))
	assert.False(t, NeedExtendedNames(nil))
}

func TestCreateWriteRead(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backup")
	s, err := Create(root, false)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.WriteJSON("policy_lists/Site", "corp", map[string]any{
		"listId": "abc", "name": "corp",
	}))

	var body map[string]any
	require.NoError(t, s.ReadJSON("policy_lists/Site", "corp", &body))
	assert.Equal(t, "abc", body["listId"])

	names, err := s.List("policy_lists/Site")
	require.NoError(t, err)
	assert.Equal(t, []string{"corp"}, names)

	assert.True(t, s.Exists("policy_lists/Site", "corp"))
	assert.False(t, s.Exists("policy_lists/Site", "other"))

	// Missing directories list as empty, not as an error.
	names, err = s.List("policy_lists/Color")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestCreateLock(t *testing.T) {
	root := filepath.Join(t.TempDir(), "backup")
	s, err := Create(root, false)
	require.NoError(t, err)

	_, err = Create(root, true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locked")

	require.NoError(t, s.Close())
	s2, err := Create(root, true)
	require.NoError(t, err)
	require.NoError(t, s2.Close())
}

func TestRollover(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "backup")

	// Nothing to roll over.
	moved, err := Rollover(root)
	require.NoError(t, err)
	assert.Empty(t, moved)

	require.NoError(t, os.MkdirAll(root, 0o755))
	moved, err = Rollover(root)
	require.NoError(t, err)
	assert.Equal(t, root+"_1", moved)

	require.NoError(t, os.MkdirAll(root, 0o755))
	moved, err = Rollover(root)
	require.NoError(t, err)
	assert.Equal(t, root+"_2", moved)

	_, err = os.Stat(root)
	assert.True(t, os.IsNotExist(err))
}

func TestServerInfoRoundTrip(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	info := types.ServerInfo{Version: "20.4.1", Hostname: "vmanage1"}
	require.NoError(t, SaveServerInfo(s, info))

	got, err := LoadServerInfo(s)
	require.NoError(t, err)
	assert.Equal(t, info, got)
}

func TestSaveLoadItems(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	d, ok := catalog.Lookup("policy_list/site")
	require.True(t, ok)

	items := []types.Item{
		{Kind: d.Kind, ID: "id-1", Name: "corp", Body: map[string]any{
			"listId": "id-1", "name": "corp",
		}},
		{Kind: d.Kind, ID: "id-2", Name: "branches", Body: map[string]any{
			"listId": "id-2", "name": "branches", "factoryDefault": true,
		}},
	}
	require.NoError(t, SaveItems(s, d, items))

	got, err := LoadItems(s, d)
	require.NoError(t, err)
	require.Len(t, got, 2)

	byName := map[string]types.Item{}
	for _, item := range got {
		byName[item.Name] = item
	}
	assert.Equal(t, "id-1", byName["corp"].ID)
	assert.True(t, byName["branches"].FactoryDefault)
}

func TestSaveItemsExtendedNames(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	d, ok := catalog.Lookup("policy_list/vpn")
	require.True(t, ok)

	// Both names sanitize to "vpn_10", forcing extended file names.
	items := []types.Item{
		{Kind: d.Kind, ID: "id-1", Name: "vpn/10", Body: map[string]any{
			"listId": "id-1", "name": "vpn/10",
		}},
		{Kind: d.Kind, ID: "id-2", Name: "vpn:10", Body: map[string]any{
			"listId": "id-2", "name": "vpn:10",
		}},
	}
	require.NoError(t, SaveItems(s, d, items))

	assert.True(t, s.Exists(d.StoreDir, "vpn_10_id-1"))
	assert.True(t, s.Exists(d.StoreDir, "vpn_10_id-2"))

	got, err := LoadItems(s, d)
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestIndexRoundTrip(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	d, ok := catalog.Lookup("policy_list/site")
	require.True(t, ok)

	items := []types.Item{
		{Kind: d.Kind, ID: "id-1", Name: "corp", Body: map[string]any{
			"listId": "id-1", "name": "corp",
		}},
	}
	require.NoError(t, SaveItems(s, d, items))

	// SaveItems derives a minimal index on its own.
	index, err := LoadIndex(s, d)
	require.NoError(t, err)
	require.Len(t, index.Entries, 1)
	assert.Equal(t, "corp", index.Entries[0].Name)

	// A richer index written afterwards replaces the derived one.
	index.Entries = append(index.Entries, types.IndexEntry{
		ID: "id-2", Name: "unreadable", Omitted: true,
	})
	require.NoError(t, SaveIndex(s, d, index))

	got, err := LoadIndex(s, d)
	require.NoError(t, err)
	require.Len(t, got.Entries, 2)
	assert.True(t, got.Entries[1].Omitted)

	// The index file never comes back as an item.
	loaded, err := LoadItems(s, d)
	require.NoError(t, err)
	assert.Len(t, loaded, 1)
}

func TestLoadIndexMissing(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	d, ok := catalog.Lookup("policy_list/site")
	require.True(t, ok)

	// No items and no index: fine, the kind was never backed up.
	index, err := LoadIndex(s, d)
	require.NoError(t, err)
	assert.Empty(t, index.Entries)

	// Items without an index mean a truncated backup.
	require.NoError(t, s.WriteJSON(d.StoreDir, "corp", map[string]any{
		"listId": "id-1", "name": "corp",
	}))
	_, err = LoadIndex(s, d)
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidBackup)
}

func TestAttachmentRoundTrip(t *testing.T) {
	s, err := Create(filepath.Join(t.TempDir(), "backup"), false)
	require.NoError(t, err)
	defer s.Close()

	att := types.Attachment{
		TemplateID:   "tid",
		TemplateName: "Branch",
		Devices: []types.AttachedDevice{
			{UUID: "uuid-1", Personality: "vedge", HostName: "br1", SystemIP: "10.0.0.1"},
		},
		Values: []map[string]string{{"csv-deviceId": "uuid-1", "//system/host-name": "br1"}},
	}
	require.NoError(t, SaveAttachment(s, "Branch", att))

	got, found, err := LoadAttachment(s, "Branch")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, att.Devices, got.Devices)
	assert.Equal(t, att.Values, got.Values)

	_, found, err = LoadAttachment(s, "Missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestZipBackup(t *testing.T) {
	dir := t.TempDir()
	zipPath := filepath.Join(dir, "backup.zip")

	f, err := os.Create(zipPath)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	// Archives made with "zip -r backup.zip backup_host" carry the
	// workdir as a shared top-level directory.
	for name, content := range map[string]string{
		"backup_host/server_info.json":            `{"serverVersion": "20.4.1"}`,
		"backup_host/policy_lists/Site/corp.json": `{"listId": "id-1", "name": "corp"}`,
	} {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())

	s, err := Open(zipPath)
	require.NoError(t, err)
	defer s.Close()

	assert.True(t, s.ReadOnly())

	info, err := LoadServerInfo(s)
	require.NoError(t, err)
	assert.Equal(t, "20.4.1", info.Version)

	names, err := s.List("policy_lists/Site")
	require.NoError(t, err)
	assert.Equal(t, []string{"corp"}, names)

	var body map[string]any
	require.NoError(t, s.ReadJSON("policy_lists/Site", "corp", &body))
	assert.Equal(t, "corp", body["name"])

	err = s.WriteJSON("policy_lists/Site", "new", body)
	assert.Error(t, err)
}
