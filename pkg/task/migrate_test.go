package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/migrate"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

const featureID = "55555555-5555-5555-5555-555555555555"

func seedOldBackup(t *testing.T, version string) string {
	t.Helper()
	workdir := filepath.Join(t.TempDir(), "backup")
	st, err := store.Create(workdir, false)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, store.SaveServerInfo(st, types.ServerInfo{Version: version}))

	featDesc, _ := catalog.Lookup("template_feature")
	require.NoError(t, store.SaveItems(st, featDesc, []types.Item{{
		Kind: featDesc.Kind, ID: featureID, Name: "corp_vpn",
		Body: map[string]any{
			"templateId":   featureID,
			"templateName": "corp_vpn",
			"templateType": "vpn-vedge",
			"deviceType":   "vedge-CSR-1000v",
		},
	}}))

	listDesc, _ := catalog.Lookup("policy_list/site")
	require.NoError(t, store.SaveItems(st, listDesc, []types.Item{{
		Kind: listDesc.Kind, ID: siteListID, Name: "corp",
		Body: map[string]any{"listId": siteListID, "name": "corp"},
	}}))
	return workdir
}

func TestMigrate(t *testing.T) {
	workdir := seedOldBackup(t, "19.2.3")
	recipe, err := migrate.Default()
	require.NoError(t, err)

	dstDir := filepath.Join(t.TempDir(), "out")
	m := &Migrate{SrcDir: workdir, DstDir: dstDir, Recipe: recipe}
	tally, err := m.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)
	assert.Equal(t, 2, tally.Saved)

	dst, err := store.Open(dstDir)
	require.NoError(t, err)
	defer dst.Close()

	info, err := store.LoadServerInfo(dst)
	require.NoError(t, err)
	assert.Equal(t, "20.1", info.Version)

	featDesc, _ := catalog.Lookup("template_feature")
	items, err := store.LoadItems(dst, featDesc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "migrated_corp_vpn", items[0].Name)
	assert.Equal(t, "cisco_vpn", items[0].Body["templateType"])
	assert.Equal(t, featureID, items[0].ID, "ids survive migration")

	// Non-template kinds pass through untouched.
	listDesc, _ := catalog.Lookup("policy_list/site")
	lists, err := store.LoadItems(dst, listDesc)
	require.NoError(t, err)
	require.Len(t, lists, 1)
	assert.Equal(t, "corp", lists[0].Name)
}

func TestMigrateRejectsUnknownSource(t *testing.T) {
	workdir := seedOldBackup(t, "20.4.1")
	recipe, err := migrate.Default()
	require.NoError(t, err)

	m := &Migrate{
		SrcDir: workdir,
		DstDir: filepath.Join(t.TempDir(), "out"),
		Recipe: recipe,
	}
	_, err = m.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrVersionUnsupported)
}

func TestMigrateNameTemplateOverride(t *testing.T) {
	workdir := seedOldBackup(t, "19.2.3")
	recipe, err := migrate.Default()
	require.NoError(t, err)

	dstDir := filepath.Join(t.TempDir(), "out")
	m := &Migrate{
		SrcDir:       workdir,
		DstDir:       dstDir,
		Recipe:       recipe,
		NameTemplate: "{name}_201",
	}
	_, err = m.Run(context.Background())
	require.NoError(t, err)

	dst, err := store.Open(dstDir)
	require.NoError(t, err)
	defer dst.Close()

	featDesc, _ := catalog.Lookup("template_feature")
	items, err := store.LoadItems(dst, featDesc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "corp_vpn_201", items[0].Name)
}
