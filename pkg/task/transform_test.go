package task

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/sastre/pkg/catalog"
	"github.com/netops-tools/sastre/pkg/nametpl"
	"github.com/netops-tools/sastre/pkg/store"
	"github.com/netops-tools/sastre/pkg/types"
)

func TestTransformRename(t *testing.T) {
	workdir := seedBackup(t, "20.4.1")
	recipe, err := nametpl.ParseRecipe([]byte(`
tag: policy_list
name_template:
  name_regex: "{name}_v2"
`))
	require.NoError(t, err)

	dstDir := filepath.Join(t.TempDir(), "out")
	tr := &Transform{SrcDir: workdir, DstDir: dstDir, Recipe: recipe}
	tally, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)
	assert.Equal(t, 2, tally.Saved)

	dst, err := store.Open(dstDir)
	require.NoError(t, err)
	defer dst.Close()

	listDesc, _ := catalog.Lookup("policy_list/site")
	items, err := store.LoadItems(dst, listDesc)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "corp_v2", items[0].Name)
	assert.Equal(t, siteListID, items[0].ID, "ids survive the rename")

	// Untouched kinds copy through verbatim.
	defDesc, _ := catalog.Lookup("policy_definition/data")
	defs, err := store.LoadItems(dst, defDesc)
	require.NoError(t, err)
	require.Len(t, defs, 1)
	assert.Equal(t, "dp", defs[0].Name)
}

func TestTransformCopy(t *testing.T) {
	workdir := seedBackup(t, "20.4.1")
	recipe, err := nametpl.ParseRecipe([]byte(`
tag: policy_list
name_template:
  name_regex: "{name}_copy"
`))
	require.NoError(t, err)

	dstDir := filepath.Join(t.TempDir(), "out")
	tr := &Transform{SrcDir: workdir, DstDir: dstDir, Recipe: recipe, Copy: true}
	tally, err := tr.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)

	dst, err := store.Open(dstDir)
	require.NoError(t, err)
	defer dst.Close()

	listDesc, _ := catalog.Lookup("policy_list/site")
	items, err := store.LoadItems(dst, listDesc)
	require.NoError(t, err)
	require.Len(t, items, 2, "original and copy")

	byName := map[string]types.Item{}
	for _, item := range items {
		byName[item.Name] = item
	}
	original, copied := byName["corp"], byName["corp_copy"]
	assert.Equal(t, siteListID, original.ID)
	assert.NotEqual(t, original.ID, copied.ID)
	assert.NotEmpty(t, copied.ID)
}

func TestTransformCollision(t *testing.T) {
	workdir := filepath.Join(t.TempDir(), "backup")
	st, err := store.Create(workdir, false)
	require.NoError(t, err)
	require.NoError(t, store.SaveServerInfo(st, types.ServerInfo{Version: "20.4.1"}))

	listDesc, _ := catalog.Lookup("policy_list/site")
	require.NoError(t, store.SaveItems(st, listDesc, []types.Item{
		{Kind: listDesc.Kind, ID: siteListID, Name: "corp_a",
			Body: map[string]any{"listId": siteListID, "name": "corp_a"}},
		{Kind: listDesc.Kind, ID: defListID, Name: "corp_b",
			Body: map[string]any{"listId": defListID, "name": "corp_b"}},
	}))
	require.NoError(t, st.Close())

	// Both names collapse to "corp".
	recipe, err := nametpl.ParseRecipe([]byte(`
tag: policy_list
name_template:
  name_regex: "{name .*(corp).*}"
`))
	require.NoError(t, err)

	tr := &Transform{
		SrcDir: workdir,
		DstDir: filepath.Join(t.TempDir(), "out"),
		Recipe: recipe,
	}
	_, err = tr.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrNameCollision)
}

func TestTransformCarriesAttachments(t *testing.T) {
	workdir := filepath.Join(t.TempDir(), "backup")
	st, err := store.Create(workdir, false)
	require.NoError(t, err)
	require.NoError(t, store.SaveServerInfo(st, types.ServerInfo{Version: "20.4.1"}))

	tmplDesc, _ := catalog.Lookup("template_device")
	require.NoError(t, store.SaveItems(st, tmplDesc, []types.Item{{
		Kind: tmplDesc.Kind, ID: tmplID, Name: "Branch",
		Body: map[string]any{"templateId": tmplID, "templateName": "Branch"},
	}}))
	require.NoError(t, store.SaveAttachment(st, "Branch", types.Attachment{
		TemplateID:   tmplID,
		TemplateName: "Branch",
		Devices:      []types.AttachedDevice{{UUID: "dev-1"}},
	}))
	require.NoError(t, st.Close())

	recipe, err := nametpl.ParseRecipe([]byte(`
tag: template_device
name_template:
  name_regex: "{name}_v2"
`))
	require.NoError(t, err)

	dstDir := filepath.Join(t.TempDir(), "out")
	tr := &Transform{SrcDir: workdir, DstDir: dstDir, Recipe: recipe}
	_, err = tr.Run(context.Background())
	require.NoError(t, err)

	dst, err := store.Open(dstDir)
	require.NoError(t, err)
	defer dst.Close()

	att, found, err := store.LoadAttachment(dst, "Branch_v2")
	require.NoError(t, err)
	require.True(t, found, "attachment is re-filed under the new name")
	require.Len(t, att.Devices, 1)
	assert.Equal(t, "dev-1", att.Devices[0].UUID)
}
