package migrate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netops-tools/sastre/pkg/types"
)

func TestDefaultRecipe(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)
	assert.Equal(t, "20.1", r.ToVersion)
	assert.Equal(t, "migrated_{name}", r.NameTemplate)
	assert.NotEmpty(t, r.FeatureTemplates)

	assert.True(t, r.Applies("19.2.3"))
	assert.True(t, r.Applies("18.4.302"))
	assert.False(t, r.Applies("20.4.1"))
	assert.False(t, r.Applies("17.2.0"))
}

func TestApplyFeatureRenamesCEdgeTypes(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	body := map[string]any{
		"templateType": "vpn-vedge",
		"deviceType":   "vedge-CSR-1000v",
		"templateName": "corp_vpn",
	}
	fired := r.ApplyFeature(body)
	assert.Greater(t, fired, 0)
	assert.Equal(t, "cisco_vpn", body["templateType"])
	assert.Equal(t, "15.0.0", body["templateMinVersion"])
}

func TestApplyFeatureLeavesVedgeAlone(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	body := map[string]any{
		"templateType": "vpn-vedge",
		"deviceType":   "vedge-cloud",
	}
	r.ApplyFeature(body)
	assert.Equal(t, "vpn-vedge", body["templateType"])
}

func TestApplyDeviceRemovesAttachState(t *testing.T) {
	r, err := Default()
	require.NoError(t, err)

	body := map[string]any{
		"templateName":                 "Branch",
		"connectionPreference":         true,
		"connectionPreferenceRequired": true,
	}
	fired := r.ApplyDevice(body)
	assert.Equal(t, 1, fired)
	assert.NotContains(t, body, "connectionPreference")
	assert.NotContains(t, body, "connectionPreferenceRequired")
	assert.Contains(t, body, "templateName")
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"missing to_version", "from_versions: ['19.2']"},
		{"bad regex", "to_version: '20.1'\nfeature_templates:\n  - match: {templateType: '(['}"},
		{"not yaml", ": ["},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrInvalidRecipe)
		})
	}
}

func TestPathHelpers(t *testing.T) {
	body := map[string]any{
		"a": map[string]any{"b": "x"},
	}
	assert.Equal(t, "x", getPath(body, "a.b"))
	assert.Nil(t, getPath(body, "a.b.c"))
	assert.Nil(t, getPath(body, "missing"))

	setPath(body, "a.c.d", 1)
	assert.Equal(t, 1, getPath(body, "a.c.d"))

	removePath(body, "a.b")
	assert.Nil(t, getPath(body, "a.b"))
	removePath(body, "no.such.path")
}
