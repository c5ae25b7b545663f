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

func TestCertificateSetMode(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data[catalog.PathEdgeCertificate] = []map[string]any{
		{"chasisNumber": "chassis-1", "serialNumber": "ser-1", "validity": "invalid"},
		{"chasisNumber": "chassis-2", "serialNumber": "ser-2", "validity": "valid"},
	}

	acts := &fakeActions{}
	c := &Certificate{Ctrl: ctrl, Acts: acts, Validity: "valid"}
	tally, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)
	assert.Equal(t, 1, tally.Skipped, "already valid device untouched")

	require.Len(t, ctrl.posts, 1)
	assert.Equal(t, catalog.PathCertificateSave, ctrl.posts[0].path)
	changes := ctrl.posts[0].body.([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "chassis-1", changes[0].(map[string]any)["chasisNumber"])
	assert.Equal(t, 1, acts.synced)
}

func TestCertificateRestoreMode(t *testing.T) {
	workdir := filepath.Join(t.TempDir(), "backup")
	st, err := store.Create(workdir, false)
	require.NoError(t, err)
	require.NoError(t, st.WriteJSON(store.DirCertificates, "wan_edge_certificates",
		[]map[string]any{
			{"chasisNumber": "chassis-1", "validity": "staging"},
		}))
	require.NoError(t, st.Close())

	ctrl := newFakeController("20.4.1")
	ctrl.data[catalog.PathEdgeCertificate] = []map[string]any{
		{"chasisNumber": "chassis-1", "serialNumber": "ser-1", "validity": "valid"},
		{"chasisNumber": "chassis-9", "serialNumber": "ser-9", "validity": "valid"},
	}

	acts := &fakeActions{}
	c := &Certificate{Ctrl: ctrl, Acts: acts, Workdir: workdir}
	tally, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)
	assert.Equal(t, 1, tally.Skipped, "device unknown to the backup untouched")

	changes := ctrl.posts[0].body.([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "staging", changes[0].(map[string]any)["validity"])
}

func TestCertificateNoChanges(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data[catalog.PathEdgeCertificate] = []map[string]any{
		{"chasisNumber": "chassis-1", "serialNumber": "ser-1", "validity": "valid"},
	}

	acts := &fakeActions{}
	c := &Certificate{Ctrl: ctrl, Acts: acts, Validity: "valid"}
	_, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ctrl.posts)
	assert.Zero(t, acts.synced)
}

func TestCertificateDryRun(t *testing.T) {
	ctrl := newFakeController("20.4.1")
	ctrl.data[catalog.PathEdgeCertificate] = []map[string]any{
		{"chasisNumber": "chassis-1", "serialNumber": "ser-1", "validity": "invalid"},
	}

	acts := &fakeActions{}
	c := &Certificate{Ctrl: ctrl, Acts: acts, Validity: "valid", DryRun: true}
	tally, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, tally.Updated)
	assert.Empty(t, ctrl.posts)
	assert.Zero(t, acts.synced)
}

func TestCertificateArgValidation(t *testing.T) {
	c := &Certificate{Ctrl: newFakeController("20.4.1"), Acts: &fakeActions{}}
	_, err := c.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrInvalidArg)
}
