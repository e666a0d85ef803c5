package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/zugdienste/internal/ir"
)

func seedServices(t *testing.T, s *Store) {
	t.Helper()
	recs := []ir.ServiceRecord{
		createTestRecord("/zusi/Deutschland/Hamburg - Kassel/F/ICE 71", "Hamburg - Kassel", "BR 412 (ICE 4)"),
		createTestRecord("/zusi/Deutschland/Hamburg - Kassel/F/RE 2", "Hamburg - Kassel", "BR 146"),
		createTestRecord("/zusi/Deutschland/Ruhr-Sieg/F/RB 91", "Ruhr-Sieg", "BR 648"),
	}
	recs[2].Origin = ir.OriginUser
	recs[2].Kind = ir.KindCargo

	for _, rec := range recs {
		_, err := s.UpsertService(t.Context(), rec, "scan-1", testTime)
		require.NoError(t, err)
	}
}

func TestListServices(t *testing.T) {
	s := createTestStore(t)
	seedServices(t, s)
	ctx := t.Context()

	all, err := s.ListServices(ctx, ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "Hamburg - Kassel", all[0].Route)
	assert.Equal(t, "Ruhr-Sieg", all[2].Route)

	byRoute, err := s.ListServices(ctx, ListFilter{Route: "kassel"})
	require.NoError(t, err)
	assert.Len(t, byRoute, 2)

	byLoco, err := s.ListServices(ctx, ListFilter{Locomotive: "ice 4"})
	require.NoError(t, err)
	require.Len(t, byLoco, 1)
	assert.Equal(t, "BR 412 (ICE 4)", byLoco[0].Locomotive)

	user, err := s.ListServices(ctx, ListFilter{Origin: ir.OriginUser})
	require.NoError(t, err)
	assert.Len(t, user, 1)

	cargo, err := s.ListServices(ctx, ListFilter{Kind: ir.KindCargo})
	require.NoError(t, err)
	assert.Len(t, cargo, 1)

	limited, err := s.ListServices(ctx, ListFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := s.ListServices(ctx, ListFilter{Route: "Berlin"})
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}

func TestStats(t *testing.T) {
	s := createTestStore(t)
	ctx := t.Context()

	empty, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, empty.Services)
	assert.Nil(t, empty.LastRun)

	seedServices(t, s)
	require.NoError(t, s.BeginRun(ctx, ir.ScanRun{ID: "r1", StartedAt: testTime, Status: ir.RunStatusRunning}))

	st, err := s.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.Services)
	assert.Equal(t, int64(2), st.Routes)
	assert.Equal(t, map[ir.Origin]int64{ir.OriginInstallation: 2, ir.OriginUser: 1}, st.ByOrigin)
	assert.Equal(t, map[ir.ServiceKind]int64{ir.KindPassenger: 2, ir.KindCargo: 1}, st.ByKind)
	require.NotNil(t, st.LastRun)
	assert.Equal(t, "r1", st.LastRun.ID)
}
