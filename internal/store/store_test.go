package store

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/sceneview/internal/config"
	"github.com/banshee-data/sceneview/internal/display"
	"github.com/banshee-data/sceneview/internal/geom"
	"github.com/banshee-data/sceneview/internal/monitoring"
	"github.com/banshee-data/sceneview/internal/render"
	"github.com/banshee-data/sceneview/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "sceneview.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpen_MigratesToLatest(t *testing.T) {
	s := openTestStore(t)

	version, dirty, err := s.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(2), version)
	assert.False(t, dirty)

	// running again is a no-op
	require.NoError(t, s.MigrateUp())
}

func TestDisplayConfig_SaveLoad(t *testing.T) {
	s := openTestStore(t)
	clock := timeutil.NewMockClock(time.Unix(1000, 0))
	s.SetClock(clock)
	ctx := context.Background()

	settings := display.DefaultSettings()
	settings.SceneTopic = "monitored_planning_scene"
	cfg := config.FromSettings(settings)
	cfg.LinkColors = map[string]geom.Color{"link1": {R: 1}}

	require.NoError(t, s.SaveDisplayConfig(ctx, "planning_scene", cfg))
	got, err := s.LoadDisplayConfig(ctx, "planning_scene")
	require.NoError(t, err)
	if diff := cmp.Diff(cfg, got); diff != "" {
		t.Errorf("loaded config mismatch (-want +got):\n%s", diff)
	}

	// saving again replaces the row and keeps its id
	clock.Advance(time.Minute)
	before, err := s.ListDisplayConfigs(ctx)
	require.NoError(t, err)
	cfg.SceneAlpha = nil
	require.NoError(t, s.SaveDisplayConfig(ctx, "planning_scene", cfg))
	after, err := s.ListDisplayConfigs(ctx)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, before[0].ID, after[0].ID)
	assert.Equal(t, time.Unix(1000, 0).UTC(), after[0].CreatedAt)
	assert.Equal(t, time.Unix(1060, 0).UTC(), after[0].UpdatedAt)

	got, err = s.LoadDisplayConfig(ctx, "planning_scene")
	require.NoError(t, err)
	assert.Nil(t, got.SceneAlpha)
}

func TestDisplayConfig_Errors(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LoadDisplayConfig(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteDisplayConfig(ctx, "missing"), ErrNotFound)

	assert.Error(t, s.SaveDisplayConfig(ctx, "", config.DefaultDisplayConfig()))
	bad := config.DefaultDisplayConfig()
	alpha := 3.0
	bad.RobotAlpha = &alpha
	assert.Error(t, s.SaveDisplayConfig(ctx, "d", bad))

	require.NoError(t, s.SaveDisplayConfig(ctx, "d", config.DefaultDisplayConfig()))
	require.NoError(t, s.DeleteDisplayConfig(ctx, "d"))
	recs, err := s.ListDisplayConfigs(ctx)
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestSnapshots(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	base := time.Unix(2000, 0)
	for i := 1; i <= 3; i++ {
		f := render.Frame{
			Seq:        uint64(i),
			Scene:      "lab",
			RenderedAt: base.Add(time.Duration(i) * time.Second),
			Items: []render.Item{
				{Kind: render.ItemObject, ID: "table"},
				{Kind: render.ItemLink, ID: "link1"},
				{Kind: render.ItemLink, ID: "link2"},
			},
		}
		var png []byte
		if i == 3 {
			png = []byte("\x89PNG fake")
		}
		_, err := s.RecordSnapshot(ctx, "planning_scene", f, png)
		require.NoError(t, err)
	}

	recs, err := s.RecentSnapshots(ctx, "planning_scene", 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(3), recs[0].FrameSeq)
	assert.Equal(t, 1, recs[0].ObjectCount)
	assert.Equal(t, 2, recs[0].LinkCount)
	assert.Equal(t, 0, recs[0].AttachedCount)

	png, err := s.SnapshotPNG(ctx, recs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x89PNG fake"), png)

	_, err = s.SnapshotPNG(ctx, recs[1].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAttachAdminRoutes(t *testing.T) {
	s := openTestStore(t)
	mux := http.NewServeMux()
	require.NoError(t, s.AttachAdminRoutes(mux))

	for _, path := range []string{"/debug/display-configs", "/debug/snapshots", "/debug/tailsql/"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, req)
		// 403 when debug access is refused, 200 otherwise
		assert.NotEqual(t, http.StatusNotFound, w.Code, path)
	}
}
