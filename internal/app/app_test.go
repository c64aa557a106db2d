package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/kdimtricp/lostfound/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, dbType string) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		MaxLostTimeSeconds: 1,
		FramesPerSecond:    10,
		Paths: config.PathsConfig{
			Log:       filepath.Join(dir, "detections.txt"),
			Snapshot:  filepath.Join(dir, "identities.txt"),
			Frames:    filepath.Join(dir, "frames"),
			Artifacts: filepath.Join(dir, "lost"),
		},
		Database: config.DatabaseConfig{Type: dbType, SQLitePath: filepath.Join(dir, "lostfound.db")},
	}
	require.NoError(t, config.Validate(cfg))
	return cfg
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestAppWithHistory(t *testing.T) {
	cfg := testConfig(t, "sqlite")
	log := `Frame 3: [{"class":16,"name":"dog","color":"#112233","bbox":{"xmin":0,"ymin":0,"xmax":4,"ymax":4}}]
Frame 14: [{"class":41,"name":"cup","color":"#000000"}]
`
	require.NoError(t, os.WriteFile(cfg.Paths.Log, []byte(log), 0644))

	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()
	require.NotNil(t, a.History)

	rep, err := a.Engine.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Created)
	assert.Equal(t, 1, rep.Lost)

	h := a.Handler()
	rec := get(t, h, "/objects")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"cup_1"`)
	assert.NotContains(t, rec.Body.String(), `"dog_1"`)

	rec = get(t, h, "/lost/dog_1")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"artifactKey":"dog_1_frame3"`)
	assert.Contains(t, rec.Body.String(), `"sessionId":"`+a.Engine.SessionID()+`"`)

	rec = get(t, h, "/artifacts/dog_1_frame3.txt")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "id: dog_1\n")
}

func TestAppWithoutDatabase(t *testing.T) {
	cfg := testConfig(t, "")
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.DB)
	assert.Nil(t, a.History)
	assert.Equal(t, http.StatusNotFound, get(t, a.Handler(), "/lost").Code)
}
