package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ayusman/palmtrace/internal/config"
	"github.com/ayusman/palmtrace/internal/detector"
	"github.com/ayusman/palmtrace/internal/hook"
	"github.com/ayusman/palmtrace/internal/logger"
	"github.com/ayusman/palmtrace/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	cfg := config.Default()
	cfg.Server.Addr = "127.0.0.1:0"
	cfg.Storage.DataDir = dir
	cfg.Storage.UploadDir = filepath.Join(dir, "uploads")
	cfg.Storage.ResultsDir = filepath.Join(dir, "results")
	cfg.Storage.Database = filepath.Join(dir, "palmtrace.db")
	cfg.Hooks.Dir = filepath.Join(dir, "hooks")
	cfg.Detector.Backend = "mock"
	return cfg
}

func writeUpload(t *testing.T, cfg *config.Config, name string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(cfg.Storage.UploadDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(cfg.Storage.UploadDir, name), []byte("not really a video"), 0644))
}

func TestNew_RecoversCatalog(t *testing.T) {
	cfg := testConfig(t)
	require.NoError(t, cfg.EnsureDirs())
	writeUpload(t, cfg, "old.mp4")
	writeUpload(t, cfg, "new.MP4")
	writeUpload(t, cfg, "notes.txt")

	st, err := store.New(cfg.Storage.Database)
	require.NoError(t, err)
	require.NoError(t, st.Videos().Upsert(&store.Video{Name: "old.mp4", Path: filepath.Join(cfg.Storage.UploadDir, "old.mp4")}))
	require.NoError(t, st.Runs().Create(&store.Run{ID: "stale", VideoName: "old.mp4", TotalFrames: 10}))
	require.NoError(t, st.Close())

	a, err := New(cfg, logger.NewNopLogger())
	require.NoError(t, err)
	defer a.Close()

	run, err := a.Store().Runs().GetByID("stale")
	require.NoError(t, err)
	assert.Equal(t, store.RunFailed, run.Status)
	assert.Equal(t, interruptedReason, run.Error)

	videos, err := a.Store().Videos().List()
	require.NoError(t, err)
	names := make([]string, 0, len(videos))
	for _, v := range videos {
		names = append(names, v.Name)
	}
	assert.ElementsMatch(t, []string{"old.mp4", "new.MP4"}, names)
}

func TestApp_Health(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Server().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, false, body["busy"])

	rec = httptest.NewRecorder()
	a.Server().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestApp_InvalidUploadIsRejected(t *testing.T) {
	cfg := testConfig(t)
	writeUpload(t, cfg, "broken.mp4")

	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	rec := httptest.NewRecorder()
	a.Server().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/runs", strings.NewReader(`{"video":"broken.mp4"}`)))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.False(t, a.Analyzer().Busy())
}

func TestApp_RunStopsOnCancel(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestApp_CloseIsIdempotent(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, a.Close())
	require.NoError(t, a.Close())
}

func TestApp_Encoder(t *testing.T) {
	cfg := testConfig(t)
	cfg.Encoder.Backend = "opencv"
	a, err := New(cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, "opencv", a.Encoder())
}

func TestRunCatalog_CreateRegistersVideo(t *testing.T) {
	cfg := testConfig(t)
	writeUpload(t, cfg, "dance.mp4")

	st, err := store.New(cfg.Storage.Database)
	require.NoError(t, err)
	defer st.Close()

	c := newRunCatalog(st, cfg.Storage.UploadDir, nil)
	require.NoError(t, c.Create(&store.Run{ID: "r1", VideoName: "dance.mp4", TotalFrames: 3}))

	v, err := st.Videos().GetByName("dance.mp4")
	require.NoError(t, err)
	assert.Equal(t, int64(len("not really a video")), v.SizeBytes)

	require.NoError(t, c.UpdateProgress("r1", 2))
	require.NoError(t, c.Finish("r1", store.RunCompleted, 3, ""))

	run, err := st.Runs().GetByID("r1")
	require.NoError(t, err)
	assert.Equal(t, store.RunCompleted, run.Status)
	assert.Equal(t, 3, run.ProcessedFrames)

	assert.Error(t, c.Create(&store.Run{ID: "r2", VideoName: "missing.mp4"}))
}

func TestRunCatalog_FinishDispatchesHooks(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("skipping test on Windows")
	}

	cfg := testConfig(t)
	writeUpload(t, cfg, "dance.mp4")

	hookDir := filepath.Join(cfg.Hooks.Dir, "record")
	require.NoError(t, os.MkdirAll(hookDir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, hook.ManifestFile),
		[]byte(`{"name":"record","executable":"record.sh","events":["run.failed"]}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(hookDir, "record.sh"),
		[]byte("#!/bin/sh\ncat > event.json\necho '{\"success\":true}'\n"), 0755))

	manager := hook.NewManager(cfg.Hooks.Dir)
	require.NoError(t, manager.Discover())
	dispatcher := hook.NewDispatcher(manager, hook.NewExecutor(5*time.Second), nil)

	st, err := store.New(cfg.Storage.Database)
	require.NoError(t, err)
	defer st.Close()

	c := newRunCatalog(st, cfg.Storage.UploadDir, dispatcher)
	require.NoError(t, c.Create(&store.Run{ID: "r1", VideoName: "dance.mp4", OutputDir: "/results/dance"}))
	require.NoError(t, c.Finish("r1", store.RunFailed, 4, "encoder failed"))
	dispatcher.Wait()

	data, err := os.ReadFile(filepath.Join(hookDir, "event.json"))
	require.NoError(t, err)

	var ev hook.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, hook.RunFailed, ev.Type)
	assert.Equal(t, "r1", ev.RunID)
	assert.Equal(t, "dance.mp4", ev.Video)
	assert.Equal(t, "/results/dance", ev.OutputDir)
	assert.Equal(t, 4, ev.ProcessedFrames)
	assert.Equal(t, "encoder failed", ev.Error)
}

func TestNewBackend(t *testing.T) {
	log := logger.NewNopLogger()

	d, err := newBackend(config.DetectorConfig{Backend: "mock"}, log)
	require.NoError(t, err)
	assert.IsType(t, &detector.MockDetector{}, d)

	d, err = newBackend(config.DetectorConfig{Backend: "mediapipe", ScriptPath: "/nonexistent/service.py"}, log)
	require.NoError(t, err)
	assert.IsType(t, &detector.MockDetector{}, d)

	d, err = newBackend(config.DetectorConfig{Backend: "remote", RemoteURL: "http://127.0.0.1:9"}, log)
	require.NoError(t, err)
	assert.IsType(t, &detector.RemoteDetector{}, d)
	require.NoError(t, d.Close())

	_, err = newBackend(config.DetectorConfig{Backend: "remote"}, log)
	assert.Error(t, err)
}
