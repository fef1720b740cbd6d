package config_test

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hhenrich/zmqbridge/internal/config"
	"github.com/hhenrich/zmqbridge/internal/engine"
)

func TestEnsureCreatesEmptyTopology(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.json")

	top, created, err := config.Ensure(path)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Empty(t, top.Sockets)

	_, created, err = config.Ensure(path)
	require.NoError(t, err)
	assert.False(t, created)
}

func TestApplyReconcilesSockets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.json")

	body := `{"sockets":[
		{"name":"pub1","kind":"pub","bind":["inproc://config-test-pub1"]},
		{"name":"pull1","kind":"pull","bind":["inproc://config-test-pull1"]}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	bridge := engine.NewContext()
	var registered atomic.Int32
	bridge.SetHook(func(kind, id, detail string) {
		if kind == "register" {
			registered.Add(1)
		}
	})
	bridge.Start()
	defer bridge.Close()

	mgr := config.NewManager(bridge, path)
	require.NoError(t, mgr.Apply())
	require.Eventually(t, func() bool {
		return registered.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestWatchReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "topology.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"sockets":[]}`), 0o644))

	bridge := engine.NewContext()
	var registered atomic.Int32
	bridge.SetHook(func(kind, id, detail string) {
		if kind == "register" {
			registered.Add(1)
		}
	})
	bridge.Start()
	defer bridge.Close()

	mgr := config.NewManager(bridge, path)
	require.NoError(t, mgr.Apply())
	require.NoError(t, mgr.Watch())
	defer mgr.Close()
	assert.Equal(t, int32(0), registered.Load())

	body := `{"sockets":[{"name":"pair1","kind":"pair","bind":["inproc://config-test-watch"]}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	// The watcher reconciles asynchronously. A flaky failure here would
	// point at fsnotify event coalescing, not the reconcile logic itself
	// (covered directly by TestApplyReconcilesSockets).
	require.Eventually(t, func() bool {
		return registered.Load() == 1
	}, 2*time.Second, 10*time.Millisecond)
}
