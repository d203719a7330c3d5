package devices_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/relaydrop/relaydrop/internal/devices"
	"github.com/relaydrop/relaydrop/internal/progress"
	"github.com/relaydrop/relaydrop/internal/relay"
	"github.com/relaydrop/relaydrop/internal/semver"
	"github.com/relaydrop/relaydrop/protocol/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newRelay(t *testing.T) (*devices.Client, string) {
	t.Helper()
	dir := t.TempDir()
	s := relay.NewServer(relay.Config{UploadDir: dir, Address: "10.0.0.9"}, semver.Version{Major: 1}, zaptest.NewLogger(t))
	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return devices.New(strings.TrimPrefix(ts.URL, "http://"), ts.Client()), dir
}

func TestRoster(t *testing.T) {
	ctx := context.Background()
	c, _ := newRelay(t)

	ip, err := c.DetectIP(ctx)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1", ip)

	recorded, err := c.RecordIP(ctx)
	require.NoError(t, err)
	assert.Equal(t, ip, recorded)

	ips, err := c.GetIPs(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{ip}, ips)

	require.NoError(t, c.RemoveIP(ctx))
	ips, err = c.GetIPs(ctx)
	require.NoError(t, err)
	assert.Empty(t, ips)
}

func TestOffline(t *testing.T) {
	ctx := context.Background()
	c, _ := newRelay(t)

	status, err := c.SendFile(ctx, "10.9.9.9", "/srv/file.txt")
	require.NoError(t, err)
	assert.Equal(t, api.StatusDeviceOffline, status)

	status, err = c.PushClipboard(ctx, "10.9.9.9", "hi")
	require.NoError(t, err)
	assert.Equal(t, api.StatusDeviceOffline, status)
}

func TestUpload(t *testing.T) {
	c, dir := newRelay(t)
	src := filepath.Join(t.TempDir(), "holiday.jpg")
	content := strings.Repeat("x", 300*1024)
	require.NoError(t, os.WriteFile(src, []byte(content), 0o644))

	var snaps []progress.Snapshot
	estimator := progress.New(progress.RendererFunc(func(s progress.Snapshot) { snaps = append(snaps, s) }))
	res, err := c.Upload(context.Background(), src, estimator)
	require.NoError(t, err)
	assert.Equal(t, "holiday.jpg", res.Filename)

	stored, err := os.ReadFile(filepath.Join(dir, "holiday.jpg"))
	require.NoError(t, err)
	assert.Equal(t, content, string(stored))

	require.NotEmpty(t, snaps)
	assert.Equal(t, "holiday.jpg", snaps[0].Title)
	last := snaps[len(snaps)-1]
	assert.True(t, last.Completed)
	assert.Equal(t, 100.0, last.Percent)
}

func TestStatusError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upload directory full", http.StatusInsufficientStorage)
	}))
	defer ts.Close()
	c := devices.New(strings.TrimPrefix(ts.URL, "http://"), nil)

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	_, err := c.Upload(context.Background(), src, nil)
	var statusErr *devices.StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusInsufficientStorage, statusErr.Code)
	assert.Equal(t, "upload directory full", statusErr.Body)
}
